// Package collections evaluates an AssetCollection's stored query and
// materializes its membership as collection/member Metadata rows,
// grounded on the store's add_collection_members_for_query operation.
package collections

import (
	"fmt"

	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
)

// Refresh evaluates c's stored Source query against the catalog,
// writes one membership Metadata row per matched asset (stamped with
// actorID/changesetID), and updates c's cached AssetCount. Collections
// with no Source are a no-op: their membership is maintained by
// direct AddCollectionMembersForQuery calls instead of a query.
func Refresh(st store.Store, reg *registry.Registry, c *types.AssetCollection, actorID, changesetID int64) (int, error) {
	if c.Source == nil {
		return 0, nil
	}

	opts, err := decodeSource(reg, c.Source)
	if err != nil {
		return 0, fmt.Errorf("refresh collection %q: %w", c.Name, err)
	}

	result, err := st.ListAssets(opts)
	if err != nil {
		return 0, fmt.Errorf("refresh collection %q: evaluate query: %w", c.Name, err)
	}

	assetIDs := make([]int64, len(result.Assets))
	for i, a := range result.Assets {
		assetIDs[i] = a.EffectiveID()
	}

	if err := st.AddCollectionMembersForQuery(c.ID, assetIDs, c.MembershipKeyID, actorID, changesetID); err != nil {
		return 0, fmt.Errorf("refresh collection %q: write membership: %w", c.Name, err)
	}

	c.AssetCount = len(assetIDs)
	if err := st.SaveCollection(c); err != nil {
		return 0, fmt.Errorf("refresh collection %q: save asset count: %w", c.Name, err)
	}

	return len(assetIDs), nil
}

// RefreshLive refreshes every collection whose RefreshMode is
// RefreshLive, meant to run once per changeset right after sources and
// processors have finished writing.
func RefreshLive(st store.Store, reg *registry.Registry, actorID, changesetID int64) error {
	all, err := st.ListCollections()
	if err != nil {
		return fmt.Errorf("refresh live collections: %w", err)
	}
	for _, c := range all {
		if c.RefreshMode != types.RefreshLive {
			continue
		}
		if _, err := Refresh(st, reg, c, actorID, changesetID); err != nil {
			return err
		}
	}
	return nil
}

// sourceFilter is the JSON shape of one direct assets-column predicate
// within a collection's stored Source.
type sourceFilter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

// sourceMetadataFilter is the JSON shape of one metadata-key predicate
// within a collection's stored Source, keyed by metadata key name
// rather than id so the stored query stays stable across a fresh
// registry sync.
type sourceMetadataFilter struct {
	Key   string `json:"key"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// decodeSource turns a collection's generic Source map into a
// store.ListOptions, resolving metadata key names against reg.
func decodeSource(reg *registry.Registry, source map[string]any) (store.ListOptions, error) {
	var opts store.ListOptions

	if rawFilters, ok := source["filters"].([]any); ok {
		for _, raw := range rawFilters {
			f, err := decodeFilter(raw)
			if err != nil {
				return opts, err
			}
			opts.Filters = append(opts.Filters, store.Filter{Column: f.Column, Op: f.Op, Value: f.Value})
		}
	}

	if rawFilters, ok := source["metadata_filters"].([]any); ok {
		for _, raw := range rawFilters {
			f, err := decodeMetadataFilter(raw)
			if err != nil {
				return opts, err
			}
			def, err := reg.GetByName(f.Key)
			if err != nil {
				return opts, fmt.Errorf("metadata filter key %q: %w", f.Key, err)
			}
			opts.MetadataFilters = append(opts.MetadataFilters, store.MetadataFilter{
				KeyID: def.ID, ValueType: def.ValueType, Op: f.Op, Value: f.Value,
			})
		}
	}

	return opts, nil
}

func decodeFilter(raw any) (sourceFilter, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return sourceFilter{}, fmt.Errorf("filter entry is not an object")
	}
	return sourceFilter{
		Column: stringField(m, "column"),
		Op:     stringField(m, "op"),
		Value:  m["value"],
	}, nil
}

func decodeMetadataFilter(raw any) (sourceMetadataFilter, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return sourceMetadataFilter{}, fmt.Errorf("metadata filter entry is not an object")
	}
	return sourceMetadataFilter{
		Key:   stringField(m, "key"),
		Op:    stringField(m, "op"),
		Value: m["value"],
	}, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
