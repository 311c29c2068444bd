package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/cuemby/katalog/pkg/types"
)

// Filter is a direct predicate on an assets column.
type Filter struct {
	Column string // namespace, external_id, canonical_uri, actor_id, canonical_asset_id
	Op     string // =, !=, like, >, <, >=, <=
	Value  any
}

// MetadataFilter is a predicate evaluated against an asset's current
// value for one metadata key, translated into an EXISTS sub-query.
type MetadataFilter struct {
	KeyID     int64
	ValueType types.ValueType
	Op        string
	Value     any
}

// ListOptions configures one ListAssets call.
type ListOptions struct {
	Filters         []Filter
	MetadataFilters []MetadataFilter
	SortColumn      string // an assets column; empty means unordered
	SortDesc        bool
	Offset          int
	Limit           int
	IncludeTotal    bool
}

// ListResult is one page of ListAssets results.
type ListResult struct {
	Assets []*types.Asset
	// Total is the full match count ignoring pagination, or nil if
	// IncludeTotal was false.
	Total *int
}

var assetColumns = map[string]bool{
	"id": true, "namespace": true, "external_id": true,
	"canonical_uri": true, "actor_id": true, "canonical_asset_id": true,
}

var filterOps = map[string]string{
	"=": "=", "!=": "!=", "like": "LIKE", ">": ">", "<": "<", ">=": ">=", "<=": "<=",
}

// CurrentValues reconstructs, for each asset id, the latest live value
// per requested metadata key using the id-of-latest-row-in-latest-
// changeset idiom: find each (asset, key)'s most recent changeset and
// the highest-id row within it, then drop it from the result if that
// row turns out to be a removal tombstone. A key absent from the
// result has either never been observed or was most recently removed.
func (s *SQLiteStore) CurrentValues(assetIDs []int64, keyIDs []int64) (map[int64]map[int64]*types.Metadata, error) {
	out := make(map[int64]map[int64]*types.Metadata, len(assetIDs))
	if len(assetIDs) == 0 || len(keyIDs) == 0 {
		return out, nil
	}

	assetPlaceholders, assetArgs := inClause(assetIDs)
	keyPlaceholders, keyArgs := inClause(keyIDs)

	query := `
		WITH latest_snap AS (
			SELECT asset_id, metadata_key_id, MAX(changeset_id) AS changeset_id
			FROM metadata
			WHERE asset_id IN (` + assetPlaceholders + `) AND metadata_key_id IN (` + keyPlaceholders + `)
			GROUP BY asset_id, metadata_key_id
		),
		latest_id AS (
			SELECT m.asset_id, m.metadata_key_id, MAX(m.id) AS id
			FROM metadata m
			JOIN latest_snap ls
				ON ls.asset_id = m.asset_id AND ls.metadata_key_id = m.metadata_key_id AND ls.changeset_id = m.changeset_id
			GROUP BY m.asset_id, m.metadata_key_id
		)
		SELECT ` + metadataColumns + ` FROM metadata m JOIN latest_id li ON li.id = m.id WHERE m.removed = 0`

	args := append(append([]any{}, assetArgs...), keyArgs...)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("current values: %w", err)
	}
	defer rows.Close()

	all, err := scanMetadataRows(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		byKey, ok := out[m.AssetID]
		if !ok {
			byKey = make(map[int64]*types.Metadata)
			out[m.AssetID] = byKey
		}
		byKey[m.MetadataKeyID] = m
	}
	return out, nil
}

// ListAssets evaluates opts and returns one page of matching assets.
func (s *SQLiteStore) ListAssets(opts ListOptions) (*ListResult, error) {
	var where []string
	var args []any

	for _, f := range opts.Filters {
		if !assetColumns[f.Column] {
			return nil, fmt.Errorf("list assets: unknown filter column %q", f.Column)
		}
		op, ok := filterOps[strings.ToLower(f.Op)]
		if !ok {
			return nil, fmt.Errorf("list assets: unknown filter op %q", f.Op)
		}
		where = append(where, fmt.Sprintf("a.%s %s ?", f.Column, op))
		args = append(args, f.Value)
	}

	// A metadata filter matches on any non-removed row satisfying the
	// predicate rather than recomputing the current row per candidate;
	// a key that was set and later re-set to the same matching value
	// without an intervening removal reads the same either way.
	for _, mf := range opts.MetadataFilters {
		op, ok := filterOps[strings.ToLower(mf.Op)]
		if !ok {
			return nil, fmt.Errorf("list assets: unknown metadata filter op %q", mf.Op)
		}
		col, err := valueColumn(mf.ValueType)
		if err != nil {
			return nil, err
		}
		sub := `EXISTS (
			SELECT 1 FROM metadata m
			WHERE m.asset_id = COALESCE(a.canonical_asset_id, a.id)
			  AND m.metadata_key_id = ?
			  AND m.removed = 0
			  AND m.` + col + ` ` + op + ` ?
		)`
		where = append(where, sub)
		args = append(args, mf.KeyID, mf.Value)
	}

	base := `FROM assets a`
	if len(where) > 0 {
		base += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total *int
	if opts.IncludeTotal {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) `+base, args...).Scan(&n); err != nil {
			return nil, fmt.Errorf("list assets: count: %w", err)
		}
		total = &n
	}

	query := `SELECT a.id, a.canonical_asset_id, a.actor_id, a.namespace, a.external_id, a.canonical_uri ` + base
	if opts.SortColumn != "" {
		if !assetColumns[opts.SortColumn] {
			return nil, fmt.Errorf("list assets: unknown sort column %q", opts.SortColumn)
		}
		dir := "ASC"
		if opts.SortDesc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY a.%s %s", opts.SortColumn, dir)
	} else {
		query += " ORDER BY a.id"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*types.Asset
	for rows.Next() {
		a, err := scanListedAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	return &ListResult{Assets: assets, Total: total}, nil
}

func scanListedAsset(rows *sql.Rows) (*types.Asset, error) {
	var a types.Asset
	var canonicalAssetID sql.NullInt64
	if err := rows.Scan(&a.ID, &canonicalAssetID, &a.ActorID, &a.Namespace, &a.ExternalID, &a.CanonicalURI); err != nil {
		return nil, fmt.Errorf("scan listed asset: %w", err)
	}
	if canonicalAssetID.Valid {
		v := canonicalAssetID.Int64
		a.CanonicalAssetID = &v
	}
	return &a, nil
}

func valueColumn(vt types.ValueType) (string, error) {
	switch vt {
	case types.ValueString:
		return "value_text", nil
	case types.ValueJSON:
		return "value_json", nil
	case types.ValueInt:
		return "value_int", nil
	case types.ValueFloat:
		return "value_real", nil
	case types.ValueDatetime:
		return "value_datetime", nil
	case types.ValueRelation:
		return "value_relation_id", nil
	case types.ValueCollection:
		return "value_collection_id", nil
	default:
		return "", fmt.Errorf("list assets: unsupported metadata filter value type %q", vt)
	}
}
