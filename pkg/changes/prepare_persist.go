package changes

import (
	"fmt"
	"sort"

	"github.com/cuemby/katalog/pkg/types"
)

// triple identifies a (key, actor, value-fingerprint) combination.
type triple struct {
	keyID   int64
	actorID int64
	fp      string
}

// pair identifies a (key, actor) combination subject to a clear.
type pair struct {
	keyID   int64
	actorID int64
}

// PreparePersistResult is the outcome of PreparePersist.
type PreparePersistResult struct {
	ToAppend    []*types.Metadata
	ChangedKeys map[int64]bool
}

// PreparePersist computes the minimal set of new Metadata rows to
// append given staged observations and the store's authoritative
// existing snapshot, applying skip_false / clear_on_false policy and
// idempotent dedup. See the change-set kernel algorithm this
// implements: fold existing rows into latest_states, resolve
// clear-groups into tombstones, then append surviving staged entries
// that actually change the latest state.
func PreparePersist(policy KeyPolicy, changeset *types.Changeset, asset *types.Asset, staged []*types.Metadata, existing []*types.Metadata) (*PreparePersistResult, error) {
	latestStates := buildLatestStates(existing)

	clearGroups := make(map[pair]bool)
	survivors := make([]*types.Metadata, 0, len(staged))

	for _, entry := range staged {
		def, err := policy.GetByID(entry.MetadataKeyID)
		if err != nil {
			return nil, fmt.Errorf("prepare_persist: %w", err)
		}

		falsey := IsFalsey(entry)
		if def.ClearOnFalse && falsey {
			clearGroups[pair{entry.MetadataKeyID, entry.ActorID}] = true
			continue
		}
		if def.SkipFalse && falsey {
			continue
		}
		if !HasValue(entry) && !entry.Removed {
			clearGroups[pair{entry.MetadataKeyID, entry.ActorID}] = true
			continue
		}
		survivors = append(survivors, entry)
	}

	changedKeys := make(map[int64]bool)
	toAppend := make([]*types.Metadata, 0, len(survivors)+len(clearGroups))

	// Deterministic order: clear groups processed in (key,actor) order.
	groups := make([]pair, 0, len(clearGroups))
	for g := range clearGroups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].keyID != groups[j].keyID {
			return groups[i].keyID < groups[j].keyID
		}
		return groups[i].actorID < groups[j].actorID
	})

	for _, g := range groups {
		actorID := g.actorID
		live := FoldCurrent(existing, &actorID)[g.keyID]
		for _, entry := range live {
			tomb := tombstoneOf(entry, asset, changeset)
			fp, err := Fingerprint(tomb)
			if err != nil {
				continue
			}
			toAppend = append(toAppend, tomb)
			latestStates[triple{g.keyID, g.actorID, fp}] = true
			changedKeys[g.keyID] = true
		}
	}

	for _, entry := range survivors {
		if !entry.Removed && !HasValue(entry) {
			continue
		}
		if entry.AssetID == 0 {
			entry.AssetID = asset.EffectiveID()
		}
		if entry.ChangesetID == 0 {
			entry.ChangesetID = changeset.ID
		}

		fp, err := Fingerprint(entry)
		if err != nil {
			return nil, fmt.Errorf("prepare_persist: %w", err)
		}

		t := triple{entry.MetadataKeyID, entry.ActorID, fp}
		if removed, ok := latestStates[t]; ok && removed == entry.Removed {
			continue // idempotent no-op
		}

		toAppend = append(toAppend, entry)
		latestStates[t] = entry.Removed
		changedKeys[entry.MetadataKeyID] = true
	}

	return &PreparePersistResult{ToAppend: toAppend, ChangedKeys: changedKeys}, nil
}

// buildLatestStates folds existing newest-first and keeps only the
// first (most recent) removed-state per (key, actor, fingerprint).
func buildLatestStates(existing []*types.Metadata) map[triple]bool {
	sorted := make([]*types.Metadata, len(existing))
	copy(sorted, existing)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChangesetID != sorted[j].ChangesetID {
			return sorted[i].ChangesetID > sorted[j].ChangesetID
		}
		return sorted[i].ID > sorted[j].ID
	})

	states := make(map[triple]bool, len(sorted))
	for _, e := range sorted {
		fp, err := Fingerprint(e)
		if err != nil {
			continue
		}
		t := triple{e.MetadataKeyID, e.ActorID, fp}
		if _, ok := states[t]; !ok {
			states[t] = e.Removed
		}
	}
	return states
}

// tombstoneOf builds a new tombstone row carrying the same value as
// the live entry being erased, bound to the given changeset and asset.
func tombstoneOf(live *types.Metadata, asset *types.Asset, changeset *types.Changeset) *types.Metadata {
	cp := *live
	cp.ID = 0
	cp.AssetID = asset.EffectiveID()
	cp.ChangesetID = changeset.ID
	cp.Removed = true
	return &cp
}
