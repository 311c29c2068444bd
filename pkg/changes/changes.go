package changes

import (
	"sort"
	"sync"

	"github.com/cuemby/katalog/pkg/types"
)

// KeyPolicy is the subset of the metadata registry the kernel needs:
// per-key value type and write-path policy, looked up by key id.
type KeyPolicy interface {
	GetByID(id int64) (*types.MetadataKeyDef, error)
}

// MetadataChanges is the central object of the change-set kernel. It
// holds the historical rows loaded for one asset plus the staged
// observations accumulated during the current run, and answers
// "current value" questions by folding the two in memory.
type MetadataChanges struct {
	Asset  *types.Asset
	Loaded []*types.Metadata

	mu     sync.Mutex
	staged []*types.Metadata

	cacheValid bool
	current    map[int64][]*types.Metadata
}

// New creates a MetadataChanges for asset, seeded with its historical
// rows.
func New(asset *types.Asset, loaded []*types.Metadata) *MetadataChanges {
	return &MetadataChanges{Asset: asset, Loaded: loaded}
}

// Add appends newly observed metadata to the staged set and
// invalidates the cached current() view.
func (c *MetadataChanges) Add(entries ...*types.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = append(c.staged, entries...)
	c.cacheValid = false
}

// Staged returns the entries staged so far, in insertion order.
func (c *MetadataChanges) Staged() []*types.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Metadata, len(c.staged))
	copy(out, c.staged)
	return out
}

// Current folds Loaded+Staged under the "newest non-tombstone wins"
// rule and returns the live values grouped by metadata key id,
// optionally restricted to one actor.
func (c *MetadataChanges) Current(actorID *int64) map[int64][]*types.Metadata {
	c.mu.Lock()
	if c.cacheValid && actorID == nil {
		cached := c.current
		c.mu.Unlock()
		return cached
	}
	all := make([]*types.Metadata, 0, len(c.Loaded)+len(c.staged))
	all = append(all, c.Loaded...)
	all = append(all, c.staged...)
	c.mu.Unlock()

	result := FoldCurrent(all, actorID)

	if actorID == nil {
		c.mu.Lock()
		c.current = result
		c.cacheValid = true
		c.mu.Unlock()
	}
	return result
}

// ChangedKeys returns the set of key ids whose live fingerprint set
// computed from Loaded alone differs from the live fingerprint set
// computed from Loaded+Staged.
func (c *MetadataChanges) ChangedKeys(actorID *int64) map[int64]bool {
	baseline := FoldCurrent(c.Loaded, actorID)
	current := c.Current(actorID)

	changed := make(map[int64]bool)
	keys := make(map[int64]bool)
	for k := range baseline {
		keys[k] = true
	}
	for k := range current {
		keys[k] = true
	}
	for k := range keys {
		if !sameFingerprintSet(baseline[k], current[k]) {
			changed[k] = true
		}
	}
	return changed
}

func sameFingerprintSet(a, b []*types.Metadata) bool {
	fpSet := func(entries []*types.Metadata) map[string]bool {
		s := make(map[string]bool, len(entries))
		for _, e := range entries {
			fp, err := Fingerprint(e)
			if err == nil {
				s[fp] = true
			}
		}
		return s
	}
	sa, sb := fpSet(a), fpSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for fp := range sa {
		if !sb[fp] {
			return false
		}
	}
	return true
}

// LatestValue returns the first (most recent) live entry for key,
// optionally constrained to a value type, or nil if there is none.
func (c *MetadataChanges) LatestValue(keyID int64, actorID *int64, valueType types.ValueType) *types.Metadata {
	entries := c.Current(actorID)[keyID]
	for _, e := range entries {
		if valueType == "" || e.ValueType == valueType {
			return e
		}
	}
	return nil
}

// LatestChangesetID returns the maximum changeset id among Loaded+
// Staged entries for any of the given keys (and actor, if set). Zero
// if there are none, meaning "no prior observation".
func (c *MetadataChanges) LatestChangesetID(keyIDs []int64, actorID *int64) int64 {
	wanted := make(map[int64]bool, len(keyIDs))
	for _, k := range keyIDs {
		wanted[k] = true
	}

	c.mu.Lock()
	all := make([]*types.Metadata, 0, len(c.Loaded)+len(c.staged))
	all = append(all, c.Loaded...)
	all = append(all, c.staged...)
	c.mu.Unlock()

	var max int64
	for _, e := range all {
		if !wanted[e.MetadataKeyID] {
			continue
		}
		if actorID != nil && e.ActorID != *actorID {
			continue
		}
		if e.ChangesetID > max {
			max = e.ChangesetID
		}
	}
	return max
}

// FoldCurrent is the standalone "newest non-tombstone wins" fold used
// both by MetadataChanges.Current and by prepare_persist against an
// arbitrary metadata snapshot (e.g. the store's existing_metadata).
//
// Algorithm: sort entries changeset_id DESC, id DESC; optionally
// filter by actor; for each (key, fingerprint) remember only the
// first occurrence; drop occurrences whose first hit is a tombstone;
// group survivors by key.
func FoldCurrent(entries []*types.Metadata, actorID *int64) map[int64][]*types.Metadata {
	filtered := make([]*types.Metadata, 0, len(entries))
	for _, e := range entries {
		if actorID != nil && e.ActorID != *actorID {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].ChangesetID != filtered[j].ChangesetID {
			return filtered[i].ChangesetID > filtered[j].ChangesetID
		}
		return filtered[i].ID > filtered[j].ID
	})

	type triple struct {
		key int64
		fp  string
	}
	seen := make(map[triple]bool)
	result := make(map[int64][]*types.Metadata)

	for _, e := range filtered {
		fp, err := Fingerprint(e)
		if err != nil {
			continue
		}
		t := triple{e.MetadataKeyID, fp}
		if seen[t] {
			continue
		}
		seen[t] = true
		if e.Removed {
			continue
		}
		result[e.MetadataKeyID] = append(result[e.MetadataKeyID], e)
	}
	return result
}
