package registry

import (
	"fmt"
	"sync"

	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/types"
)

// Store is the subset of the persistent store the registry needs to
// upsert key definitions and learn their assigned ids.
type Store interface {
	UpsertMetadataKey(def *types.MetadataKeyDef) (int64, error)
}

// Registry declares typed metadata keys and, once synced, maps between
// key names and the stable integer ids the store assigned them. It is
// a process-wide singleton in spirit but kept as an explicit value so
// callers thread it through rather than relying on package globals.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]*types.MetadataKeyDef // by name, pre-sync
	byID     map[int64]*types.MetadataKeyDef
	byName   map[string]int64
	synced   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		defs:   make(map[string]*types.MetadataKeyDef),
		byID:   make(map[int64]*types.MetadataKeyDef),
		byName: make(map[string]int64),
	}
}

// Define declares a metadata key in memory. It must be called before
// Sync; calling it again for the same name replaces the declaration.
func (r *Registry) Define(name string, valueType types.ValueType, opts ...DefOption) *types.MetadataKeyDef {
	def := &types.MetadataKeyDef{
		Name:      name,
		ValueType: valueType,
	}
	for _, opt := range opts {
		opt(def)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[name] = def
	return def
}

// DefOption customizes a declared MetadataKeyDef.
type DefOption func(*types.MetadataKeyDef)

func WithTitle(title string) DefOption       { return func(d *types.MetadataKeyDef) { d.Title = title } }
func WithDescription(desc string) DefOption  { return func(d *types.MetadataKeyDef) { d.Description = desc } }
func WithWidth(w int) DefOption               { return func(d *types.MetadataKeyDef) { d.Width = w } }
func WithSkipFalse() DefOption                { return func(d *types.MetadataKeyDef) { d.SkipFalse = true } }
func WithClearOnFalse() DefOption             { return func(d *types.MetadataKeyDef) { d.ClearOnFalse = true } }
func WithSearchable() DefOption               { return func(d *types.MetadataKeyDef) { d.Searchable = true } }

// Sync upserts every declared key into the store and populates the
// id<->name lookup tables. New keys may be added and synced again
// later; ids already assigned are never reassigned.
func (r *Registry) Sync(store Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := log.WithComponent("registry")
	for name, def := range r.defs {
		id, err := store.UpsertMetadataKey(def)
		if err != nil {
			return fmt.Errorf("sync metadata key %q: %w", name, err)
		}
		def.ID = id
		r.byID[id] = def
		r.byName[name] = id
		logger.Debug().Str("key", name).Int64("id", id).Msg("metadata key synced")
	}
	r.synced = true
	logger.Info().Int("count", len(r.byName)).Msg("registry synced")
	return nil
}

// GetID returns the stable id for a key name. It fails if Sync has
// not run yet or the name was never declared.
func (r *Registry) GetID(name string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.synced {
		return 0, fmt.Errorf("registry: %w", ErrNotSynced)
	}
	id, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("registry: unknown metadata key %q", name)
	}
	return id, nil
}

// MustGetID is GetID but panics on error; suitable for package-level
// key-id lookups performed after Sync at process start.
func (r *Registry) MustGetID(name string) int64 {
	id, err := r.GetID(name)
	if err != nil {
		panic(err)
	}
	return id
}

// GetByID returns the definition for a synced key id.
func (r *Registry) GetByID(id int64) (*types.MetadataKeyDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown metadata key id %d", id)
	}
	return def, nil
}

// GetByName returns the definition for a declared key name, synced or
// not (so callers can inspect SkipFalse/ClearOnFalse before Sync).
func (r *Registry) GetByName(name string) (*types.MetadataKeyDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown metadata key %q", name)
	}
	return def, nil
}

// All returns every declared definition, synced or not.
func (r *Registry) All() []*types.MetadataKeyDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.MetadataKeyDef, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}
