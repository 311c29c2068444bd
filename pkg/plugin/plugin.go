package plugin

import (
	"fmt"
	"sync"

	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/types"
)

// Plugin is implemented by any source, processor, analyzer, editor or
// exporter that can be located by its string id and constructed from
// a validated config.
type Plugin interface {
	PluginID() string
}

// Factory constructs a Plugin instance from its full actor row.
// Implementations validate actor.Config against their own config model
// and return a descriptive error on failure; they keep whatever of
// actor they need (id, config) for the instance's lifetime.
type Factory func(actor *types.Actor) (Plugin, error)

// Registry maps plugin ids to factories and caches actor instances by
// identity so repeated lookups for the same logical actor return the
// same instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Plugin // keyed by pluginID + "|" + identityKey
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Plugin),
	}
}

// Register adds or replaces a plugin factory. Registration is
// idempotent: registering the same id twice simply replaces the
// factory, it never errors.
func (r *Registry) Register(pluginID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[pluginID] = f
	log.WithComponent("plugin").Debug().Str("plugin_id", pluginID).Msg("plugin registered")
}

// RefreshPlugins is a no-op hook for implementations that register
// plugins via init()-time side effects; it exists so a daemon restart
// path can call it uniformly even when discovery is static.
func (r *Registry) RefreshPlugins() {}

// GetActorInstance returns the cached Plugin instance for actor,
// constructing and caching it on first use. Instances are reused
// across calls for the lifetime of the process, keyed by
// (plugin_id, identity_key).
func (r *Registry) GetActorInstance(actor *types.Actor) (Plugin, error) {
	cacheKey := actor.PluginID + "|" + actor.IdentityKey

	r.mu.RLock()
	if inst, ok := r.instances[cacheKey]; ok {
		r.mu.RUnlock()
		return inst, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[cacheKey]; ok {
		return inst, nil
	}

	factory, ok := r.factories[actor.PluginID]
	if !ok {
		return nil, fmt.Errorf("plugin: unknown plugin id %q", actor.PluginID)
	}
	inst, err := factory(actor)
	if err != nil {
		return nil, fmt.Errorf("plugin: construct %q: %w", actor.PluginID, err)
	}
	r.instances[cacheKey] = inst
	return inst, nil
}

// Lookup returns the factory registered for pluginID, if any.
func (r *Registry) Lookup(pluginID string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[pluginID]
	return f, ok
}
