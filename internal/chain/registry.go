package chain

import (
	"maps"
	"slices"

	"github.com/roach88/chainfilter/internal/logging"
)

// PermissionSink accumulates permissions that loaded rules may check.
// Implemented by permcache.Cache.
type PermissionSink interface {
	AddPermissions(perms []string)
}

// Registry owns every named chain and resolves include directives.
//
// GetOrCreate returns the same *Chain for a name for the registry's
// lifetime, so a chain included from several parents is shared and a reload
// is visible to all of them.
//
// A Registry is not safe for concurrent use. Hosts serialize loads and
// applies, see filter.Service.
type Registry struct {
	source Source
	sink   PermissionSink
	log    *logging.Manager
	chains map[string]*Chain
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPermissionSink sets where permission interest is published after a
// successful top-level load.
func WithPermissionSink(sink PermissionSink) RegistryOption {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithLogging sets the logging manager used for compile warnings and
// execution traces.
func WithLogging(m *logging.Manager) RegistryOption {
	return func(r *Registry) {
		r.log = m
	}
}

// NewRegistry creates a registry that reads chain sources from source.
func NewRegistry(source Source, opts ...RegistryOption) *Registry {
	r := &Registry{
		source: source,
		chains: make(map[string]*Chain),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.New(nil)
	}
	return r
}

// GetOrCreate returns the chain registered under name, creating an
// unloaded one on first use.
func (r *Registry) GetOrCreate(name string) *Chain {
	if c, ok := r.chains[name]; ok {
		return c
	}
	c := &Chain{name: name, registry: r, state: Unloaded}
	r.chains[name] = c
	return c
}

// Lookup returns the chain registered under name without creating it.
func (r *Registry) Lookup(name string) (*Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// Names returns the registered chain names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.chains))
}

// Source returns the registry's chain source.
func (r *Registry) Source() Source {
	return r.source
}

// Logging returns the registry's logging manager.
func (r *Registry) Logging() *logging.Manager {
	return r.log
}
