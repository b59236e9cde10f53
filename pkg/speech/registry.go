package speech

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Registry holds the set of known backends and tracks which one is the
// default. The first registered backend becomes the default until
// SetDefault is called.
type Registry struct {
	mutex       sync.RWMutex
	backends    map[string]Backend
	defaultName string
}

// NewRegistry creates an empty backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry. Registering a name twice
// replaces the earlier backend.
func (r *Registry) Register(b Backend) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := b.Name()
	if _, exists := r.backends[name]; exists {
		log.Printf("Speech: replacing backend %q", name)
	}
	r.backends[name] = b
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// Get returns the backend registered under name
func (r *Registry) Get(name string) (Backend, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return b, nil
}

// SetDefault marks the named backend as the default
func (r *Registry) SetDefault(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	r.defaultName = name
	return nil
}

// Default returns the current default backend
func (r *Registry) Default() (Backend, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.defaultName == "" {
		return nil, ErrNoBackends
	}
	return r.backends[r.defaultName], nil
}

// DefaultName returns the name of the current default backend, or ""
func (r *Registry) DefaultName() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.defaultName
}

// Names returns the registered backend names in sorted order
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered backends
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.backends)
}

// List returns a snapshot of every registered backend with live
// availability. Backend probes run outside the registry lock since
// IsAvailable may touch the network.
func (r *Registry) List() []BackendInfo {
	r.mutex.RLock()
	backends := make(map[string]Backend, len(r.backends))
	for name, b := range r.backends {
		backends[name] = b
	}
	defaultName := r.defaultName
	r.mutex.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]BackendInfo, 0, len(names))
	for _, name := range names {
		b := backends[name]
		locales := b.GetSupportedLocales()
		if locales == nil {
			locales = []string{}
		}
		infos = append(infos, BackendInfo{
			Name:      name,
			Available: b.IsAvailable(),
			OnDevice:  b.SupportsOnDevice(),
			Locales:   locales,
			Default:   name == defaultName,
		})
	}
	return infos
}
