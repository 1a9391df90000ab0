package driver

import (
	"fmt"
	"sync"

	"github.com/faucetdb/syncer/internal/config"
)

// Factory opens a Driver against one database registration.
type Factory func(config.Registration) (Driver, error)

// Registry maps dialect names (postgres, mysql, mssql, snowflake, sqlite) to
// the Factory that opens a Driver for them, and tracks the Drivers currently
// open for each registered database.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Driver // keyed by database name
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Driver),
	}
}

// Register registers the Factory for a dialect name.
func (r *Registry) Register(dialect string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[dialect] = factory
}

// Open opens (or reopens) a Driver for reg and tracks it under reg.Name.
func (r *Registry) Open(reg config.Registration) (Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[reg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q (available: %v)", reg.Driver, r.availableDrivers())
	}

	d, err := factory(reg)
	if err != nil {
		return nil, fmt.Errorf("open driver for database %q: %w", reg.Name, err)
	}

	if existing, ok := r.active[reg.Name]; ok {
		if closer, ok := existing.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
	r.active[reg.Name] = d
	return d, nil
}

// Get returns the Driver already opened for a database name.
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.active[name]
	if !ok {
		return nil, fmt.Errorf("database %q has no open driver (active: %v)", name, r.activeDatabases())
	}
	return d, nil
}

// CloseAll closes every tracked Driver that implements io.Closer-shaped Close.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, d := range r.active {
		if closer, ok := d.(interface{ Close() error }); ok {
			closer.Close()
		}
		delete(r.active, name)
	}
}

func (r *Registry) availableDrivers() []string {
	names := make([]string, 0, len(r.factories))
	for d := range r.factories {
		names = append(names, d)
	}
	return names
}

func (r *Registry) activeDatabases() []string {
	names := make([]string, 0, len(r.active))
	for n := range r.active {
		names = append(names, n)
	}
	return names
}
