package smartermodel

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

type driverEntry struct {
	mu      sync.Mutex
	typ     reflect.Type
	factory func() (Driver, error)
	driver  Driver
}

// DriverRegistry maps backend ids to drivers. Drivers are either registered
// as instances or as factories that run once, on first Get.
type DriverRegistry struct {
	mu      sync.RWMutex
	entries map[string]*driverEntry
}

// NewDriverRegistry creates an empty registry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{entries: make(map[string]*driverEntry)}
}

var defaultRegistry = sync.OnceValue(NewDriverRegistry)

// DefaultDriverRegistry returns the process-wide registry.
func DefaultDriverRegistry() *DriverRegistry {
	return defaultRegistry()
}

// Register adds a constructed driver under d.ID(), replacing any previous
// entry for that id.
func (r *DriverRegistry) Register(d Driver) error {
	if d == nil || d.ID() == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"reason": "driver must have an id",
		})
	}
	r.put(d.ID(), &driverEntry{typ: reflect.TypeOf(d), driver: d})
	return nil
}

// RegisterFactory adds a lazily constructed driver. Its capabilities are
// read off D, so Implements never runs the factory.
func RegisterFactory[D Driver](r *DriverRegistry, id string, factory func() (D, error)) error {
	if id == "" || factory == nil {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"id":     id,
			"reason": "factory needs an id and a constructor",
		})
	}
	r.put(id, &driverEntry{
		typ: reflect.TypeFor[D](),
		factory: func() (Driver, error) {
			d, err := factory()
			if err != nil {
				return nil, err
			}
			return d, nil
		},
	})
	return nil
}

func (r *DriverRegistry) put(id string, e *driverEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

func (r *DriverRegistry) entry(id string) (*driverEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, WithContext(ErrDriverNotFound, map[string]interface{}{
			"driver": id,
		})
	}
	return e, nil
}

// Get returns the driver for id, constructing it on first use. Concurrent
// callers always receive the same instance. A failed construction is not
// cached; the next Get retries.
func (r *DriverRegistry) Get(id string) (Driver, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver != nil {
		return e.driver, nil
	}

	d, err := e.factory()
	if err != nil {
		return nil, fmt.Errorf("construct driver %s: %w", id, err)
	}
	if d == nil {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"driver": id,
			"reason": "factory returned nil",
		})
	}
	e.driver = d
	return d, nil
}

// Implements reports whether the driver registered as id provides c.
func (r *DriverRegistry) Implements(id string, c Capability) (bool, error) {
	e, err := r.entry(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver != nil {
		return Implements(e.driver, c), nil
	}
	return typeImplements(e.typ, c), nil
}

// Constructed reports whether the driver for id has been built.
func (r *DriverRegistry) Constructed(id string) bool {
	e, err := r.entry(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.driver != nil
}

// IDs returns the registered ids in sorted order.
func (r *DriverRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every constructed driver that implements io.Closer.
func (r *DriverRegistry) Close() error {
	var result *multierror.Error
	for _, id := range r.IDs() {
		e, err := r.entry(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		d := e.driver
		e.mu.Unlock()
		if c, ok := d.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close driver %s: %w", id, err))
			}
		}
	}
	return result.ErrorOrNil()
}
