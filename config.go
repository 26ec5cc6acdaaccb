package smartermodel

import (
	"slices"
	"time"
)

// Configuration constants for smartermodel operations
const (
	// Identity map configuration
	DefaultStripeCount = 32

	// Model configuration
	DefaultIDField = "id"

	// Cache backend resilience
	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 30 * time.Second

	// File backend configuration
	DefaultFilePermissions = 0644
	DefaultDirPermissions  = 0755
)

// ModelConfig is the per-model persistence policy: which backends serve the
// model and in which order.
type ModelConfig struct {
	// Backends is the read order. Cheapest first: a cache before the
	// primary store.
	Backends []string

	// SaveOrder overrides the write order. Defaults to Backends reversed so
	// the durable store commits before a cache is warmed.
	SaveOrder []string

	// DeleteOrder overrides the delete order. Defaults to the write order.
	DeleteOrder []string

	// CacheTTL is passed to cache backends. Zero disables caching for
	// the model.
	CacheTTL time.Duration

	// DisableIdentityMap turns off instance deduplication for the model.
	DisableIdentityMap bool

	// IDGenerator assigns ids on save. Defaults to NewID.
	IDGenerator func() string

	// ParallelWrites runs update and delete query fan-out concurrently.
	ParallelWrites bool
}

// Validate checks if the ModelConfig is valid
func (c ModelConfig) Validate() error {
	if len(c.Backends) == 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Backends",
			"reason": "must name at least one backend",
		})
	}
	if c.CacheTTL < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "CacheTTL",
			"value":  c.CacheTTL,
			"reason": "must be non-negative",
		})
	}
	for _, order := range []struct {
		field string
		ids   []string
	}{
		{"Backends", c.Backends},
		{"SaveOrder", c.SaveOrder},
		{"DeleteOrder", c.DeleteOrder},
	} {
		seen := make(map[string]bool, len(order.ids))
		for _, id := range order.ids {
			if id == "" {
				return WithContext(ErrInvalidConfig, map[string]interface{}{
					"field":  order.field,
					"reason": "backend id must not be empty",
				})
			}
			if seen[id] {
				return WithContext(ErrInvalidConfig, map[string]interface{}{
					"field":  order.field,
					"value":  id,
					"reason": "backend listed twice",
				})
			}
			seen[id] = true
		}
	}
	return nil
}

// ReadOrder returns the backends consulted for reads, queries and search.
func (c ModelConfig) ReadOrder() []string {
	return slices.Clone(c.Backends)
}

// WriteOrder returns the backends saved to, in order.
func (c ModelConfig) WriteOrder() []string {
	if len(c.SaveOrder) > 0 {
		return slices.Clone(c.SaveOrder)
	}
	order := slices.Clone(c.Backends)
	slices.Reverse(order)
	return order
}

// RemoveOrder returns the backends deleted from, in order.
func (c ModelConfig) RemoveOrder() []string {
	if len(c.DeleteOrder) > 0 {
		return slices.Clone(c.DeleteOrder)
	}
	return c.WriteOrder()
}

func (c ModelConfig) nextID() string {
	if c.IDGenerator != nil {
		return c.IDGenerator()
	}
	return NewID()
}
