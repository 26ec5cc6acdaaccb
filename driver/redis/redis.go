// Package redis is a cache driver that stores encoded models in Redis with
// the model's CacheTTL.
//
// Keys have the form SMARTERMODEL::<model>::<id>. A model whose CacheTTL is
// zero is never cached: reads miss and saves are skipped. Client calls run
// through a circuit breaker so an unreachable Redis fails fast instead of
// adding its timeout to every read.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/query"
)

// DriverID is the default registry id.
const DriverID = "redis"

const (
	keyPrefix    = "SMARTERMODEL"
	keySeparator = "::"
	scanBatch    = 500
)

// Driver caches models in Redis.
type Driver struct {
	id         string
	client     goredis.UniversalClient
	breaker    *smartermodel.CircuitBreaker
	logger     smartermodel.Logger
	ownsClient bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithID registers the driver under another id.
func WithID(id string) Option {
	return func(d *Driver) { d.id = id }
}

// WithLogger sets the logger used for discarded cache entries and breaker
// transitions.
func WithLogger(logger smartermodel.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *smartermodel.CircuitBreaker) Option {
	return func(d *Driver) { d.breaker = cb }
}

// New wraps an existing client. The caller keeps ownership of it.
func New(client goredis.UniversalClient, opts ...Option) *Driver {
	d := &Driver{
		id:     DriverID,
		client: client,
		logger: &smartermodel.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breaker == nil {
		d.breaker = smartermodel.NewCircuitBreaker(smartermodel.DefaultBreakerFailures, smartermodel.DefaultBreakerReset)
		d.breaker.WithStateChangeCallback(func(from, to smartermodel.BreakerState) {
			d.logger.Warn("redis circuit breaker state changed", "driver", d.id, "from", from, "to", to)
		})
	}
	return d
}

// Open connects with opts and pings the server. The driver closes the
// client on Close.
func Open(ctx context.Context, opts *goredis.Options, driverOpts ...Option) (*Driver, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, smartermodel.WithContext(smartermodel.ErrBackendUnavailable, map[string]interface{}{
			"addr":  opts.Addr,
			"error": err.Error(),
		})
	}
	d := New(client, driverOpts...)
	d.ownsClient = true
	return d, nil
}

func (d *Driver) ID() string { return d.id }

// CacheDriver marks the driver as a cache.
func (d *Driver) CacheDriver() {}

// Key returns the Redis key of a model.
func Key(model, id string) string {
	return keyPrefix + keySeparator + model + keySeparator + id
}

func (d *Driver) Get(ctx context.Context, desc *smartermodel.Descriptor, id string) (smartermodel.Model, error) {
	if desc.Config.CacheTTL <= 0 {
		return nil, nil
	}

	key := Key(desc.Name, id)
	var data []byte
	err := d.breaker.Execute(ctx, func() error {
		var err error
		data, err = d.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if data == nil {
		return nil, nil
	}

	row, err := query.DecodeRow(data)
	if err != nil {
		d.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, nil
	}
	return desc.Decode(row)
}

func (d *Driver) Save(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	ttl := desc.Config.CacheTTL
	if ttl <= 0 {
		return nil
	}
	row, err := desc.Encode(m)
	if err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := Key(desc.Name, m.GetID())
	return d.breaker.Execute(ctx, func() error {
		return d.client.Set(ctx, key, data, ttl).Err()
	})
}

// Delete removes the cached entry. It runs even when caching is disabled
// so entries written under an earlier TTL do not linger.
func (d *Driver) Delete(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	key := Key(desc.Name, m.GetID())
	return d.breaker.Execute(ctx, func() error {
		return d.client.Del(ctx, key).Err()
	})
}

// Invalidate removes every cached entry of a model and returns how many
// keys were deleted. Repositories call it after update and delete queries.
func (d *Driver) Invalidate(ctx context.Context, desc *smartermodel.Descriptor) (int, error) {
	pattern := Key(escapeGlob(desc.Name), "*")
	removed := 0
	err := d.breaker.Execute(ctx, func() error {
		var cursor uint64
		for {
			keys, next, err := d.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				n, err := d.client.Del(ctx, keys...).Result()
				if err != nil {
					return err
				}
				removed += int(n)
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
	return removed, err
}

// Breaker returns the circuit breaker guarding the client.
func (d *Driver) Breaker() *smartermodel.CircuitBreaker {
	return d.breaker
}

// Close closes the client if the driver opened it.
func (d *Driver) Close() error {
	if !d.ownsClient {
		return nil
	}
	return d.client.Close()
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`).Replace(s)
}
