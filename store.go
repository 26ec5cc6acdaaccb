package smartermodel

// Store is the shared context of repositories: the driver registry, the
// identity map and the observability hooks.
type Store struct {
	drivers  *DriverRegistry
	identity *IdentityMap
	logger   Logger
	metrics  Metrics
}

// NewStore creates a store over drivers with its own identity map, no-op
// logger and no-op metrics.
func NewStore(drivers *DriverRegistry) *Store {
	return &Store{
		drivers:  drivers,
		identity: NewIdentityMap(DefaultStripeCount),
		logger:   &NoOpLogger{},
		metrics:  &NoOpMetrics{},
	}
}

// NewStoreWithLogger creates a new store with a custom logger
func NewStoreWithLogger(drivers *DriverRegistry, logger Logger) *Store {
	s := NewStore(drivers)
	s.logger = logger
	return s
}

// NewStoreWithObservability creates a new store with logging and metrics
func NewStoreWithObservability(drivers *DriverRegistry, logger Logger, metrics Metrics) *Store {
	s := NewStore(drivers)
	s.logger = logger
	s.metrics = metrics
	return s
}

// DefaultStore returns a store over the process-wide registry and identity
// map. Every call returns a new Store sharing that state.
func DefaultStore() *Store {
	s := NewStore(DefaultDriverRegistry())
	s.identity = DefaultIdentityMap()
	return s
}

// WithIdentityMap replaces the identity map
func (s *Store) WithIdentityMap(im *IdentityMap) *Store {
	s.identity = im
	return s
}

// SetLogger updates the logger for this store
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics updates the metrics collector for this store
func (s *Store) SetMetrics(metrics Metrics) {
	s.metrics = metrics
}

// Drivers returns the driver registry
func (s *Store) Drivers() *DriverRegistry {
	return s.drivers
}

// IdentityMap returns the identity map
func (s *Store) IdentityMap() *IdentityMap {
	return s.identity
}

// Logger returns the logger
func (s *Store) Logger() Logger {
	return s.logger
}

// Metrics returns the metrics collector
func (s *Store) Metrics() Metrics {
	return s.metrics
}

// Close closes the drivers
func (s *Store) Close() error {
	return s.drivers.Close()
}
