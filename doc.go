// Package smartermodel persists Go models across several storage backends at
// once: a cache in front of a primary store, a search index next to it, or
// any mix of Redis, SQL, Cassandra, object storage and OpenSearch.
//
// # Overview
//
// Every model type gets a Descriptor naming the backends that serve it, in
// read order. A Repository walks those backends by capability:
//
//   - Get tries backends in order and stops at the first hit. Cache
//     backends that missed are filled with the result.
//   - Save writes to every backend in write order, which defaults to the
//     read order reversed so the durable store commits before a cache.
//   - Delete removes from every backend, even when one fails.
//   - Select queries stop at the first backend that answers; update and
//     delete queries fan out to all of them and merge the results.
//   - Search goes to the first search backend that answers.
//
// Loaded models are tracked in an IdentityMap so that two reads of the same
// id return the same instance.
//
// # Quick Start
//
//	drivers := smartermodel.NewDriverRegistry()
//	drivers.Register(memory.New())
//
//	store := smartermodel.NewStore(drivers)
//	users, err := smartermodel.NewRepository[*User](store, &smartermodel.Descriptor{
//	    Name:   "users",
//	    New:    func() smartermodel.Model { return &User{} },
//	    Config: smartermodel.ModelConfig{Backends: []string{"memory"}},
//	})
//
//	user := &User{Email: "alice@example.com"}
//	err = users.Save(ctx, user) // assigns user.ID
//
//	found, err := users.Get(ctx, user.ID)
//	adults, err := users.Find(ctx,
//	    query.Where([][]any{{"age", ">=", 18}}),
//	    query.OrderBy(map[string]string{"email": "ASC"}),
//	)
//
// # Backends
//
// Drivers live under driver/ and implement any subset of Getter, Saver,
// Deleter, SelectQuerier, UpdateQuerier, DeleteQuerier, Searcher and
// Cacher. Register them as instances, or as factories that connect on first
// use:
//
//	smartermodel.RegisterFactory(drivers, "postgres", func() (*relational.Driver, error) {
//	    return relational.OpenPostgres(ctx, "postgres", dsn)
//	})
//
// Capabilities of a factory are read from its static type, so asking
// whether "postgres" can search never opens a connection.
//
// # Queries
//
// Queries are built with the query package and compiled to SQL or CQL by
// sqlgen, or evaluated in memory by memdb.
//
// # Observability
//
// Stores accept a Logger (ZapLogger in production) and a Metrics collector
// (PrometheusMetrics in production):
//
//	store := smartermodel.NewStoreWithObservability(drivers, logger, metrics)
package smartermodel
