package smartermodel

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/adrianmcphee/smartermodel/query"
)

// Repository persists one model type across the backends named in its
// descriptor.
//
// Reads walk the backends in declared order and stop at the first hit.
// Saves go to every backend in write order and stop at the first failure.
// Deletes go to every backend regardless of failures.
//
//	users, err := smartermodel.NewRepository[*User](store, &smartermodel.Descriptor{
//	    Name: "users",
//	    New:  func() smartermodel.Model { return &User{} },
//	    Config: smartermodel.ModelConfig{
//	        Backends: []string{"redis", "postgres"},
//	        CacheTTL: time.Hour,
//	    },
//	})
type Repository[T Model] struct {
	store *Store
	desc  *Descriptor
}

// NewRepository validates desc and binds it to store.
func NewRepository[T Model](store *Store, desc *Descriptor) (*Repository[T], error) {
	if store == nil {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"reason": "store is required",
		})
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &Repository[T]{store: store, desc: desc}, nil
}

// Descriptor returns the model descriptor
func (r *Repository[T]) Descriptor() *Descriptor {
	return r.desc
}

// Get loads a model by id. A model no backend knows is returned as the
// zero T with a nil error. A backend error aborts the read.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	return r.get(ctx, id, false)
}

// Refresh loads a model bypassing the identity map and cache backends.
// Caches that could have answered are refilled with the fresh copy.
func (r *Repository[T]) Refresh(ctx context.Context, id string) (T, error) {
	return r.get(ctx, id, true)
}

func (r *Repository[T]) get(ctx context.Context, id string, refresh bool) (T, error) {
	var zero T
	name := r.desc.Name
	if id == "" {
		return zero, WithContext(ErrMissingID, map[string]interface{}{"model": name})
	}

	identity := r.identityEnabled()
	if identity && !refresh {
		if m, ok := r.store.identity.Get(name, id); ok {
			r.store.metrics.Increment(MetricIdentityHits, "model", name)
			return r.cast(m)
		}
	}

	start := time.Now()
	defer func() {
		r.store.metrics.Timing(MetricGetDuration, time.Since(start), "model", name)
	}()

	getters, err := r.backends(r.desc.Config.ReadOrder(), CapGet)
	if err != nil {
		return zero, err
	}

	var pending []Saver
	var found Model
	for _, d := range getters {
		isCache := Implements(d, CapCache)
		saver, canSave := d.(Saver)
		if refresh && isCache {
			if canSave {
				pending = append(pending, saver)
			}
			continue
		}

		var m Model
		err := r.call(d, "get", func() (err error) {
			m, err = d.(Getter).Get(ctx, r.desc, id)
			return err
		})
		if err != nil {
			r.store.metrics.Increment(MetricGetError, "model", name)
			r.store.logger.Error("get failed", "model", name, "id", id, "backend", d.ID(), "error", err)
			return zero, WithContext(err, map[string]interface{}{
				"model":   name,
				"id":      id,
				"backend": d.ID(),
			})
		}
		if m == nil {
			if isCache {
				r.store.metrics.Increment(MetricCacheMisses, "model", name)
				if canSave {
					pending = append(pending, saver)
				}
			}
			continue
		}
		if isCache {
			r.store.metrics.Increment(MetricCacheHits, "model", name)
		}
		r.store.logger.Debug("model loaded", "model", name, "id", id, "backend", d.ID())
		found = m
		break
	}

	if found == nil {
		r.store.metrics.Increment(MetricGetMiss, "model", name)
		return zero, nil
	}
	if found.GetID() == "" {
		found.SetID(id)
	}

	r.populate(ctx, pending, found)

	if identity {
		if refresh {
			r.store.identity.Store(name, id, found)
		} else {
			found, _ = r.store.identity.LoadOrStore(name, id, found)
		}
	}
	r.store.metrics.Increment(MetricGetSuccess, "model", name)
	return r.cast(found)
}

// populate writes m to the caches that missed. Failures only get logged;
// the read already succeeded.
func (r *Repository[T]) populate(ctx context.Context, caches []Saver, m Model) {
	name := r.desc.Name
	for _, c := range caches {
		err := r.call(c, "populate", func() error {
			return c.Save(ctx, r.desc, m)
		})
		if err != nil {
			r.store.metrics.Increment(MetricCachePopulateError, "model", name)
			r.store.logger.Warn("cache population failed", "model", name, "id", m.GetID(), "backend", c.ID(), "error", err)
			continue
		}
		r.store.metrics.Increment(MetricCachePopulate, "model", name)
	}
}

// Save stores m in every backend that can save, in write order. A model
// without an id gets one and is registered in the identity map before any
// backend is called. The first failing backend aborts the save.
func (r *Repository[T]) Save(ctx context.Context, m T) error {
	name := r.desc.Name
	start := time.Now()
	defer func() {
		r.store.metrics.Timing(MetricSaveDuration, time.Since(start), "model", name)
	}()

	if m.GetID() == "" {
		m.SetID(r.desc.Config.nextID())
		if r.identityEnabled() {
			r.store.identity.Store(name, m.GetID(), m)
		}
	}

	savers, err := r.backends(r.desc.Config.WriteOrder(), CapSave)
	if err != nil {
		return err
	}

	for _, d := range savers {
		err := r.call(d, "save", func() error {
			return d.(Saver).Save(ctx, r.desc, m)
		})
		if err != nil {
			r.store.metrics.Increment(MetricSaveError, "model", name)
			r.store.logger.Error("save failed", "model", name, "id", m.GetID(), "backend", d.ID(), "error", err)
			return WithContext(err, map[string]interface{}{
				"model":   name,
				"id":      m.GetID(),
				"backend": d.ID(),
			})
		}
	}

	r.store.metrics.Increment(MetricSaveSuccess, "model", name)
	r.store.logger.Debug("model saved", "model", name, "id", m.GetID(), "backends", len(savers))
	return nil
}

// Delete removes m from every backend that can delete. Every backend is
// tried; failures are combined into one error. The identity map entry is
// dropped either way.
func (r *Repository[T]) Delete(ctx context.Context, m T) error {
	name := r.desc.Name
	id := m.GetID()
	if id == "" {
		return WithContext(ErrMissingID, map[string]interface{}{"model": name})
	}

	start := time.Now()
	defer func() {
		r.store.metrics.Timing(MetricDeleteDuration, time.Since(start), "model", name)
	}()
	defer func() {
		if r.identityEnabled() {
			r.store.identity.Delete(name, id)
		}
	}()

	deleters, err := r.backends(r.desc.Config.RemoveOrder(), CapDelete)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, d := range deleters {
		err := r.call(d, "delete", func() error {
			return d.(Deleter).Delete(ctx, r.desc, m)
		})
		if err != nil {
			r.store.logger.Error("delete failed", "model", name, "id", id, "backend", d.ID(), "error", err)
			result = multierror.Append(result, fmt.Errorf("backend %s: %w", d.ID(), err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		r.store.metrics.Increment(MetricDeleteError, "model", name)
		return err
	}
	r.store.metrics.Increment(MetricDeleteSuccess, "model", name)
	return nil
}

// Query runs q. Selects go to the first backend that answers successfully.
// Updates and deletes go to every capable backend and their results are
// merged; failing backends are returned as a multierror next to the
// merged result.
func (r *Repository[T]) Query(ctx context.Context, q query.Query) (*QueryResult, error) {
	name := r.desc.Name
	switch q.Model() {
	case "":
		q.SetModel(name)
	case name:
	default:
		return nil, fmt.Errorf("%w: query targets %q, repository serves %q", query.ErrInvalidArgument, q.Model(), name)
	}

	start := time.Now()
	defer func() {
		r.store.metrics.Timing(MetricQueryDuration, time.Since(start), "model", name)
	}()

	switch q := q.(type) {
	case *query.Select:
		return r.selectQuery(ctx, q)
	case *query.Update:
		return r.fanOut(ctx, r.desc.Config.WriteOrder(), CapUpdate, "update", func(d Driver) (*QueryResult, error) {
			return d.(UpdateQuerier).Update(ctx, r.desc, q)
		})
	case *query.Delete:
		return r.fanOut(ctx, r.desc.Config.RemoveOrder(), CapDeleteQuery, "delete_query", func(d Driver) (*QueryResult, error) {
			return d.(DeleteQuerier).DeleteWhere(ctx, r.desc, q)
		})
	default:
		return nil, fmt.Errorf("%w: query type %T", query.ErrUnsupported, q)
	}
}

func (r *Repository[T]) selectQuery(ctx context.Context, q *query.Select) (*QueryResult, error) {
	name := r.desc.Name
	queriers, err := r.backends(r.desc.Config.ReadOrder(), CapSelect)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	for _, d := range queriers {
		var res *QueryResult
		err := r.call(d, "select", func() (err error) {
			res, err = d.(SelectQuerier).Select(ctx, r.desc, q)
			return err
		})
		if err != nil {
			r.store.logger.Warn("select failed, trying next backend", "model", name, "backend", d.ID(), "error", err)
			errs = multierror.Append(errs, fmt.Errorf("backend %s: %w", d.ID(), err))
			continue
		}
		if res == nil || !res.Success {
			continue
		}

		r.register(res.Models)
		r.store.metrics.Histogram(MetricQueryResults, float64(res.Len()), "model", name)
		r.store.logger.Debug("select answered", "model", name, "backend", d.ID(), "rows", res.Len())
		return res, nil
	}

	r.store.metrics.Increment(MetricQueryError, "model", name)
	return &QueryResult{Success: false}, errs.ErrorOrNil()
}

func (r *Repository[T]) fanOut(ctx context.Context, order []string, c Capability, op string, run func(Driver) (*QueryResult, error)) (*QueryResult, error) {
	name := r.desc.Name
	participants, err := r.backends(order, c)
	if err != nil {
		return nil, err
	}

	results := make([]*QueryResult, len(participants))
	errs := make([]error, len(participants))
	exec := func(i int) {
		d := participants[i]
		errs[i] = r.call(d, op, func() (err error) {
			results[i], err = run(d)
			return err
		})
	}

	if r.desc.Config.ParallelWrites && len(participants) > 1 {
		var wg sync.WaitGroup
		for i := range participants {
			wg.Add(1)
			go func() {
				defer wg.Done()
				exec(i)
			}()
		}
		wg.Wait()
	} else {
		for i := range participants {
			exec(i)
		}
	}

	combined := &QueryResult{Success: true}
	var merr *multierror.Error
	for i, d := range participants {
		if errs[i] != nil {
			combined.Success = false
			r.store.logger.Error(op+" failed", "model", name, "backend", d.ID(), "error", errs[i])
			merr = multierror.Append(merr, fmt.Errorf("backend %s: %w", d.ID(), errs[i]))
			continue
		}
		if results[i] == nil {
			combined.Success = false
			continue
		}
		combined.Merge(results[i])
	}

	// Rows changed behind the cached instances.
	if r.identityEnabled() {
		r.store.identity.ClearModel(name)
	}
	r.invalidate(ctx, participants)

	if !combined.Success {
		r.store.metrics.Increment(MetricQueryError, "model", name)
	}
	return combined, merr.ErrorOrNil()
}

// invalidate empties the caches in the read order that did not take part
// in a fan-out. Failures only get logged.
func (r *Repository[T]) invalidate(ctx context.Context, participants []Driver) {
	name := r.desc.Name
	for _, id := range r.desc.Config.Backends {
		d, err := r.store.drivers.Get(id)
		if err != nil || slices.ContainsFunc(participants, func(p Driver) bool { return p.ID() == d.ID() }) {
			continue
		}
		inv, ok := d.(Invalidator)
		if !ok {
			continue
		}
		var removed int
		err = r.call(d, "invalidate", func() (err error) {
			removed, err = inv.Invalidate(ctx, r.desc)
			return err
		})
		if err != nil {
			r.store.metrics.Increment(MetricCacheInvalidateErr, "model", name)
			r.store.logger.Warn("cache invalidation failed", "model", name, "backend", id, "error", err)
			continue
		}
		r.store.metrics.Increment(MetricCacheInvalidate, "model", name)
		r.store.logger.Debug("cache invalidated", "model", name, "backend", id, "keys", removed)
	}
}

// Select builds and runs a select on this model.
func (r *Repository[T]) Select(ctx context.Context, opts ...query.Option) (*QueryResult, error) {
	q, err := query.NewSelect(r.scoped(opts)...)
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, q)
}

// Find returns the matching models as T.
func (r *Repository[T]) Find(ctx context.Context, opts ...query.Option) ([]T, error) {
	res, err := r.Select(ctx, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, res.Len())
	for _, m := range res.All() {
		t, err := r.cast(m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// First returns the first match or the zero T. It replaces any pagination
// in opts.
func (r *Repository[T]) First(ctx context.Context, opts ...query.Option) (T, error) {
	var zero T
	found, err := r.Find(ctx, append(slices.Clip(opts), query.Paginate(1))...)
	if err != nil || len(found) == 0 {
		return zero, err
	}
	return found[0], nil
}

// Count returns the number of matching rows.
func (r *Repository[T]) Count(ctx context.Context, opts ...query.Option) (int, error) {
	res, err := r.Select(ctx, append(slices.Clip(opts), query.Fields(query.Count().As("count")))...)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, WithContext(ErrQueryFailed, map[string]interface{}{"model": r.desc.Name})
	}
	return toInt(res.Field("count"))
}

// UpdateWhere builds and runs an update on this model.
func (r *Repository[T]) UpdateWhere(ctx context.Context, opts ...query.Option) (*QueryResult, error) {
	q, err := query.NewUpdate(r.scoped(opts)...)
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, q)
}

// DeleteWhere builds and runs a delete on this model.
func (r *Repository[T]) DeleteWhere(ctx context.Context, opts ...query.Option) (*QueryResult, error) {
	q, err := query.NewDelete(r.scoped(opts)...)
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, q)
}

// Search runs req on the first search backend that answers successfully.
func (r *Repository[T]) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	name := r.desc.Name
	if req.Model == "" {
		req.Model = name
	}

	start := time.Now()
	defer func() {
		r.store.metrics.Timing(MetricSearchDuration, time.Since(start), "model", name)
	}()

	searchers, err := r.backends(r.desc.Config.ReadOrder(), CapSearch)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	for _, d := range searchers {
		var res *SearchResult
		err := r.call(d, "search", func() (err error) {
			res, err = d.(Searcher).Search(ctx, r.desc, req)
			return err
		})
		if err != nil {
			r.store.logger.Warn("search failed, trying next backend", "model", name, "backend", d.ID(), "error", err)
			errs = multierror.Append(errs, fmt.Errorf("backend %s: %w", d.ID(), err))
			continue
		}
		if res == nil || !res.Success {
			continue
		}
		r.register(res.Models)
		return res, nil
	}

	r.store.metrics.Increment(MetricSearchError, "model", name)
	return &SearchResult{Success: false}, errs.ErrorOrNil()
}

// backends resolves ids to the drivers providing c, keeping order. Drivers
// without c are never constructed.
func (r *Repository[T]) backends(ids []string, c Capability) ([]Driver, error) {
	var out []Driver
	for _, id := range ids {
		ok, err := r.store.drivers.Implements(id, c)
		if err != nil {
			return nil, WithContext(err, map[string]interface{}{"model": r.desc.Name})
		}
		if !ok {
			continue
		}
		d, err := r.store.drivers.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, WithContext(ErrNoCapableBackend, map[string]interface{}{
			"model":      r.desc.Name,
			"capability": c.String(),
			"backends":   ids,
		})
	}
	return out, nil
}

// call runs fn against backend d and records its latency.
func (r *Repository[T]) call(d Driver, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.store.metrics.Increment(MetricBackendOps, "operation", op, "backend", d.ID())
	r.store.metrics.Timing(MetricBackendLatency, time.Since(start), "operation", op, "backend", d.ID())
	if err != nil {
		r.store.metrics.Increment(MetricBackendErrors, "operation", op, "backend", d.ID())
	}
	return err
}

func (r *Repository[T]) register(models []Model) {
	if !r.identityEnabled() {
		return
	}
	for _, m := range models {
		if m == nil || m.GetID() == "" {
			continue
		}
		r.store.identity.Store(r.desc.Name, m.GetID(), m)
	}
}

func (r *Repository[T]) identityEnabled() bool {
	return !r.desc.Config.DisableIdentityMap && r.store.identity != nil
}

func (r *Repository[T]) scoped(opts []query.Option) []query.Option {
	return append([]query.Option{query.From(r.desc.Name)}, opts...)
}

func (r *Repository[T]) cast(m Model) (T, error) {
	t, ok := m.(T)
	if !ok {
		var zero T
		return zero, WithContext(ErrInvalidData, map[string]interface{}{
			"model":    r.desc.Name,
			"type":     fmt.Sprintf("%T", m),
			"expected": fmt.Sprintf("%T", zero),
		})
	}
	return t, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(string(n))
	case string:
		return strconv.Atoi(n)
	case nil:
		return 0, nil
	default:
		return 0, WithContext(ErrInvalidData, map[string]interface{}{
			"value": fmt.Sprintf("%v", v),
			"type":  fmt.Sprintf("%T", v),
		})
	}
}
