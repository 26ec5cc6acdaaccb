package smartermodel

import (
	"context"
	"sync"
	"testing"

	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/query"
)

type testUser struct {
	Base
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type testAdmin struct {
	testUser
	Level int `json:"level"`
}

func userDescriptor(backends ...string) *Descriptor {
	return &Descriptor{
		Name:   "users",
		New:    func() Model { return &testUser{} },
		Config: ModelConfig{Backends: backends},
	}
}

// callLog records backend calls across fakes, in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeBackend provides every capability except search and cache over a
// memdb table, with injectable failures.
type fakeBackend struct {
	id    string
	table *memdb.Table
	log   *callLog

	mu        sync.Mutex
	getErr    error
	saveErr   error
	deleteErr error
	queryErr  error
	gets      int
	saves     int
	deletes   int
	queries   int
}

func newFakeBackend(id string, log *callLog) *fakeBackend {
	return &fakeBackend{id: id, table: memdb.NewTable(id), log: log}
}

func (f *fakeBackend) ID() string { return f.id }

func (f *fakeBackend) count(n *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*n++
}

func (f *fakeBackend) counts() (gets, saves, deletes, queries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.saves, f.deletes, f.queries
}

func (f *fakeBackend) put(d *Descriptor, m Model) {
	row, err := d.Encode(m)
	if err != nil {
		panic(err)
	}
	f.table.Upsert(d.KeyField(), row)
}

func (f *fakeBackend) Get(ctx context.Context, d *Descriptor, id string) (Model, error) {
	f.count(&f.gets)
	f.log.add(f.id + ":get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.table.Get(d.KeyField(), id)
	if !ok {
		return nil, nil
	}
	return d.Decode(row)
}

func (f *fakeBackend) Save(ctx context.Context, d *Descriptor, m Model) error {
	f.count(&f.saves)
	f.log.add(f.id + ":save")
	if f.saveErr != nil {
		return f.saveErr
	}
	row, err := d.Encode(m)
	if err != nil {
		return err
	}
	f.table.Upsert(d.KeyField(), row)
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, d *Descriptor, m Model) error {
	f.count(&f.deletes)
	f.log.add(f.id + ":delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.table.Remove(d.KeyField(), m.GetID())
	return nil
}

func (f *fakeBackend) Select(ctx context.Context, d *Descriptor, q *query.Select) (*QueryResult, error) {
	f.count(&f.queries)
	f.log.add(f.id + ":select")
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	res, err := f.table.Execute(q)
	if err != nil {
		return nil, err
	}
	out := &QueryResult{Success: true}
	for _, row := range res.Rows {
		m, err := d.Decode(row)
		if err != nil {
			return nil, err
		}
		out.Add(m)
	}
	return out, nil
}

func (f *fakeBackend) Update(ctx context.Context, d *Descriptor, q *query.Update) (*QueryResult, error) {
	return f.write(q)
}

func (f *fakeBackend) DeleteWhere(ctx context.Context, d *Descriptor, q *query.Delete) (*QueryResult, error) {
	return f.write(q)
}

func (f *fakeBackend) write(q query.Query) (*QueryResult, error) {
	f.count(&f.queries)
	f.log.add(f.id + ":write")
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	res, err := f.table.Execute(q)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Success: true, AffectedRows: res.Affected}, nil
}

// fakeCache is a fakeBackend marked as a cache.
type fakeCache struct {
	*fakeBackend
}

func (fakeCache) CacheDriver() {}

// fakeSearcher answers every search with a fixed result.
type fakeSearcher struct {
	id     string
	result *SearchResult
	err    error
	calls  int
}

func (f *fakeSearcher) ID() string { return f.id }

func (f *fakeSearcher) Search(ctx context.Context, d *Descriptor, req *SearchRequest) (*SearchResult, error) {
	f.calls++
	return f.result, f.err
}

// getOnly provides nothing but Get.
type getOnly struct {
	id string
}

func (g *getOnly) ID() string { return g.id }

func (g *getOnly) Get(ctx context.Context, d *Descriptor, id string) (Model, error) {
	return nil, nil
}

func newTestStore(t testing.TB, drivers ...Driver) *Store {
	reg := NewDriverRegistry()
	for _, d := range drivers {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return NewStore(reg)
}

func newUserRepo(t testing.TB, store *Store, desc *Descriptor) *Repository[*testUser] {
	repo, err := NewRepository[*testUser](store, desc)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	return repo
}

// keyCache is a get/save/delete cache that cannot run queries, so fan-out
// writes never reach it.
type keyCache struct {
	id          string
	table       *memdb.Table
	invalidated int
	err         error
}

func newKeyCache(id string) *keyCache {
	return &keyCache{id: id, table: memdb.NewTable(id)}
}

func (k *keyCache) ID() string { return k.id }

func (k *keyCache) CacheDriver() {}

func (k *keyCache) Get(ctx context.Context, d *Descriptor, id string) (Model, error) {
	row, ok := k.table.Get(d.KeyField(), id)
	if !ok {
		return nil, nil
	}
	return d.Decode(row)
}

func (k *keyCache) Save(ctx context.Context, d *Descriptor, m Model) error {
	row, err := d.Encode(m)
	if err != nil {
		return err
	}
	k.table.Upsert(d.KeyField(), row)
	return nil
}

func (k *keyCache) Delete(ctx context.Context, d *Descriptor, m Model) error {
	k.table.Remove(d.KeyField(), m.GetID())
	return nil
}

func (k *keyCache) Invalidate(ctx context.Context, d *Descriptor) (int, error) {
	k.invalidated++
	if k.err != nil {
		return 0, k.err
	}
	n := k.table.Len()
	k.table.Clear()
	return n, nil
}
