// Package memory is a driver that keeps models in process memory.
//
// It answers every query shape through memdb and is the backend used by
// tests, by the local SQL server and by single-process deployments. With a
// snapshot directory it loads its tables on Open and writes them back on
// Flush and Close.
package memory

import (
	"context"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/query"
)

// DriverID is the default registry id.
const DriverID = "memory"

// Driver stores one memdb table per model.
type Driver struct {
	id       string
	db       *memdb.DB
	dir      string
	identity *smartermodel.IdentityMap
}

// Option configures a Driver.
type Option func(*Driver)

// WithID registers the driver under another id.
func WithID(id string) Option {
	return func(d *Driver) { d.id = id }
}

// WithDB shares an existing database.
func WithDB(db *memdb.DB) Option {
	return func(d *Driver) { d.db = db }
}

// WithIdentityMap sets the identity map that Clear and ClearModel reset.
// Defaults to the process-wide map used by DefaultStore.
func WithIdentityMap(im *smartermodel.IdentityMap) Option {
	return func(d *Driver) { d.identity = im }
}

// WithStore resets the identity map of store on Clear and ClearModel.
// Stores built with NewStore have their own map, so drivers registered
// with them need this option.
func WithStore(store *smartermodel.Store) Option {
	return func(d *Driver) { d.identity = store.IdentityMap() }
}

// New creates an empty driver.
func New(opts ...Option) *Driver {
	d := &Driver{id: DriverID, identity: smartermodel.DefaultIdentityMap()}
	for _, opt := range opts {
		opt(d)
	}
	if d.db == nil {
		d.db = memdb.New()
	}
	return d
}

// Open creates a driver backed by snapshots in dir. Existing snapshots are
// loaded; a missing dir starts empty.
func Open(dir string, opts ...Option) (*Driver, error) {
	d := New(opts...)
	d.dir = dir
	if err := d.db.LoadDir(dir); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ID() string { return d.id }

// DB returns the underlying database.
func (d *Driver) DB() *memdb.DB { return d.db }

func (d *Driver) Get(ctx context.Context, desc *smartermodel.Descriptor, id string) (smartermodel.Model, error) {
	t, ok := d.db.Lookup(desc.Name)
	if !ok {
		return nil, nil
	}
	row, ok := t.Get(desc.KeyField(), id)
	if !ok {
		return nil, nil
	}
	return desc.Decode(row)
}

func (d *Driver) Save(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	row, err := desc.Encode(m)
	if err != nil {
		return err
	}
	d.db.Table(desc.Name).Upsert(desc.KeyField(), row)
	return nil
}

func (d *Driver) Delete(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	if t, ok := d.db.Lookup(desc.Name); ok {
		t.Remove(desc.KeyField(), m.GetID())
	}
	return nil
}

func (d *Driver) Select(ctx context.Context, desc *smartermodel.Descriptor, q *query.Select) (*smartermodel.QueryResult, error) {
	res, err := d.db.Execute(q)
	if err != nil {
		return nil, err
	}
	out := &smartermodel.QueryResult{Success: true}
	for _, row := range res.Rows {
		m, err := desc.Decode(row)
		if err != nil {
			return nil, err
		}
		out.Add(m)
	}
	return out, nil
}

func (d *Driver) Update(ctx context.Context, desc *smartermodel.Descriptor, q *query.Update) (*smartermodel.QueryResult, error) {
	return d.write(q)
}

func (d *Driver) DeleteWhere(ctx context.Context, desc *smartermodel.Descriptor, q *query.Delete) (*smartermodel.QueryResult, error) {
	return d.write(q)
}

func (d *Driver) write(q query.Query) (*smartermodel.QueryResult, error) {
	res, err := d.db.Execute(q)
	if err != nil {
		return nil, err
	}
	return &smartermodel.QueryResult{Success: true, AffectedRows: res.Affected}, nil
}

// ClearModel drops every row of the model and forgets its loaded
// instances.
func (d *Driver) ClearModel(name string) {
	d.db.Drop(name)
	d.identity.ClearModel(name)
}

// Clear drops every table and empties the identity map.
func (d *Driver) Clear() {
	d.db.Clear()
	d.identity.ClearAll()
}

// Flush writes snapshots when the driver was opened on a directory.
func (d *Driver) Flush() error {
	if d.dir == "" {
		return nil
	}
	return d.db.SaveDir(d.dir)
}

// Close flushes snapshots.
func (d *Driver) Close() error {
	return d.Flush()
}
