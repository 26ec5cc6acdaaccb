// Package objectstore keeps models as JSON documents in an object store:
// a local directory, S3, MinIO or Google Cloud Storage. Each model is one
// object at <prefix><model>/<id>.json.
//
// Queries load every document of the model into an in-memory table and run
// there, so they suit small collections and admin tooling rather than hot
// paths.
package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/query"
)

// DriverID is the id used when none is given.
const DriverID = "objectstore"

const extension = ".json"

// Driver stores models in a Bucket.
type Driver struct {
	id     string
	bucket Bucket
	prefix string
	logger smartermodel.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithID overrides DriverID.
func WithID(id string) Option {
	return func(d *Driver) { d.id = id }
}

// WithPrefix places every object below prefix, which should end in "/".
func WithPrefix(prefix string) Option {
	return func(d *Driver) { d.prefix = prefix }
}

// WithLogger sets the logger used for skipped documents.
func WithLogger(logger smartermodel.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New wraps a bucket.
func New(bucket Bucket, opts ...Option) *Driver {
	d := &Driver{
		id:     DriverID,
		bucket: bucket,
		logger: &smartermodel.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open builds the bucket described by cfg and pings it.
func Open(ctx context.Context, cfg BucketConfig, opts ...Option) (*Driver, error) {
	bucket, err := OpenBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := bucket.Ping(ctx); err != nil {
		_ = bucket.Close()
		return nil, err
	}
	return New(bucket, opts...), nil
}

func (d *Driver) ID() string { return d.id }

// Bucket returns the underlying bucket.
func (d *Driver) Bucket() Bucket { return d.bucket }

// Key returns the object key of a model.
func (d *Driver) Key(model, id string) string {
	return d.dir(model) + url.PathEscape(id) + extension
}

func (d *Driver) dir(model string) string {
	return d.prefix + model + "/"
}

func (d *Driver) Get(ctx context.Context, desc *smartermodel.Descriptor, id string) (smartermodel.Model, error) {
	data, err := d.bucket.Get(ctx, d.Key(desc.Name, id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	row, err := query.DecodeRow(data)
	if err != nil {
		return nil, smartermodel.WithContext(smartermodel.ErrInvalidData, map[string]interface{}{
			"key":   d.Key(desc.Name, id),
			"error": err.Error(),
		})
	}
	return desc.Decode(row)
}

func (d *Driver) Save(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	row, err := desc.Encode(m)
	if err != nil {
		return err
	}
	return d.put(ctx, desc, row)
}

func (d *Driver) Delete(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	return d.bucket.Delete(ctx, d.Key(desc.Name, m.GetID()))
}

func (d *Driver) Select(ctx context.Context, desc *smartermodel.Descriptor, q *query.Select) (*smartermodel.QueryResult, error) {
	table, err := d.load(ctx, desc)
	if err != nil {
		return nil, err
	}
	res, err := table.Execute(q)
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

// Update rewrites every matching document.
func (d *Driver) Update(ctx context.Context, desc *smartermodel.Descriptor, q *query.Update) (*smartermodel.QueryResult, error) {
	rows, err := d.match(ctx, desc, q)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		for _, a := range q.Assignments() {
			row[a.Key] = a.Value
		}
		if err := d.put(ctx, desc, row); err != nil {
			return nil, err
		}
	}
	return &smartermodel.QueryResult{Success: true, AffectedRows: len(rows)}, nil
}

// DeleteWhere removes every matching document.
func (d *Driver) DeleteWhere(ctx context.Context, desc *smartermodel.Descriptor, q *query.Delete) (*smartermodel.QueryResult, error) {
	rows, err := d.match(ctx, desc, q)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := d.bucket.Delete(ctx, d.Key(desc.Name, rowID(desc, row))); err != nil {
			return nil, err
		}
	}
	return &smartermodel.QueryResult{Success: true, AffectedRows: len(rows)}, nil
}

// Ping checks that the bucket is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	return d.bucket.Ping(ctx)
}

func (d *Driver) Close() error {
	return d.bucket.Close()
}

func (d *Driver) put(ctx context.Context, desc *smartermodel.Descriptor, row query.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s: %w", desc.Name, err)
	}
	return d.bucket.Put(ctx, d.Key(desc.Name, rowID(desc, row)), data)
}

// match returns the rows an update or delete applies to.
func (d *Driver) match(ctx context.Context, desc *smartermodel.Descriptor, q query.Query) ([]query.Row, error) {
	table, err := d.load(ctx, desc)
	if err != nil {
		return nil, err
	}
	sel, err := query.NewSelect(
		query.From(desc.Name),
		query.Where(q.Where()),
		query.Paginate(q.Limit()),
	)
	if err != nil {
		return nil, err
	}
	res, err := table.Execute(sel)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// load reads every document of a model into a table. Documents that vanish
// or fail to decode while loading are skipped.
func (d *Driver) load(ctx context.Context, desc *smartermodel.Descriptor) (*memdb.Table, error) {
	keys, err := d.bucket.List(ctx, d.dir(desc.Name))
	if err != nil {
		return nil, err
	}

	table := memdb.NewTable(desc.Name)
	for _, key := range keys {
		if !strings.HasSuffix(key, extension) {
			continue
		}
		data, err := d.bucket.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		row, err := query.DecodeRow(data)
		if err != nil {
			d.logger.Warn("skipping unreadable document", "driver", d.id, "key", key, "error", err)
			continue
		}
		table.Insert(row)
	}
	return table, nil
}

func rowID(desc *smartermodel.Descriptor, row query.Row) string {
	switch id := row[desc.KeyField()].(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
