// Package cassandra is a driver for Apache Cassandra and compatible stores.
// Statements are compiled by sqlgen in the CQL dialect and executed through
// gocql. Each model maps to a table named after Descriptor.Name whose
// partition key is Descriptor.KeyField.
package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/adrianmcphee/smartermodel/sqlgen"
)

// DriverID is the id used when none is given.
const DriverID = "cassandra"

// Session runs CQL statements. It is satisfied by the gocql adapter
// returned from NewSession.
type Session interface {
	Exec(ctx context.Context, stmt string, values ...any) error
	Rows(ctx context.Context, stmt string, values ...any) ([]map[string]any, error)
	Close()
}

type gocqlSession struct {
	session *gocql.Session
}

// NewSession adapts a gocql session.
func NewSession(s *gocql.Session) Session {
	return &gocqlSession{session: s}
}

func (s *gocqlSession) Exec(ctx context.Context, stmt string, values ...any) error {
	return s.session.Query(stmt, values...).WithContext(ctx).Exec()
}

func (s *gocqlSession) Rows(ctx context.Context, stmt string, values ...any) ([]map[string]any, error) {
	return s.session.Query(stmt, values...).WithContext(ctx).Iter().SliceMap()
}

func (s *gocqlSession) Close() { s.session.Close() }

// Driver reads and writes models in Cassandra.
type Driver struct {
	id             string
	session        Session
	compiler       *sqlgen.Compiler
	logger         smartermodel.Logger
	allowFiltering bool
	ttl            time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithID overrides DriverID.
func WithID(id string) Option {
	return func(d *Driver) { d.id = id }
}

// WithLogger sets the logger for statements and failures.
func WithLogger(logger smartermodel.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithAllowFiltering appends ALLOW FILTERING to filtered selects so that
// queries on non-key columns are accepted by the cluster.
func WithAllowFiltering() Option {
	return func(d *Driver) { d.allowFiltering = true }
}

// WithTTL expires saved rows after ttl, rounded down to whole seconds.
func WithTTL(ttl time.Duration) Option {
	return func(d *Driver) { d.ttl = ttl }
}

// New wraps a session.
func New(session Session, opts ...Option) *Driver {
	d := &Driver{
		id:       DriverID,
		session:  session,
		compiler: sqlgen.New(sqlgen.CQL),
		logger:   &smartermodel.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open connects to the cluster described by cfg.
func Open(cfg Config, opts ...Option) (*Driver, error) {
	cluster, err := cfg.cluster()
	if err != nil {
		return nil, smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
			"consistency": cfg.Consistency,
			"error":       err.Error(),
		})
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, smartermodel.WithContext(smartermodel.ErrBackendUnavailable, map[string]interface{}{
			"contact_points": cfg.ContactPoints,
			"keyspace":       cfg.Keyspace,
			"error":          err.Error(),
		})
	}
	d := New(NewSession(session), opts...)
	d.logger.Info("cassandra session created", "keyspace", cfg.Keyspace, "port", cluster.Port)
	return d, nil
}

func (d *Driver) ID() string { return d.id }

func (d *Driver) Get(ctx context.Context, desc *smartermodel.Descriptor, id string) (smartermodel.Model, error) {
	q, err := query.NewSelect(
		query.From(desc.Name),
		query.Where(query.Eq(desc.KeyField(), id)),
		query.Paginate(1),
	)
	if err != nil {
		return nil, err
	}
	rows, _, err := d.rows(ctx, q, false)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return desc.Decode(rows[0])
}

// Save inserts the encoded model. Cassandra inserts overwrite, so no
// separate update path is needed.
func (d *Driver) Save(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	row, err := desc.Encode(m)
	if err != nil {
		return err
	}
	stmt, values, err := d.insert(desc.Name, row)
	if err != nil {
		return err
	}
	return d.exec(ctx, stmt, values...)
}

func (d *Driver) Delete(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	q, err := query.NewDelete(query.From(desc.Name), query.Where(query.Eq(desc.KeyField(), m.GetID())))
	if err != nil {
		return err
	}
	stmt, err := d.compileWrite(q)
	if err != nil {
		return err
	}
	return d.exec(ctx, stmt)
}

func (d *Driver) Select(ctx context.Context, desc *smartermodel.Descriptor, q *query.Select) (*smartermodel.QueryResult, error) {
	rows, stmt, err := d.rows(ctx, q, d.allowFiltering)
	if err != nil {
		return nil, err
	}
	res := &smartermodel.QueryResult{Success: true, QueryString: stmt}
	for _, row := range rows {
		m, err := desc.Decode(row)
		if err != nil {
			return nil, err
		}
		res.Add(m)
	}
	return res, nil
}

// Update runs an UPDATE statement. Cassandra does not report affected
// rows, so AffectedRows is always zero.
func (d *Driver) Update(ctx context.Context, desc *smartermodel.Descriptor, q *query.Update) (*smartermodel.QueryResult, error) {
	return d.write(ctx, q)
}

// DeleteWhere runs a DELETE statement. As with Update, AffectedRows is
// always zero.
func (d *Driver) DeleteWhere(ctx context.Context, desc *smartermodel.Descriptor, q *query.Delete) (*smartermodel.QueryResult, error) {
	return d.write(ctx, q)
}

func (d *Driver) Close() error {
	d.session.Close()
	return nil
}

func (d *Driver) write(ctx context.Context, q query.Query) (*smartermodel.QueryResult, error) {
	stmt, err := d.compileWrite(q)
	if err != nil {
		return nil, err
	}
	if err := d.exec(ctx, stmt); err != nil {
		return nil, err
	}
	return &smartermodel.QueryResult{Success: true, QueryString: stmt}, nil
}

// compileWrite rejects limits, which CQL only accepts on selects.
func (d *Driver) compileWrite(q query.Query) (string, error) {
	if q.Limit() != nil {
		return "", fmt.Errorf("%w: cql does not support LIMIT on writes", sqlgen.ErrInvalidQuery)
	}
	return d.compiler.Compile(q)
}

func (d *Driver) rows(ctx context.Context, q *query.Select, allowFiltering bool) ([]query.Row, string, error) {
	stmt, err := d.compiler.Compile(q)
	if err != nil {
		return nil, "", err
	}
	if allowFiltering && q.Where().Len() > 0 {
		stmt += " ALLOW FILTERING"
	}
	d.logger.Debug("cql query", "driver", d.id, "cql", stmt)

	raw, err := d.session.Rows(ctx, stmt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, stmt, nil
		}
		return nil, stmt, d.classify(err, stmt)
	}
	rows := make([]query.Row, len(raw))
	for i, r := range raw {
		rows[i] = normalizeRow(r)
	}
	return rows, stmt, nil
}

func (d *Driver) exec(ctx context.Context, stmt string, values ...any) error {
	d.logger.Debug("cql exec", "driver", d.id, "cql", stmt)
	if err := d.session.Exec(ctx, stmt, values...); err != nil {
		return d.classify(err, stmt)
	}
	return nil
}

// insert builds a parameterised INSERT with sorted columns.
func (d *Driver) insert(table string, row query.Row) (string, []any, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	names := make([]string, len(cols))
	values := make([]any, len(cols))
	for i, c := range cols {
		v, err := bindValue(row[c])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c, err)
		}
		names[i] = d.compiler.Identifier(c)
		values[i] = v
	}

	stmt := "INSERT INTO " + d.compiler.Identifier(table) +
		" (" + strings.Join(names, ", ") + ")" +
		" VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	if secs := int(d.ttl / time.Second); secs > 0 {
		stmt += fmt.Sprintf(" USING TTL %d", secs)
	}
	return stmt, values, nil
}

func bindValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// normalizeRow converts gocql column types into values models decode from.
func normalizeRow(r map[string]any) query.Row {
	row := make(query.Row, len(r))
	for k, v := range r {
		switch x := v.(type) {
		case gocql.UUID:
			row[k] = x.String()
		case []byte:
			row[k] = string(x)
		case time.Time:
			row[k] = x.UTC().Format(time.RFC3339Nano)
		default:
			row[k] = v
		}
	}
	return row
}

// errorTag names a gocql failure for logs.
func errorTag(err error) string {
	var (
		readTimeout  *gocql.RequestErrReadTimeout
		writeTimeout *gocql.RequestErrWriteTimeout
		unavailable  *gocql.RequestErrUnavailable
		readFailure  *gocql.RequestErrReadFailure
		writeFailure *gocql.RequestErrWriteFailure
	)
	switch {
	case errors.As(err, &readTimeout):
		return "read_timeout"
	case errors.As(err, &writeTimeout):
		return "write_timeout"
	case errors.Is(err, gocql.ErrTimeoutNoResponse), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &unavailable), errors.Is(err, gocql.ErrNoConnections), errors.Is(err, gocql.ErrSessionClosed):
		return "unavailable"
	case errors.As(err, &readFailure):
		return "read_failure"
	case errors.As(err, &writeFailure):
		return "write_failure"
	default:
		return "unknown"
	}
}

func (d *Driver) classify(err error, stmt string) error {
	tag := errorTag(err)
	d.logger.Warn("cql statement failed", "driver", d.id, "cql", stmt, "error_tag", tag, "error", err)

	ctx := map[string]interface{}{"driver": d.id, "cql": stmt, "error": err.Error()}
	switch tag {
	case "read_timeout", "write_timeout", "timeout":
		return smartermodel.WithContext(smartermodel.ErrTimeout, ctx)
	case "unavailable":
		return smartermodel.WithContext(smartermodel.ErrBackendUnavailable, ctx)
	default:
		return smartermodel.WithContext(fmt.Errorf("%w: %w", smartermodel.ErrQueryFailed, err), ctx)
	}
}
