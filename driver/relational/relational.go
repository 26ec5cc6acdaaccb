// Package relational is a driver for SQL databases reached through
// database/sql. Queries are compiled by sqlgen in the driver's dialect;
// saves are upserts with bound parameters.
//
// Tables are not created by the driver. Each model maps to a table named
// after Descriptor.Name with a primary key on Descriptor.KeyField and one
// column per encoded field.
package relational

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/adrianmcphee/smartermodel/sqlgen"
)

// Driver reads and writes models in a SQL database.
type Driver struct {
	id       string
	db       *sql.DB
	compiler *sqlgen.Compiler
	logger   smartermodel.Logger
	ownsDB   bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger logs every statement at debug level.
func WithLogger(logger smartermodel.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New wraps an open database. The caller keeps ownership of db.
func New(id string, db *sql.DB, dialect sqlgen.Dialect, opts ...Option) *Driver {
	d := &Driver{
		id:       id,
		db:       db,
		compiler: sqlgen.New(dialect),
		logger:   &smartermodel.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open opens and pings a database through the named database/sql driver.
// The returned Driver closes the database on Close.
func Open(ctx context.Context, id, driverName, dsn string, dialect sqlgen.Dialect, opts ...Option) (*Driver, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, smartermodel.WithContext(smartermodel.ErrBackendUnavailable, map[string]interface{}{
			"driver": id,
			"error":  err.Error(),
		})
	}
	d := New(id, db, dialect, opts...)
	d.ownsDB = true
	return d, nil
}

// OpenPostgres opens a PostgreSQL database through pgx.
func OpenPostgres(ctx context.Context, id, dsn string, opts ...Option) (*Driver, error) {
	return Open(ctx, id, "pgx", dsn, sqlgen.Postgres, opts...)
}

func (d *Driver) ID() string { return d.id }

// DB returns the underlying database.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect returns the SQL dialect statements are compiled in.
func (d *Driver) Dialect() sqlgen.Dialect { return d.compiler.Dialect }

func (d *Driver) Get(ctx context.Context, desc *smartermodel.Descriptor, id string) (smartermodel.Model, error) {
	q, err := query.NewSelect(
		query.From(desc.Name),
		query.Where(query.Eq(desc.KeyField(), id)),
		query.Paginate(1),
	)
	if err != nil {
		return nil, err
	}
	rows, _, err := d.selectRows(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return desc.Decode(rows[0])
}

func (d *Driver) Save(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	row, err := desc.Encode(m)
	if err != nil {
		return err
	}
	stmt, args, err := d.upsert(desc.Name, desc.KeyField(), row)
	if err != nil {
		return err
	}
	d.logger.Debug("sql exec", "driver", d.id, "sql", stmt)
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return classify(err, d.id, stmt)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	q, err := query.NewDelete(query.From(desc.Name), query.Where(query.Eq(desc.KeyField(), m.GetID())))
	if err != nil {
		return err
	}
	_, _, err = d.exec(ctx, q)
	return err
}

func (d *Driver) Select(ctx context.Context, desc *smartermodel.Descriptor, q *query.Select) (*smartermodel.QueryResult, error) {
	rows, stmt, err := d.selectRows(ctx, q)
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

func (d *Driver) Update(ctx context.Context, desc *smartermodel.Descriptor, q *query.Update) (*smartermodel.QueryResult, error) {
	n, stmt, err := d.exec(ctx, q)
	if err != nil {
		return nil, err
	}
	return &smartermodel.QueryResult{Success: true, AffectedRows: n, QueryString: stmt}, nil
}

func (d *Driver) DeleteWhere(ctx context.Context, desc *smartermodel.Descriptor, q *query.Delete) (*smartermodel.QueryResult, error) {
	n, stmt, err := d.exec(ctx, q)
	if err != nil {
		return nil, err
	}
	return &smartermodel.QueryResult{Success: true, AffectedRows: n, QueryString: stmt}, nil
}

// Close closes the database if the driver opened it.
func (d *Driver) Close() error {
	if !d.ownsDB {
		return nil
	}
	return d.db.Close()
}

func (d *Driver) selectRows(ctx context.Context, q *query.Select) ([]query.Row, string, error) {
	stmt, err := d.compiler.Compile(q)
	if err != nil {
		return nil, "", err
	}
	d.logger.Debug("sql query", "driver", d.id, "sql", stmt)

	rows, err := d.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, stmt, classify(err, d.id, stmt)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, stmt, classify(err, d.id, stmt)
	}
	return out, stmt, nil
}

func (d *Driver) exec(ctx context.Context, q query.Query) (int, string, error) {
	stmt, err := d.compiler.Compile(q)
	if err != nil {
		return 0, "", err
	}
	d.logger.Debug("sql exec", "driver", d.id, "sql", stmt)

	res, err := d.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, stmt, classify(err, d.id, stmt)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, stmt, classify(err, d.id, stmt)
	}
	return int(n), stmt, nil
}

// upsert builds an insert that overwrites the row with the same key.
// Columns are sorted so statements are stable across calls.
func (d *Driver) upsert(table, key string, row query.Row) (string, []any, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	var updates []string
	for i, c := range cols {
		quoted[i] = d.compiler.Identifier(c)
		marks[i] = d.placeholder(i + 1)
		v, err := bindValue(row[c])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c, err)
		}
		args[i] = v
		if c == key {
			continue
		}
		if d.compiler.Dialect.Name == sqlgen.MySQL.Name {
			updates = append(updates, quoted[i]+"=VALUES("+quoted[i]+")")
		} else {
			updates = append(updates, quoted[i]+"=excluded."+quoted[i])
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.compiler.Identifier(table))
	b.WriteString(" (" + strings.Join(quoted, ", ") + ")")
	b.WriteString(" VALUES (" + strings.Join(marks, ", ") + ")")

	switch {
	case d.compiler.Dialect.Name == sqlgen.MySQL.Name && len(updates) > 0:
		b.WriteString(" ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", "))
	case d.compiler.Dialect.Name == sqlgen.MySQL.Name:
		b.WriteString(" ON DUPLICATE KEY UPDATE " + d.compiler.Identifier(key) + "=" + d.compiler.Identifier(key))
	case len(updates) > 0:
		b.WriteString(" ON CONFLICT (" + d.compiler.Identifier(key) + ") DO UPDATE SET " + strings.Join(updates, ", "))
	default:
		b.WriteString(" ON CONFLICT (" + d.compiler.Identifier(key) + ") DO NOTHING")
	}
	return b.String(), args, nil
}

func (d *Driver) placeholder(n int) string {
	if d.compiler.Dialect.Name == sqlgen.Postgres.Name {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// bindValue turns nested values into JSON text; scalars pass through.
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

func scanRows(rows *sql.Rows) ([]query.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var out []query.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(query.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = fromText(b, types[i].DatabaseTypeName())
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// fromText converts a column value sent as text, as the MySQL driver does
// for numerics, using the declared column type. Unparsable values and
// other types stay strings.
func fromText(b []byte, dbType string) any {
	text := string(b)
	switch strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR", "INT2", "INT4", "INT8":
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(text, 10, 64); err == nil {
			return n
		}
	case "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	}
	return text
}

// classify maps connection and timeout failures onto the package
// sentinels so callers can tell them from bad statements.
func classify(err error, id, stmt string) error {
	ctx := map[string]interface{}{"driver": id, "sql": stmt, "error": err.Error()}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return smartermodel.WithContext(smartermodel.ErrTimeout, ctx)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return smartermodel.WithContext(smartermodel.ErrBackendUnavailable, ctx)
	default:
		return smartermodel.WithContext(fmt.Errorf("%w: %w", smartermodel.ErrQueryFailed, err), ctx)
	}
}
