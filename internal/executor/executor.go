// Package executor parses SQL statements and runs them against an in-memory
// database.
package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/xwb1989/sqlparser"
)

// Version is returned by SELECT version().
const Version = "smartermodel 1.0"

// Result represents the result of executing a SQL statement
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int
	LastInsertID string
	// Message is the command tag, e.g. "INSERT 0 2".
	Message string
}

// Executor executes SQL statements
type Executor struct {
	mu      sync.RWMutex
	db      *memdb.DB
	catalog *Catalog
	logger  smartermodel.Logger
	dir     string
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l smartermodel.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithSnapshotDir saves the database to dir after every statement that
// changes it.
func WithSnapshotDir(dir string) Option {
	return func(e *Executor) { e.dir = dir }
}

// NewExecutor creates a new SQL executor
func NewExecutor(db *memdb.DB, opts ...Option) *Executor {
	e := &Executor{db: db, catalog: NewCatalog(), logger: &smartermodel.NoOpLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DB returns the underlying database.
func (e *Executor) DB() *memdb.DB { return e.db }

// Catalog returns the declared tables.
func (e *Executor) Catalog() *Catalog { return e.catalog }

// Load reads schemas and rows saved by Save.
func (e *Executor) Load(dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.catalog.Load(dir); err != nil {
		return err
	}
	for _, name := range e.catalog.Names() {
		e.db.Table(name)
	}
	return e.db.LoadDir(dir)
}

// Save writes schemas and rows to dir, removing files of dropped tables.
func (e *Executor) Save(dir string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.save(dir)
}

func (e *Executor) save(dir string) error {
	if err := e.db.SaveDir(dir); err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return err
	}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".jsonl")
		if !e.exists(name) {
			if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove table file: %w", err)
			}
		}
	}
	return e.catalog.Save(dir)
}

// Execute parses and executes a SQL statement
func (e *Executor) Execute(sql string) (*Result, error) {
	if strings.TrimSpace(sql) == "" {
		return &Result{}, nil
	}
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}

	if s, ok := stmt.(*sqlparser.Select); ok {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.executeSelect(s)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var res *Result
	switch s := stmt.(type) {
	case *sqlparser.DDL:
		res, err = e.executeDDL(s)
	case *sqlparser.Insert:
		res, err = e.executeInsert(s)
	case *sqlparser.Update:
		res, err = e.executeUpdate(s)
	case *sqlparser.Delete:
		res, err = e.executeDelete(s)
	case *sqlparser.Set:
		return &Result{Message: "SET"}, nil
	case *sqlparser.Begin:
		return &Result{Message: "BEGIN"}, nil
	case *sqlparser.Commit:
		return &Result{Message: "COMMIT"}, nil
	case *sqlparser.Rollback:
		return &Result{Message: "ROLLBACK"}, nil
	default:
		return nil, fmt.Errorf("%w: statement type %T", query.ErrUnsupported, stmt)
	}
	if err != nil {
		return nil, err
	}

	if e.dir != "" {
		if err := e.save(e.dir); err != nil {
			e.logger.Error("snapshot failed", "dir", e.dir, "error", err)
			return nil, fmt.Errorf("persist %s: %w", e.dir, err)
		}
	}
	e.logger.Debug("statement executed", "tag", res.Message)
	return res, nil
}

func (e *Executor) exists(table string) bool {
	if _, ok := e.catalog.Lookup(table); ok {
		return true
	}
	_, ok := e.db.Lookup(table)
	return ok
}

func (e *Executor) requireTable(table string) error {
	if !e.exists(table) {
		return fmt.Errorf("%w: relation %q does not exist", ErrUndefinedTable, table)
	}
	return nil
}

// executeDDL handles CREATE TABLE and DROP TABLE
func (e *Executor) executeDDL(stmt *sqlparser.DDL) (*Result, error) {
	switch stmt.Action {
	case sqlparser.CreateStr:
		return e.executeCreateTable(stmt)
	case sqlparser.DropStr:
		return e.executeDropTable(stmt)
	default:
		return nil, fmt.Errorf("unsupported DDL action: %s", stmt.Action)
	}
}

func (e *Executor) executeCreateTable(stmt *sqlparser.DDL) (*Result, error) {
	tableName := stmt.NewName.Name.String()
	if stmt.TableSpec == nil {
		return nil, fmt.Errorf("CREATE TABLE %s needs column definitions", tableName)
	}
	if _, ok := e.db.Lookup(tableName); ok {
		return nil, fmt.Errorf("%w: table %s already exists", ErrDuplicateTable, tableName)
	}

	var columns []Column
	for _, col := range stmt.TableSpec.Columns {
		columns = append(columns, Column{
			Name:       col.Name.String(),
			Type:       strings.ToLower(col.Type.Type),
			NotNull:    bool(col.Type.NotNull),
			PrimaryKey: col.Type.KeyOpt == 1, // colKeyPrimary
		})
	}
	for _, idx := range stmt.TableSpec.Indexes {
		if !idx.Info.Primary {
			continue
		}
		for i := range columns {
			for _, idxCol := range idx.Columns {
				if columns[i].Name == idxCol.Column.String() {
					columns[i].PrimaryKey = true
				}
			}
		}
	}

	if err := e.catalog.Create(&Table{Name: tableName, Columns: columns}); err != nil {
		return nil, err
	}
	e.db.Table(tableName)
	return &Result{Message: "CREATE TABLE"}, nil
}

func (e *Executor) executeDropTable(stmt *sqlparser.DDL) (*Result, error) {
	tableName := stmt.Table.Name.String()
	if !e.exists(tableName) {
		if stmt.IfExists {
			return &Result{Message: "DROP TABLE"}, nil
		}
		return nil, fmt.Errorf("%w: table %s does not exist", ErrUndefinedTable, tableName)
	}
	e.catalog.Drop(tableName)
	e.db.Drop(tableName)
	return &Result{Message: "DROP TABLE"}, nil
}

// executeSelect handles SELECT statements. Sorting happens before the
// limit is applied, as SQL clients expect.
func (e *Executor) executeSelect(stmt *sqlparser.Select) (*Result, error) {
	if len(stmt.From) == 1 {
		if name, err := getTableName(stmt.From[0]); err == nil && name == dualTable {
			return selectConstants(stmt)
		}
	}

	q, limit, err := translateSelect(stmt)
	if err != nil {
		return nil, err
	}
	if err := e.requireTable(q.Model()); err != nil {
		return nil, err
	}

	res, err := e.db.Execute(q)
	if err != nil {
		return nil, err
	}
	rows := res.Rows
	if len(rows) == 0 && q.HasAggregates() && len(q.GroupBy()) == 0 {
		rows = []query.Row{emptyAggregate(q.Fields())}
	}
	rows = window(rows, limit)

	var columns []string
	if len(q.Fields()) == 0 {
		columns = e.columns(q.Model(), rows)
	} else {
		for _, f := range q.Fields() {
			columns = append(columns, f.OutputName())
		}
	}

	result := &Result{Columns: columns, Rows: make([][]any, len(rows))}
	for i, row := range rows {
		result.Rows[i] = make([]any, len(columns))
		for j, col := range columns {
			result.Rows[i][j] = row[col]
		}
	}
	result.Message = fmt.Sprintf("SELECT %d", len(result.Rows))
	return result, nil
}

// emptyAggregate is the single row an aggregate over no rows yields.
func emptyAggregate(fields []query.Projection) query.Row {
	row := make(query.Row, len(fields))
	for _, f := range fields {
		if f.Function == query.AggCount {
			row[f.OutputName()] = int64(0)
		}
	}
	return row
}

func window(rows []query.Row, l *query.Limit) []query.Row {
	if l == nil {
		return rows
	}
	if l.Start >= len(rows) {
		return nil
	}
	rows = rows[l.Start:]
	if l.Bounded() && *l.Length < len(rows) {
		rows = rows[:*l.Length]
	}
	return rows
}

// columns lists the declared columns, or for undeclared tables every key
// seen, sorted with the key column first.
func (e *Executor) columns(table string, rows []query.Row) []string {
	if t, ok := e.catalog.Lookup(table); ok {
		return t.ColumnNames()
	}
	seen := make(map[string]bool)
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "id" || keys[j] == "id" {
			return keys[i] == "id"
		}
		return keys[i] < keys[j]
	})
	return keys
}

func selectConstants(stmt *sqlparser.Select) (*Result, error) {
	res := &Result{Rows: [][]any{{}}, Message: "SELECT 1"}
	for _, expr := range stmt.SelectExprs {
		a, ok := expr.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, fmt.Errorf("%w: select expression %s", query.ErrUnsupported, sqlparser.String(expr))
		}
		v, err := literal(a.Expr)
		if err != nil {
			return nil, err
		}
		name := a.As.String()
		if a.As.IsEmpty() {
			name = sqlparser.String(a.Expr)
			if f, ok := a.Expr.(*sqlparser.FuncExpr); ok {
				name = f.Name.Lowered()
			}
		}
		res.Columns = append(res.Columns, name)
		res.Rows[0] = append(res.Rows[0], v)
	}
	return res, nil
}

// executeInsert handles INSERT and REPLACE statements. Rows without a key
// get a generated id; all rows are checked before any is stored.
func (e *Executor) executeInsert(stmt *sqlparser.Insert) (*Result, error) {
	tableName := stmt.Table.Name.String()
	if err := e.requireTable(tableName); err != nil {
		return nil, err
	}
	if len(stmt.OnDup) > 0 {
		return nil, fmt.Errorf("%w: ON DUPLICATE KEY UPDATE", query.ErrUnsupported)
	}
	replace := stmt.Action == sqlparser.ReplaceStr
	schema, declared := e.catalog.Lookup(tableName)

	var columns []string
	for _, col := range stmt.Columns {
		columns = append(columns, col.String())
	}
	if len(columns) == 0 {
		if !declared {
			return nil, fmt.Errorf("INSERT into %s needs a column list", tableName)
		}
		columns = schema.ColumnNames()
	}
	if declared {
		for _, col := range columns {
			if !schema.has(col) {
				return nil, fmt.Errorf("%w: column %s does not exist in table %s", ErrUndefinedColumn, col, tableName)
			}
		}
	}

	values, ok := stmt.Rows.(sqlparser.Values)
	if !ok {
		return nil, fmt.Errorf("only VALUES clause supported for INSERT")
	}

	key := "id"
	if declared {
		key = schema.Key()
	}
	table := e.db.Table(tableName)

	rows := make([]query.Row, 0, len(values))
	ids := make(map[string]bool, len(values))
	for _, tuple := range values {
		if len(tuple) != len(columns) {
			return nil, fmt.Errorf("INSERT has %d columns but %d values", len(columns), len(tuple))
		}
		row := make(query.Row, len(columns))
		for i, expr := range tuple {
			v, err := literal(expr)
			if err != nil {
				return nil, err
			}
			row[columns[i]] = v
		}
		if id, ok := row[key]; !ok || id == nil || id == "" {
			row[key] = smartermodel.NewID()
		}
		if declared {
			for _, col := range schema.Columns {
				if col.NotNull && row[col.Name] == nil {
					return nil, fmt.Errorf("%w: null value in column %q violates not-null constraint", ErrNotNullViolation, col.Name)
				}
			}
		}
		id := fmt.Sprint(row[key])
		_, stored := table.Get(key, row[key])
		if !replace && (stored || ids[id]) {
			return nil, fmt.Errorf("%w: duplicate key value violates unique constraint %q", ErrUniqueViolation, tableName+"_pkey")
		}
		ids[id] = true
		rows = append(rows, row)
	}

	var lastID string
	for _, row := range rows {
		table.Upsert(key, row)
		lastID = fmt.Sprint(row[key])
	}
	return &Result{
		RowsAffected: len(rows),
		LastInsertID: lastID,
		Message:      fmt.Sprintf("INSERT 0 %d", len(rows)),
	}, nil
}

func (e *Executor) executeUpdate(stmt *sqlparser.Update) (*Result, error) {
	q, err := translateUpdate(stmt)
	if err != nil {
		return nil, err
	}
	if err := e.requireTable(q.Model()); err != nil {
		return nil, err
	}
	if schema, ok := e.catalog.Lookup(q.Model()); ok {
		for _, a := range q.Assignments() {
			if !schema.has(a.Key) {
				return nil, fmt.Errorf("%w: column %s does not exist in table %s", ErrUndefinedColumn, a.Key, q.Model())
			}
		}
	}
	res, err := e.db.Execute(q)
	if err != nil {
		return nil, err
	}
	return &Result{
		RowsAffected: res.Affected,
		Message:      fmt.Sprintf("UPDATE %d", res.Affected),
	}, nil
}

func (e *Executor) executeDelete(stmt *sqlparser.Delete) (*Result, error) {
	q, err := translateDelete(stmt)
	if err != nil {
		return nil, err
	}
	if err := e.requireTable(q.Model()); err != nil {
		return nil, err
	}
	res, err := e.db.Execute(q)
	if err != nil {
		return nil, err
	}
	return &Result{
		RowsAffected: res.Affected,
		Message:      fmt.Sprintf("DELETE %d", res.Affected),
	}, nil
}
