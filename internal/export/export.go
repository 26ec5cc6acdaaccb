// Package export renders the tables of an executor as DDL and INSERT
// statements for another SQL dialect.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/adrianmcphee/smartermodel/sqlgen"
)

// Exporter renders statements in one dialect.
type Exporter struct {
	compiler *sqlgen.Compiler
}

// New creates an exporter for d.
func New(d sqlgen.Dialect) *Exporter {
	return &Exporter{compiler: sqlgen.New(d)}
}

func (x *Exporter) dialect() string { return x.compiler.Dialect.Name }

// DDL generates CREATE TABLE statements for every declared table.
func (x *Exporter) DDL(exec *executor.Executor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- smartermodel export to %s\n", x.dialect())
	sb.WriteString("-- Generated schema (no migration history)\n\n")

	names := exec.Catalog().Names()
	for i, name := range names {
		table, ok := exec.Catalog().Lookup(name)
		if !ok {
			continue
		}
		sb.WriteString(x.TableDDL(table))
		if i < len(names)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// TableDDL generates a CREATE TABLE statement for a single table. CQL
// tables get a trailing PRIMARY KEY clause since Cassandra requires one.
func (x *Exporter) TableDDL(table *executor.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", x.compiler.Identifier(table.Name))

	cql := x.dialect() == sqlgen.CQL.Name
	lines := make([]string, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		lines = append(lines, "  "+x.columnDDL(col, cql))
	}
	if cql {
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", x.compiler.Identifier(table.Key())))
	}
	sb.WriteString(strings.Join(lines, ",\n"))
	sb.WriteString("\n);\n")
	return sb.String()
}

func (x *Exporter) columnDDL(col executor.Column, cql bool) string {
	parts := []string{x.compiler.Identifier(col.Name), mapType(x.dialect(), col.Type)}
	if cql {
		return strings.Join(parts, " ")
	}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if col.NotNull && !col.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	return strings.Join(parts, " ")
}

// mapType maps declared column types to the target dialect.
func mapType(dialect, declared string) string {
	t := strings.ToLower(declared)
	switch dialect {
	case sqlgen.CQL.Name:
		switch t {
		case "uuid":
			return "uuid"
		case "int", "integer", "smallint", "tinyint":
			return "int"
		case "bigint":
			return "bigint"
		case "float", "double", "real":
			return "double"
		case "decimal", "numeric":
			return "decimal"
		case "boolean", "bool":
			return "boolean"
		case "timestamp", "timestamptz", "datetime":
			return "timestamp"
		case "date":
			return "date"
		default:
			return "text"
		}
	case sqlgen.Postgres.Name:
		switch t {
		case "uuid":
			return "UUID"
		case "int", "integer", "smallint", "tinyint":
			return "INTEGER"
		case "bigint":
			return "BIGINT"
		case "float", "double", "real":
			return "DOUBLE PRECISION"
		case "boolean", "bool":
			return "BOOLEAN"
		case "decimal", "numeric":
			return "DECIMAL"
		case "timestamp", "timestamptz", "datetime":
			return "TIMESTAMPTZ"
		case "date":
			return "DATE"
		case "json", "jsonb":
			return "JSONB"
		default:
			return "TEXT"
		}
	default:
		switch t {
		case "int", "integer", "smallint", "tinyint":
			return "INTEGER"
		case "bigint":
			return "BIGINT"
		case "float", "double", "real":
			return "DOUBLE"
		case "boolean", "bool":
			return "BOOLEAN"
		case "decimal", "numeric":
			return "DECIMAL"
		case "timestamp", "timestamptz", "datetime":
			return "DATETIME"
		case "date":
			return "DATE"
		case "json", "jsonb":
			return "JSON"
		case "varchar":
			return "VARCHAR(255)"
		default:
			return "TEXT"
		}
	}
}

// Data generates INSERT statements for every table with rows.
func (x *Exporter) Data(exec *executor.Executor) (string, error) {
	var sb strings.Builder
	sb.WriteString("-- smartermodel data export\n\n")

	for _, name := range exec.DB().Names() {
		table, ok := exec.DB().Lookup(name)
		if !ok {
			continue
		}
		rows := table.Rows()
		if len(rows) == 0 {
			continue
		}

		var columns []string
		if declared, ok := exec.Catalog().Lookup(name); ok {
			columns = declared.ColumnNames()
		} else {
			columns = rowKeys(rows)
		}

		for _, row := range rows {
			stmt, err := x.rowToInsert(name, columns, query.NormalizeNumbers(row))
			if err != nil {
				return "", fmt.Errorf("export %s: %w", name, err)
			}
			sb.WriteString(stmt)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func rowKeys(rows []query.Row) []string {
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
	sort.Strings(keys)
	return keys
}

// rowToInsert generates an INSERT statement for a single row
func (x *Exporter) rowToInsert(table string, columns []string, row query.Row) (string, error) {
	names := make([]string, len(columns))
	values := make([]string, len(columns))
	for i, col := range columns {
		names[i] = x.compiler.Identifier(col)
		v, err := x.literal(row[col])
		if err != nil {
			return "", err
		}
		values[i] = v
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);\n",
		x.compiler.Identifier(table),
		strings.Join(names, ", "),
		strings.Join(values, ", ")), nil
}

// literal renders booleans as true/false where the dialect has a boolean
// type and nested values as JSON text.
func (x *Exporter) literal(v any) (string, error) {
	switch t := v.(type) {
	case bool:
		if d := x.dialect(); d == sqlgen.Postgres.Name || d == sqlgen.CQL.Name {
			if t {
				return "true", nil
			}
			return "false", nil
		}
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return x.compiler.Literal(string(data))
	}
	return x.compiler.Literal(v)
}

// Export generates both DDL and data
func (x *Exporter) Export(exec *executor.Executor) (string, error) {
	data, err := x.Data(exec)
	if err != nil {
		return "", err
	}
	return x.DDL(exec) + "\n" + data, nil
}
