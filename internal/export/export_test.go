package export

import (
	"strings"
	"testing"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/adrianmcphee/smartermodel/sqlgen"
)

func setupTestExecutor(t *testing.T, statements ...string) *executor.Executor {
	t.Helper()

	exec := executor.NewExecutor(memdb.New())
	for _, sql := range statements {
		if _, err := exec.Execute(sql); err != nil {
			t.Fatalf("Execute %q failed: %v", sql, err)
		}
	}
	return exec
}

func TestDDL_Empty(t *testing.T) {
	exec := setupTestExecutor(t)

	output := New(sqlgen.Postgres).DDL(exec)

	if !strings.Contains(output, "smartermodel export to postgres") {
		t.Error("Expected header comment")
	}
	if !strings.Contains(output, "no migration history") {
		t.Error("Expected 'no migration history' comment")
	}
}

func TestDDL_Postgres(t *testing.T) {
	exec := setupTestExecutor(t,
		"CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL, age INT, score FLOAT)",
	)

	output := New(sqlgen.Postgres).DDL(exec)

	for _, want := range []string{
		`CREATE TABLE "users" (`,
		`"id" TEXT PRIMARY KEY,`,
		`"email" TEXT NOT NULL,`,
		`"age" INTEGER,`,
		`"score" DOUBLE PRECISION`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q, got:\n%s", want, output)
		}
	}
}

func TestDDL_CQL(t *testing.T) {
	exec := setupTestExecutor(t,
		"CREATE TABLE events (id TEXT PRIMARY KEY, kind TEXT NOT NULL, n BIGINT)",
	)

	output := New(sqlgen.CQL).DDL(exec)

	want := "CREATE TABLE events (\n  id text,\n  kind text,\n  n bigint,\n  PRIMARY KEY (id)\n);\n"
	if !strings.Contains(output, want) {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, output)
	}
}

func TestDDL_MultipleTablesSorted(t *testing.T) {
	exec := setupTestExecutor(t,
		"CREATE TABLE posts (id TEXT PRIMARY KEY)",
		"CREATE TABLE authors (id TEXT PRIMARY KEY)",
	)

	output := New(sqlgen.MySQL).DDL(exec)

	authors := strings.Index(output, "CREATE TABLE `authors`")
	posts := strings.Index(output, "CREATE TABLE `posts`")
	if authors < 0 || posts < 0 || authors > posts {
		t.Errorf("Expected authors before posts, got:\n%s", output)
	}
}

func TestMapType(t *testing.T) {
	tests := []struct {
		dialect  string
		declared string
		want     string
	}{
		{"postgres", "uuid", "UUID"},
		{"postgres", "bool", "BOOLEAN"},
		{"postgres", "jsonb", "JSONB"},
		{"postgres", "whatever", "TEXT"},
		{"mysql", "varchar", "VARCHAR(255)"},
		{"mysql", "timestamp", "DATETIME"},
		{"sqlite", "json", "JSON"},
		{"cql", "timestamp", "timestamp"},
		{"cql", "float", "double"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.declared, func(t *testing.T) {
			if got := mapType(tt.dialect, tt.declared); got != tt.want {
				t.Errorf("mapType(%q, %q) = %q, want %q", tt.dialect, tt.declared, got, tt.want)
			}
		})
	}
}

func TestData_WithRows(t *testing.T) {
	exec := setupTestExecutor(t,
		"CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT, age INT)",
		"INSERT INTO users (id, name, age) VALUES ('u1', 'Alice', 30), ('u2', 'Bob', NULL)",
	)

	output, err := New(sqlgen.Postgres).Data(exec)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}

	for _, want := range []string{
		`INSERT INTO "users" ("id", "name", "age") VALUES ('u1', 'Alice', 30);`,
		`INSERT INTO "users" ("id", "name", "age") VALUES ('u2', 'Bob', NULL);`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q, got:\n%s", want, output)
		}
	}
}

func TestData_EscapesQuotes(t *testing.T) {
	exec := setupTestExecutor(t,
		"CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)",
		`INSERT INTO notes (id, body) VALUES ('n1', 'it''s')`,
	)

	postgres, err := New(sqlgen.Postgres).Data(exec)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if !strings.Contains(postgres, `'it''s'`) {
		t.Errorf("Expected doubled quote, got:\n%s", postgres)
	}

	mysql, err := New(sqlgen.MySQL).Data(exec)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if !strings.Contains(mysql, `'it\'s'`) {
		t.Errorf("Expected backslash escape, got:\n%s", mysql)
	}
}

func TestData_UndeclaredTableAndValues(t *testing.T) {
	exec := setupTestExecutor(t)
	exec.DB().Table("loose").Insert(query.Row{
		"id":     "l1",
		"active": true,
		"tags":   []any{"a", "b"},
	})

	output, err := New(sqlgen.Postgres).Data(exec)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	want := `INSERT INTO "loose" ("active", "id", "tags") VALUES (true, 'l1', '["a","b"]');`
	if !strings.Contains(output, want) {
		t.Errorf("Expected %q, got:\n%s", want, output)
	}

	mysql, err := New(sqlgen.MySQL).Data(exec)
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if !strings.Contains(mysql, "VALUES (1, 'l1', '[\\\"a\\\",\\\"b\\\"]')") {
		t.Errorf("Unexpected MySQL output:\n%s", mysql)
	}
}

func TestExport_Full(t *testing.T) {
	exec := setupTestExecutor(t,
		"CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT)",
		"INSERT INTO users (id, name) VALUES ('u1', 'Alice')",
	)

	output, err := New(sqlgen.SQLite).Export(exec)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	ddl := strings.Index(output, "CREATE TABLE `users`")
	insert := strings.Index(output, "INSERT INTO `users`")
	if ddl < 0 || insert < 0 || ddl > insert {
		t.Errorf("Expected DDL before data, got:\n%s", output)
	}
}
