package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/internal/protocol"
	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type testEnv struct {
	addr    string
	dataDir string
	server  *protocol.Server
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	exec := executor.NewExecutor(memdb.New(), executor.WithSnapshotDir(dir))
	server := protocol.NewServer(exec)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go func() {
		_ = server.Serve(context.Background(), ln)
	}()
	t.Cleanup(func() { server.Close() })

	return &testEnv{addr: ln.Addr().String(), dataDir: dir, server: server}
}

func (env *testEnv) connect(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("postgres://tester@%s/app?sslmode=disable&default_query_exec_mode=simple_protocol", env.addr)
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close(ctx) })
	return conn
}

func (env *testEnv) readRows(t *testing.T, table string) []map[string]any {
	t.Helper()
	f, err := os.Open(filepath.Join(env.dataDir, table+".jsonl"))
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", scanner.Text(), err)
		}
		rows = append(rows, row)
	}
	return rows
}

func mustExec(t *testing.T, conn *pgx.Conn, sql string, args ...any) pgconn.CommandTag {
	t.Helper()
	tag, err := conn.Exec(context.Background(), sql, args...)
	if err != nil {
		t.Fatalf("Exec %q failed: %v", sql, err)
	}
	return tag
}

func TestCreateTable(t *testing.T) {
	env := setupTest(t)
	conn := env.connect(t)

	mustExec(t, conn, "CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT, email TEXT)")

	schemaPath := filepath.Join(env.dataDir, "_schema", "users.json")
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("Schema file not found: %v", err)
	}

	var schema executor.Table
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("Invalid schema JSON: %v", err)
	}
	if schema.Name != "users" || len(schema.Columns) != 3 {
		t.Fatalf("Unexpected schema: %+v", schema)
	}
	if !schema.Columns[0].PrimaryKey {
		t.Errorf("Expected id to be the primary key")
	}
}

func TestInsertAndSelect(t *testing.T) {
	env := setupTest(t)
	conn := env.connect(t)
	ctx := context.Background()

	mustExec(t, conn, "CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT NOT NULL, age INT)")
	tag := mustExec(t, conn, "INSERT INTO users (id, name, age) VALUES ('u1', 'Alice', 30), ('u2', 'Bob', 25)")
	if tag.RowsAffected() != 2 {
		t.Fatalf("Expected 2 rows inserted, got %d", tag.RowsAffected())
	}

	rows := env.readRows(t, "users")
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows in snapshot, got %d", len(rows))
	}

	var name string
	var age int64
	err := conn.QueryRow(ctx, "SELECT name, age FROM users WHERE id = $1", "u2").Scan(&name, &age)
	if err != nil {
		t.Fatalf("QueryRow failed: %v", err)
	}
	if name != "Bob" || age != 25 {
		t.Errorf("Got (%s, %d), want (Bob, 25)", name, age)
	}

	var count int64
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE age >= 18").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
}

func TestUpdateModifiesSnapshot(t *testing.T) {
	env := setupTest(t)
	conn := env.connect(t)

	mustExec(t, conn, "CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT)")
	mustExec(t, conn, "INSERT INTO users (id, name) VALUES ('u1', 'Alice')")
	tag := mustExec(t, conn, "UPDATE users SET name = $1 WHERE id = $2", "Alicia", "u1")
	if tag.RowsAffected() != 1 {
		t.Fatalf("Expected 1 row updated, got %d", tag.RowsAffected())
	}

	rows := env.readRows(t, "users")
	if len(rows) != 1 || rows[0]["name"] != "Alicia" {
		t.Errorf("Snapshot not updated: %v", rows)
	}
}

func TestDeleteRemovesFromSnapshot(t *testing.T) {
	env := setupTest(t)
	conn := env.connect(t)

	mustExec(t, conn, "CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT)")
	mustExec(t, conn, "INSERT INTO users (id, name) VALUES ('u1', 'Alice'), ('u2', 'Bob')")
	mustExec(t, conn, "DELETE FROM users WHERE name = 'Alice'")

	rows := env.readRows(t, "users")
	if len(rows) != 1 || rows[0]["id"] != "u2" {
		t.Errorf("Expected only u2 to remain, got %v", rows)
	}
}

func TestErrorsCarrySQLState(t *testing.T) {
	env := setupTest(t)
	conn := env.connect(t)

	mustExec(t, conn, "CREATE TABLE users (id TEXT PRIMARY KEY)")
	mustExec(t, conn, "INSERT INTO users (id) VALUES ('u1')")

	_, err := conn.Exec(context.Background(), "INSERT INTO users (id) VALUES ('u1')")
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("Expected a PgError, got %v", err)
	}
	if pgErr.Code != "23505" {
		t.Errorf("Expected unique violation, got %s", pgErr.Code)
	}

	// The connection stays usable after an error.
	mustExec(t, conn, "SELECT * FROM users")
}

func TestRestartKeepsData(t *testing.T) {
	env := setupTest(t)
	conn := env.connect(t)

	mustExec(t, conn, "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	mustExec(t, conn, "INSERT INTO notes (id, body) VALUES ('n1', 'persist me')")
	env.server.Close()

	restored := executor.NewExecutor(memdb.New())
	if err := restored.Load(env.dataDir); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	res, err := restored.Execute("SELECT body FROM notes WHERE id = 'n1'")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != "persist me" {
		t.Errorf("Unexpected rows after restart: %v", res.Rows)
	}
}
