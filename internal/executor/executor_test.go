package executor

import (
	"testing"

	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/adrianmcphee/smartermodel/sqlgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	e := NewExecutor(memdb.New(), opts...)
	mustExec(t, e, "CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT NOT NULL, city TEXT, age INT)")
	mustExec(t, e, `INSERT INTO users (id, name, city, age) VALUES
		('u1', 'alice', 'berlin', 31),
		('u2', 'bob', 'paris', 25),
		('u3', 'carol', 'berlin', 42),
		('u4', 'dave', NULL, 19)`)
	return e
}

func mustExec(t *testing.T, e *Executor, sql string) *Result {
	t.Helper()
	res, err := e.Execute(sql)
	require.NoError(t, err, sql)
	return res
}

func column(res *Result, name string) []any {
	idx := -1
	for i, c := range res.Columns {
		if c == name {
			idx = i
		}
	}
	out := make([]any, len(res.Rows))
	for i, row := range res.Rows {
		if idx >= 0 {
			out[i] = row[idx]
		}
	}
	return out
}

func TestCreateAndInsert(t *testing.T) {
	e := setupExecutor(t)

	res := mustExec(t, e, "SELECT * FROM users")
	assert.Equal(t, []string{"id", "name", "city", "age"}, res.Columns)
	assert.Len(t, res.Rows, 4)
	assert.Equal(t, "SELECT 4", res.Message)
	assert.Equal(t, []any{"u1", "alice", "berlin", int64(31)}, res.Rows[0])
	assert.Nil(t, res.Rows[3][2])

	res = mustExec(t, e, "INSERT INTO users (name) VALUES ('erin')")
	assert.Equal(t, "INSERT 0 1", res.Message)
	assert.Equal(t, 1, res.RowsAffected)
	assert.NotEmpty(t, res.LastInsertID)

	_, err := e.Execute("CREATE TABLE users (id TEXT)")
	assert.ErrorIs(t, err, ErrDuplicateTable)
}

func TestInsertConstraints(t *testing.T) {
	e := setupExecutor(t)

	tests := []struct {
		name string
		sql  string
		want error
	}{
		{"duplicate key", "INSERT INTO users (id, name) VALUES ('u1', 'again')", ErrUniqueViolation},
		{"duplicate within statement", "INSERT INTO users (id, name) VALUES ('x', 'a'), ('x', 'b')", ErrUniqueViolation},
		{"not null", "INSERT INTO users (id, city) VALUES ('u9', 'rome')", ErrNotNullViolation},
		{"unknown column", "INSERT INTO users (id, name, email) VALUES ('u9', 'z', 'z@example.com')", ErrUndefinedColumn},
		{"value count", "INSERT INTO users (id, name) VALUES ('u9')", nil},
		{"unknown table", "INSERT INTO nope (id) VALUES ('n1')", ErrUndefinedTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(tt.sql)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	res := mustExec(t, e, "SELECT COUNT(*) FROM users")
	assert.Equal(t, []any{int64(4)}, column(res, "count"))

	mustExec(t, e, "REPLACE INTO users (id, name) VALUES ('u1', 'alicia')")
	res = mustExec(t, e, "SELECT name FROM users WHERE id = 'u1'")
	assert.Equal(t, []any{"alicia"}, column(res, "name"))
}

func TestSelectFilters(t *testing.T) {
	e := setupExecutor(t)

	tests := []struct {
		name string
		sql  string
		want []any
	}{
		{"equality", "SELECT id FROM users WHERE city = 'berlin'", []any{"u1", "u3"}},
		{"and", "SELECT id FROM users WHERE city = 'berlin' AND age > 35", []any{"u3"}},
		{"or", "SELECT id FROM users WHERE age < 20 OR name = 'bob'", []any{"u2", "u4"}},
		{"nested", "SELECT id FROM users WHERE (age < 20 OR age > 40) AND name != 'dave'", []any{"u3"}},
		{"mirrored", "SELECT id FROM users WHERE 30 < age", []any{"u1", "u3"}},
		{"in", "SELECT id FROM users WHERE name IN ('bob', 'dave')", []any{"u2", "u4"}},
		{"not in", "SELECT id FROM users WHERE name NOT IN ('bob', 'dave')", []any{"u1", "u3"}},
		{"like", "SELECT id FROM users WHERE name LIKE 'CA%'", []any{"u3"}},
		{"is null", "SELECT id FROM users WHERE city IS NULL", []any{"u4"}},
		{"is not null", "SELECT id FROM users WHERE city IS NOT NULL", []any{"u1", "u2", "u3"}},
		{"negative", "SELECT id FROM users WHERE age > -1 AND age <= 19", []any{"u4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExec(t, e, tt.sql)
			assert.Equal(t, tt.want, column(res, "id"))
		})
	}
}

func TestSelectOrderAndLimit(t *testing.T) {
	e := setupExecutor(t)

	res := mustExec(t, e, "SELECT id, age FROM users ORDER BY age DESC LIMIT 2")
	assert.Equal(t, []any{"u3", "u1"}, column(res, "id"))

	res = mustExec(t, e, "SELECT id FROM users ORDER BY age LIMIT 1, 2")
	assert.Equal(t, []any{"u2", "u1"}, column(res, "id"))

	res = mustExec(t, e, "SELECT id FROM users ORDER BY age LIMIT 10, 2")
	assert.Empty(t, res.Rows)
	assert.Equal(t, "SELECT 0", res.Message)
}

func TestSelectAggregates(t *testing.T) {
	e := setupExecutor(t)

	res := mustExec(t, e, "SELECT city, COUNT(*) AS n, MAX(age) FROM users WHERE city IS NOT NULL GROUP BY city ORDER BY city")
	assert.Equal(t, []string{"city", "n", "max"}, res.Columns)
	assert.Equal(t, []any{"berlin", "paris"}, column(res, "city"))
	assert.Equal(t, []any{int64(2), int64(1)}, column(res, "n"))
	assert.Equal(t, []any{int64(42), int64(25)}, column(res, "max"))

	res = mustExec(t, e, "SELECT COUNT(*) FROM users WHERE age > 100")
	assert.Equal(t, []any{int64(0)}, column(res, "count"))

	_, err := e.Execute("SELECT city FROM users GROUP BY city HAVING COUNT(*) > 1")
	assert.ErrorIs(t, err, query.ErrUnsupported)
}

func TestUpdateAndDelete(t *testing.T) {
	e := setupExecutor(t)

	res := mustExec(t, e, "UPDATE users SET city = 'rome' WHERE city = 'berlin'")
	assert.Equal(t, "UPDATE 2", res.Message)
	assert.Equal(t, 2, res.RowsAffected)

	res = mustExec(t, e, "SELECT id FROM users WHERE city = 'rome'")
	assert.Equal(t, []any{"u1", "u3"}, column(res, "id"))

	_, err := e.Execute("UPDATE users SET email = 'x' WHERE id = 'u1'")
	assert.Error(t, err)

	res = mustExec(t, e, "DELETE FROM users WHERE age < 30")
	assert.Equal(t, "DELETE 2", res.Message)

	res = mustExec(t, e, "DELETE FROM users")
	assert.Equal(t, 2, res.RowsAffected)

	res = mustExec(t, e, "SELECT * FROM users")
	assert.Empty(t, res.Rows)
}

func TestDropTable(t *testing.T) {
	e := setupExecutor(t)

	assert.Equal(t, "DROP TABLE", mustExec(t, e, "DROP TABLE users").Message)
	_, err := e.Execute("SELECT * FROM users")
	assert.Error(t, err)
	_, err = e.Execute("DROP TABLE users")
	assert.Error(t, err)
	mustExec(t, e, "DROP TABLE IF EXISTS users")
}

func TestSessionStatements(t *testing.T) {
	e := NewExecutor(memdb.New())

	for sql, tag := range map[string]string{
		"SET NAMES utf8": "SET",
		"BEGIN":          "BEGIN",
		"COMMIT":         "COMMIT",
		"ROLLBACK":       "ROLLBACK",
		"":               "",
	} {
		assert.Equal(t, tag, mustExec(t, e, sql).Message, sql)
	}

	res := mustExec(t, e, "SELECT 1, 'a' AS letter, version()")
	assert.Equal(t, []string{"1", "letter", "version"}, res.Columns)
	assert.Equal(t, [][]any{{int64(1), "a", Version}}, res.Rows)

	_, err := e.Execute("SELEC nonsense")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := setupExecutor(t, WithSnapshotDir(dir))
	mustExec(t, e, "CREATE TABLE scratch (id TEXT PRIMARY KEY)")
	mustExec(t, e, "DROP TABLE scratch")

	restored := NewExecutor(memdb.New())
	require.NoError(t, restored.Load(dir))
	assert.Equal(t, []string{"users"}, restored.Catalog().Names())

	res := mustExec(t, restored, "SELECT * FROM users ORDER BY id")
	assert.Equal(t, []string{"id", "name", "city", "age"}, res.Columns)
	assert.Len(t, res.Rows, 4)

	res = mustExec(t, restored, "SELECT id FROM users WHERE age = 31")
	assert.Equal(t, []any{"u1"}, column(res, "id"))

	_, err := restored.Execute("SELECT * FROM scratch")
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		sql     string
		dialect sqlgen.Dialect
		want    string
	}{
		{
			"SELECT name, age FROM users WHERE age >= 18 ORDER BY name LIMIT 10, 5",
			sqlgen.Postgres,
			`SELECT "name", "age" FROM "users" WHERE ("age" >= 18) ORDER BY "name" ASC LIMIT 5 OFFSET 10`,
		},
		{
			"UPDATE users SET city = 'rome' WHERE id = 'u1'",
			sqlgen.MySQL,
			"UPDATE `users` SET `city`='rome' WHERE (`id` = 'u1')",
		},
		{
			"DELETE FROM users WHERE city IS NULL",
			sqlgen.CQL,
			"DELETE FROM users WHERE (city IS NULL)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			q, err := Translate(tt.sql)
			require.NoError(t, err)
			got, err := sqlgen.New(tt.dialect).Compile(q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Translate("CREATE TABLE t (id TEXT)")
	assert.ErrorIs(t, err, query.ErrUnsupported)

	_, err = Translate("SELECT * FROM users WHERE name = NULL")
	assert.ErrorIs(t, err, query.ErrInvalidValue)
}
