package sqlgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"

	"github.com/adrianmcphee/smartermodel/query"
)

func mustSelect(t *testing.T, opts ...query.Option) *query.Select {
	t.Helper()
	q, err := query.NewSelect(append([]query.Option{query.From("test")}, opts...)...)
	require.NoError(t, err)
	return q
}

func compileMySQL(t *testing.T, q query.Query) string {
	t.Helper()
	s, err := Compile(q, nil)
	require.NoError(t, err)
	return s
}

func TestCompile_Select(t *testing.T) {
	tests := []struct {
		name string
		opts []query.Option
		want string
	}{
		{
			name: "bare",
			want: "SELECT * FROM `test`",
		},
		{
			name: "string equality",
			opts: []query.Option{query.Where([][]any{{"text", "value"}})},
			want: "SELECT * FROM `test` WHERE (`text` = 'value')",
		},
		{
			name: "int equality",
			opts: []query.Option{query.Where([][]any{{"number", 1}})},
			want: "SELECT * FROM `test` WHERE (`number` = 1)",
		},
		{
			name: "float equality",
			opts: []query.Option{query.Where([][]any{{"number", 1.5}})},
			want: "SELECT * FROM `test` WHERE (`number` = 1.5)",
		},
		{
			name: "not equal",
			opts: []query.Option{query.Where([][]any{{"text", "!=", "value"}})},
			want: "SELECT * FROM `test` WHERE (`text` != 'value')",
		},
		{
			name: "null equality",
			opts: []query.Option{query.Where([][]any{{"text", nil}})},
			want: "SELECT * FROM `test` WHERE (`text` IS NULL)",
		},
		{
			name: "null inequality",
			opts: []query.Option{query.Where([][]any{{"text", "!=", nil}})},
			want: "SELECT * FROM `test` WHERE (`text` IS NOT NULL)",
		},
		{
			name: "nested in list",
			opts: []query.Option{query.Where([][]any{{"number", "IN", []any{1.5, 5, "a", []string{"b", "c", "d"}}}})},
			want: "SELECT * FROM `test` WHERE (`number` IN (1.5, 5, 'a', ('b', 'c', 'd')))",
		},
		{
			name: "map shorthand",
			opts: []query.Option{query.Where(map[string]any{"number": 1, "text": "value"})},
			want: "SELECT * FROM `test` WHERE (`number` = 1 AND `text` = 'value')",
		},
		{
			name: "mixed triples",
			opts: []query.Option{query.Where([][]any{{"number", 0.5}, {"number", "<", 1}, {"text", "value"}})},
			want: "SELECT * FROM `test` WHERE (`number` = 0.5 AND `number` < 1 AND `text` = 'value')",
		},
		{
			name: "single field",
			opts: []query.Option{query.Columns("text")},
			want: "SELECT `text` FROM `test`",
		},
		{
			name: "multiple fields",
			opts: []query.Option{query.Columns("text", "number")},
			want: "SELECT `text`, `number` FROM `test`",
		},
		{
			name: "order",
			opts: []query.Option{query.OrderBy([]string{"number", "ASC", "text", "DESC"})},
			want: "SELECT * FROM `test` ORDER BY `number` ASC, `text` DESC",
		},
		{
			name: "count field",
			opts: []query.Option{query.Fields(query.CountOf("number"))},
			want: "SELECT COUNT(`number`) FROM `test`",
		},
		{
			name: "count star",
			opts: []query.Option{query.Fields(query.Count())},
			want: "SELECT COUNT(*) FROM `test`",
		},
		{
			name: "sum",
			opts: []query.Option{query.Fields(query.Projection{Key: "number", Function: query.AggSum})},
			want: "SELECT SUM(`number`) FROM `test`",
		},
		{
			name: "sum alias",
			opts: []query.Option{query.Fields(query.Sum("number").As("sum"))},
			want: "SELECT SUM(`number`) AS `sum` FROM `test`",
		},
		{
			name: "average",
			opts: []query.Option{query.Fields(query.Avg("number"))},
			want: "SELECT AVG(`number`) FROM `test`",
		},
		{
			name: "min max",
			opts: []query.Option{query.Fields(query.Min("number"), query.Max("number").As("top"))},
			want: "SELECT MIN(`number`) AS `number`, MAX(`number`) AS `top` FROM `test`",
		},
		{
			name: "raw field",
			opts: []query.Option{query.Fields(query.RawField("NOW()"))},
			want: "SELECT NOW() FROM `test`",
		},
		{
			name: "limit length",
			opts: []query.Option{query.Paginate(100)},
			want: "SELECT * FROM `test` LIMIT 0, 100",
		},
		{
			name: "limit pair",
			opts: []query.Option{query.Paginate([]int{5, 100})},
			want: "SELECT * FROM `test` LIMIT 5, 100",
		},
		{
			name: "limit value",
			opts: []query.Option{query.Paginate(query.NewLimit(5, 100))},
			want: "SELECT * FROM `test` LIMIT 5, 100",
		},
		{
			name: "limit offset only",
			opts: []query.Option{query.Paginate(query.Unbounded(5))},
			want: "SELECT * FROM `test` LIMIT 5, 18446744073709551615",
		},
		{
			name: "group",
			opts: []query.Option{query.GroupBy("number", "text")},
			want: "SELECT * FROM `test` GROUP BY `number`, `text`",
		},
		{
			name: "clause order",
			opts: []query.Option{
				query.Paginate(10),
				query.OrderBy(query.Desc("number")),
				query.GroupBy("number"),
				query.Where(map[string]any{"text": "value"}),
				query.Fields(query.Field("number"), query.Count()),
			},
			want: "SELECT `number`, COUNT(*) FROM `test` WHERE (`text` = 'value') GROUP BY `number` ORDER BY `number` DESC LIMIT 0, 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compileMySQL(t, mustSelect(t, tt.opts...)))
		})
	}
}

func TestCompile_OrGroup(t *testing.T) {
	or, err := query.NewGroup(query.Or,
		query.NewCondition("number", query.OpGreater, 1),
		query.NewCondition("number", query.OpLess, 0),
	)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM `test` WHERE (`number` > 1 OR `number` < 0)",
		compileMySQL(t, mustSelect(t, query.Where(or))),
	)
}

func TestCompile_NestedGroup(t *testing.T) {
	or, err := query.NewGroup(query.Or, query.Eq("a", 1), query.Eq("b", 2))
	require.NoError(t, err)
	root, err := query.NewGroup(query.And, query.Eq("c", "x"), or)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM `test` WHERE (`c` = 'x' AND (`a` = 1 OR `b` = 2))",
		compileMySQL(t, mustSelect(t, query.Where(root))),
	)
}

func TestCompile_Delete(t *testing.T) {
	q, err := query.NewDelete(query.From("test"))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `test`", compileMySQL(t, q))

	q, err = query.NewDelete(query.From("test"), query.Paginate(100))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `test` LIMIT 100", compileMySQL(t, q))

	q, err = query.NewDelete(query.From("test"), query.Paginate([]int{5, 100}), query.Where(map[string]any{"number": 2}))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `test` WHERE (`number` = 2) LIMIT 100", compileMySQL(t, q))
}

func TestCompile_Update(t *testing.T) {
	q, err := query.NewUpdate(query.From("test"), query.Set("text", "value"))
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `test` SET `text`='value'", compileMySQL(t, q))

	q, err = query.NewUpdate(
		query.From("test"),
		query.Set("text", "it's"),
		query.Set("number", 3),
		query.Where(map[string]any{"id": "a"}),
		query.Paginate(1),
	)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `test` SET `text`='it\\'s', `number`=3 WHERE (`id` = 'a') LIMIT 1", compileMySQL(t, q))

	q, err = query.NewUpdate(query.From("test"))
	require.NoError(t, err)
	_, err = Compile(q, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestCompile_CustomEscape(t *testing.T) {
	escape := func(s string) string { return "<" + s + ">" }
	s, err := Compile(mustSelect(t, query.Where(map[string]any{"text": "v"})), escape)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `test` WHERE (`text` = '<v>')", s)
}

func TestCompile_MissingModel(t *testing.T) {
	q, err := query.NewSelect()
	require.NoError(t, err)
	_, err = Compile(q, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestCompile_UnsupportedElements(t *testing.T) {
	q := mustSelect(t, query.Fields(query.Projection{Key: "a", Function: query.Aggregate(42)}))
	_, err := Compile(q, nil)
	assert.ErrorIs(t, err, query.ErrUnsupported)

	_, err = query.NewSelect(query.From("test"), query.OrderBy(query.Order{Field: "a", Direction: query.Direction(7)}))
	assert.ErrorIs(t, err, query.ErrUnsupported, "rejected before compiling")

	_, err = query.NewSelect(query.From("test"), query.Where(&query.Group{Conjunction: query.Conjunction(9)}))
	assert.ErrorIs(t, err, query.ErrUnsupported, "rejected before compiling")
}

func TestDialects(t *testing.T) {
	q := mustSelect(t,
		query.Where(map[string]any{"text": "it's"}),
		query.OrderBy(query.Asc("number")),
		query.Paginate([]int{5, 10}),
	)

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{MySQL, "SELECT * FROM `test` WHERE (`text` = 'it\\'s') ORDER BY `number` ASC LIMIT 5, 10"},
		{SQLite, "SELECT * FROM `test` WHERE (`text` = 'it''s') ORDER BY `number` ASC LIMIT 5, 10"},
		{Postgres, `SELECT * FROM "test" WHERE ("text" = 'it''s') ORDER BY "number" ASC LIMIT 10 OFFSET 5`},
		{CQL, "SELECT * FROM test WHERE (text = 'it''s') ORDER BY number ASC LIMIT 10"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			s, err := New(tt.dialect).Compile(q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name)

	_, err = DialectByName("oracle")
	assert.Error(t, err)
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		dialect Dialect
		name    string
		want    string
	}{
		{MySQL, "plain", "`plain`"},
		{MySQL, "we`ird", "`we``ird`"},
		{SQLite, "a`", "`a```"},
		{Postgres, `say "hi"`, `"say ""hi"""`},
		{CQL, "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.dialect).Identifier(tt.name))
		})
	}

	q := mustSelect(t, query.Where(map[string]any{"x` OR 1=1 -- ": 1}))
	assert.Equal(t, "SELECT * FROM `test` WHERE (`x`` OR 1=1 -- ` = 1)", compileMySQL(t, q))
}

func TestLiteral(t *testing.T) {
	c := New(MySQL)
	type score int
	n := 4

	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{true, "1"},
		{false, "0"},
		{int64(-3), "-3"},
		{uint8(7), "7"},
		{score(9), "9"},
		{float32(0.25), "0.25"},
		{&n, "4"},
		{(*int)(nil), "NULL"},
		{[]byte("b"), "'b'"},
		{time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), "'2024-05-06 07:08:09'"},
		{[]int{1, 2}, "(1, 2)"},
		{`a\b`, `'a\\b'`},
	}

	for _, tt := range tests {
		got, err := c.Literal(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}

	_, err := c.Literal(map[string]int{"a": 1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestCompile_OutputParsesAsMySQL(t *testing.T) {
	update, err := query.NewUpdate(query.From("test"), query.Set("text", "v"), query.Where(map[string]any{"number": 1}), query.Paginate(5))
	require.NoError(t, err)
	del, err := query.NewDelete(query.From("test"), query.Where([][]any{{"text", "LIKE", "a%"}}), query.Paginate(5))
	require.NoError(t, err)

	queries := []query.Query{
		mustSelect(t,
			query.Fields(query.Field("number"), query.Count().As("n")),
			query.Where([][]any{{"number", ">=", 2}, {"text", "NOT IN", []string{"x", "y"}}}),
			query.GroupBy("number"),
			query.OrderBy(query.Desc("number")),
			query.Paginate([]int{1, 2}),
		),
		update,
		del,
	}

	for _, q := range queries {
		s := compileMySQL(t, q)
		_, err := sqlparser.Parse(s)
		assert.NoError(t, err, s)
	}
}
