package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/stretchr/testify/assert"
)

func TestColumnType(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   uint32
	}{
		{"ints", []any{int64(1), nil, json.Number("3")}, oidInt8},
		{"mixed numbers", []any{int64(1), 2.5}, oidFloat8},
		{"bools", []any{true, false}, oidBool},
		{"strings", []any{"a", nil}, oidText},
		{"mixed kinds", []any{int64(1), "a"}, oidText},
		{"all null", []any{nil, nil}, oidText},
		{"empty", nil, oidText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([][]any, len(tt.values))
			for i, v := range tt.values {
				rows[i] = []any{v}
			}
			assert.Equal(t, tt.want, columnType(rows, 0))
		})
	}
}

func TestEncodeText(t *testing.T) {
	assert.Nil(t, encodeText(nil))
	assert.Equal(t, "abc", string(encodeText("abc")))
	assert.Equal(t, "t", string(encodeText(true)))
	assert.Equal(t, "f", string(encodeText(false)))
	assert.Equal(t, "42", string(encodeText(int64(42))))
	assert.Equal(t, "0.25", string(encodeText(0.25)))
	assert.Equal(t, "7", string(encodeText(json.Number("7"))))
	assert.Equal(t, `{"a":1}`, string(encodeText(map[string]any{"a": 1})))
}

func TestSQLState(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", executor.ErrSyntax), "42601"},
		{fmt.Errorf("%w: x", executor.ErrUndefinedTable), "42P01"},
		{fmt.Errorf("%w: x", executor.ErrDuplicateTable), "42P07"},
		{fmt.Errorf("%w: x", executor.ErrUndefinedColumn), "42703"},
		{fmt.Errorf("%w: x", executor.ErrUniqueViolation), "23505"},
		{fmt.Errorf("%w: x", executor.ErrNotNullViolation), "23502"},
		{fmt.Errorf("%w: x", query.ErrUnsupported), "0A000"},
		{fmt.Errorf("%w: x", query.ErrInvalidValue), "22023"},
		{errors.New("boom"), "XX000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, sqlState(tt.err))
		})
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"SELECT 1", []string{"SELECT 1"}},
		{"SELECT 1; SELECT 2;", []string{"SELECT 1", "SELECT 2"}},
		{"INSERT INTO t (a) VALUES ('x;y'); SELECT 1", []string{"INSERT INTO t (a) VALUES ('x;y')", "SELECT 1"}},
		{`SELECT "a;b" FROM t`, []string{`SELECT "a;b" FROM t`}},
		{" ; ;", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.in))
		})
	}
}

func TestCommandOf(t *testing.T) {
	assert.Equal(t, "SELECT", commandOf("  select * from t"))
	assert.Equal(t, "", commandOf("   "))
}
