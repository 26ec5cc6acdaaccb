package query

import (
	"reflect"
	"strings"
)

// Operator is a comparison operator of a Condition.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpNotEqualAlt    Operator = "<>"
	OpIs             Operator = "IS"
	OpIsNot          Operator = "IS NOT"
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpIn             Operator = "IN"
	OpNotIn          Operator = "NOT IN"
	OpLike           Operator = "LIKE"
	OpNotLike        Operator = "NOT LIKE"
)

// Normalize upper-cases the operator and collapses inner whitespace, so
// "not  in" and "NOT IN" compare equal.
func (o Operator) Normalize() Operator {
	return Operator(strings.Join(strings.Fields(strings.ToUpper(string(o))), " "))
}

// IsSet reports whether the operator takes a list value.
func (o Operator) IsSet() bool {
	n := o.Normalize()
	return n == OpIn || n == OpNotIn
}

// Sequence returns the elements of v when v is a slice or array. Byte
// slices are treated as scalars.
func Sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
