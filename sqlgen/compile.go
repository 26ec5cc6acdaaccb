// Package sqlgen renders query ASTs as SQL text.
//
// Values are interpolated as escaped literals rather than bound as
// parameters, so the output can be logged and replayed verbatim. The escape
// function of the Dialect is the only defence against injection and must
// match the target server.
package sqlgen

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/adrianmcphee/smartermodel/query"
)

// ErrInvalidQuery is returned for queries that cannot be rendered.
var ErrInvalidQuery = errors.New("invalid query")

// unboundedLength stands in for a missing length when only an offset is
// given to a LIMIT start, length clause.
const unboundedLength = "18446744073709551615"

// Compiler renders queries in one dialect.
type Compiler struct {
	Dialect Dialect
}

// New returns a compiler for d.
func New(d Dialect) *Compiler {
	if d.Escape == nil {
		d.Escape = AddSlashes
	}
	return &Compiler{Dialect: d}
}

// Compile renders q with MySQL quoting and the given escape function.
// A nil escape function falls back to AddSlashes.
func Compile(q query.Query, escape func(string) string) (string, error) {
	d := MySQL
	if escape != nil {
		d.Escape = escape
	}
	return New(d).Compile(q)
}

// Compile renders q.
func (c *Compiler) Compile(q query.Query) (string, error) {
	if q == nil {
		return "", fmt.Errorf("%w: nil query", ErrInvalidQuery)
	}
	if q.Model() == "" {
		return "", fmt.Errorf("%w: query has no model", ErrInvalidQuery)
	}

	var b strings.Builder
	table := c.Identifier(q.Model())

	switch q := q.(type) {
	case *query.Select:
		b.WriteString("SELECT ")
		if len(q.Fields()) == 0 {
			b.WriteString("*")
		} else {
			fields, err := c.projections(q.Fields())
			if err != nil {
				return "", err
			}
			b.WriteString(fields)
		}
		b.WriteString(" FROM ")
		b.WriteString(table)
	case *query.Update:
		if len(q.Assignments()) == 0 {
			return "", fmt.Errorf("%w: update without assignments", ErrInvalidQuery)
		}
		b.WriteString("UPDATE ")
		b.WriteString(table)
		b.WriteString(" SET ")
		set, err := c.assignments(q.Assignments())
		if err != nil {
			return "", err
		}
		b.WriteString(set)
	case *query.Delete:
		b.WriteString("DELETE FROM ")
		b.WriteString(table)
	default:
		return "", fmt.Errorf("%w: unsupported query type %T", ErrInvalidQuery, q)
	}

	if where := q.Where(); where.Len() > 0 {
		w, err := c.Where(where)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE ")
		b.WriteString(w)
	}

	if s, ok := q.(*query.Select); ok && len(s.GroupBy()) > 0 {
		keys := make([]string, len(s.GroupBy()))
		for i, g := range s.GroupBy() {
			keys[i] = c.Identifier(g.Key)
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(keys, ", "))
	}

	if len(q.Order()) > 0 {
		order, err := c.order(q.Order())
		if err != nil {
			return "", err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	_, isSelect := q.(*query.Select)
	b.WriteString(c.limit(q.Limit(), isSelect))

	return b.String(), nil
}

// Identifier quotes a table or column name. Quote characters inside the
// name are doubled.
func (c *Compiler) Identifier(name string) string {
	q := c.Dialect.IdentQuote
	if q == "" {
		return name
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Where renders a filter group including its parentheses.
func (c *Compiler) Where(g *query.Group) (string, error) {
	var sep string
	switch g.Conjunction {
	case query.And:
		sep = " AND "
	case query.Or:
		sep = " OR "
	default:
		return "", fmt.Errorf("%w: conjunction %v", query.ErrUnsupported, g.Conjunction)
	}
	if g.Len() == 0 {
		if g.Conjunction == query.Or {
			return "(1 = 0)", nil
		}
		return "(1 = 1)", nil
	}

	parts := make([]string, 0, g.Len())
	for _, n := range g.All() {
		var (
			s   string
			err error
		)
		switch n := n.(type) {
		case *query.Condition:
			s, err = c.condition(n)
		case *query.Group:
			s, err = c.Where(n)
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *Compiler) condition(cond *query.Condition) (string, error) {
	op := cond.Operator.Normalize()
	if op == "" {
		op = query.OpEqual
	}
	if cond.Value == nil && !cond.RawValue {
		switch op {
		case query.OpEqual:
			op = query.OpIs
		case query.OpNotEqual, query.OpNotEqualAlt:
			op = query.OpIsNot
		}
	}

	field := cond.Field
	if !cond.RawField {
		field = c.Identifier(field)
	}

	var value string
	if cond.RawValue {
		value = fmt.Sprint(cond.Value)
	} else {
		v, err := c.Literal(cond.Value)
		if err != nil {
			return "", err
		}
		value = v
	}
	return field + " " + string(op) + " " + value, nil
}

func (c *Compiler) projections(fields []query.Projection) (string, error) {
	parts := make([]string, len(fields))
	for i, p := range fields {
		if p.Raw {
			parts[i] = p.Key
			continue
		}
		key := p.Key
		if key != "*" {
			key = c.Identifier(key)
		}
		var s string
		switch p.Function {
		case query.AggNone:
			s = key
		case query.AggCount:
			s = "COUNT(" + key + ")"
		case query.AggSum:
			s = "SUM(" + key + ")"
		case query.AggAverage:
			s = "AVG(" + key + ")"
		case query.AggMin:
			s = "MIN(" + key + ")"
		case query.AggMax:
			s = "MAX(" + key + ")"
		default:
			return "", fmt.Errorf("%w: aggregate %v", query.ErrUnsupported, p.Function)
		}
		if p.Alias != "" {
			s += " AS " + c.Identifier(p.Alias)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (c *Compiler) assignments(set []query.Assignment) (string, error) {
	parts := make([]string, len(set))
	for i, a := range set {
		v, err := c.Literal(a.Value)
		if err != nil {
			return "", err
		}
		parts[i] = c.Identifier(a.Key) + "=" + v
	}
	return strings.Join(parts, ", "), nil
}

func (c *Compiler) order(order []query.Order) (string, error) {
	parts := make([]string, len(order))
	for i, o := range order {
		var dir string
		switch o.Direction {
		case query.Ascending:
			dir = "ASC"
		case query.Descending:
			dir = "DESC"
		default:
			return "", fmt.Errorf("%w: direction %v", query.ErrUnsupported, o.Direction)
		}
		field := o.Field
		if !o.Raw {
			field = c.Identifier(field)
		}
		parts[i] = field + " " + dir
	}
	return strings.Join(parts, ", "), nil
}

func (c *Compiler) limit(l *query.Limit, isSelect bool) string {
	if l == nil {
		return ""
	}
	if !isSelect || c.Dialect.Limit == LimitLengthOnly {
		if !l.Bounded() {
			return ""
		}
		return " LIMIT " + strconv.Itoa(*l.Length)
	}

	switch c.Dialect.Limit {
	case LimitOffset:
		var s string
		if l.Bounded() {
			s = " LIMIT " + strconv.Itoa(*l.Length)
		}
		if l.Start > 0 {
			s += " OFFSET " + strconv.Itoa(l.Start)
		}
		return s
	default:
		if !l.Bounded() {
			if l.Start == 0 {
				return ""
			}
			return " LIMIT " + strconv.Itoa(l.Start) + ", " + unboundedLength
		}
		return " LIMIT " + strconv.Itoa(l.Start) + ", " + strconv.Itoa(*l.Length)
	}
}

// Literal renders a value. Numbers are unquoted, nil is NULL, slices and
// arrays become parenthesised lists and everything else is escaped and
// quoted.
func (c *Compiler) Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case string:
		return c.quote(x), nil
	case []byte:
		return c.quote(string(x)), nil
	case time.Time:
		return c.quote(x.Format(time.DateTime)), nil
	}

	if seq, ok := query.Sequence(v); ok {
		parts := make([]string, len(seq))
		for i, el := range seq {
			s, err := c.Literal(el)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return c.Literal(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Struct:
		if s, ok := v.(fmt.Stringer); ok {
			return c.quote(s.String()), nil
		}
		return "", fmt.Errorf("%w: cannot render value of type %T", ErrInvalidQuery, v)
	}
	return c.quote(fmt.Sprint(v)), nil
}

func (c *Compiler) quote(s string) string {
	return c.Dialect.StringQuote + c.Dialect.Escape(s) + c.Dialect.StringQuote
}
