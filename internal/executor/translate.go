package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/query"
	"github.com/xwb1989/sqlparser"
)

// dualTable is what the parser puts in FROM for a table-less SELECT.
const dualTable = "dual"

// Parse parses one SQL statement. A trailing semicolon is ignored.
func Parse(sql string) (sqlparser.Statement, error) {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return stmt, nil
}

// Translate parses a SELECT, UPDATE or DELETE statement into a query.
func Translate(sql string) (query.Query, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	switch s := stmt.(type) {
	case *sqlparser.Select:
		q, limit, err := translateSelect(s)
		if err != nil {
			return nil, err
		}
		if err := query.Paginate(limit)(q); err != nil {
			return nil, err
		}
		return q, nil
	case *sqlparser.Update:
		return translateUpdate(s)
	case *sqlparser.Delete:
		return translateDelete(s)
	default:
		return nil, fmt.Errorf("%w: statement type %T", query.ErrUnsupported, stmt)
	}
}

// translateSelect builds the query without its limit, which is returned
// separately so callers can page after sorting.
func translateSelect(s *sqlparser.Select) (*query.Select, *query.Limit, error) {
	if s.Distinct != "" {
		return nil, nil, fmt.Errorf("%w: SELECT DISTINCT", query.ErrUnsupported)
	}
	if s.Having != nil {
		return nil, nil, fmt.Errorf("%w: HAVING", query.ErrUnsupported)
	}
	if len(s.From) != 1 {
		return nil, nil, fmt.Errorf("only single table SELECT supported")
	}
	tableName, err := getTableName(s.From[0])
	if err != nil {
		return nil, nil, err
	}

	fields, err := projections(s.SelectExprs)
	if err != nil {
		return nil, nil, err
	}
	opts := []query.Option{query.From(tableName), query.Fields(fields...)}

	if s.Where != nil {
		g, err := filter(s.Where.Expr)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, query.Where(g))
	}

	groupBy := make([]string, 0, len(s.GroupBy))
	for _, expr := range s.GroupBy {
		col, ok := expr.(*sqlparser.ColName)
		if !ok {
			return nil, nil, fmt.Errorf("%w: GROUP BY %s", query.ErrUnsupported, sqlparser.String(expr))
		}
		groupBy = append(groupBy, col.Name.String())
	}
	if len(groupBy) > 0 {
		opts = append(opts, query.GroupBy(groupBy...))
	}

	order, err := ordering(s.OrderBy)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, query.OrderBy(order))

	limit, err := pagination(s.Limit)
	if err != nil {
		return nil, nil, err
	}

	q, err := query.NewSelect(opts...)
	if err != nil {
		return nil, nil, err
	}
	return q, limit, nil
}

func translateUpdate(s *sqlparser.Update) (*query.Update, error) {
	if len(s.TableExprs) != 1 {
		return nil, fmt.Errorf("only single table UPDATE supported")
	}
	tableName, err := getTableName(s.TableExprs[0])
	if err != nil {
		return nil, err
	}

	opts := []query.Option{query.From(tableName)}
	for _, expr := range s.Exprs {
		v, err := literal(expr.Expr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, query.Set(expr.Name.Name.String(), v))
	}
	tail, err := writeClauses(s.Where, s.OrderBy, s.Limit)
	if err != nil {
		return nil, err
	}
	return query.NewUpdate(append(opts, tail...)...)
}

func translateDelete(s *sqlparser.Delete) (*query.Delete, error) {
	if len(s.TableExprs) != 1 {
		return nil, fmt.Errorf("only single table DELETE supported")
	}
	tableName, err := getTableName(s.TableExprs[0])
	if err != nil {
		return nil, err
	}
	tail, err := writeClauses(s.Where, s.OrderBy, s.Limit)
	if err != nil {
		return nil, err
	}
	return query.NewDelete(append([]query.Option{query.From(tableName)}, tail...)...)
}

func writeClauses(where *sqlparser.Where, orderBy sqlparser.OrderBy, limit *sqlparser.Limit) ([]query.Option, error) {
	var opts []query.Option
	if where != nil {
		g, err := filter(where.Expr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, query.Where(g))
	}
	order, err := ordering(orderBy)
	if err != nil {
		return nil, err
	}
	l, err := pagination(limit)
	if err != nil {
		return nil, err
	}
	return append(opts, query.OrderBy(order), query.Paginate(l)), nil
}

func getTableName(expr sqlparser.TableExpr) (string, error) {
	switch t := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		if tbl, ok := t.Expr.(sqlparser.TableName); ok {
			return tbl.Name.String(), nil
		}
	}
	return "", fmt.Errorf("could not determine table name")
}

// projections maps the select list. A lone * yields no projections.
func projections(exprs sqlparser.SelectExprs) ([]query.Projection, error) {
	var fields []query.Projection
	for _, expr := range exprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			if len(exprs) > 1 {
				return nil, fmt.Errorf("%w: * mixed with other columns", query.ErrUnsupported)
			}
			return nil, nil
		case *sqlparser.AliasedExpr:
			p, err := projection(e.Expr)
			if err != nil {
				return nil, err
			}
			if !e.As.IsEmpty() {
				p = p.As(e.As.String())
			}
			fields = append(fields, p)
		default:
			return nil, fmt.Errorf("%w: select expression %s", query.ErrUnsupported, sqlparser.String(expr))
		}
	}
	return fields, nil
}

func projection(expr sqlparser.Expr) (query.Projection, error) {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		return query.Field(e.Name.String()), nil
	case *sqlparser.FuncExpr:
		if e.Distinct {
			return query.Projection{}, fmt.Errorf("%w: DISTINCT aggregate", query.ErrUnsupported)
		}
		name := e.Name.Lowered()
		if name == "count" && len(e.Exprs) == 1 {
			if _, ok := e.Exprs[0].(*sqlparser.StarExpr); ok {
				return query.Count(), nil
			}
		}
		key, err := aggregateArg(e)
		if err != nil {
			return query.Projection{}, err
		}
		switch name {
		case "count":
			return query.CountOf(key).As(name), nil
		case "sum":
			return query.Sum(key).As(name), nil
		case "avg":
			return query.Avg(key).As(name), nil
		case "min":
			return query.Min(key).As(name), nil
		case "max":
			return query.Max(key).As(name), nil
		}
	}
	return query.Projection{}, fmt.Errorf("%w: select expression %s", query.ErrUnsupported, sqlparser.String(expr))
}

func aggregateArg(e *sqlparser.FuncExpr) (string, error) {
	if len(e.Exprs) == 1 {
		if a, ok := e.Exprs[0].(*sqlparser.AliasedExpr); ok {
			if col, ok := a.Expr.(*sqlparser.ColName); ok {
				return col.Name.String(), nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s takes one column", query.ErrUnsupported, e.Name.String())
}

// filter maps a WHERE expression to a filter group. Chains of AND or OR
// flatten into one group.
func filter(expr sqlparser.Expr) (*query.Group, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return filter(e.Expr)
	case *sqlparser.AndExpr:
		return junction(query.And, e.Left, e.Right)
	case *sqlparser.OrExpr:
		return junction(query.Or, e.Left, e.Right)
	}
	n, err := node(expr)
	if err != nil {
		return nil, err
	}
	return query.NewGroup(query.And, n)
}

func junction(conj query.Conjunction, exprs ...sqlparser.Expr) (*query.Group, error) {
	g, err := query.NewGroup(conj)
	if err != nil {
		return nil, err
	}
	for _, expr := range exprs {
		n, err := node(expr)
		if err != nil {
			return nil, err
		}
		if sub, ok := n.(*query.Group); ok && sub.Conjunction == conj {
			for _, child := range sub.Nodes() {
				if err := g.Add(child); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := g.Add(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func node(expr sqlparser.Expr) (query.Node, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return node(e.Expr)
	case *sqlparser.AndExpr:
		return junction(query.And, e.Left, e.Right)
	case *sqlparser.OrExpr:
		return junction(query.Or, e.Left, e.Right)
	case *sqlparser.ComparisonExpr:
		return comparison(e)
	case *sqlparser.IsExpr:
		col, ok := e.Expr.(*sqlparser.ColName)
		if !ok {
			break
		}
		switch e.Operator {
		case sqlparser.IsNullStr:
			return query.NewCondition(col.Name.String(), query.OpIs, nil), nil
		case sqlparser.IsNotNullStr:
			return query.NewCondition(col.Name.String(), query.OpIsNot, nil), nil
		case sqlparser.IsTrueStr:
			return query.Eq(col.Name.String(), true), nil
		case sqlparser.IsFalseStr:
			return query.Eq(col.Name.String(), false), nil
		}
	}
	return nil, fmt.Errorf("%w: condition %s", query.ErrUnsupported, sqlparser.String(expr))
}

var comparisonOps = map[string]query.Operator{
	sqlparser.EqualStr:        query.OpEqual,
	sqlparser.NotEqualStr:     query.OpNotEqual,
	sqlparser.LessThanStr:     query.OpLess,
	sqlparser.GreaterThanStr:  query.OpGreater,
	sqlparser.LessEqualStr:    query.OpLessOrEqual,
	sqlparser.GreaterEqualStr: query.OpGreaterOrEqual,
	sqlparser.InStr:           query.OpIn,
	sqlparser.NotInStr:        query.OpNotIn,
	sqlparser.LikeStr:         query.OpLike,
	sqlparser.NotLikeStr:      query.OpNotLike,
}

// mirrored turns "5 < age" into "age > 5".
var mirrored = map[query.Operator]query.Operator{
	query.OpEqual:          query.OpEqual,
	query.OpNotEqual:       query.OpNotEqual,
	query.OpLess:           query.OpGreater,
	query.OpGreater:        query.OpLess,
	query.OpLessOrEqual:    query.OpGreaterOrEqual,
	query.OpGreaterOrEqual: query.OpLessOrEqual,
}

func comparison(e *sqlparser.ComparisonExpr) (query.Node, error) {
	op, ok := comparisonOps[e.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: operator %s", query.ErrUnsupported, e.Operator)
	}

	left, right := e.Left, e.Right
	col, ok := left.(*sqlparser.ColName)
	if !ok {
		col, ok = right.(*sqlparser.ColName)
		flipped, canFlip := mirrored[op]
		if !ok || !canFlip {
			return nil, fmt.Errorf("%w: condition %s", query.ErrUnsupported, sqlparser.String(e))
		}
		op, right = flipped, left
	}

	value, err := literal(right)
	if err != nil {
		return nil, err
	}
	if value == nil && (op == query.OpEqual || op == query.OpNotEqual) {
		return nil, fmt.Errorf("%w: compare with NULL using IS NULL", query.ErrInvalidValue)
	}

	c := query.NewCondition(col.Name.String(), op, value)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func ordering(orderBy sqlparser.OrderBy) ([]query.Order, error) {
	order := make([]query.Order, 0, len(orderBy))
	for _, o := range orderBy {
		col, ok := o.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, fmt.Errorf("%w: ORDER BY %s", query.ErrUnsupported, sqlparser.String(o.Expr))
		}
		if o.Direction == sqlparser.DescScr {
			order = append(order, query.Desc(col.Name.String()))
		} else {
			order = append(order, query.Asc(col.Name.String()))
		}
	}
	return order, nil
}

func pagination(limit *sqlparser.Limit) (*query.Limit, error) {
	if limit == nil {
		return nil, nil
	}
	start := 0
	if limit.Offset != nil {
		n, err := count(limit.Offset)
		if err != nil {
			return nil, err
		}
		start = n
	}
	if limit.Rowcount == nil {
		return query.Unbounded(start), nil
	}
	length, err := count(limit.Rowcount)
	if err != nil {
		return nil, err
	}
	return query.NewLimit(start, length), nil
}

func count(expr sqlparser.Expr) (int, error) {
	v, err := literal(expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return 0, fmt.Errorf("%w: LIMIT takes non-negative integers, got %s", query.ErrInvalidValue, sqlparser.String(expr))
	}
	return int(n), nil
}

// literal evaluates a constant expression.
func literal(expr sqlparser.Expr) (any, error) {
	switch e := expr.(type) {
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.StrVal:
			return string(e.Val), nil
		case sqlparser.IntVal:
			if n, err := strconv.ParseInt(string(e.Val), 10, 64); err == nil {
				return n, nil
			}
			return strconv.ParseFloat(string(e.Val), 64)
		case sqlparser.FloatVal:
			return strconv.ParseFloat(string(e.Val), 64)
		case sqlparser.ValArg:
			return nil, fmt.Errorf("%w: bind parameter %s", query.ErrUnsupported, e.Val)
		default:
			return string(e.Val), nil
		}
	case *sqlparser.NullVal:
		return nil, nil
	case sqlparser.BoolVal:
		return bool(e), nil
	case sqlparser.ValTuple:
		values := make([]any, len(e))
		for i, el := range e {
			v, err := literal(el)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	case *sqlparser.ParenExpr:
		return literal(e.Expr)
	case *sqlparser.UnaryExpr:
		if e.Operator != sqlparser.UMinusStr {
			break
		}
		v, err := literal(e.Expr)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
	case *sqlparser.FuncExpr:
		switch e.Name.Lowered() {
		case "gen_random_uuid", "gen_random_uuid7", "uuid":
			return smartermodel.NewID(), nil
		case "now", "current_timestamp":
			return time.Now().UTC().Format(time.RFC3339Nano), nil
		case "version":
			return Version, nil
		}
	}
	return nil, fmt.Errorf("%w: expression %s", query.ErrUnsupported, sqlparser.String(expr))
}
