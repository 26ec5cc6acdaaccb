package memdb

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/adrianmcphee/smartermodel/query"
)

// Evaluate reports whether row satisfies the filter group. An AND group
// stops at the first miss, an OR group at the first match; an empty AND
// group matches everything and an empty OR group nothing.
func Evaluate(row query.Row, g *query.Group) (bool, error) {
	if g == nil {
		return true, nil
	}
	if g.Conjunction != query.And && g.Conjunction != query.Or {
		return false, fmt.Errorf("%w: conjunction %v", query.ErrUnsupported, g.Conjunction)
	}

	for _, n := range g.All() {
		var (
			matches bool
			err     error
		)
		switch n := n.(type) {
		case *query.Group:
			matches, err = Evaluate(row, n)
			if err != nil {
				return false, err
			}
		case *query.Condition:
			matches = MatchCondition(row, n)
		}
		if g.Conjunction == query.And && !matches {
			return false, nil
		}
		if g.Conjunction == query.Or && matches {
			return true, nil
		}
	}
	return g.Conjunction == query.And, nil
}

// MatchCondition evaluates one condition. A missing field reads as nil and
// unknown operators never match.
func MatchCondition(row query.Row, c *query.Condition) bool {
	data := row[c.Field]

	switch c.Operator.Normalize() {
	case query.OpEqual, query.OpIs, "":
		return Equal(data, c.Value)
	case query.OpNotEqual, query.OpNotEqualAlt, query.OpIsNot:
		return !Equal(data, c.Value)
	case query.OpGreater:
		return Compare(data, c.Value) > 0
	case query.OpGreaterOrEqual:
		return Compare(data, c.Value) >= 0
	case query.OpLess:
		return Compare(data, c.Value) < 0
	case query.OpLessOrEqual:
		return Compare(data, c.Value) <= 0
	case query.OpLike:
		return Like(fmt.Sprint(c.Value), data)
	case query.OpNotLike:
		return !Like(fmt.Sprint(c.Value), data)
	case query.OpIn:
		return contains(c.Value, data)
	case query.OpNotIn:
		return !contains(c.Value, data)
	default:
		return false
	}
}

func contains(list, v any) bool {
	values, ok := query.Sequence(list)
	if !ok {
		return false
	}
	for _, el := range values {
		if Equal(el, v) {
			return true
		}
	}
	return false
}

var likeCache sync.Map // pattern -> *regexp.Regexp

// Like matches value against an SQL LIKE pattern, ignoring case and letting
// wildcards span newlines. % matches any sequence and _ any single
// character; \% and \_ match the literal characters. A nil value never
// matches.
func Like(pattern string, value any) bool {
	if value == nil {
		return false
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	return likeRegexp(pattern).MatchString(s)
}

func likeRegexp(pattern string) *regexp.Regexp {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}

	var b strings.Builder
	b.WriteString(`(?is)\A`)
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes) && (runes[i+1] == '%' || runes[i+1] == '_'):
			b.WriteString(regexp.QuoteMeta(string(runes[i+1])))
			i++
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)

	re := regexp.MustCompile(b.String())
	likeCache.Store(pattern, re)
	return re
}
