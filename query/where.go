package query

import (
	"fmt"
	"sort"
)

// BuildWhere normalises a filter shorthand into a root Group.
//
// Accepted forms:
//   - nil: an empty AND group
//   - *Group: used as is after checking its conjunctions
//   - *Condition or []Node: wrapped in an AND group
//   - map[string]any: one equality condition per key, sorted by key
//   - [][]any or []any of [field, value] pairs and [field, operator, value]
//     triples, optionally mixed with Nodes
func BuildWhere(spec any) (*Group, error) {
	switch s := spec.(type) {
	case nil:
		return &Group{Conjunction: And}, nil
	case *Group:
		if s == nil {
			return &Group{Conjunction: And}, nil
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		return s, nil
	case *Condition:
		return NewGroup(And, s)
	case []Node:
		return NewGroup(And, s...)
	case map[string]any:
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		g := &Group{Conjunction: And}
		for _, k := range keys {
			if err := g.Add(Eq(k, s[k])); err != nil {
				return nil, err
			}
		}
		return g, nil
	case [][]any:
		g := &Group{Conjunction: And}
		for _, el := range s {
			c, err := conditionFromElement(el)
			if err != nil {
				return nil, err
			}
			if err := g.Add(c); err != nil {
				return nil, err
			}
		}
		return g, nil
	case []any:
		g := &Group{Conjunction: And}
		for _, el := range s {
			var n Node
			switch el := el.(type) {
			case Node:
				n = el
			case []any:
				c, err := conditionFromElement(el)
				if err != nil {
					return nil, err
				}
				n = c
			default:
				return nil, fmt.Errorf("%w: invalid where element of type %T", ErrInvalidArgument, el)
			}
			if err := g.Add(n); err != nil {
				return nil, err
			}
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: unsupported where clause of type %T", ErrInvalidArgument, spec)
	}
}

func conditionFromElement(el []any) (*Condition, error) {
	if len(el) != 2 && len(el) != 3 {
		return nil, fmt.Errorf("%w: invalid array element with a length of %d", ErrInvalidArgument, len(el))
	}
	field, ok := el[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: condition field must be a string, got %T", ErrInvalidArgument, el[0])
	}
	if len(el) == 2 {
		return Eq(field, el[1]), nil
	}
	var op Operator
	switch o := el[1].(type) {
	case Operator:
		op = o
	case string:
		op = Operator(o)
	default:
		return nil, fmt.Errorf("%w: condition operator must be a string, got %T", ErrInvalidArgument, el[1])
	}
	return NewCondition(field, op, el[2]), nil
}
