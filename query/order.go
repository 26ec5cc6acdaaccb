package query

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Valid reports whether d is Ascending or Descending.
func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "ASC"
	case Descending:
		return "DESC"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts ASC, ASCENDING, DESC and DESCENDING in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC", "ASCENDING":
		return Ascending, nil
	case "DESC", "DESCENDING":
		return Descending, nil
	default:
		return 0, fmt.Errorf("%w: invalid sort direction %q", ErrInvalidArgument, s)
	}
}

// Order is one sort key.
type Order struct {
	Field     string
	Direction Direction
	Raw       bool
}

// Asc sorts by field ascending.
func Asc(field string) Order { return Order{Field: field, Direction: Ascending} }

// Desc sorts by field descending.
func Desc(field string) Order { return Order{Field: field, Direction: Descending} }

// BuildOrder normalises an ordering shorthand. Directions other than
// Ascending and Descending fail with ErrUnsupported.
//
// Accepted forms: nil, Order, []Order, map[string]string and
// map[string]Direction (keys sorted), and []string holding alternating
// field and direction values.
func BuildOrder(spec any) ([]Order, error) {
	orders, err := buildOrder(spec)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if !o.Direction.Valid() {
			return nil, fmt.Errorf("%w: sort direction %s for %q", ErrUnsupported, o.Direction, o.Field)
		}
	}
	return orders, nil
}

func buildOrder(spec any) ([]Order, error) {
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case Order:
		return []Order{s}, nil
	case []Order:
		return slices.Clone(s), nil
	case map[string]Direction:
		out := make([]Order, 0, len(s))
		for _, k := range sortedKeys(s) {
			out = append(out, Order{Field: k, Direction: s[k]})
		}
		return out, nil
	case map[string]string:
		out := make([]Order, 0, len(s))
		for _, k := range sortedKeys(s) {
			d, err := ParseDirection(s[k])
			if err != nil {
				return nil, err
			}
			out = append(out, Order{Field: k, Direction: d})
		}
		return out, nil
	case []string:
		if len(s)%2 != 0 {
			return nil, fmt.Errorf("%w: order list must hold field and direction pairs", ErrInvalidArgument)
		}
		out := make([]Order, 0, len(s)/2)
		for i := 0; i < len(s); i += 2 {
			d, err := ParseDirection(s[i+1])
			if err != nil {
				return nil, err
			}
			out = append(out, Order{Field: s[i], Direction: d})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported order clause of type %T", ErrInvalidArgument, spec)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
