package query

import "fmt"

// Limit is a pagination window. A nil Length means unbounded.
type Limit struct {
	Start  int
	Length *int
}

// NewLimit builds a bounded window.
func NewLimit(start, length int) *Limit {
	return &Limit{Start: start, Length: &length}
}

// Unbounded builds a window that skips start rows and returns the rest.
func Unbounded(start int) *Limit {
	return &Limit{Start: start}
}

// Bounded reports whether the window has a length.
func (l *Limit) Bounded() bool {
	return l != nil && l.Length != nil
}

// Contains reports whether the zero-based position of a matching row falls
// inside the window.
func (l *Limit) Contains(pos int) bool {
	if l == nil {
		return true
	}
	if pos < l.Start {
		return false
	}
	return l.Length == nil || pos < l.Start+*l.Length
}

// Exhausted reports whether no row at pos or later can be in the window.
func (l *Limit) Exhausted(pos int) bool {
	return l.Bounded() && pos >= l.Start+*l.Length
}

// BuildLimit normalises a limit shorthand: nil, an int (length only),
// []int{start, length}, [2]int, Limit or *Limit.
func BuildLimit(spec any) (*Limit, error) {
	var l *Limit
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case int:
		l = NewLimit(0, s)
	case []int:
		if len(s) != 2 {
			return nil, fmt.Errorf("%w: limit pair must have 2 elements, got %d", ErrInvalidArgument, len(s))
		}
		l = NewLimit(s[0], s[1])
	case [2]int:
		l = NewLimit(s[0], s[1])
	case Limit:
		l = &s
	case *Limit:
		if s == nil {
			return nil, nil
		}
		l = s
	default:
		return nil, fmt.Errorf("%w: limit must be an int, a [start, length] pair or a Limit, got %T", ErrInvalidArgument, spec)
	}
	if l.Start < 0 || (l.Length != nil && *l.Length < 0) {
		return nil, fmt.Errorf("%w: limit values must not be negative", ErrInvalidArgument)
	}
	return l, nil
}
