package query

import (
	"fmt"
	"slices"
	"sort"
)

// Query is a Select, Update or Delete.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	// Model is the target model name, filled in by the orchestrator.
	Model() string
	SetModel(name string)
	Where() *Group
	Order() []Order
	Limit() *Limit

	shared() *clauses
}

// clauses holds what every query shape carries.
type clauses struct {
	model string
	where *Group
	order []Order
	limit *Limit
}

func (c *clauses) shared() *clauses { return c }

func (c *clauses) Model() string { return c.model }

func (c *clauses) SetModel(name string) { c.model = name }

// Where returns the root filter group, never nil.
func (c *clauses) Where() *Group {
	if c.where == nil {
		c.where = &Group{Conjunction: And}
	}
	return c.where
}

func (c *clauses) Order() []Order { return c.order }

func (c *clauses) Limit() *Limit { return c.limit }

// Select reads rows.
type Select struct {
	clauses
	fields  []Projection
	groupBy []GroupKey
}

// Fields returns the projections; empty means every field.
func (s *Select) Fields() []Projection { return s.fields }

// GroupBy returns the group keys.
func (s *Select) GroupBy() []GroupKey { return s.groupBy }

// HasAggregates reports whether any projection applies a function.
func (s *Select) HasAggregates() bool {
	return slices.ContainsFunc(s.fields, func(p Projection) bool { return p.Function != AggNone })
}

// Update modifies matching rows.
type Update struct {
	clauses
	assignments []Assignment
}

// Assignments returns the field assignments in insertion order.
func (u *Update) Assignments() []Assignment { return u.assignments }

// Delete removes matching rows.
type Delete struct {
	clauses
}

// Option configures a query under construction.
type Option func(Query) error

// NewSelect builds a select query.
func NewSelect(opts ...Option) (*Select, error) {
	q := &Select{}
	if err := apply(q, opts); err != nil {
		return nil, err
	}
	return q, nil
}

// NewUpdate builds an update query.
func NewUpdate(opts ...Option) (*Update, error) {
	q := &Update{}
	if err := apply(q, opts); err != nil {
		return nil, err
	}
	return q, nil
}

// NewDelete builds a delete query.
func NewDelete(opts ...Option) (*Delete, error) {
	q := &Delete{}
	if err := apply(q, opts); err != nil {
		return nil, err
	}
	return q, nil
}

func apply(q Query, opts []Option) error {
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return err
		}
	}
	return nil
}

// From sets the model name.
func From(model string) Option {
	return func(q Query) error {
		q.SetModel(model)
		return nil
	}
}

// Where adds a filter shorthand, see BuildWhere. Repeated calls are ANDed.
// The query keeps its own copy of the filter tree.
func Where(spec any) Option {
	return func(q Query) error {
		g, err := BuildWhere(spec)
		if err != nil {
			return err
		}
		g = g.clone()
		c := q.shared()
		if c.where == nil || (c.where.Conjunction == And && c.where.Len() == 0) {
			c.where = g
			return nil
		}
		if c.where.Conjunction != And {
			c.where = &Group{Conjunction: And, nodes: []Node{c.where}}
		}
		if g.Conjunction == And {
			c.where.nodes = append(c.where.nodes, g.nodes...)
			return nil
		}
		return c.where.Add(g)
	}
}

// OrderBy appends sort keys, see BuildOrder.
func OrderBy(spec any) Option {
	return func(q Query) error {
		o, err := BuildOrder(spec)
		if err != nil {
			return err
		}
		c := q.shared()
		c.order = append(c.order, o...)
		return nil
	}
}

// Paginate sets the limit, see BuildLimit.
func Paginate(spec any) Option {
	return func(q Query) error {
		l, err := BuildLimit(spec)
		if err != nil {
			return err
		}
		q.shared().limit = l
		return nil
	}
}

// Fields appends projections to a select.
func Fields(p ...Projection) Option {
	return func(q Query) error {
		s, ok := q.(*Select)
		if !ok {
			return fmt.Errorf("%w: fields are only supported on select queries", ErrInvalidArgument)
		}
		s.fields = append(s.fields, p...)
		return nil
	}
}

// Columns appends plain field projections to a select.
func Columns(keys ...string) Option {
	p := make([]Projection, len(keys))
	for i, k := range keys {
		p[i] = Field(k)
	}
	return Fields(p...)
}

// GroupBy appends group keys to a select.
func GroupBy(keys ...string) Option {
	return func(q Query) error {
		s, ok := q.(*Select)
		if !ok {
			return fmt.Errorf("%w: group keys are only supported on select queries", ErrInvalidArgument)
		}
		for _, k := range keys {
			s.groupBy = append(s.groupBy, GroupKey{Key: k})
		}
		return nil
	}
}

// Set appends an assignment to an update.
func Set(key string, value any) Option {
	return func(q Query) error {
		u, ok := q.(*Update)
		if !ok {
			return fmt.Errorf("%w: assignments are only supported on update queries", ErrInvalidArgument)
		}
		u.assignments = append(u.assignments, Assignment{Key: key, Value: value})
		return nil
	}
}

// SetAll appends one assignment per key, sorted by key.
func SetAll(values map[string]any) Option {
	return func(q Query) error {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := Set(k, values[k])(q); err != nil {
				return err
			}
		}
		return nil
	}
}
