package query

import (
	"fmt"
	"iter"
	"slices"
)

// Node is an element of a filter tree: a *Condition or a *Group.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	filterNode()
}

// Condition compares one field with one value.
//
// RawField and RawValue mark the field or value as verbatim backend text
// that must not be quoted or escaped.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
	RawField bool
	RawValue bool
}

func (*Condition) filterNode() {}

// NewCondition builds a condition. An empty operator means equality.
func NewCondition(field string, op Operator, value any) *Condition {
	if op == "" {
		op = OpEqual
	}
	return &Condition{Field: field, Operator: op, Value: value}
}

// Eq builds an equality condition.
func Eq(field string, value any) *Condition {
	return NewCondition(field, OpEqual, value)
}

// Validate checks the operator value constraints.
func (c *Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: condition field must not be empty", ErrInvalidArgument)
	}
	if !c.Operator.IsSet() {
		return nil
	}
	values, ok := Sequence(c.Value)
	if !ok {
		return fmt.Errorf("%w: value for IN or NOT IN operator must be an array", ErrInvalidValue)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: value array for IN or NOT IN operator must not be empty", ErrInvalidValue)
	}
	return nil
}

// Conjunction joins the children of a Group.
type Conjunction int

const (
	And Conjunction = iota
	Or
)

// Valid reports whether c is And or Or.
func (c Conjunction) Valid() bool {
	return c == And || c == Or
}

func (c Conjunction) String() string {
	switch c {
	case And:
		return "AND"
	case Or:
		return "OR"
	default:
		return fmt.Sprintf("Conjunction(%d)", int(c))
	}
}

// Group is an ordered list of nodes joined by one conjunction.
type Group struct {
	Conjunction Conjunction
	nodes       []Node
}

func (*Group) filterNode() {}

// NewGroup builds a group, validating the conjunction and every node added
// to it.
func NewGroup(conj Conjunction, nodes ...Node) (*Group, error) {
	if !conj.Valid() {
		return nil, fmt.Errorf("%w: conjunction %s", ErrUnsupported, conj)
	}
	g := &Group{Conjunction: conj}
	for _, n := range nodes {
		if err := g.Add(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Add appends a node to the group.
func (g *Group) Add(n Node) error {
	if !g.Conjunction.Valid() {
		return fmt.Errorf("%w: conjunction %s", ErrUnsupported, g.Conjunction)
	}
	switch n := n.(type) {
	case *Condition:
		if err := n.Validate(); err != nil {
			return err
		}
	case *Group:
		if n == nil {
			return fmt.Errorf("%w: nil group", ErrInvalidArgument)
		}
		if err := n.validate(); err != nil {
			return err
		}
	case nil:
		return fmt.Errorf("%w: nil filter node", ErrInvalidArgument)
	}
	g.nodes = append(g.nodes, n)
	return nil
}

// validate checks the conjunction of g and of every nested group.
func (g *Group) validate() error {
	if !g.Conjunction.Valid() {
		return fmt.Errorf("%w: conjunction %s", ErrUnsupported, g.Conjunction)
	}
	for _, n := range g.nodes {
		if sub, ok := n.(*Group); ok {
			if err := sub.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// clone copies the tree so the copy shares no nodes with g.
func (g *Group) clone() *Group {
	out := &Group{Conjunction: g.Conjunction, nodes: make([]Node, 0, len(g.nodes))}
	for _, n := range g.nodes {
		switch n := n.(type) {
		case *Condition:
			c := *n
			out.nodes = append(out.nodes, &c)
		case *Group:
			out.nodes = append(out.nodes, n.clone())
		}
	}
	return out
}

// Len returns the number of direct children.
func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}

// Nodes returns a copy of the direct children in insertion order.
func (g *Group) Nodes() []Node {
	if g == nil {
		return nil
	}
	return slices.Clone(g.nodes)
}

// All iterates the direct children in insertion order.
func (g *Group) All() iter.Seq2[int, Node] {
	return func(yield func(int, Node) bool) {
		if g == nil {
			return
		}
		for i, n := range g.nodes {
			if !yield(i, n) {
				return
			}
		}
	}
}
