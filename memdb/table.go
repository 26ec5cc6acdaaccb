package memdb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/adrianmcphee/smartermodel/query"
)

// Result is the outcome of executing a query against a table.
type Result struct {
	// Rows holds the selected rows; nil for updates and deletes.
	Rows []query.Row
	// Affected is the number of matched rows of an update or delete.
	Affected int
}

// Table is an ordered, in-memory row collection. Rows are copied on the
// way in and out so callers never share maps with the table.
type Table struct {
	name string
	mu   sync.RWMutex
	rows []query.Row
}

// NewTable creates an empty table.
func NewTable(name string) *Table {
	return &Table{name: name}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Insert appends rows.
func (t *Table) Insert(rows ...query.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.rows = append(t.rows, r.Clone())
	}
}

// Upsert replaces the row whose idField equals row[idField], or appends it.
// It reports whether the row was appended.
func (t *Table) Upsert(idField string, row query.Row) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := row[idField]
	if i := t.indexOf(idField, id); i >= 0 {
		t.rows[i] = row.Clone()
		return false
	}
	t.rows = append(t.rows, row.Clone())
	return true
}

// Get returns a copy of the row with the given id.
func (t *Table) Get(idField string, id any) (query.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexOf(idField, id); i >= 0 {
		return t.rows[i].Clone(), true
	}
	return nil, false
}

// Remove deletes the row with the given id and reports whether it existed.
func (t *Table) Remove(idField string, id any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(idField, id)
	if i < 0 {
		return false
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return true
}

func (t *Table) indexOf(idField string, id any) int {
	if id == nil {
		return -1
	}
	for i, r := range t.rows {
		if Equal(r[idField], id) {
			return i
		}
	}
	return -1
}

// Rows returns copies of all rows in insertion order.
func (t *Table) Rows() []query.Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]query.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Clear removes every row.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
}

// Execute runs q against the table.
//
// Rows are scanned once: the filter skips non-matching rows, the limit's
// start suppresses the first matches and scanning stops once the length is
// reached. Ordering, grouping and aggregation then apply to that window
// only, so a limited query sorts its page rather than paging a sorted set.
func (t *Table) Execute(q query.Query) (*Result, error) {
	switch q := q.(type) {
	case *query.Select:
		t.mu.RLock()
		defer t.mu.RUnlock()

		idx, err := t.find(q)
		if err != nil {
			return nil, err
		}
		rows := make([]query.Row, len(idx))
		for i, j := range idx {
			rows[i] = t.rows[j].Clone()
		}
		if err := sortRows(rows, q.Order()); err != nil {
			return nil, err
		}
		rows = groupAndAggregate(rows, q.GroupBy(), q.Fields())
		for i, r := range rows {
			rows[i] = project(r, q.Fields())
		}
		return &Result{Rows: rows}, nil

	case *query.Update:
		t.mu.Lock()
		defer t.mu.Unlock()

		idx, err := t.find(q)
		if err != nil {
			return nil, err
		}
		for _, j := range idx {
			for _, a := range q.Assignments() {
				t.rows[j][a.Key] = a.Value
			}
		}
		return &Result{Affected: len(idx)}, nil

	case *query.Delete:
		t.mu.Lock()
		defer t.mu.Unlock()

		idx, err := t.find(q)
		if err != nil {
			return nil, err
		}
		if len(idx) == 0 {
			return &Result{}, nil
		}
		remove := make(map[int]struct{}, len(idx))
		for _, j := range idx {
			remove[j] = struct{}{}
		}
		kept := t.rows[:0]
		for j, r := range t.rows {
			if _, ok := remove[j]; !ok {
				kept = append(kept, r)
			}
		}
		clear(t.rows[len(kept):])
		t.rows = kept
		return &Result{Affected: len(idx)}, nil

	default:
		return nil, fmt.Errorf("%w: query type %T", query.ErrUnsupported, q)
	}
}

// find returns the positions of the rows inside the query's window.
func (t *Table) find(q query.Query) ([]int, error) {
	where, limit := q.Where(), q.Limit()
	var (
		idx     []int
		matched int
	)
	for j, r := range t.rows {
		if limit.Exhausted(matched) {
			break
		}
		ok, err := Evaluate(r, where)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if limit.Contains(matched) {
			idx = append(idx, j)
		}
		matched++
	}
	return idx, nil
}

func sortRows(rows []query.Row, order []query.Order) error {
	for _, o := range order {
		if o.Direction != query.Ascending && o.Direction != query.Descending {
			return fmt.Errorf("%w: direction %v", query.ErrUnsupported, o.Direction)
		}
	}
	if len(order) == 0 {
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := Compare(rows[i][o.Field], rows[j][o.Field])
			if c == 0 {
				continue
			}
			if o.Direction == query.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}
