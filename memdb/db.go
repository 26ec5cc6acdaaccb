// Package memdb evaluates query ASTs directly against in-memory tables.
//
// It is the reference semantics for the query model and the storage engine
// of the memory backend, the local SQL server and the object store's query
// path.
package memdb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/adrianmcphee/smartermodel/query"
)

// DB is a set of named tables, safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// New creates an empty database.
func New() *DB {
	return &DB{tables: make(map[string]*Table)}
}

// Table returns the named table, creating it when missing.
func (db *DB) Table(name string) *Table {
	db.mu.RLock()
	t, ok := db.tables[name]
	db.mu.RUnlock()
	if ok {
		return t
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[name]; ok {
		return t
	}
	t = NewTable(name)
	db.tables[name] = t
	return t
}

// Lookup returns the named table if it exists.
func (db *DB) Lookup(name string) (*Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	return t, ok
}

// Drop removes the named table.
func (db *DB) Drop(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.tables, name)
}

// Clear removes every table.
func (db *DB) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = make(map[string]*Table)
}

// Names returns the table names in sorted order.
func (db *DB) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute runs q against the table named by q.Model(). A missing table
// behaves like an empty one.
func (db *DB) Execute(q query.Query) (*Result, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: nil query", query.ErrInvalidArgument)
	}
	t, ok := db.Lookup(q.Model())
	if !ok {
		return NewTable(q.Model()).Execute(q)
	}
	return t.Execute(q)
}
