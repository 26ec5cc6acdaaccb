package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const schemaDir = "_schema"

// Column is a declared table column.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	NotNull    bool   `json:"not_null,omitempty"`
}

// Table is a declared table: its columns in declaration order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Key returns the primary key column, or "id" when none was declared.
func (t *Table) Key() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return "id"
}

// ColumnNames lists the columns in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) has(column string) bool {
	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

// Catalog holds the declared tables.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Create declares a table. Declaring an existing table is an error.
func (c *Catalog) Create(t *Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[t.Name]; exists {
		return fmt.Errorf("%w: table %s already exists", ErrDuplicateTable, t.Name)
	}
	c.tables[t.Name] = t
	return nil
}

// Lookup returns a declared table.
func (c *Catalog) Lookup(name string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// Drop forgets a table and reports whether it was declared.
func (c *Catalog) Drop(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tables[name]
	delete(c.tables, name)
	return ok
}

// Names returns the declared table names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes one JSON file per table to dir/_schema and removes files of
// dropped tables.
func (c *Catalog) Save(dir string) error {
	path := filepath.Join(dir, schemaDir)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create schema dir: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, t := range c.tables {
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal schema: %w", err)
		}
		file := filepath.Join(path, name+".json")
		tempPath := file + ".tmp"
		if err := os.WriteFile(tempPath, data, 0644); err != nil {
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := os.Rename(tempPath, file); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("rename temp file: %w", err)
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		if _, declared := c.tables[name]; !declared {
			if err := os.Remove(filepath.Join(path, e.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove schema file: %w", err)
			}
		}
	}
	return nil
}

// Load reads every schema file under dir/_schema. A missing directory
// leaves the catalog empty.
func (c *Catalog) Load(dir string) error {
	entries, err := os.ReadDir(filepath.Join(dir, schemaDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, schemaDir, e.Name()))
		if err != nil {
			return fmt.Errorf("load schema %s: %w", name, err)
		}
		var t Table
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("load schema %s: %w", name, err)
		}
		c.tables[t.Name] = &t
	}
	return nil
}
