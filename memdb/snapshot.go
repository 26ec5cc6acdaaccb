package memdb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrianmcphee/smartermodel/query"
)

const snapshotExt = ".jsonl"

// SaveDir writes every table to dir as <name>.jsonl, one JSON object per
// row. Each file is written to a temp file and renamed into place.
func (db *DB) SaveDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	for _, name := range db.Names() {
		t, ok := db.Lookup(name)
		if !ok {
			continue
		}
		if err := writeRows(filepath.Join(dir, name+snapshotExt), t.Rows()); err != nil {
			return fmt.Errorf("save table %s: %w", name, err)
		}
	}
	return nil
}

// LoadDir replaces the contents of every table found in dir. Tables not
// present in dir are left alone. Numbers are decoded as json.Number so
// integers survive the round trip.
func (db *DB) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), snapshotExt)
		rows, err := readRows(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("load table %s: %w", name, err)
		}
		t := db.Table(name)
		t.Clear()
		t.Insert(rows...)
	}
	return nil
}

func readRows(path string) ([]query.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []query.Row
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		row, err := query.DecodeRow(line)
		if err != nil {
			continue // skip invalid lines
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func writeRows(path string, rows []query.Row) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("marshal row: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("flush: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
