package query

import (
	"bytes"
	"encoding/json"
)

// Row is a single record as seen by the query layer.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DecodeRow parses a JSON object into a Row. Numbers become int64 when they
// are integral and float64 otherwise, matching what the interpreter and the
// SQL drivers produce.
func DecodeRow(data []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return NormalizeNumbers(row), nil
}

// NormalizeNumbers replaces json.Number values in place, descending into
// nested objects and arrays.
func NormalizeNumbers(row Row) Row {
	for k, v := range row {
		row[k] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeValue(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeValue(e)
		}
		return t
	}
	return v
}
