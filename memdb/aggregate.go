package memdb

import (
	"maps"

	"github.com/adrianmcphee/smartermodel/query"
)

// rowGroup is a partition of rows sharing the same group-key values.
type rowGroup struct {
	keys []any
	rows []query.Row
}

func (g *rowGroup) matches(row query.Row, keys []query.GroupKey) bool {
	for i, k := range keys {
		if !Equal(row[k.Key], g.keys[i]) {
			return false
		}
	}
	return true
}

// groupAndAggregate partitions rows by the group keys in first-seen order,
// applies aliases and aggregates, and flattens the groups back into rows.
// Without group keys every row lands in one partition.
func groupAndAggregate(rows []query.Row, keys []query.GroupKey, fields []query.Projection) []query.Row {
	var groups []*rowGroup
rows:
	for _, row := range rows {
		for _, g := range groups {
			if g.matches(row, keys) {
				g.rows = append(g.rows, row)
				continue rows
			}
		}
		g := &rowGroup{rows: []query.Row{row}}
		for _, k := range keys {
			g.keys = append(g.keys, row[k.Key])
		}
		groups = append(groups, g)
	}

	out := make([]query.Row, 0, len(rows))
	for _, g := range groups {
		g.aggregate(fields, len(keys) > 0)
		out = append(out, g.rows...)
	}
	return out
}

// aggregate folds the partition into its first row. The group collapses to
// that single row when collapse is set or any projection has a function.
// Projections always read from the source row, so an alias naming another
// projection's key does not see an overwritten value.
func (g *rowGroup) aggregate(fields []query.Projection, collapse bool) {
	var agg query.Row
	averages := make(map[string]int)

	for i, row := range g.rows {
		out := maps.Clone(row)
		for _, f := range fields {
			out[f.OutputName()] = row[f.Key]
		}
		g.rows[i] = out

		if agg == nil {
			agg = maps.Clone(out)
			for _, f := range fields {
				key := f.OutputName()
				switch f.Function {
				case query.AggCount:
					agg[key] = int64(1)
				case query.AggAverage:
					averages[key] = 1
				}
			}
			continue
		}

		for _, f := range fields {
			key := f.OutputName()
			value := row[f.Key]

			switch f.Function {
			case query.AggSum:
				agg[key] = add(agg[key], value)
			case query.AggCount:
				agg[key] = add(agg[key], int64(1))
			case query.AggAverage:
				averages[key]++
				agg[key] = add(agg[key], value)
			case query.AggMin:
				if value != nil && (agg[key] == nil || Compare(value, agg[key]) < 0) {
					agg[key] = value
				}
			case query.AggMax:
				if value != nil && (agg[key] == nil || Compare(value, agg[key]) > 0) {
					agg[key] = value
				}
			}
		}
	}

	for key, n := range averages {
		sum, _ := numeric(agg[key])
		agg[key] = sum / float64(n)
	}

	for _, f := range fields {
		if f.Function != query.AggNone {
			collapse = true
			break
		}
	}
	if collapse && agg != nil {
		g.rows = []query.Row{agg}
	}
}

// project keeps the projected output keys whose value is set. An empty
// projection list keeps the whole row.
func project(row query.Row, fields []query.Projection) query.Row {
	if len(fields) == 0 {
		return row
	}
	out := make(query.Row, len(fields))
	for _, f := range fields {
		key := f.OutputName()
		if v, ok := row[key]; ok && v != nil {
			out[key] = v
		}
	}
	return out
}
