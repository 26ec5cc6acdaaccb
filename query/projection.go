package query

import (
	"fmt"
	"strings"
)

// Aggregate is the function applied by a projection.
type Aggregate int

const (
	AggNone Aggregate = iota
	AggCount
	AggSum
	AggAverage
	AggMin
	AggMax
)

func (a Aggregate) String() string {
	switch a {
	case AggNone:
		return ""
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAverage:
		return "AVERAGE"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return fmt.Sprintf("Aggregate(%d)", int(a))
	}
}

// Projection selects a field, optionally aggregated and aliased.
type Projection struct {
	Key      string
	Alias    string
	Function Aggregate
	Raw      bool
}

// Field projects key unchanged.
func Field(key string) Projection { return Projection{Key: key} }

// Count counts rows.
func Count() Projection { return Projection{Key: "*", Function: AggCount} }

// CountOf counts rows by key.
func CountOf(key string) Projection { return Projection{Key: key, Function: AggCount} }

// Sum totals key, keeping the key as the output name.
func Sum(key string) Projection { return Projection{Key: key, Alias: key, Function: AggSum} }

// Avg averages key.
func Avg(key string) Projection { return Projection{Key: key, Function: AggAverage} }

// Min keeps the smallest value of key under the key's name.
func Min(key string) Projection { return Projection{Key: key, Alias: key, Function: AggMin} }

// Max keeps the largest value of key under the key's name.
func Max(key string) Projection { return Projection{Key: key, Alias: key, Function: AggMax} }

// RawField projects verbatim backend text.
func RawField(expr string) Projection { return Projection{Key: expr, Raw: true} }

// As returns a copy of p with alias set.
func (p Projection) As(alias string) Projection {
	p.Alias = alias
	return p
}

// OutputName is the key under which the projected value appears in result
// rows. Aggregates over "*" without an alias are named after the function.
func (p Projection) OutputName() string {
	if p.Alias != "" {
		return p.Alias
	}
	if p.Key == "*" && p.Function != AggNone {
		return strings.ToLower(p.Function.String())
	}
	return p.Key
}

// Assignment sets a field in an update.
type Assignment struct {
	Key   string
	Value any
}

// GroupKey partitions rows of a select.
type GroupKey struct {
	Key string
}
