// Package query is the backend-neutral query model shared by every
// smartermodel backend.
//
// A query is one of three shapes, Select, Update or Delete, each carrying a
// filter tree, an ordering list and an optional limit. Select additionally
// carries projections and group keys, Update carries assignments.
//
// Query and Node are sealed interfaces using the marker method pattern, so
// backends can switch exhaustively over the concrete types:
//
//	switch q := q.(type) {
//	case *query.Select:
//	case *query.Update:
//	case *query.Delete:
//	}
//
// FILTERS:
//
// The filter tree is rooted in a *Group. A Group holds Conditions and nested
// Groups joined by a single Conjunction. BuildWhere normalises the accepted
// shorthands into that tree:
//
//	map[string]any{"text": "value"}             // implicit equality, ANDed
//	[][]any{{"number", 1}}                      // [field, value] pair
//	[][]any{{"number", ">", 1}}                 // [field, operator, value] triple
//	query.Eq("text", "value")                   // single condition
//
// IN and NOT IN conditions are validated when they are attached: the value
// must be a non-empty slice or array.
//
// CONSTRUCTION:
//
//	q, err := query.NewSelect(
//	    query.Where(map[string]any{"text": "value"}),
//	    query.OrderBy([]string{"number", "DESC"}),
//	    query.Paginate(10),
//	)
//
// Invalid shorthands and operator values fail at construction with
// ErrInvalidArgument or ErrInvalidValue.
package query
