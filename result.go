package smartermodel

import (
	"iter"
	"time"
)

// QueryResult is what a backend returns for a query.
type QueryResult struct {
	Models       []Model
	Success      bool
	QueryString  string
	AffectedRows int
}

// Add appends models.
func (r *QueryResult) Add(models ...Model) {
	r.Models = append(r.Models, models...)
}

// Len returns the number of models.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Models)
}

// First returns the first model or nil.
func (r *QueryResult) First() Model {
	if r.Len() == 0 {
		return nil
	}
	return r.Models[0]
}

// All iterates over the models.
func (r *QueryResult) All() iter.Seq2[int, Model] {
	return func(yield func(int, Model) bool) {
		if r == nil {
			return
		}
		for i, m := range r.Models {
			if !yield(i, m) {
				return
			}
		}
	}
}

// Field reads key from the first model. It returns nil for an empty result
// or an unknown key.
func (r *QueryResult) Field(key string) any {
	m := r.First()
	if m == nil {
		return nil
	}
	return fieldOf(m, key)
}

// Merge folds other into r: success is ANDed, affected rows of successful
// results are summed and models are appended.
func (r *QueryResult) Merge(other *QueryResult) {
	if other == nil {
		return
	}
	r.Success = r.Success && other.Success
	if other.Success {
		r.AffectedRows += other.AffectedRows
	}
	r.Models = append(r.Models, other.Models...)
	if r.QueryString == "" {
		r.QueryString = other.QueryString
	}
}

// CountRelation says how TotalCount relates to the true hit count.
type CountRelation string

const (
	RelationEqual          CountRelation = "eq"
	RelationGreaterOrEqual CountRelation = "gte"
)

// SearchRequest is a backend-native search. Body is passed through to the
// backend as its query document.
type SearchRequest struct {
	Model string
	Body  map[string]any
}

// SearchResult is what a search backend returns.
type SearchResult struct {
	Models     []Model
	Success    bool
	Took       time.Duration
	TotalCount *int
	Relation   CountRelation
}

// Len returns the number of models.
func (r *SearchResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Models)
}
