package smartermodel

import (
	"context"
	"reflect"

	"github.com/adrianmcphee/smartermodel/query"
)

// Driver is a storage backend. A driver implements any subset of the
// capability interfaces below; the repository filters backends by
// capability for every operation.
type Driver interface {
	ID() string
}

// Getter loads a model by id. A nil model with a nil error means not found.
type Getter interface {
	Driver
	Get(ctx context.Context, d *Descriptor, id string) (Model, error)
}

// Saver durably stores a model.
type Saver interface {
	Driver
	Save(ctx context.Context, d *Descriptor, m Model) error
}

// Deleter removes a model. Removing an absent model is not an error.
type Deleter interface {
	Driver
	Delete(ctx context.Context, d *Descriptor, m Model) error
}

// SelectQuerier answers select queries.
type SelectQuerier interface {
	Driver
	Select(ctx context.Context, d *Descriptor, q *query.Select) (*QueryResult, error)
}

// UpdateQuerier applies update queries.
type UpdateQuerier interface {
	Driver
	Update(ctx context.Context, d *Descriptor, q *query.Update) (*QueryResult, error)
}

// DeleteQuerier applies delete queries.
type DeleteQuerier interface {
	Driver
	DeleteWhere(ctx context.Context, d *Descriptor, q *query.Delete) (*QueryResult, error)
}

// Searcher runs backend-native search requests.
type Searcher interface {
	Driver
	Search(ctx context.Context, d *Descriptor, req *SearchRequest) (*SearchResult, error)
}

// Cacher marks a driver as a cache. Cache backends are skipped on refresh
// and filled in after a slower backend answers a read.
type Cacher interface {
	Driver
	CacheDriver()
}

// Invalidator drops every cached entry of a model. Caches implement it so
// update and delete queries that bypass them do not leave stale entries.
type Invalidator interface {
	Driver
	Invalidate(ctx context.Context, d *Descriptor) (int, error)
}

// Capability names an operation contract.
type Capability int

const (
	CapGet Capability = iota
	CapSave
	CapDelete
	CapSelect
	CapUpdate
	CapDeleteQuery
	CapSearch
	CapCache
)

func (c Capability) String() string {
	switch c {
	case CapGet:
		return "get"
	case CapSave:
		return "save"
	case CapDelete:
		return "delete"
	case CapSelect:
		return "select"
	case CapUpdate:
		return "update"
	case CapDeleteQuery:
		return "delete_query"
	case CapSearch:
		return "search"
	case CapCache:
		return "cache"
	default:
		return "unknown"
	}
}

var capabilityTypes = map[Capability]reflect.Type{
	CapGet:         reflect.TypeFor[Getter](),
	CapSave:        reflect.TypeFor[Saver](),
	CapDelete:      reflect.TypeFor[Deleter](),
	CapSelect:      reflect.TypeFor[SelectQuerier](),
	CapUpdate:      reflect.TypeFor[UpdateQuerier](),
	CapDeleteQuery: reflect.TypeFor[DeleteQuerier](),
	CapSearch:      reflect.TypeFor[Searcher](),
	CapCache:       reflect.TypeFor[Cacher](),
}

// Implements reports whether d provides capability c.
func Implements(d Driver, c Capability) bool {
	if d == nil {
		return false
	}
	return typeImplements(reflect.TypeOf(d), c)
}

// typeImplements answers from a static type, without an instance.
func typeImplements(t reflect.Type, c Capability) bool {
	iface, ok := capabilityTypes[c]
	if !ok || t == nil {
		return false
	}
	return t.Implements(iface)
}

// Capabilities lists what d provides.
func Capabilities(d Driver) []Capability {
	var caps []Capability
	for c := CapGet; c <= CapCache; c++ {
		if Implements(d, c) {
			caps = append(caps, c)
		}
	}
	return caps
}
