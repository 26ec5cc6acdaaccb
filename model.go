package smartermodel

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/adrianmcphee/smartermodel/query"
)

// Model is anything with an identity that backends can persist.
type Model interface {
	GetID() string
	SetID(id string)
}

// FieldBag carries fields a model type does not declare. Backends may
// return columns the Go struct has no field for; they land here instead of
// being dropped, and are written back on the next save.
type FieldBag interface {
	Field(key string) (any, bool)
	SetField(key string, value any)
	ExtraFields() map[string]any
}

// Base is an embeddable Model with an "id" JSON field and a FieldBag.
//
//	type User struct {
//	    smartermodel.Base
//	    Email string `json:"email"`
//	}
type Base struct {
	ID    string `json:"id,omitempty"`
	extra map[string]any
}

func (b *Base) GetID() string   { return b.ID }
func (b *Base) SetID(id string) { b.ID = id }

// Field returns an undeclared field.
func (b *Base) Field(key string) (any, bool) {
	v, ok := b.extra[key]
	return v, ok
}

// SetField sets an undeclared field.
func (b *Base) SetField(key string, value any) {
	if b.extra == nil {
		b.extra = make(map[string]any)
	}
	b.extra[key] = value
}

// ExtraFields returns the undeclared fields. The map is owned by the model.
func (b *Base) ExtraFields() map[string]any {
	return b.extra
}

// Variant picks a concrete type for a row. Variants are tried in order and
// the first whose Match returns true constructs the model.
type Variant struct {
	Name  string
	Match func(query.Row) bool
	New   func() Model
}

// Descriptor describes how one model type is stored.
type Descriptor struct {
	// Name is the table, collection or index the model lives in.
	Name string

	// IDField is the row key holding the id. Defaults to "id".
	IDField string

	// New constructs an empty model. It is the fallback when no variant
	// matches.
	New func() Model

	Variants []Variant

	Config ModelConfig
}

// Validate checks the descriptor and its config.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Name",
			"reason": "model name is required",
		})
	}
	if d.New == nil {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"model":  d.Name,
			"field":  "New",
			"reason": "constructor is required",
		})
	}
	for i, v := range d.Variants {
		if v.Match == nil || v.New == nil {
			return WithContext(ErrInvalidConfig, map[string]interface{}{
				"model":   d.Name,
				"variant": i,
				"reason":  "variant needs Match and New",
			})
		}
	}
	if err := d.Config.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", d.Name, err)
	}
	return nil
}

// KeyField returns IDField or the default.
func (d *Descriptor) KeyField() string {
	if d.IDField == "" {
		return DefaultIDField
	}
	return d.IDField
}

// Encode turns a model into a row. Declared fields come from the model's
// JSON encoding; undeclared fields from its FieldBag fill in keys the
// declared ones leave free.
func (d *Descriptor) Encode(m Model) (query.Row, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"model": d.Name,
			"error": err.Error(),
		})
	}
	row, err := query.DecodeRow(data)
	if err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"model": d.Name,
			"error": err.Error(),
		})
	}
	if row == nil {
		row = query.Row{}
	}

	if bag, ok := m.(FieldBag); ok {
		for k, v := range bag.ExtraFields() {
			if _, declared := row[k]; !declared {
				row[k] = v
			}
		}
	}
	if id := m.GetID(); id != "" {
		row[d.KeyField()] = id
	}
	return row, nil
}

// Decode builds a model from a row, choosing the type through Variants.
func (d *Descriptor) Decode(row query.Row) (Model, error) {
	m := d.construct(row)

	src := row
	if v, ok := row[d.KeyField()]; ok && v != nil {
		if _, isString := v.(string); !isString {
			src = row.Clone()
			src[d.KeyField()] = fmt.Sprint(v)
		}
	}
	data, err := json.Marshal(src)
	if err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"model": d.Name,
			"error": err.Error(),
		})
	}
	var rejected map[string]bool
	if err := json.Unmarshal(data, m); err != nil {
		if _, isBag := m.(FieldBag); isBag {
			rejected, err = decodeEach(m, src)
		}
		if err != nil {
			return nil, WithContext(ErrInvalidData, map[string]interface{}{
				"model": d.Name,
				"error": err.Error(),
			})
		}
	}

	if bag, ok := m.(FieldBag); ok {
		declared := jsonFieldNames(reflect.TypeOf(m))
		for k, v := range row {
			if !declared.has(k) || rejected[k] {
				bag.SetField(k, v)
			}
		}
	}
	if v, ok := row[d.KeyField()]; ok && v != nil {
		m.SetID(fmt.Sprint(v))
	}
	return m, nil
}

// decodeEach unmarshals src key by key and reports the keys whose value
// does not fit the declared field, such as an average into an int.
func decodeEach(m Model, src query.Row) (map[string]bool, error) {
	rejected := make(map[string]bool)
	for k, v := range src {
		data, err := json.Marshal(map[string]any{k: v})
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, m); err != nil {
			rejected[k] = true
		}
	}
	return rejected, nil
}

func (d *Descriptor) construct(row query.Row) Model {
	for _, v := range d.Variants {
		if v.Match(row) {
			return v.New()
		}
	}
	return d.New()
}

// fieldSet holds declared JSON keys. encoding/json matches keys
// case-insensitively, so lookups do too.
type fieldSet map[string]struct{}

func (s fieldSet) has(key string) bool {
	_, ok := s[strings.ToLower(key)]
	return ok
}

var fieldCache sync.Map // reflect.Type -> fieldSet

func jsonFieldNames(t reflect.Type) fieldSet {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(fieldSet)
	}
	set := make(fieldSet)
	collectJSONFields(t, set)
	fieldCache.Store(t, set)
	return set
}

func collectJSONFields(t reflect.Type, set fieldSet) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			collectJSONFields(f.Type, set)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		set[strings.ToLower(name)] = struct{}{}
	}
}

// fieldOf reads key from a model: the FieldBag first, then the declared
// fields through the model's JSON encoding.
func fieldOf(m Model, key string) any {
	if bag, ok := m.(FieldBag); ok {
		if v, ok := bag.Field(key); ok {
			return v
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	row, err := query.DecodeRow(data)
	if err != nil {
		return nil
	}
	return row[key]
}
