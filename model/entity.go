package model

import (
	"fmt"
	"maps"
	"reflect"
)

// ElementIDAttribute is the reserved attribute holding the node's graph identity.
const ElementIDAttribute = "_elementId"

// Entity is a typed record backed by a graph node.
type Entity struct {
	schema     *Schema
	attributes map[string]any
	exists     bool
	connection string
	relations  map[string]any
}

// NewEntity returns a transient entity of the given schema.
func NewEntity(schema *Schema) *Entity {
	return &Entity{
		schema:     schema,
		attributes: make(map[string]any),
		relations:  make(map[string]any),
	}
}

func (e *Entity) Schema() *Schema { return e.schema }

// Labels returns a copy of the schema label set.
func (e *Entity) Labels() []string { return e.schema.Labels() }

// NewInstance returns a blank entity of the same schema bound to the same connection.
func (e *Entity) NewInstance() *Entity {
	n := NewEntity(e.schema)
	n.connection = e.connection
	return n
}

// Fill assigns the attributes the schema allows and silently drops the others.
func (e *Entity) Fill(attrs map[string]any) *Entity {
	for k, v := range attrs {
		if e.schema.IsFillable(k) {
			e.attributes[k] = v
		}
	}
	return e
}

// ForceFill assigns every attribute, bypassing the writable field check.
func (e *Entity) ForceFill(attrs map[string]any) *Entity {
	maps.Copy(e.attributes, attrs)
	return e
}

func (e *Entity) Get(key string) any {
	return e.attributes[key]
}

func (e *Entity) Lookup(key string) (any, bool) {
	v, ok := e.attributes[key]
	return v, ok
}

func (e *Entity) Set(key string, value any) *Entity {
	e.attributes[key] = value
	return e
}

// Attributes returns a copy of all attributes, reserved ones included.
func (e *Entity) Attributes() map[string]any {
	return maps.Clone(e.attributes)
}

// Properties returns the attributes stored on the node.
func (e *Entity) Properties() map[string]any {
	props := maps.Clone(e.attributes)
	delete(props, ElementIDAttribute)
	return props
}

// Key returns the value of the schema key attribute.
func (e *Entity) Key() any {
	return e.attributes[e.schema.Key()]
}

func (e *Entity) ElementID() string {
	id, _ := e.attributes[ElementIDAttribute].(string)
	return id
}

func (e *Entity) SetElementID(id string) {
	e.attributes[ElementIDAttribute] = id
}

func (e *Entity) Exists() bool { return e.exists }

func (e *Entity) SetExists(exists bool) { e.exists = exists }

func (e *Entity) Connection() string { return e.connection }

func (e *Entity) SetConnection(name string) { e.connection = name }

// SetRelation stores a loaded relation. value is a *Entity, nil, or a Collection.
func (e *Entity) SetRelation(name string, value any) {
	e.relations[name] = value
}

// Relation returns the loaded value of the relation name.
func (e *Entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// RelationLoaded reports whether name was loaded.
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// One returns a loaded one-cardinality relation, or nil.
func (e *Entity) One(name string) *Entity {
	v, _ := e.relations[name].(*Entity)
	return v
}

// Many returns a loaded many-cardinality relation.
func (e *Entity) Many(name string) Collection {
	v, _ := e.relations[name].(Collection)
	return v
}

// Relations returns a copy of the loaded relations.
func (e *Entity) Relations() map[string]any {
	return maps.Clone(e.relations)
}

// Scan copies the entity attributes into the `crud` tagged fields of dst,
// which must be a non-nil pointer to a struct.
func (e *Entity) Scan(dst any) error {
	val := reflect.ValueOf(dst)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("scan destination must be a non-nil pointer")
	}
	meta, err := MetadataOf(val.Type())
	if err != nil {
		return err
	}
	return assignFields(val.Elem(), meta, e.attributes)
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s%v", e.schema.Name(), e.Properties())
}

// Collection is an ordered list of entities.
type Collection []*Entity

// Pluck returns the value of key for every entity, in order.
func (c Collection) Pluck(key string) []any {
	out := make([]any, 0, len(c))
	for _, e := range c {
		out = append(out, e.Get(key))
	}
	return out
}

// Keys returns the schema key of every entity, in order.
func (c Collection) Keys() []any {
	out := make([]any, 0, len(c))
	for _, e := range c {
		out = append(out, e.Key())
	}
	return out
}

// First returns the first entity or nil.
func (c Collection) First() *Entity {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}
