// Package model describes the entity types known to the mapper: their labels,
// key attribute, writable fields and declared relationships, plus the Entity
// value rehydrated from graph nodes.
package model

import (
	"fmt"
	"strings"
)

// DefaultKey is the key attribute used when a schema does not declare one.
const DefaultKey = "id"

// DefaultPerPage is the page size used by pagination when none is given.
const DefaultPerPage = 15

// Timestamp attributes maintained for schemas declared WithTimestamps.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
)

// Schema is the type descriptor of an entity. Schemas are built once during setup
// and are read-only afterwards; every accessor returns a copy.
type Schema struct {
	name       string
	labels     []string
	key        string
	fields     []string
	fieldSet   map[string]struct{}
	timestamps bool
	uuidKeys   bool
	perPage    int

	relations     []*Relationship
	relationIndex map[string]*Relationship
	errs          []error
}

// SchemaOption configures a Schema at construction time.
type SchemaOption func(*Schema)

// NewSchema creates a schema named name. Without a label option the schema is
// labelled with its name.
func NewSchema(name string, opts ...SchemaOption) *Schema {
	s := &Schema{
		name:          name,
		key:           DefaultKey,
		perPage:       DefaultPerPage,
		fieldSet:      make(map[string]struct{}),
		relationIndex: make(map[string]*Relationship),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.labels) == 0 {
		s.labels = []string{name}
	}
	return s
}

// WithLabels sets the ordered label set of the schema.
func WithLabels(labels ...string) SchemaOption {
	return func(s *Schema) {
		s.labels = append([]string(nil), labels...)
	}
}

// WithLabel sets the label set from a colon separated string such as "User:Admin".
func WithLabel(label string) SchemaOption {
	return func(s *Schema) {
		s.labels = nil
		for _, l := range strings.Split(label, ":") {
			if l = strings.TrimSpace(l); l != "" {
				s.labels = append(s.labels, l)
			}
		}
	}
}

// WithKey sets the key attribute.
func WithKey(key string) SchemaOption {
	return func(s *Schema) {
		s.key = key
	}
}

// WithFields declares the writable attributes. A schema without declared
// fields accepts any attribute.
func WithFields(fields ...string) SchemaOption {
	return func(s *Schema) {
		for _, f := range fields {
			if _, ok := s.fieldSet[f]; ok {
				continue
			}
			s.fieldSet[f] = struct{}{}
			s.fields = append(s.fields, f)
		}
	}
}

// WithTimestamps maintains created_at and updated_at on writes.
func WithTimestamps() SchemaOption {
	return func(s *Schema) {
		s.timestamps = true
	}
}

// WithUUIDKeys generates a random UUID for the key attribute of new entities
// that do not carry one.
func WithUUIDKeys() SchemaOption {
	return func(s *Schema) {
		s.uuidKeys = true
	}
}

// WithPerPage sets the default page size.
func WithPerPage(n int) SchemaOption {
	return func(s *Schema) {
		if n > 0 {
			s.perPage = n
		}
	}
}

func (s *Schema) Name() string { return s.name }

// Labels returns a copy of the label set.
func (s *Schema) Labels() []string {
	return append([]string(nil), s.labels...)
}

func (s *Schema) Key() string { return s.key }

// Fields returns a copy of the declared writable fields.
func (s *Schema) Fields() []string {
	return append([]string(nil), s.fields...)
}

// IsFillable reports whether key may be mass assigned through Entity.Fill.
func (s *Schema) IsFillable(key string) bool {
	if key == ElementIDAttribute {
		return false
	}
	if len(s.fieldSet) == 0 {
		return true
	}
	_, ok := s.fieldSet[key]
	return ok
}

func (s *Schema) Timestamps() bool { return s.timestamps }

func (s *Schema) UUIDKeys() bool { return s.uuidKeys }

func (s *Schema) PerPage() int { return s.perPage }

// Relation returns the declaration named name.
func (s *Schema) Relation(name string) (*Relationship, bool) {
	r, ok := s.relationIndex[name]
	return r, ok
}

// Relations returns the declarations in declaration order.
func (s *Schema) Relations() []*Relationship {
	return append([]*Relationship(nil), s.relations...)
}

// Err returns the first declaration error recorded on the schema.
func (s *Schema) Err() error {
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// New returns a blank, non persisted entity of this schema.
func (s *Schema) New() *Entity {
	return NewEntity(s)
}

// BelongsTo declares an inverse one-to-one relation: the related entity points at
// this one, so the edge is traversed incoming.
func (s *Schema) BelongsTo(name, related string, opts ...RelationOption) *Schema {
	return s.declare(name, BelongsTo, related, opts)
}

// HasOne declares an outgoing one-to-one relation.
func (s *Schema) HasOne(name, related string, opts ...RelationOption) *Schema {
	return s.declare(name, HasOne, related, opts)
}

// HasMany declares an outgoing one-to-many relation.
func (s *Schema) HasMany(name, related string, opts ...RelationOption) *Schema {
	return s.declare(name, HasMany, related, opts)
}

// BelongsToMany declares an outgoing many-to-many relation.
func (s *Schema) BelongsToMany(name, related string, opts ...RelationOption) *Schema {
	return s.declare(name, BelongsToMany, related, opts)
}

// MorphedByOne declares the static side of a polymorphic relation.
func (s *Schema) MorphedByOne(name, related string, opts ...RelationOption) *Schema {
	return s.declare(name, MorphedByOne, related, opts)
}

// MorphTo declares a one-cardinality polymorphic relation whose related type is
// read from the edge discriminator.
func (s *Schema) MorphTo(name string, opts ...RelationOption) *Schema {
	return s.declare(name, MorphTo, "", opts)
}

// MorphToMany declares the many-cardinality form of MorphTo.
func (s *Schema) MorphToMany(name string, opts ...RelationOption) *Schema {
	return s.declare(name, MorphToMany, "", opts)
}

// HyperMorph declares a relation to related through an intermediate edge, where
// the related entity is itself linked to a third entity by the hyper edge type.
func (s *Schema) HyperMorph(name, related string, opts ...RelationOption) *Schema {
	return s.declare(name, HyperMorph, related, opts)
}

func (s *Schema) declare(name string, kind RelationKind, related string, opts []RelationOption) *Schema {
	if name == "" {
		s.errs = append(s.errs, fmt.Errorf("schema %s: relation name is required", s.name))
		return s
	}
	if _, ok := s.relationIndex[name]; ok {
		s.errs = append(s.errs, fmt.Errorf("schema %s: relation %q declared twice", s.name, name))
		return s
	}
	r := newRelationship(name, kind, related)
	for _, opt := range opts {
		opt(r)
	}
	if kind == HyperMorph && r.HyperEdgeType == "" {
		r.HyperEdgeType = defaultEdgeType(name) + "_MORPH"
	}
	s.relations = append(s.relations, r)
	s.relationIndex[name] = r
	return s
}
