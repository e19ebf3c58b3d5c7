package model

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// DefaultMorphProperty is the edge property holding the schema name of a
// polymorphic target.
const DefaultMorphProperty = "morph_type"

// RelationKind is the closed set of relation variants.
type RelationKind int

const (
	BelongsTo RelationKind = iota + 1
	HasOne
	HasMany
	BelongsToMany
	MorphedByOne
	MorphTo
	MorphToMany
	HyperMorph
)

func (k RelationKind) String() string {
	switch k {
	case BelongsTo:
		return "BelongsTo"
	case HasOne:
		return "HasOne"
	case HasMany:
		return "HasMany"
	case BelongsToMany:
		return "BelongsToMany"
	case MorphedByOne:
		return "MorphedByOne"
	case MorphTo:
		return "MorphTo"
	case MorphToMany:
		return "MorphToMany"
	case HyperMorph:
		return "HyperMorph"
	default:
		return "Unknown"
	}
}

// Polymorphic reports whether the related type is resolved from the edge.
func (k RelationKind) Polymorphic() bool {
	return k == MorphTo || k == MorphToMany
}

// Direction of the edge as seen from the parent.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Relationship is a relation declaration on a schema.
type Relationship struct {
	Name      string
	Kind      RelationKind
	Related   string
	EdgeType  string
	Direction Direction
	Many      bool
	// JoinKey is the parent attribute used to constrain the query. Empty means
	// the parent schema key.
	JoinKey       string
	MorphProperty string
	// HyperEdgeType links the related entity to the third entity of a hyper morph.
	HyperEdgeType string
}

// RelationOption customises a relation declaration.
type RelationOption func(*Relationship)

// WithEdgeType overrides the edge type, which otherwise is the upper snake case
// of the relation name.
func WithEdgeType(edgeType string) RelationOption {
	return func(r *Relationship) {
		r.EdgeType = edgeType
	}
}

// WithJoinKey sets the parent attribute used for constraints.
func WithJoinKey(key string) RelationOption {
	return func(r *Relationship) {
		r.JoinKey = key
	}
}

// WithMorphProperty sets the edge property carrying the morph discriminator.
func WithMorphProperty(prop string) RelationOption {
	return func(r *Relationship) {
		r.MorphProperty = prop
	}
}

// WithHyperEdgeType sets the edge type between the related entity and the
// morph entity of a hyper morph.
func WithHyperEdgeType(edgeType string) RelationOption {
	return func(r *Relationship) {
		r.HyperEdgeType = edgeType
	}
}

func newRelationship(name string, kind RelationKind, related string) *Relationship {
	r := &Relationship{
		Name:          name,
		Kind:          kind,
		Related:       related,
		EdgeType:      defaultEdgeType(name),
		Direction:     Out,
		MorphProperty: DefaultMorphProperty,
	}
	switch kind {
	case BelongsTo:
		r.Direction = In
	case HasMany, BelongsToMany, MorphToMany, HyperMorph:
		r.Many = true
	}
	return r
}

// UniqueEdge reports whether a parent holds at most one edge of this relation.
func (r *Relationship) UniqueEdge() bool {
	return !r.Many
}

func defaultEdgeType(name string) string {
	return strings.ToUpper(inflect.Underscore(name))
}
