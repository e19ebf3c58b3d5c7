// Package mutation records, per query, which placeholders of the projection
// are rehydrated into entities and how.
package mutation

import (
	"fmt"
	"maps"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// Cardinality of a registered placeholder.
type Cardinality int

const (
	// One rehydrates into a single entity.
	One Cardinality = iota + 1
	// Many rehydrates into a collection.
	Many
	// Morph resolves the entity type from the edge discriminator.
	Morph
	// MorphEager is Morph fanned out per parent during eager loading.
	MorphEager
)

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	case Morph:
		return "morph"
	case MorphEager:
		return "morphEager"
	default:
		return fmt.Sprintf("Cardinality(%d)", int(c))
	}
}

// Polymorphic reports whether the type is read from the edge.
func (c Cardinality) Polymorphic() bool {
	return c == Morph || c == MorphEager
}

// Target is what a placeholder rehydrates into: a template entity for static
// types, the discriminator property for polymorphic ones.
type Target struct {
	Template      *model.Entity
	MorphProperty string
}

// Entry is one registered mutation.
type Entry struct {
	Placeholder string
	Target      Target
	Cardinality Cardinality
}

// Cropper strips label decoration from a placeholder. cypher.Grammar satisfies it.
type Cropper interface {
	CropLabelIdentifier(string) string
}

// Registry maps logical placeholders to mutations.
type Registry struct {
	cropper Cropper
	entries map[string]Entry
	order   []string
}

// NewRegistry returns an empty registry comparing placeholders through cropper.
func NewRegistry(cropper Cropper) *Registry {
	return &Registry{cropper: cropper, entries: make(map[string]Entry)}
}

func (r *Registry) key(placeholder string) string {
	if r.cropper == nil {
		return placeholder
	}
	return r.cropper.CropLabelIdentifier(placeholder)
}

// Register records a mutation. Registering a placeholder again replaces the
// previous entry but keeps its position.
func (r *Registry) Register(placeholder string, target Target, cardinality Cardinality) {
	k := r.key(placeholder)
	if cardinality.Polymorphic() && target.MorphProperty == "" {
		target.MorphProperty = model.DefaultMorphProperty
	}
	if _, ok := r.entries[k]; !ok {
		r.order = append(r.order, k)
	}
	r.entries[k] = Entry{Placeholder: k, Target: target, Cardinality: cardinality}
}

func (r *Registry) RegisterOne(placeholder string, template *model.Entity) {
	r.Register(placeholder, Target{Template: template}, One)
}

func (r *Registry) RegisterMany(placeholder string, template *model.Entity) {
	r.Register(placeholder, Target{Template: template}, Many)
}

func (r *Registry) RegisterMorph(placeholder, morphProperty string) {
	r.Register(placeholder, Target{MorphProperty: morphProperty}, Morph)
}

func (r *Registry) RegisterEagerMorph(placeholder, morphProperty string) {
	r.Register(placeholder, Target{MorphProperty: morphProperty}, MorphEager)
}

func (r *Registry) IsRegistered(placeholder string) bool {
	_, ok := r.entries[r.key(placeholder)]
	return ok
}

// Lookup returns the entry of placeholder.
func (r *Registry) Lookup(placeholder string) (Entry, bool) {
	e, ok := r.entries[r.key(placeholder)]
	return e, ok
}

// CardinalityOf returns the cardinality of placeholder, or zero when unregistered.
func (r *Registry) CardinalityOf(placeholder string) Cardinality {
	return r.entries[r.key(placeholder)].Cardinality
}

// IsMany reports whether placeholder was explicitly registered as many.
func (r *Registry) IsMany(placeholder string) bool {
	return r.CardinalityOf(placeholder) == Many
}

func (r *Registry) IsPolymorphic(placeholder string) bool {
	return r.CardinalityOf(placeholder).Polymorphic()
}

// AllPolymorphic reports whether every registered mutation is polymorphic.
// An empty registry is not polymorphic.
func (r *Registry) AllPolymorphic() bool {
	if len(r.entries) == 0 {
		return false
	}
	for _, e := range r.entries {
		if !e.Cardinality.Polymorphic() {
			return false
		}
	}
	return true
}

// Entries returns the mutations in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

func (r *Registry) Len() int { return len(r.entries) }

// Clone returns an independent copy. Template entities are shared; they are
// never modified by rehydration.
func (r *Registry) Clone() *Registry {
	return &Registry{
		cropper: r.cropper,
		entries: maps.Clone(r.entries),
		order:   append([]string(nil), r.order...),
	}
}
