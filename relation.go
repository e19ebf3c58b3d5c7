package neograph

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/hydrate"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// Relation is a relationship declaration bound to a parent entity. It shapes a
// Builder on the related schema, either for the parent alone (AddConstraints)
// or for a batch of parents (AddEagerConstraints), and binds the results back
// onto the parents with Match.
type Relation interface {
	Kind() model.RelationKind
	Name() string
	Declaration() model.Relationship
	Parent() *model.Entity
	// Related returns the related schema, nil for polymorphic relations.
	Related() *model.Schema
	ParentNode() string
	RelatedNode() string
	EdgeNode() string
	EdgeType() string
	Direction() model.Direction
	Many() bool
	Query() *Builder

	AddConstraints() error
	AddEagerConstraints(parents model.Collection) error
	Match(parents model.Collection, results hydrate.Units) model.Collection

	Get(ctx context.Context) (model.Collection, error)
	First(ctx context.Context) (*model.Entity, error)
	Edge(related *model.Entity, attributes map[string]any) (*Edge, error)

	// pattern describes the relation between two placeholders, for has queries.
	pattern(parent, related string) cypher.Match
}

// RelationOption configures a relation built by Manager.Relation.
type RelationOption func(*relationOptions)

type relationOptions struct {
	morph *model.Entity
}

// WithMorph sets the third entity of a hyper morph relation. Reads keep the
// related entities linked to it; saved edges link the related entity to it.
func WithMorph(entity *model.Entity) RelationOption {
	return func(o *relationOptions) {
		o.morph = entity
	}
}

type constraintMode int

const (
	unconstrained constraintMode = iota
	constrainedBase
	constrainedEager
)

type relation struct {
	manager     *Manager
	decl        *model.Relationship
	parent      *model.Entity
	related     *model.Schema
	query       *Builder
	parentNode  string
	relatedNode string
	edgeNode    string
	mode        constraintMode
}

func newRelation(m *Manager, parent *model.Entity, name string, constrained bool, opts ...RelationOption) (Relation, error) {
	if parent == nil {
		return nil, fmt.Errorf("neograph: relation %s needs a parent entity", name)
	}
	schema := parent.Schema()
	decl, ok := schema.Relation(name)
	if !ok {
		return nil, &DeclarationError{Schema: schema.Name(), Relation: name, Reason: "relation is not declared"}
	}
	var o relationOptions
	for _, opt := range opts {
		opt(&o)
	}

	base := &relation{
		manager:     m,
		decl:        decl,
		parent:      parent,
		parentNode:  m.grammar.ModelAsNode(parent.Labels()),
		relatedNode: name,
	}
	if base.relatedNode == base.parentNode {
		base.relatedNode = "related_" + name
	}
	if decl.Kind.Polymorphic() {
		base.query = newMorphBuilder(m, base.relatedNode)
	} else {
		related, ok := m.schemas.Lookup(decl.Related)
		if !ok {
			return nil, &DeclarationError{
				Schema:   schema.Name(),
				Relation: name,
				Reason:   fmt.Sprintf("related schema %q is not registered", decl.Related),
			}
		}
		base.related = related
		base.query = m.For(related)
	}
	base.edgeNode = m.grammar.EdgePlaceholder(decl.EdgeType, base.relatedNode)

	var r Relation
	switch decl.Kind {
	case model.BelongsTo, model.HasOne, model.HasMany, model.BelongsToMany, model.MorphedByOne:
		r = &edgeRelation{relation: base}
	case model.MorphTo, model.MorphToMany:
		r = &morphRelation{relation: base}
	case model.HyperMorph:
		r = &hyperMorphRelation{edgeRelation: edgeRelation{relation: base}, morph: o.morph}
	default:
		return nil, &DeclarationError{Schema: schema.Name(), Relation: name, Reason: fmt.Sprintf("unsupported kind %s", decl.Kind)}
	}

	if constrained {
		if err := r.AddConstraints(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *relation) Kind() model.RelationKind { return r.decl.Kind }
func (r *relation) Name() string { return r.decl.Name }
func (r *relation) Declaration() model.Relationship { return *r.decl }
func (r *relation) Parent() *model.Entity { return r.parent }
func (r *relation) Related() *model.Schema { return r.related }
func (r *relation) ParentNode() string { return r.parentNode }
func (r *relation) RelatedNode() string { return r.relatedNode }
func (r *relation) EdgeNode() string { return r.edgeNode }
func (r *relation) EdgeType() string { return r.decl.EdgeType }
func (r *relation) Direction() model.Direction { return r.decl.Direction }
func (r *relation) Many() bool { return r.decl.Many }
func (r *relation) Query() *Builder { return r.query }

// joinKey is the parent attribute the constraints filter on.
func (r *relation) joinKey() string {
	if r.decl.JoinKey != "" {
		return r.decl.JoinKey
	}
	return r.parent.Schema().Key()
}

// constrain moves the relation into mode. It reports whether the relation was
// already in that mode.
func (r *relation) constrain(mode constraintMode) (bool, error) {
	switch r.mode {
	case unconstrained:
		r.mode = mode
		return false, nil
	case mode:
		return true, nil
	}
	return false, fmt.Errorf("%w: %s.%s", ErrRelationConstrained, r.parent.Schema().Name(), r.decl.Name)
}

// parentJoinValue returns the parent value the base constraints filter on.
func (r *relation) parentJoinValue() (any, error) {
	value := r.parent.Get(r.joinKey())
	if value == nil {
		return nil, fmt.Errorf("neograph: %s has no %s to constrain %s", r.parent.Schema().Name(), r.joinKey(), r.decl.Name)
	}
	return value, nil
}

// eagerConstraints filters the parents on the join values of the batch and
// projects both ends of the edge.
func (r *relation) eagerConstraints(parents model.Collection) {
	key := r.joinKey()
	seen := make(map[any]bool)
	values := make([]any, 0, len(parents))
	for _, p := range parents {
		v := p.Get(key)
		if v == nil || seen[normalizeKey(v)] {
			continue
		}
		seen[normalizeKey(v)] = true
		values = append(values, v)
	}
	q := r.query.query
	q.WhereIn(r.parentNode+"."+key, values)
	q.Select(r.parentNode, r.relatedNode, r.edgeNode)
	r.query.mutations.RegisterOne(r.parentNode, r.parent.Schema().New())
}

// Match binds the related entities of results onto parents, grouped by the
// parent join value in result order.
func (r *relation) Match(parents model.Collection, results hydrate.Units) model.Collection {
	key := r.joinKey()
	grouped := make(map[any]model.Collection)
	for _, u := range results {
		parent, related := u.Get(r.parentNode), u.Get(r.relatedNode)
		if parent == nil || related == nil {
			continue
		}
		k := normalizeKey(parent.Get(key))
		grouped[k] = append(grouped[k], related)
	}
	for _, parent := range parents {
		items := grouped[normalizeKey(parent.Get(key))]
		switch {
		case r.decl.Many && items == nil:
			parent.SetRelation(r.decl.Name, model.Collection{})
		case r.decl.Many:
			parent.SetRelation(r.decl.Name, items)
		case len(items) == 0:
			parent.SetRelation(r.decl.Name, nil)
		default:
			parent.SetRelation(r.decl.Name, items[0])
		}
	}
	return parents
}

func (r *relation) pattern(parent, related string) cypher.Match {
	var labels []string
	if r.related != nil {
		labels = r.related.Labels()
	}
	return cypher.Match{
		Parent:        parent,
		ParentLabels:  r.parent.Labels(),
		Related:       related,
		RelatedLabels: labels,
		EdgeType:      r.decl.EdgeType,
		Direction:     r.decl.Direction,
	}
}

func (r *relation) Edge(related *model.Entity, attributes map[string]any) (*Edge, error) {
	if related == nil {
		return nil, fmt.Errorf("neograph: edge %s needs a related entity", r.decl.Name)
	}
	if r.related != nil && related.Schema().Name() != r.related.Name() {
		return nil, fmt.Errorf("neograph: relation %s relates %s, got %s", r.decl.Name, r.related.Name(), related.Schema().Name())
	}
	attrs := maps.Clone(attributes)
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Edge{manager: r.manager, decl: r.decl, parent: r.parent, related: related, attributes: attrs}, nil
}

// normalizeKey makes join values of different numeric types compare equal.
func normalizeKey(v any) any {
	switch n := v.(type) {
	case nil, string, bool:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return normalizeFloat(float64(n))
	case float64:
		return normalizeFloat(n)
	}
	return fmt.Sprint(v)
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// edgeRelation covers the relations between two statically typed schemas.
type edgeRelation struct {
	*relation
}

func (r *edgeRelation) match(joinValue any) {
	parent := r.parent.Schema()
	if r.decl.Direction == model.In {
		r.query.MatchIn(parent, r.related, r.relatedNode, r.decl.EdgeType, r.joinKey(), joinValue)
		return
	}
	r.query.MatchOut(parent, r.related, r.relatedNode, r.decl.EdgeType, r.joinKey(), joinValue)
}

func (r *edgeRelation) AddConstraints() error {
	done, err := r.constrain(constrainedBase)
	if err != nil || done {
		return err
	}
	value, err := r.parentJoinValue()
	if err != nil {
		return err
	}
	r.match(value)
	return r.query.Err()
}

func (r *edgeRelation) AddEagerConstraints(parents model.Collection) error {
	done, err := r.constrain(constrainedEager)
	if err != nil || done {
		return err
	}
	r.match(nil)
	r.eagerConstraints(parents)
	if r.decl.Many {
		r.query.mutations.RegisterMany(r.relatedNode, r.related.New())
	} else {
		r.query.mutations.RegisterOne(r.relatedNode, r.related.New())
	}
	return r.query.Err()
}

func (r *edgeRelation) Get(ctx context.Context) (model.Collection, error) {
	if err := r.AddConstraints(); err != nil {
		return nil, err
	}
	return r.query.Get(ctx)
}

func (r *edgeRelation) First(ctx context.Context) (*model.Entity, error) {
	if err := r.AddConstraints(); err != nil {
		return nil, err
	}
	return r.query.First(ctx)
}
