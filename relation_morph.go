package neograph

import (
	"context"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// morphRelation points at entities of any schema. The related schema of each
// edge is read from its discriminator property.
type morphRelation struct {
	*relation
}

func (r *morphRelation) match(joinValue any) {
	r.query.MatchMorphOut(r.parent.Schema(), r.relatedNode, r.decl.EdgeType, r.joinKey(), joinValue)
}

func (r *morphRelation) AddConstraints() error {
	done, err := r.constrain(constrainedBase)
	if err != nil || done {
		return err
	}
	value, err := r.parentJoinValue()
	if err != nil {
		return err
	}
	r.match(value)
	// The edge carries the discriminator and the parent anchors it.
	r.query.query.Select(r.parentNode, r.relatedNode, r.edgeNode)
	r.query.mutations.RegisterMorph(r.relatedNode, r.decl.MorphProperty)
	return r.query.Err()
}

func (r *morphRelation) AddEagerConstraints(parents model.Collection) error {
	done, err := r.constrain(constrainedEager)
	if err != nil || done {
		return err
	}
	r.match(nil)
	r.eagerConstraints(parents)
	r.query.mutations.RegisterEagerMorph(r.relatedNode, r.decl.MorphProperty)
	return r.query.Err()
}

func (r *morphRelation) Get(ctx context.Context) (model.Collection, error) {
	if err := r.AddConstraints(); err != nil {
		return nil, err
	}
	return r.query.Get(ctx)
}

func (r *morphRelation) First(ctx context.Context) (*model.Entity, error) {
	if err := r.AddConstraints(); err != nil {
		return nil, err
	}
	return r.query.First(ctx)
}

// hyperMorphRelation links the parent to related entities that are themselves
// linked to a third entity through the hyper edge type.
type hyperMorphRelation struct {
	edgeRelation
	morph *model.Entity
}

// morphPattern keeps the related entities linked to the morph entity.
func (r *hyperMorphRelation) morphPattern() {
	if r.morph == nil {
		return
	}
	q := r.query.query
	labels := r.morph.Labels()
	node := q.Unique(r.manager.grammar.ModelAsNode(labels))
	q.Relate(cypher.Match{
		Parent:        r.relatedNode,
		Related:       node,
		RelatedLabels: labels,
		EdgeType:      r.decl.HyperEdgeType,
		Direction:     model.Out,
	})
	q.Where(node+"."+r.morph.Schema().Key(), "=", r.morph.Key())
}

func (r *hyperMorphRelation) AddConstraints() error {
	done, err := r.constrain(constrainedBase)
	if err != nil || done {
		return err
	}
	value, err := r.parentJoinValue()
	if err != nil {
		return err
	}
	r.match(value)
	r.morphPattern()
	return r.query.Err()
}

func (r *hyperMorphRelation) AddEagerConstraints(parents model.Collection) error {
	if r.mode == constrainedEager {
		return nil
	}
	if err := r.edgeRelation.AddEagerConstraints(parents); err != nil {
		return err
	}
	r.morphPattern()
	return r.query.Err()
}

func (r *hyperMorphRelation) Get(ctx context.Context) (model.Collection, error) {
	if err := r.AddConstraints(); err != nil {
		return nil, err
	}
	return r.query.Get(ctx)
}

func (r *hyperMorphRelation) First(ctx context.Context) (*model.Entity, error) {
	if err := r.AddConstraints(); err != nil {
		return nil, err
	}
	return r.query.First(ctx)
}

func (r *hyperMorphRelation) Edge(related *model.Entity, attributes map[string]any) (*Edge, error) {
	e, err := r.edgeRelation.Edge(related, attributes)
	if err != nil {
		return nil, err
	}
	e.morph = r.morph
	return e, nil
}
