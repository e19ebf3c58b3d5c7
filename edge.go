package neograph

import (
	"context"
	"fmt"
	"maps"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// Edge is one edge of a relation between a parent and a related entity.
type Edge struct {
	manager    *Manager
	decl       *model.Relationship
	parent     *model.Entity
	related    *model.Entity
	morph      *model.Entity
	attributes map[string]any
	stored     *neo4j.Relationship
}

func (e *Edge) Type() string { return e.decl.EdgeType }

func (e *Edge) Parent() *model.Entity { return e.parent }

func (e *Edge) Related() *model.Entity { return e.related }

func (e *Edge) Get(key string) any { return e.attributes[key] }

func (e *Edge) Set(key string, value any) *Edge {
	e.attributes[key] = value
	return e
}

// Attributes returns a copy of the edge properties.
func (e *Edge) Attributes() map[string]any { return maps.Clone(e.attributes) }

// Exists reports whether the edge was saved.
func (e *Edge) Exists() bool { return e.stored != nil }

// ElementID returns the graph identity of the saved edge.
func (e *Edge) ElementID() string {
	if e.stored == nil {
		return ""
	}
	return e.stored.ElementId
}

// Save creates the edge. Edges of one-cardinality relations are unique, so
// the parent's previous edges of the same type are removed first. Morph edges
// record the related schema under the discriminator property.
func (e *Edge) Save(ctx context.Context) error {
	if e.stored != nil {
		return fmt.Errorf("neograph: edge %s already saved", e.decl.EdgeType)
	}
	if e.decl.EdgeType == "" {
		return &DeclarationError{Schema: e.parent.Schema().Name(), Relation: e.decl.Name, Reason: "untyped relations cannot save edges"}
	}
	for _, end := range []*model.Entity{e.parent, e.related, e.morph} {
		if end != nil && end.Key() == nil {
			return fmt.Errorf("neograph: %s has no %s", end.Schema().Name(), end.Schema().Key())
		}
	}
	if e.decl.UniqueEdge() {
		if err := e.detachExisting(ctx); err != nil {
			return err
		}
	}

	props := maps.Clone(e.attributes)
	if e.decl.Kind.Polymorphic() {
		props[e.decl.MorphProperty] = e.related.Schema().Name()
	}
	from, to := e.parent, e.related
	if e.decl.Direction == model.In {
		from, to = to, from
	}
	rel, err := e.manager.createEdge(ctx, from, to, e.decl.EdgeType, props)
	if err != nil {
		return fmt.Errorf("could not save edge %s: %w", e.decl.EdgeType, err)
	}
	e.stored = rel

	if e.morph != nil {
		if _, err := e.manager.createEdge(ctx, e.related, e.morph, e.decl.HyperEdgeType, nil); err != nil {
			return fmt.Errorf("could not save edge %s: %w", e.decl.HyperEdgeType, err)
		}
	}
	return nil
}

// Delete removes the saved edge.
func (e *Edge) Delete(ctx context.Context) error {
	if e.stored == nil {
		return fmt.Errorf("neograph: edge %s was not saved", e.decl.EdgeType)
	}
	q := e.parentQuery()
	q.WhereElementID("r", e.stored.ElementId)
	if _, err := e.run(ctx, q); err != nil {
		return err
	}
	e.stored = nil
	return nil
}

func (e *Edge) detachExisting(ctx context.Context) error {
	q := e.parentQuery()
	_, err := e.run(ctx, q)
	return err
}

// parentQuery matches the edges of this type around the parent, bound to r.
func (e *Edge) parentQuery() *cypher.Query {
	g := e.manager.grammar
	labels := e.parent.Labels()
	node := g.ModelAsNode(labels)
	q := cypher.New(node, labels).Where(e.parent.Schema().Key(), "=", e.parent.Key())
	q.Relate(cypher.Match{
		Parent:    node,
		Related:   "target",
		Edge:      "r",
		EdgeType:  e.decl.EdgeType,
		Direction: e.decl.Direction,
	})
	return q
}

func (e *Edge) run(ctx context.Context, q *cypher.Query) (*neo4j.EagerResult, error) {
	query, params, err := q.CompileDeleteEdge("r")
	if err != nil {
		return nil, err
	}
	return e.manager.run(ctx, query, params)
}
