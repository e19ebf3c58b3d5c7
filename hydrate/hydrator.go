// Package hydrate rebuilds entities from the rows a query returns, guided by
// the mutations registered while the query was built.
package hydrate

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/mutation"
)

// Unit is one rehydrated result: a single entity tagged with its placeholder,
// or the pair of entities at both ends of one matched edge.
type Unit struct {
	Placeholder string
	Entity      *model.Entity
	Pair        map[string]*model.Entity
	Edge        *neo4j.Relationship
}

// IsPair reports whether the unit came from an edge row.
func (u Unit) IsPair() bool { return u.Pair != nil }

// Get returns the entity bound to placeholder.
func (u Unit) Get(placeholder string) *model.Entity {
	if u.Pair != nil {
		return u.Pair[placeholder]
	}
	if u.Placeholder == placeholder {
		return u.Entity
	}
	return nil
}

// Units is an ordered list of result units.
type Units []Unit

// ByPlaceholder groups single entities and pair members by placeholder,
// preserving order.
func (us Units) ByPlaceholder() map[string]model.Collection {
	out := make(map[string]model.Collection)
	for _, u := range us {
		if u.Pair == nil {
			out[u.Placeholder] = append(out[u.Placeholder], u.Entity)
			continue
		}
		for k, e := range u.Pair {
			out[k] = append(out[k], e)
		}
	}
	return out
}

// Entities returns the entities bound to placeholder, in order.
func (us Units) Entities(placeholder string) model.Collection {
	var out model.Collection
	for _, u := range us {
		if e := u.Get(placeholder); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Hydrator turns driver records into entities. Polymorphic targets are resolved
// through schemas; rehydrated entities are bound to connection.
type Hydrator struct {
	schemas    *model.Registry
	connection string
}

func New(schemas *model.Registry, connection string) *Hydrator {
	return &Hydrator{schemas: schemas, connection: connection}
}

type node struct {
	elementID string
	props     map[string]any
}

// asNode accepts driver nodes and map projections carrying the reserved
// element id attribute.
func asNode(v any) (node, bool) {
	switch n := v.(type) {
	case neo4j.Node:
		return node{elementID: n.ElementId, props: n.Props}, true
	case *neo4j.Node:
		if n == nil {
			return node{}, false
		}
		return node{elementID: n.ElementId, props: n.Props}, true
	case map[string]any:
		id, ok := n[model.ElementIDAttribute].(string)
		if !ok {
			return node{}, false
		}
		props := make(map[string]any, len(n))
		for k, val := range n {
			if k != model.ElementIDAttribute {
				props[k] = val
			}
		}
		return node{elementID: id, props: props}, true
	}
	return node{}, false
}

type edgeRow struct {
	row int
	rel neo4j.Relationship
}

// partition splits records by logical placeholder, one value per row, and
// collects the distinct edges in row order.
func partition(records []*neo4j.Record, mutations *mutation.Registry) (map[string][]any, []string, []edgeRow) {
	byPlaceholder := make(map[string][]any)
	var keys []string
	var edges []edgeRow
	seen := make(map[string]bool)

	for i, rec := range records {
		for j, key := range rec.Keys {
			k := key
			if mutations != nil {
				if e, ok := mutations.Lookup(key); ok {
					k = e.Placeholder
				}
			}
			if _, ok := byPlaceholder[k]; !ok {
				byPlaceholder[k] = make([]any, len(records))
				keys = append(keys, k)
			}
			var v any
			if j < len(rec.Values) {
				v = rec.Values[j]
			}
			byPlaceholder[k][i] = v

			var rel neo4j.Relationship
			switch r := v.(type) {
			case neo4j.Relationship:
				rel = r
			case *neo4j.Relationship:
				if r == nil {
					continue
				}
				rel = *r
			default:
				continue
			}
			if !seen[rel.ElementId] {
				seen[rel.ElementId] = true
				edges = append(edges, edgeRow{row: i, rel: rel})
			}
		}
	}
	return byPlaceholder, keys, edges
}

// Hydrate rebuilds the result units of records. With edges in the result and
// mutations registered, every distinct edge yields one unit; otherwise every
// distinct node of a registered placeholder does.
func (h *Hydrator) Hydrate(records []*neo4j.Record, mutations *mutation.Registry) (Units, error) {
	byPlaceholder, keys, edges := partition(records, mutations)
	if len(edges) > 0 && mutations.Len() > 0 {
		return h.hydrateEdges(byPlaceholder, keys, edges, mutations)
	}
	return h.hydrateNodes(byPlaceholder, keys, len(records), mutations)
}

func (h *Hydrator) hydrateNodes(byPlaceholder map[string][]any, keys []string, rows int, mutations *mutation.Registry) (Units, error) {
	var units Units
	seen := make(map[string]map[string]bool)
	for row := 0; row < rows; row++ {
		for _, k := range keys {
			entry, ok := mutations.Lookup(k)
			if !ok {
				continue
			}
			if entry.Cardinality.Polymorphic() {
				return nil, &UnresolvableMorphError{Placeholder: k, Property: entry.Target.MorphProperty}
			}
			for _, v := range flatten(byPlaceholder[k][row]) {
				n, ok := asNode(v)
				if !ok {
					continue
				}
				if seen[k] == nil {
					seen[k] = make(map[string]bool)
				}
				if seen[k][n.elementID] {
					continue
				}
				seen[k][n.elementID] = true
				e, err := h.entity(k, n, entry)
				if err != nil {
					return nil, err
				}
				units = append(units, Unit{Placeholder: k, Entity: e})
			}
		}
	}
	return units, nil
}

func (h *Hydrator) hydrateEdges(byPlaceholder map[string][]any, keys []string, edges []edgeRow, mutations *mutation.Registry) (Units, error) {
	first := edges[0]
	start := locate(byPlaceholder, keys, first.row, first.rel.StartElementId)
	end := locate(byPlaceholder, keys, first.row, first.rel.EndElementId)
	if start == "" || end == "" {
		return nil, &CorruptResultError{Row: first.row, Reason: fmt.Sprintf("endpoints of edge %s are not projected", first.rel.ElementId)}
	}

	// An untyped polymorphic pattern matches edges of any type.
	if !mutations.IsPolymorphic(start) && !mutations.IsPolymorphic(end) {
		for _, e := range edges[1:] {
			if e.rel.Type != first.rel.Type {
				return nil, &CorruptResultError{Row: e.row, Reason: fmt.Sprintf("mixed edge types %s and %s", first.rel.Type, e.rel.Type)}
			}
		}
	}

	units := make(Units, 0, len(edges))
	for _, e := range edges {
		startNode, ok1 := asNode(byPlaceholder[start][e.row])
		endNode, ok2 := asNode(byPlaceholder[end][e.row])
		if !ok1 || !ok2 || startNode.elementID != e.rel.StartElementId || endNode.elementID != e.rel.EndElementId {
			return nil, &CorruptResultError{Row: e.row, Reason: fmt.Sprintf("edge %s does not connect %s and %s", e.rel.ElementId, start, end)}
		}

		rel := e.rel
		unit := Unit{Pair: make(map[string]*model.Entity, 2), Edge: &rel}
		morph, other, morphNode, otherNode := end, start, endNode, startNode
		if !mutations.IsPolymorphic(end) && mutations.IsPolymorphic(start) {
			morph, other, morphNode, otherNode = start, end, startNode, endNode
		}

		if entry, ok := mutations.Lookup(morph); ok && entry.Cardinality.Polymorphic() {
			source := morphNode
			if len(source.props) == 0 {
				source.props = otherNode.props
			}
			entity, err := h.morph(morph, entry, rel, source)
			if err != nil {
				return nil, err
			}
			if entry.Cardinality == mutation.Morph {
				units = append(units, Unit{Placeholder: morph, Entity: entity, Edge: &rel})
				continue
			}
			unit.Pair[morph] = entity
			if oe, ok := mutations.Lookup(other); ok {
				if unit.Pair[other], err = h.entity(other, otherNode, oe); err != nil {
					return nil, err
				}
			}
			units = append(units, unit)
			continue
		}

		for _, side := range []struct {
			placeholder string
			n           node
		}{{start, startNode}, {end, endNode}} {
			entry, ok := mutations.Lookup(side.placeholder)
			if !ok {
				continue
			}
			entity, err := h.entity(side.placeholder, side.n, entry)
			if err != nil {
				return nil, err
			}
			unit.Pair[side.placeholder] = entity
		}
		if len(unit.Pair) == 0 {
			return nil, &CorruptResultError{Row: e.row, Reason: fmt.Sprintf("no mutation registered for %s or %s", start, end)}
		}
		units = append(units, unit)
	}
	return units, nil
}

func (h *Hydrator) morph(placeholder string, entry mutation.Entry, rel neo4j.Relationship, n node) (*model.Entity, error) {
	prop := entry.Target.MorphProperty
	value, ok := rel.Props[prop]
	if !ok || value == nil {
		return nil, &UnresolvableMorphError{Placeholder: placeholder, Property: prop}
	}
	name, ok := value.(string)
	if !ok || h.schemas == nil {
		return nil, &UnresolvableMorphError{Placeholder: placeholder, Property: prop, Value: value}
	}
	schema, ok := h.schemas.Lookup(name)
	if !ok {
		return nil, &UnresolvableMorphError{Placeholder: placeholder, Property: prop, Value: value}
	}
	return h.newEntity(n, schema.New()), nil
}

// locate finds the placeholder holding the node with elementID, looking at row
// first and at every other row after.
func locate(byPlaceholder map[string][]any, keys []string, row int, elementID string) string {
	for _, k := range keys {
		if n, ok := asNode(byPlaceholder[k][row]); ok && n.elementID == elementID {
			return k
		}
	}
	for _, k := range keys {
		for _, v := range byPlaceholder[k] {
			if n, ok := asNode(v); ok && n.elementID == elementID {
				return k
			}
		}
	}
	return ""
}

// NewEntity builds a persisted entity from a node. Attributes already set on
// template take precedence over the node properties.
func (h *Hydrator) NewEntity(v any, template *model.Entity) (*model.Entity, error) {
	n, ok := asNode(v)
	if !ok {
		return nil, fmt.Errorf("hydrate: %T is not a node", v)
	}
	if template == nil {
		return nil, fmt.Errorf("hydrate: template entity is required")
	}
	return h.newEntity(n, template), nil
}

func (h *Hydrator) entity(placeholder string, n node, entry mutation.Entry) (*model.Entity, error) {
	if entry.Target.Template == nil {
		return nil, fmt.Errorf("hydrate: mutation of %q has no template entity", placeholder)
	}
	return h.newEntity(n, entry.Target.Template), nil
}

func (h *Hydrator) newEntity(n node, template *model.Entity) *model.Entity {
	e := template.NewInstance()
	e.ForceFill(n.props)
	e.ForceFill(template.Properties())
	e.SetElementID(n.elementID)
	e.SetConnection(h.connection)
	e.SetExists(true)
	return e
}

// Group hydrates every registered placeholder into a collection, flattening
// list values and skipping nodes already seen under the same placeholder. It
// serves write queries returning collected nodes.
func (h *Hydrator) Group(records []*neo4j.Record, mutations *mutation.Registry) (map[string]model.Collection, error) {
	byPlaceholder, keys, _ := partition(records, mutations)
	out := make(map[string]model.Collection)
	for _, k := range keys {
		entry, ok := mutations.Lookup(k)
		if !ok {
			continue
		}
		if entry.Cardinality.Polymorphic() {
			return nil, &UnresolvableMorphError{Placeholder: k, Property: entry.Target.MorphProperty}
		}
		seen := make(map[string]bool)
		for _, v := range byPlaceholder[k] {
			for _, item := range flatten(v) {
				n, ok := asNode(item)
				if !ok || seen[n.elementID] {
					continue
				}
				seen[n.elementID] = true
				e, err := h.entity(k, n, entry)
				if err != nil {
					return nil, err
				}
				out[k] = append(out[k], e)
			}
		}
	}
	return out, nil
}

func flatten(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	if v == nil {
		return nil
	}
	return []any{v}
}
