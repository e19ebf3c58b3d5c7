package neograph

import (
	"context"
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

type eagerLoad struct {
	path       string
	constraint func(*Builder)
}

// With eager loads the named relations on every entity Get returns. Dotted
// names load nested relations, "posts.comments" loading posts first.
func (b *Builder) With(relations ...string) *Builder {
	for _, name := range relations {
		b.eager = append(b.eager, eagerLoad{path: name})
	}
	return b
}

// WithConstraint eager loads relation, letting fn constrain the related query.
// For a dotted name fn applies to the last segment.
func (b *Builder) WithConstraint(relation string, fn func(*Builder)) *Builder {
	b.eager = append(b.eager, eagerLoad{path: relation, constraint: fn})
	return b
}

type eagerNode struct {
	name       string
	constraint func(*Builder)
	nested     []eagerLoad
}

// eagerTree groups loads by their first segment, in order of appearance.
func eagerTree(loads []eagerLoad) []*eagerNode {
	var out []*eagerNode
	index := make(map[string]*eagerNode)
	for _, l := range loads {
		head, rest, nested := strings.Cut(l.path, ".")
		n, ok := index[head]
		if !ok {
			n = &eagerNode{name: head}
			index[head] = n
			out = append(out, n)
		}
		if nested {
			n.nested = append(n.nested, eagerLoad{path: rest, constraint: l.constraint})
		} else if l.constraint != nil {
			n.constraint = l.constraint
		}
	}
	return out
}

func (m *Manager) eagerLoad(ctx context.Context, parents model.Collection, loads []eagerLoad) error {
	for _, n := range eagerTree(loads) {
		children, err := m.loadRelation(ctx, parents, n.name, n.constraint)
		if err != nil {
			return err
		}
		if len(n.nested) > 0 && len(children) > 0 {
			if err := m.eagerLoad(ctx, children, n.nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadRelation fetches relation name for every parent in one query per parent
// schema and binds the results. It returns the related entities loaded.
func (m *Manager) loadRelation(ctx context.Context, parents model.Collection, name string, constraint func(*Builder)) (model.Collection, error) {
	var children model.Collection
	for _, group := range groupBySchema(parents) {
		rel, err := newRelation(m, group[0].Schema().New(), name, false)
		if err != nil {
			return nil, err
		}
		if err := rel.AddEagerConstraints(group); err != nil {
			return nil, err
		}
		if constraint != nil {
			constraint(rel.Query())
		}
		units, err := rel.Query().units(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not load %s: %w", name, err)
		}
		rel.Match(group, units)
		children = append(children, units.Entities(rel.RelatedNode())...)
	}
	return children, nil
}

func groupBySchema(entities model.Collection) []model.Collection {
	var out []model.Collection
	index := make(map[*model.Schema]int)
	for _, e := range entities {
		i, ok := index[e.Schema()]
		if !ok {
			i = len(out)
			index[e.Schema()] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], e)
	}
	return out
}
