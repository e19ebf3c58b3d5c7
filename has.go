package neograph

import (
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
)

// Has keeps the entities whose count of relation compares to count with op.
func (b *Builder) Has(relation, op string, count int) *Builder {
	return b.HasWhere(relation, op, count, "and", nil)
}

func (b *Builder) OrHas(relation, op string, count int) *Builder {
	return b.HasWhere(relation, op, count, "or", nil)
}

// DoesntHave keeps the entities without any relation.
func (b *Builder) DoesntHave(relation string) *Builder {
	return b.HasWhere(relation, "<", 1, "and", nil)
}

func (b *Builder) OrDoesntHave(relation string) *Builder {
	return b.HasWhere(relation, "<", 1, "or", nil)
}

// WhereHas keeps the entities with at least one relation matching fn.
func (b *Builder) WhereHas(relation string, fn func(*Builder)) *Builder {
	return b.HasWhere(relation, ">=", 1, "and", fn)
}

func (b *Builder) OrWhereHas(relation string, fn func(*Builder)) *Builder {
	return b.HasWhere(relation, ">=", 1, "or", fn)
}

// WhereDoesntHave keeps the entities without any relation matching fn.
func (b *Builder) WhereDoesntHave(relation string, fn func(*Builder)) *Builder {
	return b.HasWhere(relation, "<", 1, "and", fn)
}

// HasWhere is the general form of the has family. fn, when given, constrains
// the related entities counted; its unqualified columns refer to them. A dotted
// relation counts the last segment, requiring every previous one to exist:
// "posts.comments" keeps entities with a post having the requested comments.
func (b *Builder) HasWhere(relation, op string, count int, boolean string, fn func(*Builder)) *Builder {
	if b.Err() != nil {
		return b
	}
	if head, rest, nested := strings.Cut(relation, "."); nested {
		return b.HasWhere(head, ">=", 1, boolean, func(q *Builder) {
			q.HasWhere(rest, op, count, "and", fn)
		})
	}
	if b.schema == nil {
		return b.fail(fmt.Errorf("neograph: cannot count %s of a polymorphic query", relation))
	}

	rel, err := newRelation(b.manager, b.template, relation, false)
	if err != nil {
		return b.fail(err)
	}
	related := rel.Related()
	node := b.query.Unique(rel.RelatedNode())

	var sub *cypher.Query
	if fn != nil {
		if related == nil {
			return b.fail(fmt.Errorf("neograph: cannot constrain polymorphic relation %s", relation))
		}
		sub = b.query.Sub(node, related.Labels())
		inner := b.derive(sub, related)
		fn(inner)
		if inner.err != nil {
			return b.fail(inner.err)
		}
	}
	b.query.Has(rel.pattern(b.query.Node(), node), sub, op, count, boolean)
	return b
}
