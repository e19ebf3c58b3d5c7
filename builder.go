package neograph

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/hydrate"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/mutation"
)

// Builder queries the entities of one schema. It owns a pattern query and the
// mutations that tell the hydrator how to rebuild the returned rows.
//
// Builder methods record the first error and keep returning the builder, so
// calls can be chained; the error surfaces when the builder runs.
type Builder struct {
	manager   *Manager
	schema    *model.Schema
	template  *model.Entity
	query     *cypher.Query
	mutations *mutation.Registry
	eager     []eagerLoad
	pageName  string
	err       error
}

func newBuilder(m *Manager, schema *model.Schema) *Builder {
	labels := schema.Labels()
	return &Builder{
		manager:   m,
		schema:    schema,
		template:  schema.New(),
		query:     cypher.New(m.grammar.ModelAsNode(labels), labels),
		mutations: mutation.NewRegistry(m.grammar),
	}
}

// newMorphBuilder starts a builder on an untyped placeholder. Its entities are
// resolved from edge discriminators.
func newMorphBuilder(m *Manager, node string) *Builder {
	return &Builder{
		manager:   m,
		query:     cypher.New(node, nil),
		mutations: mutation.NewRegistry(m.grammar),
	}
}

// derive returns a builder sharing everything but the query.
func (b *Builder) derive(q *cypher.Query, schema *model.Schema) *Builder {
	d := &Builder{manager: b.manager, schema: schema, query: q, mutations: mutation.NewRegistry(b.manager.grammar)}
	if schema != nil {
		d.template = schema.New()
	}
	return d
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil && err != nil {
		b.err = err
	}
	return b
}

// Schema returns the schema queried, nil for polymorphic relation queries.
func (b *Builder) Schema() *model.Schema { return b.schema }

// Query returns the underlying pattern query.
func (b *Builder) Query() *cypher.Query { return b.query }

// Mutations returns the hydration instructions registered so far.
func (b *Builder) Mutations() *mutation.Registry { return b.mutations }

// Node returns the primary placeholder.
func (b *Builder) Node() string { return b.query.Node() }

// Err returns the first error recorded by the builder or its query.
func (b *Builder) Err() error {
	if b.err != nil {
		return b.err
	}
	return b.query.Err()
}

// Clone returns an independent copy. Filters, mutations and eager loads added
// to the copy do not affect b.
func (b *Builder) Clone() *Builder {
	c := *b
	c.query = b.query.Clone()
	c.mutations = b.mutations.Clone()
	c.eager = append([]eagerLoad(nil), b.eager...)
	return &c
}

// ToCypher compiles the query without running it.
func (b *Builder) ToCypher() (string, map[string]any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return b.query.Compile()
}

func (b *Builder) Where(column, op string, value any) *Builder {
	b.query.Where(column, op, value)
	return b
}

func (b *Builder) OrWhere(column, op string, value any) *Builder {
	b.query.OrWhere(column, op, value)
	return b
}

func (b *Builder) WhereIn(column string, values any) *Builder {
	b.query.WhereIn(column, values)
	return b
}

func (b *Builder) OrWhereIn(column string, values any) *Builder {
	b.query.OrWhereIn(column, values)
	return b
}

func (b *Builder) WhereNotIn(column string, values any) *Builder {
	b.query.WhereNotIn(column, values)
	return b
}

func (b *Builder) WhereNull(column string) *Builder {
	b.query.WhereNull(column)
	return b
}

func (b *Builder) WhereNotNull(column string) *Builder {
	b.query.WhereNotNull(column)
	return b
}

func (b *Builder) OrWhereNull(column string) *Builder {
	b.query.OrWhereNull(column)
	return b
}

// WhereNested groups the conditions added by fn in parentheses.
func (b *Builder) WhereNested(fn func(*Builder)) *Builder {
	return b.whereNested(fn, false)
}

func (b *Builder) OrWhereNested(fn func(*Builder)) *Builder {
	return b.whereNested(fn, true)
}

func (b *Builder) whereNested(fn func(*Builder), or bool) *Builder {
	var inner *Builder
	group := func(q *cypher.Query) {
		inner = b.derive(q, b.schema)
		fn(inner)
	}
	if or {
		b.query.OrWhereNested(group)
	} else {
		b.query.WhereNested(group)
	}
	if inner != nil {
		b.fail(inner.err)
	}
	return b
}

// WhereKey filters the primary node on its schema key.
func (b *Builder) WhereKey(value any) *Builder {
	if b.schema == nil {
		return b.fail(fmt.Errorf("neograph: polymorphic query has no key"))
	}
	return b.Where(b.schema.Key(), "=", value)
}

// WhereElementID filters the primary node on its graph identity.
func (b *Builder) WhereElementID(id string) *Builder {
	b.query.WhereElementID("", id)
	return b
}

// Select replaces the projection with placeholders or expressions.
func (b *Builder) Select(columns ...string) *Builder {
	b.query.Select(columns...)
	return b
}

func (b *Builder) OrderBy(column, direction string) *Builder {
	b.query.OrderBy(column, direction)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.query.Limit(n)
	return b
}

func (b *Builder) Skip(n int) *Builder {
	b.query.Skip(n)
	return b
}

func (b *Builder) ForPage(page, perPage int) *Builder {
	b.query.ForPage(page, perPage)
	return b
}

func (b *Builder) Distinct() *Builder {
	b.query.Distinct()
	return b
}

// MatchIn matches the entities of related pointing at parent through edgeType
// and makes them the primary placeholder. A non-nil joinValue filters parent on
// joinAttr.
func (b *Builder) MatchIn(parent, related *model.Schema, relatedNode, edgeType, joinAttr string, joinValue any) *Builder {
	return b.matchRelation(parent, related.Labels(), relatedNode, edgeType, joinAttr, joinValue, model.In)
}

// MatchOut is MatchIn for edges leaving parent.
func (b *Builder) MatchOut(parent, related *model.Schema, relatedNode, edgeType, joinAttr string, joinValue any) *Builder {
	return b.matchRelation(parent, related.Labels(), relatedNode, edgeType, joinAttr, joinValue, model.Out)
}

// MatchMorphOut matches untyped nodes parent points at. An empty edgeType
// matches edges of any type.
func (b *Builder) MatchMorphOut(parent *model.Schema, relatedNode, edgeType, joinAttr string, joinValue any) *Builder {
	return b.matchRelation(parent, nil, relatedNode, edgeType, joinAttr, joinValue, model.Out)
}

func (b *Builder) matchRelation(parent *model.Schema, relatedLabels []string, relatedNode, edgeType, joinAttr string, joinValue any, dir model.Direction) *Builder {
	parentLabels := parent.Labels()
	parentNode := b.manager.grammar.ModelAsNode(parentLabels)
	b.query.Relate(cypher.Match{
		Parent:        parentNode,
		ParentLabels:  parentLabels,
		Related:       relatedNode,
		RelatedLabels: relatedLabels,
		EdgeType:      edgeType,
		Direction:     dir,
	})
	if joinValue != nil {
		b.query.Where(parentNode+"."+joinAttr, "=", joinValue)
	}
	b.query.From(relatedNode)
	b.query.Select(relatedNode)
	return b
}

// Get runs the query and returns the entities bound to the primary placeholder.
// Columns that are not placeholders restrict the returned attributes.
func (b *Builder) Get(ctx context.Context, columns ...string) (model.Collection, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	q, muts := b.query, b.mutations
	if len(columns) > 0 || muts.Len() == 0 {
		q, muts = q.Clone(), muts.Clone()
	}
	if len(columns) > 0 {
		project(q, columns)
	}
	if muts.Len() == 0 {
		if b.template == nil {
			return nil, fmt.Errorf("neograph: no hydration registered for %s", q.Node())
		}
		muts.RegisterOne(q.Node(), b.template)
	}

	units, err := b.run(ctx, q, muts)
	if err != nil {
		return nil, err
	}
	entities := units.Entities(q.Node())
	if entities == nil {
		entities = model.Collection{}
	}
	if len(b.eager) > 0 && len(entities) > 0 {
		if err := b.manager.eagerLoad(ctx, entities, b.eager); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// project selects columns. Names that are not placeholders become a map
// projection of the primary node keeping its graph identity.
func project(q *cypher.Query, columns []string) {
	var selected, attrs []string
	for _, c := range columns {
		c = strings.TrimSpace(c)
		switch {
		case c == "" || c == "*":
		case q.IsDeclared(c) || strings.ContainsAny(c, "(.{ "):
			selected = append(selected, c)
		default:
			attrs = append(attrs, "."+c)
		}
	}
	if len(attrs) > 0 {
		node := q.Node()
		attrs = append(attrs, model.ElementIDAttribute+": elementId("+node+")")
		selected = append([]string{node + " {" + strings.Join(attrs, ", ") + "} AS " + node}, selected...)
	}
	if len(selected) > 0 {
		q.Select(selected...)
	}
}

// units runs the query with the mutations registered on the builder.
func (b *Builder) units(ctx context.Context) (hydrate.Units, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	return b.run(ctx, b.query, b.mutations)
}

// run compiles and executes q, then hydrates the rows with muts.
func (b *Builder) run(ctx context.Context, q *cypher.Query, muts *mutation.Registry) (hydrate.Units, error) {
	query, params, err := q.Compile()
	if err != nil {
		return nil, err
	}
	result, err := b.manager.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return b.manager.hydrator().Hydrate(result.Records, muts)
}

// First returns the first matching entity or a NotFoundError.
func (b *Builder) First(ctx context.Context, columns ...string) (*model.Entity, error) {
	c := b.Clone()
	c.query.Limit(1)
	items, err := c.Get(ctx, columns...)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &NotFoundError{Schema: b.schemaName()}
	}
	return items[0], nil
}

// Find returns the entity whose key is id.
func (b *Builder) Find(ctx context.Context, id any, columns ...string) (*model.Entity, error) {
	c := b.Clone().WhereKey(id)
	e, err := c.First(ctx, columns...)
	if IsNotFound(err) {
		return nil, &NotFoundError{Schema: b.schemaName(), Key: id}
	}
	return e, err
}

// FindMany returns the entities whose key is one of ids.
func (b *Builder) FindMany(ctx context.Context, ids []any, columns ...string) (model.Collection, error) {
	if b.schema == nil {
		return nil, fmt.Errorf("neograph: polymorphic query has no key")
	}
	return b.Clone().WhereIn(b.schema.Key(), ids).Get(ctx, columns...)
}

// Count returns the number of distinct primary nodes matched.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	if err := b.Err(); err != nil {
		return 0, err
	}
	query, params, err := b.query.CompileCount()
	if err != nil {
		return 0, err
	}
	return b.aggregate(ctx, query, params)
}

// Update sets values on every matched node and returns how many were updated.
// The update timestamp is refreshed for schemas with timestamps.
func (b *Builder) Update(ctx context.Context, values map[string]any) (int64, error) {
	if err := b.Err(); err != nil {
		return 0, err
	}
	values = maps.Clone(values)
	if values == nil {
		values = map[string]any{}
	}
	if b.schema != nil && b.schema.Timestamps() {
		values[model.UpdatedAt] = b.manager.now().UTC()
	}
	query, params, err := b.query.CompileUpdate(values)
	if err != nil {
		return 0, err
	}
	return b.aggregate(ctx, query, params)
}

// Delete detaches and deletes every matched node.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	if err := b.Err(); err != nil {
		return 0, err
	}
	query, params, err := b.query.CompileDelete()
	if err != nil {
		return 0, err
	}
	return b.aggregate(ctx, query, params)
}

func (b *Builder) aggregate(ctx context.Context, query string, params map[string]any) (int64, error) {
	result, err := b.manager.run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	value, ok := result.Records[0].Get(cypher.AggregateColumn)
	if !ok {
		return 0, fmt.Errorf("could not find return value '%s' in query result", cypher.AggregateColumn)
	}
	n, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("return value '%s' is %T, not an integer", cypher.AggregateColumn, value)
	}
	return n, nil
}

// Graph runs the query and returns the raw nodes and edges it projects.
func (b *Builder) Graph(ctx context.Context) (*hydrate.Graph, error) {
	query, params, err := b.ToCypher()
	if err != nil {
		return nil, err
	}
	return b.manager.graph(ctx, query, params)
}

func (b *Builder) schemaName() string {
	if b.schema == nil {
		return b.query.Node()
	}
	return b.schema.Name()
}

func (b *Builder) perPage() int {
	if b.schema == nil {
		return model.DefaultPerPage
	}
	if n := b.schema.PerPage(); n != model.DefaultPerPage || b.manager.perPage <= 0 {
		return n
	}
	return b.manager.perPage
}
