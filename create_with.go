package neograph

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/mutation"
)

// Create creates one entity of the builder schema from attributes.
func (b *Builder) Create(ctx context.Context, attributes map[string]any) (*model.Entity, error) {
	return b.CreateWith(ctx, attributes, nil)
}

// relationWrite is the part of a CreateWith touching one relation.
type relationWrite struct {
	decl    *model.Relationship
	related *model.Schema
	create  model.Collection
	// attach holds the keys of existing entities, entities keeps the existing
	// entity values among them for events.
	attach   []any
	entities model.Collection
}

// CreateWith creates an entity of the builder schema from attributes along with
// its relations in a single statement. Each relation value is an attribute map,
// an entity, a bare key or a slice of those: maps and new entities are created,
// existing entities and bare keys are attached by key.
//
// Attach keys are counted before anything is written and a missing one
// fails with a NotFoundError. Observers are told creating and saving for every
// new entity, and saving for attached entities, before the write; an error
// aborts it. Created and saved
// follow the write. Bare keys fire no events.
//
// The created entity is returned with its relations set.
func (b *Builder) CreateWith(ctx context.Context, attributes map[string]any, relations map[string]any) (*model.Entity, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	if b.schema == nil {
		return nil, fmt.Errorf("neograph: cannot create entities of a polymorphic query")
	}
	m := b.manager
	parent := b.schema.New().Fill(attributes)
	m.prepareNew(parent)

	writes, err := b.planWrites(relations)
	if err != nil {
		return nil, err
	}
	if err := b.verifyAttachments(ctx, writes); err != nil {
		return nil, err
	}

	for _, event := range []Event{EventCreating, EventSaving} {
		if err := m.observers.fire(ctx, event, parent); err != nil {
			return nil, err
		}
	}
	for _, w := range writes {
		for _, e := range w.create {
			for _, event := range []Event{EventCreating, EventSaving} {
				if err := m.observers.fire(ctx, event, e); err != nil {
					return nil, err
				}
			}
		}
		for _, e := range w.entities {
			if err := m.observers.fire(ctx, EventSaving, e); err != nil {
				return nil, err
			}
		}
	}

	node := m.grammar.ModelAsNode(b.schema.Labels())
	query, params, muts := b.compileCreate(node, parent, writes)
	result, err := m.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	groups, err := m.hydrator().Group(result.Records, muts)
	if err != nil {
		return nil, err
	}
	created := groups[node].First()
	if created == nil {
		return nil, fmt.Errorf("neograph: create %s returned no entity", b.schema.Name())
	}

	for _, w := range writes {
		items := groups[w.decl.Name]
		if len(items) < len(w.create)+len(w.attach) {
			return nil, &NotFoundError{Schema: w.related.Name(), Key: w.attach}
		}
		if w.decl.Many {
			if items == nil {
				items = model.Collection{}
			}
			created.SetRelation(w.decl.Name, items)
		} else {
			created.SetRelation(w.decl.Name, items.First())
		}
	}

	for _, event := range []Event{EventCreated, EventSaved} {
		if err := m.observers.fire(ctx, event, created); err != nil {
			return nil, err
		}
	}
	for _, w := range writes {
		items := groups[w.decl.Name]
		existing := make(map[any]bool, len(w.entities))
		for _, e := range w.entities {
			existing[normalizeKey(e.Key())] = true
		}
		for i, e := range items {
			events := []Event{EventCreated, EventSaved}
			if i >= len(w.create) {
				if !existing[normalizeKey(e.Key())] {
					continue
				}
				events = events[1:]
			}
			for _, event := range events {
				if err := m.observers.fire(ctx, event, e); err != nil {
					return nil, err
				}
			}
		}
	}
	return created, nil
}

// verifyAttachments counts the existing entities behind the attach keys so a
// missing one fails the create before anything is written.
func (b *Builder) verifyAttachments(ctx context.Context, writes []*relationWrite) error {
	for _, w := range writes {
		if len(w.attach) == 0 {
			continue
		}
		n, err := b.manager.For(w.related).WhereIn(w.related.Key(), w.attach).Count(ctx)
		if err != nil {
			return fmt.Errorf("relation %s: %w", w.decl.Name, err)
		}
		if n < int64(len(w.attach)) {
			return &NotFoundError{Schema: w.related.Name(), Key: w.attach}
		}
	}
	return nil
}

// planWrites classifies the relation values, in relation name order.
func (b *Builder) planWrites(relations map[string]any) ([]*relationWrite, error) {
	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	sort.Strings(names)

	node := b.manager.grammar.ModelAsNode(b.schema.Labels())
	writes := make([]*relationWrite, 0, len(names))
	for _, name := range names {
		decl, ok := b.schema.Relation(name)
		if !ok {
			return nil, &DeclarationError{Schema: b.schema.Name(), Relation: name, Reason: "relation is not declared"}
		}
		if decl.Kind.Polymorphic() {
			return nil, &DeclarationError{Schema: b.schema.Name(), Relation: name, Reason: "polymorphic relations cannot be created with their parent"}
		}
		if name == node {
			return nil, &DeclarationError{Schema: b.schema.Name(), Relation: name, Reason: "relation name collides with the entity placeholder"}
		}
		related, ok := b.manager.schemas.Lookup(decl.Related)
		if !ok {
			return nil, &DeclarationError{Schema: b.schema.Name(), Relation: name, Reason: fmt.Sprintf("related schema %q is not registered", decl.Related)}
		}

		w := &relationWrite{decl: decl, related: related}
		values := relationValues(relations[name])
		if !decl.Many && len(values) > 1 {
			return nil, fmt.Errorf("neograph: relation %s.%s takes a single entity, got %d", b.schema.Name(), name, len(values))
		}
		for _, v := range values {
			if err := w.add(b.manager, v); err != nil {
				return nil, fmt.Errorf("relation %s: %w", name, err)
			}
		}
		writes = append(writes, w)
	}
	return writes, nil
}

// add classifies one value as created or attached.
func (w *relationWrite) add(m *Manager, value any) error {
	switch v := value.(type) {
	case map[string]any:
		e := w.related.New().Fill(v)
		m.prepareNew(e)
		w.create = append(w.create, e)
	case *model.Entity:
		if v.Schema().Name() != w.related.Name() {
			return fmt.Errorf("expected %s, got %s", w.related.Name(), v.Schema().Name())
		}
		if !v.Exists() {
			m.prepareNew(v)
			w.create = append(w.create, v)
			return nil
		}
		if v.Key() == nil {
			return fmt.Errorf("existing %s has no %s", w.related.Name(), w.related.Key())
		}
		w.attachKey(v.Key())
		w.entities = append(w.entities, v)
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		w.attachKey(v)
	default:
		e, err := model.EntityFrom(w.related, v)
		if err != nil {
			return fmt.Errorf("unsupported value %T: %w", value, err)
		}
		m.prepareNew(e)
		w.create = append(w.create, e)
	}
	return nil
}

func (w *relationWrite) attachKey(key any) {
	if slices.ContainsFunc(w.attach, func(k any) bool { return normalizeKey(k) == normalizeKey(key) }) {
		return
	}
	w.attach = append(w.attach, key)
}

func relationValues(v any) []any {
	switch vs := v.(type) {
	case nil:
		return nil
	case []any:
		return vs
	case []map[string]any:
		return toAny(vs)
	case model.Collection:
		return toAny(vs)
	case []*model.Entity:
		return toAny(vs)
	case []string:
		return toAny(vs)
	case []int:
		return toAny(vs)
	case []int64:
		return toAny(vs)
	}
	return []any{v}
}

func toAny[T any](in []T) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}

// compileCreate renders the parent CREATE followed by one sub query per set of
// created or attached entities, each returning the collected nodes.
func (b *Builder) compileCreate(node string, parent *model.Entity, writes []*relationWrite) (string, map[string]any, *mutation.Registry) {
	g := b.manager.grammar
	muts := mutation.NewRegistry(g)
	muts.RegisterMany(node, b.schema.New())
	params := map[string]any{node: parent.Properties()}

	var sb strings.Builder
	sb.WriteString("CREATE " + g.NodePattern(node, b.schema.Labels()) + " SET " + node + " = $" + node)
	columns := []string{node}
	for _, w := range writes {
		name := w.decl.Name
		edge := "-[:`" + strings.ReplaceAll(w.decl.EdgeType, "`", "``") + "`]->"
		if w.decl.Direction == model.In {
			edge = "<-[:`" + strings.ReplaceAll(w.decl.EdgeType, "`", "``") + "`]-"
		}
		var parts []string
		if len(w.create) > 0 {
			props := make([]any, 0, len(w.create))
			for _, e := range w.create {
				props = append(props, e.Properties())
			}
			params[name+"_create"] = props
			sb.WriteString(" CALL { WITH " + node + " UNWIND $" + name + "_create AS props CREATE (" + node + ")" + edge +
				g.NodePattern("n", w.related.Labels()) + " SET n = props RETURN collect(n) AS " + name + "_created }")
			parts = append(parts, name+"_created")
		}
		if len(w.attach) > 0 {
			params[name+"_attach"] = w.attach
			sb.WriteString(" CALL { WITH " + node + " MATCH " + g.NodePattern("n", w.related.Labels()) + " WHERE n." + w.related.Key() +
				" IN $" + name + "_attach CREATE (" + node + ")" + edge + "(n) RETURN collect(n) AS " + name + "_attached }")
			parts = append(parts, name+"_attached")
		}
		if len(parts) == 0 {
			continue
		}
		columns = append(columns, strings.Join(parts, " + ")+" AS "+name)
		muts.RegisterMany(name, w.related.New())
	}
	sb.WriteString(" RETURN " + strings.Join(columns, ", "))
	return sb.String(), params, muts
}

// prepareNew fills the generated key and the timestamps of a new entity.
func (m *Manager) prepareNew(e *model.Entity) {
	s := e.Schema()
	if s.UUIDKeys() && e.Key() == nil {
		e.Set(s.Key(), m.newKey())
	}
	if s.Timestamps() {
		now := m.now().UTC()
		if _, ok := e.Lookup(model.CreatedAt); !ok {
			e.Set(model.CreatedAt, now)
		}
		e.Set(model.UpdatedAt, now)
	}
}
