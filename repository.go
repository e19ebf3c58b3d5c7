package neograph

import (
	"context"
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// Repository provides a generic abstraction for CRUD operations for a specific
// entity type T. It relies on struct tags to map struct fields to node properties.
type Repository[T any] struct {
	manager *Manager
	meta    *model.Metadata
	schema  *model.Schema
}

// NewRepository creates a new generic repository for the type T.
// It parses the struct tags of T to understand its mapping to a Neo4j node. The
// schema registered under the struct label is used when there is one.
//
// Parameters:
//   - m: The Manager used to execute all Cypher queries.
//
// Returns:
//
//	A new Repository instance or an error if the struct tags are invalid.
func NewRepository[T any](m *Manager) (*Repository[T], error) {
	meta, err := model.MetadataFor[T]()
	if err != nil {
		return nil, err
	}
	schema, ok := m.schemas.Lookup(meta.Label)
	if !ok {
		if schema, err = model.SchemaFor[T](); err != nil {
			return nil, err
		}
	}
	return &Repository[T]{manager: m, meta: meta, schema: schema}, nil
}

// Schema returns the schema entities of T are read with.
func (r *Repository[T]) Schema() *model.Schema { return r.schema }

// Query starts a builder on the schema of T for queries the repository does not cover.
func (r *Repository[T]) Query() *Builder {
	return r.manager.For(r.schema)
}

// Save creates a new node or updates an existing one.
// It uses a MERGE query based on the struct's primary key (`pk` tag).
// All other tagged fields are set on the node.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	An error if the query building or execution fails.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	val := reflect.ValueOf(entity).Elem()
	pkValue := val.FieldByName(r.meta.KeyField).Interface()
	mergeProps := map[string]any{r.meta.KeyProp: pkValue}

	setProps := make(map[string]any)
	for fieldName, propName := range r.meta.Mappings {
		if fieldName != r.meta.KeyField {
			// The property is prefixed with 'n.' for the SET clause.
			setProps["n."+propName] = val.FieldByName(fieldName).Interface()
		}
	}

	qb := gocypher.NewQueryBuilder().Merge(gocypher.N("n", r.meta.Label).WithProperties(mergeProps))
	if len(setProps) > 0 {
		qb = qb.Set(setProps)
	}
	query, params, err := qb.Return("n").Build()
	if err != nil {
		return err
	}
	_, err = r.manager.run(ctx, query, params)
	return err
}

// FindByID retrieves a single entity from the database by its primary key.
//
// Returns:
//
//	A pointer to the found entity, ErrNotFound if no record is found, or another
//	error if the query or mapping fails.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	props := map[string]any{r.meta.KeyProp: id}
	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label).WithProperties(props)).
		Return("n")

	items, err := r.Find(ctx, qb)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, &NotFoundError{Schema: r.schema.Name(), Key: id}
	case 1:
		return items[0], nil
	}
	// This indicates a data integrity issue, as a primary key lookup should be unique.
	return nil, fmt.Errorf("expected 1 record but found %d", len(items))
}

// FindAll returns every entity of T.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	return r.scanAll(r.Query().Get(ctx))
}

// FindByProperty returns the entities whose property equals value.
func (r *Repository[T]) FindByProperty(ctx context.Context, property string, value any) ([]*T, error) {
	return r.scanAll(r.Query().Where(property, "=", value).Get(ctx))
}

// Find runs a custom query and maps the first node of every row onto T.
func (r *Repository[T]) Find(ctx context.Context, qb *gocypher.QueryBuilder) ([]*T, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}
	result, err := r.manager.run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	h := r.manager.hydrator()
	template := r.schema.New()
	entities := make(model.Collection, 0, len(result.Records))
	for _, record := range result.Records {
		for _, value := range record.Values {
			e, err := h.NewEntity(value, template)
			if err != nil {
				continue
			}
			entities = append(entities, e)
			break
		}
	}
	return r.scanAll(entities, nil)
}

// FindOne runs a custom query expected to return exactly one entity. It returns
// ErrNotFound for zero results and an error for more than one.
func (r *Repository[T]) FindOne(ctx context.Context, qb *gocypher.QueryBuilder) (*T, error) {
	items, err := r.Find(ctx, qb)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, &NotFoundError{Schema: r.schema.Name()}
	case 1:
		return items[0], nil
	}
	return nil, fmt.Errorf("expected 1 record but found %d", len(items))
}

// Count returns the number of entities of T.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.Query().Count(ctx)
}

// CountByProperty returns the number of entities whose property equals value.
func (r *Repository[T]) CountByProperty(ctx context.Context, property string, value any) (int64, error) {
	return r.Query().Where(property, "=", value).Count(ctx)
}

// Delete removes a node from the database by its primary key.
// It uses a DETACH DELETE query to also remove any relationships connected to the node.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	props := map[string]any{r.meta.KeyProp: id}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label).WithProperties(props)).
		DetachDelete("n").
		Build()
	if err != nil {
		return err
	}
	_, err = r.manager.run(ctx, query, params)
	return err
}

func (r *Repository[T]) scanAll(entities model.Collection, err error) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(entities))
	for _, e := range entities {
		item := new(T)
		if err := e.Scan(item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
