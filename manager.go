package neograph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/config"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/hydrate"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/logger"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// DefaultConnection is the connection name bound to rehydrated entities when
// none is configured.
const DefaultConnection = "default"

// Manager is the central orchestrator for the mapper.
// It owns the database runner, the registry of known schemas and the observers
// of the write path, and hands out query builders and relations.
type Manager struct {
	runner     DBRunner
	schemas    *model.Registry
	logger     logger.Logger
	connection string
	perPage    int
	pageName   string
	observers  observers
	now        func() time.Time
	newKey     func() string
	grammar    cypher.Grammar
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for executed statements.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithConnectionName sets the connection name bound to rehydrated entities.
func WithConnectionName(name string) Option {
	return func(m *Manager) {
		m.connection = name
	}
}

// WithObservers appends observers of the write path.
func WithObservers(obs ...Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, obs...)
	}
}

// WithClock overrides the time source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithKeyGenerator overrides the generator of keys for schemas declared WithUUIDKeys.
func WithKeyGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newKey = fn
	}
}

// WithPerPage overrides the page size of schemas using the default one.
func WithPerPage(n int) Option {
	return func(m *Manager) {
		m.perPage = n
	}
}

// WithPageName sets the page query parameter name reported by paginators.
func WithPageName(name string) Option {
	return func(m *Manager) {
		m.pageName = name
	}
}

// NewManager creates a Manager running its queries through runner. Every
// statically typed relation of schemas must target a registered schema.
func NewManager(runner DBRunner, schemas *model.Registry, opts ...Option) (*Manager, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if schemas == nil {
		schemas, _ = model.NewRegistry()
	}
	if err := schemas.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		runner:     runner,
		schemas:    schemas,
		logger:     logger.NewNoopLogger(),
		connection: DefaultConnection,
		pageName:   DefaultPageName,
		now:        time.Now,
		newKey:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewManagerFromConfig connects to the database described by cfg and builds a
// Manager logging with the configured format and level. Options given by the
// caller take precedence over the configuration.
func NewManagerFromConfig(cfg *config.Config, schemas *model.Registry, opts ...Option) (*Manager, error) {
	executor, err := NewNeo4jExecutorFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithLogger(log.With(zap.String("connection", cfg.Connection))),
		WithConnectionName(cfg.Connection),
		WithPerPage(cfg.PerPage),
		WithPageName(cfg.PageName),
	}
	return NewManager(executor, schemas, append(base, opts...)...)
}

// Schemas returns the registry of known schemas.
func (m *Manager) Schemas() *model.Registry { return m.schemas }

// Connection returns the name bound to rehydrated entities.
func (m *Manager) Connection() string { return m.connection }

// Observe appends observers of the write path.
func (m *Manager) Observe(obs ...Observer) {
	m.observers = append(m.observers, obs...)
}

// Close releases the runner when it holds resources.
func (m *Manager) Close(ctx context.Context) error {
	if c, ok := m.runner.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

// Query starts a builder on the schema registered under name. An unknown name
// is reported when the builder runs.
func (m *Manager) Query(name string) *Builder {
	schema, ok := m.schemas.Lookup(name)
	if !ok {
		return &Builder{manager: m, err: fmt.Errorf("neograph: schema %q is not registered", name)}
	}
	return m.For(schema)
}

// For starts a builder on schema.
func (m *Manager) For(schema *model.Schema) *Builder {
	return newBuilder(m, schema)
}

// Relation builds the relation name declared on the schema of parent,
// constrained to parent.
func (m *Manager) Relation(parent *model.Entity, name string, opts ...RelationOption) (Relation, error) {
	return newRelation(m, parent, name, true, opts...)
}

// Load eager loads the named relations onto entities already fetched.
// Dotted names load nested relations.
func (m *Manager) Load(ctx context.Context, entities model.Collection, relations ...string) error {
	loads := make([]eagerLoad, 0, len(relations))
	for _, name := range relations {
		loads = append(loads, eagerLoad{path: name})
	}
	return m.eagerLoad(ctx, entities, loads)
}

// CreateRelation creates a directed relationship between two existing entities in the database.
// Both ends are either entities or structs tagged with `crud`, matched on their key.
func (m *Manager) CreateRelation(ctx context.Context, fromEntity any, toEntity any, relType string, relProps map[string]any) error {
	_, err := m.createEdge(ctx, fromEntity, toEntity, relType, relProps)
	return err
}

// createEdge creates the edge and returns it as stored.
func (m *Manager) createEdge(ctx context.Context, from, to any, relType string, relProps map[string]any) (*neo4j.Relationship, error) {
	fromLabel, fromKey, fromVal, err := nodeRef(from)
	if err != nil {
		return nil, err
	}
	toLabel, toKey, toVal, err := nodeRef(to)
	if err != nil {
		return nil, err
	}
	if relProps == nil {
		relProps = map[string]any{}
	}

	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("a", fromLabel).WithProperties(map[string]any{fromKey: fromVal})).
		Match(gocypher.N("b", toLabel).WithProperties(map[string]any{toKey: toVal})).
		Create(
			gocypher.N("a", ""), // Reference the 'a' alias without its label
			gocypher.R("r", relType).To().WithProperties(relProps),
			gocypher.N("b", ""), // Reference the 'b' alias without its label
		).
		Return("r")

	query, params, err := qb.Build()
	if err != nil {
		return nil, err
	}
	result, err := m.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, &NotFoundError{Schema: fromLabel, Key: fromVal}
	}
	value, _ := result.Records[0].Get("r")
	switch rel := value.(type) {
	case neo4j.Relationship:
		return &rel, nil
	case *neo4j.Relationship:
		return rel, nil
	}
	return nil, fmt.Errorf("return value 'r' is not a relationship")
}

// nodeRef resolves the label, key property and key value of an entity or a
// tagged struct.
func nodeRef(v any) (string, string, any, error) {
	if e, ok := v.(*model.Entity); ok {
		if e == nil {
			return "", "", nil, fmt.Errorf("entity must be a non-nil pointer")
		}
		key := e.Key()
		if key == nil {
			return "", "", nil, fmt.Errorf("%s has no %s", e.Schema().Name(), e.Schema().Key())
		}
		return strings.Join(e.Labels(), ":"), e.Schema().Key(), key, nil
	}
	meta, props, err := model.PropertiesOf(v)
	if err != nil {
		return "", "", nil, err
	}
	return meta.Label, meta.KeyProp, props[meta.KeyProp], nil
}

// FindGraph executes a graph query defined by a gocypher.QueryBuilder and maps the result
// into a generic graph structure composed of nodes and edges.
//
// The caller is responsible for constructing a valid query via the QueryBuilder, including
// a RETURN clause that specifies which nodes, relationships and paths should be included in
// the final graph. For example, `RETURN u, r, p`.
//
// Returns:
//   - The de-duplicated nodes and edges of the result.
//   - An ErrNotFound error if the query executes successfully but returns zero records.
//   - Any other error encountered during query building or execution.
func (m *Manager) FindGraph(ctx context.Context, qb *gocypher.QueryBuilder) (*hydrate.Graph, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}
	return m.graph(ctx, query, params)
}

func (m *Manager) graph(ctx context.Context, query string, params map[string]any) (*hydrate.Graph, error) {
	result, err := m.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, ErrNotFound
	}
	return hydrate.NewGraph(result.Records), nil
}

// run executes a statement and logs it.
func (m *Manager) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	m.logger.DebugWithContext(ctx, "running cypher",
		zap.String("cypher", query),
		zap.String("connection", m.connection),
		zap.Int("params", len(params)),
	)
	result, err := m.runner.Run(ctx, query, params)
	if err != nil {
		m.logger.ErrorWithContext(ctx, "cypher failed", zap.String("cypher", query), zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (m *Manager) hydrator() *hydrate.Hydrator {
	return hydrate.New(m.schemas, m.connection)
}

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given Manager.
func RepositoryFor[T any](m *Manager) (*Repository[T], error) {
	return NewRepository[T](m)
}
