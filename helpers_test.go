package neograph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// fakeRunner records statements and replays canned results in order.
type fakeRunner struct {
	results []*neo4j.EagerResult
	err     error
	queries []string
	params  []map[string]any
}

func (f *fakeRunner) Run(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	f.queries = append(f.queries, query)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &neo4j.EagerResult{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func (f *fakeRunner) push(keys []string, rows ...[]any) *fakeRunner {
	result := &neo4j.EagerResult{Keys: keys}
	for _, values := range rows {
		result.Records = append(result.Records, &neo4j.Record{Keys: keys, Values: values})
	}
	f.results = append(f.results, result)
	return f
}

func (f *fakeRunner) pushCount(n int64) *fakeRunner {
	return f.push([]string{"aggregate"}, []any{n})
}

func row(values ...any) []any { return values }

func node(id string, label string, props map[string]any) neo4j.Node {
	return neo4j.Node{ElementId: id, Labels: []string{label}, Props: props}
}

func edge(id, typ string, start, end neo4j.Node, props map[string]any) neo4j.Relationship {
	return neo4j.Relationship{ElementId: id, StartElementId: start.ElementId, EndElementId: end.ElementId, Type: typ, Props: props}
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSchemas(t *testing.T) *model.Registry {
	t.Helper()
	registry, err := model.NewRegistry(
		model.NewSchema("User", model.WithFields("name", "email")).
			HasMany("posts", "Post", model.WithEdgeType("WROTE")).
			HasOne("profile", "Profile").
			BelongsToMany("followers", "User", model.WithEdgeType("FOLLOWS")).
			MorphToMany("likes", model.WithEdgeType("LIKES")).
			HyperMorph("comments", "Comment", model.WithEdgeType("COMMENTED"), model.WithHyperEdgeType("ON")),
		model.NewSchema("Post", model.WithFields("title", "views"), model.WithTimestamps()).
			BelongsTo("author", "User", model.WithEdgeType("WROTE")).
			HasMany("comments", "Comment").
			BelongsToMany("tags", "Tag"),
		model.NewSchema("Comment", model.WithUUIDKeys()).
			HasMany("likes", "Like"),
		model.NewSchema("Like"),
		model.NewSchema("Tag"),
		model.NewSchema("Profile"),
		model.NewSchema("Video"),
	)
	require.NoError(t, err)
	return registry
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	keys := 0
	base := []Option{
		WithClock(func() time.Time { return testClock }),
		WithKeyGenerator(func() string {
			keys++
			return fmt.Sprintf("key-%d", keys)
		}),
	}
	m, err := NewManager(runner, testSchemas(t), append(base, opts...)...)
	require.NoError(t, err)
	return m, runner
}

func entity(t *testing.T, m *Manager, schema string, attrs map[string]any) *model.Entity {
	t.Helper()
	s, ok := m.Schemas().Lookup(schema)
	require.True(t, ok, schema)
	e := s.New().ForceFill(attrs)
	e.SetExists(true)
	return e
}
