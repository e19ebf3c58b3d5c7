package neograph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

type recorder struct {
	events []string
	fail   Event
}

func (r *recorder) Observe(_ context.Context, event Event, entity *model.Entity) error {
	r.events = append(r.events, string(event)+":"+entity.Schema().Name())
	if event == r.fail {
		return errors.New("rejected")
	}
	return nil
}

func TestCreateWithCreatesAndAttaches(t *testing.T) {
	rec := &recorder{}
	m, runner := newTestManager(t, WithObservers(rec))
	runner.pushCount(1)
	runner.push([]string{"post", "comments", "tags"}, row(
		node("4:p:1", "Post", map[string]any{"title": "hello"}),
		[]any{node("4:c:1", "Comment", map[string]any{"id": "key-1", "body": "hi"})},
		[]any{node("4:t:1", "Tag", map[string]any{"id": "t1"})},
	))

	post, err := m.Query("Post").CreateWith(context.Background(),
		map[string]any{"title": "hello", "secret": "dropped"},
		map[string]any{
			"comments": []map[string]any{{"body": "hi"}},
			"tags":     "t1",
		})
	require.NoError(t, err)

	assert.Equal(t, "CREATE (post:`Post`) SET post = $post "+
		"CALL { WITH post UNWIND $comments_create AS props CREATE (post)-[:`COMMENTS`]->(n:`Comment`) SET n = props RETURN collect(n) AS comments_created } "+
		"CALL { WITH post MATCH (n:`Tag`) WHERE n.id IN $tags_attach CREATE (post)-[:`TAGS`]->(n) RETURN collect(n) AS tags_attached } "+
		"RETURN post, comments_created AS comments, tags_attached AS tags", runner.queries[1])
	assert.Equal(t, map[string]any{
		"post":            map[string]any{"title": "hello", "created_at": testClock, "updated_at": testClock},
		"comments_create": []any{map[string]any{"id": "key-1", "body": "hi"}},
		"tags_attach":     []any{"t1"},
	}, runner.params[1])

	assert.True(t, post.Exists())
	assert.Equal(t, "4:p:1", post.ElementID())
	assert.Equal(t, []any{"key-1"}, post.Many("comments").Keys())
	assert.Equal(t, []any{"t1"}, post.Many("tags").Keys())

	assert.Equal(t, []string{
		"creating:Post", "saving:Post",
		"creating:Comment", "saving:Comment",
		"created:Post", "saved:Post",
		"created:Comment", "saved:Comment",
	}, rec.events)
}

func TestCreateWithAttachedEntityEvents(t *testing.T) {
	rec := &recorder{}
	m, runner := newTestManager(t, WithObservers(rec))
	tag := entity(t, m, "Tag", map[string]any{"id": "t2"})
	runner.pushCount(1)
	runner.push([]string{"post", "tags"}, row(
		node("4:p:1", "Post", nil),
		[]any{node("4:t:2", "Tag", map[string]any{"id": "t2"})},
	))

	post, err := m.Query("Post").CreateWith(context.Background(), nil, map[string]any{"tags": []*model.Entity{tag, tag}})
	require.NoError(t, err)

	assert.Equal(t, []any{"t2"}, runner.params[1]["tags_attach"], "duplicates are attached once")
	assert.Len(t, post.Many("tags"), 1)
	assert.Equal(t, []string{"creating:Post", "saving:Post", "saving:Tag", "saving:Tag", "created:Post", "saved:Post", "saved:Tag"}, rec.events)
}

func TestCreateWithOneRelation(t *testing.T) {
	m, runner := newTestManager(t)
	author := entity(t, m, "User", map[string]any{"id": 7})
	runner.pushCount(1)
	runner.push([]string{"post", "author"}, row(
		node("4:p:1", "Post", nil),
		[]any{node("4:u:7", "User", map[string]any{"id": int64(7)})},
	))

	post, err := m.Query("Post").CreateWith(context.Background(), map[string]any{"title": "x"}, map[string]any{"author": author})
	require.NoError(t, err)
	assert.Contains(t, runner.queries[1], "CREATE (post)<-[:`WROTE`]-(n)")
	require.NotNil(t, post.One("author"))
	assert.Equal(t, int64(7), post.One("author").Key())
}

func TestCreateWithAbortsBeforeWriting(t *testing.T) {
	rec := &recorder{fail: EventSaving}
	m, runner := newTestManager(t, WithObservers(rec))

	_, err := m.Query("Post").Create(context.Background(), map[string]any{"title": "x"})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, EventSaving, aborted.Event)
	assert.Empty(t, runner.queries)
}

func TestCreateWithMissingAttachment(t *testing.T) {
	rec := &recorder{}
	m, runner := newTestManager(t, WithObservers(rec))
	runner.pushCount(1)

	_, err := m.Query("Post").CreateWith(context.Background(), map[string]any{"title": "x"},
		map[string]any{"tags": []string{"t1", "missing"}})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	require.Len(t, runner.queries, 1, "nothing is written once an attachment is missing")
	assert.Contains(t, runner.queries[0], "count(")
	assert.NotContains(t, runner.queries[0], "CREATE")
	assert.Empty(t, rec.events)
}

func TestCreateWithRejectsDeclarations(t *testing.T) {
	m, runner := newTestManager(t)
	author := entity(t, m, "User", map[string]any{"id": 1})
	other := entity(t, m, "User", map[string]any{"id": 2})

	tests := []struct {
		name      string
		schema    string
		relations map[string]any
		declared  bool
	}{
		{name: "undeclared", schema: "Post", relations: map[string]any{"likes": 1}, declared: true},
		{name: "polymorphic", schema: "User", relations: map[string]any{"likes": 1}, declared: true},
		{name: "many values for one", schema: "Post", relations: map[string]any{"author": []*model.Entity{author, other}}},
		{name: "wrong schema", schema: "Post", relations: map[string]any{"tags": author}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Query(tt.schema).CreateWith(context.Background(), nil, tt.relations)
			require.Error(t, err)
			assert.Equal(t, tt.declared, IsDeclarationError(err))
		})
	}
	assert.Empty(t, runner.queries)
}
