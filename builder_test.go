package neograph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

func TestBuilderCompilesFilters(t *testing.T) {
	m, _ := newTestManager(t)

	cypher, params, err := m.Query("Post").
		Where("title", "starts with", "Go").
		WhereNested(func(q *Builder) {
			q.Where("views", ">", 10).OrWhereNull("views")
		}).
		OrderBy("title", "desc").
		Limit(5).
		ToCypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title STARTS WITH $post_title AND (post.views > $post_views OR post.views IS NULL) RETURN post ORDER BY post.title DESC LIMIT 5", cypher)
	assert.Equal(t, map[string]any{"post_title": "Go", "post_views": 10}, params)
}

func TestBuilderUnknownSchema(t *testing.T) {
	m, runner := newTestManager(t)

	_, err := m.Query("Missing").Where("x", "=", 1).Get(context.Background())
	require.Error(t, err)
	assert.Empty(t, runner.queries)
}

func TestBuilderRecordsReferenceErrors(t *testing.T) {
	m, runner := newTestManager(t)

	_, err := m.Query("Post").Where("author.name", "=", "a").Get(context.Background())
	assert.True(t, cypher.IsReferenceError(err))
	assert.Empty(t, runner.queries)
}

func TestGetHydratesEntities(t *testing.T) {
	m, runner := newTestManager(t)
	runner.push([]string{"post"},
		row(node("4:p:1", "Post", map[string]any{"id": int64(1), "title": "a"})),
		row(node("4:p:2", "Post", map[string]any{"id": int64(2), "title": "b"})),
	)

	posts, err := m.Query("Post").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, []string{"MATCH (post:`Post`) RETURN post"}, runner.queries)
	assert.Equal(t, []any{"a", "b"}, posts.Pluck("title"))
	assert.Equal(t, "4:p:1", posts[0].ElementID())
	assert.True(t, posts[0].Exists())
	assert.Equal(t, DefaultConnection, posts[0].Connection())
	assert.Equal(t, "Post", posts[0].Schema().Name())
}

func TestGetSelectsAttributes(t *testing.T) {
	m, runner := newTestManager(t, WithConnectionName("reporting"))
	runner.push([]string{"post"},
		row(map[string]any{"title": "a", model.ElementIDAttribute: "4:p:1"}),
	)

	posts, err := m.Query("Post").Get(context.Background(), "title")
	require.NoError(t, err)
	require.Len(t, posts, 1)

	assert.Equal(t, "MATCH (post:`Post`) RETURN post {.title, _elementId: elementId(post)} AS post", runner.queries[0])
	assert.Equal(t, map[string]any{"title": "a"}, posts[0].Properties())
	assert.Equal(t, "4:p:1", posts[0].ElementID())
	assert.Equal(t, "reporting", posts[0].Connection())
}

func TestFind(t *testing.T) {
	m, runner := newTestManager(t)
	runner.push([]string{"post"}, row(node("4:p:7", "Post", map[string]any{"id": int64(7)})))

	post, err := m.Query("Post").Find(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), post.Key())
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.id = $post_id RETURN post LIMIT 1", runner.queries[0])
	assert.Equal(t, map[string]any{"post_id": 7}, runner.params[0])

	_, err = m.Query("Post").Find(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Post", notFound.Schema)
	assert.Equal(t, 8, notFound.Key)
}

func TestFindMany(t *testing.T) {
	m, runner := newTestManager(t)

	posts, err := m.Query("Post").FindMany(context.Background(), []any{1, 2})
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.NotNil(t, posts)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.id IN $post_id RETURN post", runner.queries[0])
}

func TestCountUpdateDelete(t *testing.T) {
	m, runner := newTestManager(t)
	runner.pushCount(3).pushCount(1).pushCount(2)

	n, err := m.Query("Post").Where("views", ">", 1).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.views > $post_views RETURN count(DISTINCT post) AS aggregate", runner.queries[0])

	n, err = m.Query("Post").WhereKey(1).Update(context.Background(), map[string]any{"title": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.id = $post_id SET post.title = $post_title, post.updated_at = $post_updated_at RETURN count(DISTINCT post) AS aggregate", runner.queries[1])
	assert.Equal(t, testClock, runner.params[1]["post_updated_at"])

	n, err = m.Query("Tag").WhereIn("name", []string{"go"}).Delete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "MATCH (tag:`Tag`) WHERE tag.name IN $tag_name DETACH DELETE tag RETURN count(*) AS aggregate", runner.queries[2])
}

func TestCloneIsolation(t *testing.T) {
	m, _ := newTestManager(t)
	b := m.Query("Post").Where("title", "=", "a")
	before, beforeParams, err := b.ToCypher()
	require.NoError(t, err)

	c := b.Clone().Where("views", ">", 1).Has("comments", ">=", 1).With("tags")
	c.Mutations().RegisterOne("post", c.Schema().New())

	after, afterParams, err := b.ToCypher()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeParams, afterParams)
	assert.Equal(t, 0, b.Mutations().Len())
	assert.Empty(t, b.eager)

	cloned, _, err := c.ToCypher()
	require.NoError(t, err)
	assert.NotEqual(t, before, cloned)
}

func TestPaginate(t *testing.T) {
	m, runner := newTestManager(t)
	runner.pushCount(31).push([]string{"post"}, row(node("4:p:31", "Post", map[string]any{"id": int64(31)})))

	page, err := m.Query("Post").OrderBy("id", "asc").Paginate(context.Background(), 0, 3)
	require.NoError(t, err)

	assert.Equal(t, "MATCH (post:`Post`) RETURN count(DISTINCT post) AS aggregate", runner.queries[0])
	assert.Equal(t, "MATCH (post:`Post`) RETURN post ORDER BY post.id ASC SKIP 30 LIMIT 15", runner.queries[1])
	assert.Equal(t, int64(31), page.Total)
	assert.Equal(t, 15, page.PerPage)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Equal(t, DefaultPageName, page.PageName)
	assert.Equal(t, 3, page.LastPage())
	assert.False(t, page.HasMorePages())
	assert.False(t, page.OnFirstPage())
	assert.Len(t, page.Items, 1)
}

func TestPaginateBeyondTotalSkipsFetch(t *testing.T) {
	m, runner := newTestManager(t, WithPerPage(10))
	runner.pushCount(5)

	page, err := m.Query("Tag").Paginate(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, runner.queries, 1)
	assert.Equal(t, 10, page.PerPage)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.LastPage())
}

func TestPaginatePageName(t *testing.T) {
	m, runner := newTestManager(t, WithPageName("posts_page"))
	runner.pushCount(0).pushCount(0)

	page, err := m.Query("Post").Paginate(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, "posts_page", page.PageName)

	page, err = m.Query("Post").PageName("p").Paginate(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, "p", page.PageName)
	assert.Len(t, runner.queries, 2)
}

func TestRunnerErrorsPropagate(t *testing.T) {
	m, runner := newTestManager(t)
	runner.err = errors.New("connection refused")

	_, err := m.Query("Post").Get(context.Background())
	assert.ErrorIs(t, err, runner.err)
}

func TestGraph(t *testing.T) {
	m, runner := newTestManager(t)
	u := node("4:u:1", "User", map[string]any{"id": int64(1)})
	p := node("4:p:1", "Post", map[string]any{"id": int64(1)})
	runner.push([]string{"user", "posts", "rel_wrote_posts"}, row(u, p, edge("5:w:1", "WROTE", u, p, nil)))

	user, _ := m.Schemas().Lookup("User")
	post, _ := m.Schemas().Lookup("Post")
	b := m.For(post).MatchOut(user, post, "posts", "WROTE", "id", 1)
	b.Select("user", "posts", "rel_wrote_posts")
	graph, err := b.Graph(context.Background())
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, "MATCH (user:`User`), (user)-[rel_wrote_posts:`WROTE`]->(posts:`Post`) WHERE user.id = $user_id RETURN user, posts, rel_wrote_posts", runner.queries[0])

	_, err = m.Query("Post").Graph(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}
