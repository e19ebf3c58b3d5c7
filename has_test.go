package neograph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCountsRelated(t *testing.T) {
	m, runner := newTestManager(t)
	runner.push([]string{"post"},
		row(node("4:p:1", "Post", map[string]any{"id": int64(1), "title": "busy"})),
	)

	posts, err := m.Query("Post").Has("comments", ">=", 2).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "busy", posts[0].Get("title"))

	assert.Equal(t, "MATCH (post:`Post`) OPTIONAL MATCH (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) "+
		"WITH post, count(DISTINCT comments) AS comments_count WHERE comments_count >= $comments_count RETURN post", runner.queries[0])
	assert.Equal(t, map[string]any{"comments_count": 2}, runner.params[0])
}

func TestHasVariants(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		name     string
		build    func(*Builder) *Builder
		expected string
	}{
		{
			name:  "doesnt have",
			build: func(b *Builder) *Builder { return b.DoesntHave("posts") },
			expected: "MATCH (user:`User`) OPTIONAL MATCH (user)-[rel_wrote_posts:`WROTE`]->(posts:`Post`) " +
				"WITH user, count(DISTINCT posts) AS posts_count WHERE posts_count < $posts_count RETURN user",
		},
		{
			name:  "or has",
			build: func(b *Builder) *Builder { return b.Has("posts", ">", 3).OrHas("followers", ">=", 10) },
			expected: "MATCH (user:`User`) OPTIONAL MATCH (user)-[rel_wrote_posts:`WROTE`]->(posts:`Post`) " +
				"OPTIONAL MATCH (user)-[rel_follows_followers:`FOLLOWS`]->(followers:`User`) " +
				"WITH user, count(DISTINCT posts) AS posts_count, count(DISTINCT followers) AS followers_count " +
				"WHERE posts_count > $posts_count OR followers_count >= $followers_count RETURN user",
		},
		{
			name:  "polymorphic without constraint",
			build: func(b *Builder) *Builder { return b.Has("likes", ">=", 1) },
			expected: "MATCH (user:`User`) OPTIONAL MATCH (user)-[rel_likes_likes:`LIKES`]->(likes) " +
				"WITH user, count(DISTINCT likes) AS likes_count WHERE likes_count >= $likes_count RETURN user",
		},
		{
			name: "where doesnt have",
			build: func(b *Builder) *Builder {
				return b.Where("name", "=", "ada").WhereDoesntHave("posts", func(q *Builder) { q.Where("views", ">", 100) })
			},
			expected: "MATCH (user:`User`) WHERE user.name = $user_name " +
				"OPTIONAL MATCH (user)-[rel_wrote_posts:`WROTE`]->(posts:`Post`) WHERE (posts.views > $posts_views) " +
				"WITH user, count(DISTINCT posts) AS posts_count WHERE posts_count < $posts_count RETURN user",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cypher, _, err := tt.build(m.Query("User")).ToCypher()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cypher)
		})
	}
}

func TestWhereHasNested(t *testing.T) {
	m, _ := newTestManager(t)

	cypher, params, err := m.Query("User").
		WhereHas("posts.comments", func(q *Builder) { q.Where("approved", "=", true) }).
		ToCypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (user:`User`) "+
		"OPTIONAL MATCH (user)-[rel_wrote_posts:`WROTE`]->(posts:`Post`) "+
		"OPTIONAL MATCH (posts)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) WHERE (comments.approved = $comments_approved) "+
		"WITH user, posts, count(DISTINCT comments) AS comments_count "+
		"WITH user, CASE WHEN comments_count >= $comments_count THEN posts END AS posts "+
		"WITH user, count(DISTINCT posts) AS posts_count WHERE posts_count >= $posts_count RETURN user", cypher)
	assert.Equal(t, map[string]any{"comments_approved": true, "comments_count": 1, "posts_count": 1}, params)
}

func TestWhereDoesntHaveNestedHas(t *testing.T) {
	m, runner := newTestManager(t)
	runner.push([]string{"user"},
		row(node("4:u:1", "User", map[string]any{"id": int64(1), "name": "quiet"})),
	)

	users, err := m.Query("User").
		WhereDoesntHave("posts", func(q *Builder) { q.Has("comments", ">=", 1) }).
		Get(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)

	assert.Equal(t, "MATCH (user:`User`) "+
		"OPTIONAL MATCH (user)-[rel_wrote_posts:`WROTE`]->(posts:`Post`) "+
		"OPTIONAL MATCH (posts)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) "+
		"WITH user, posts, count(DISTINCT comments) AS comments_count "+
		"WITH user, CASE WHEN comments_count >= $comments_count THEN posts END AS posts "+
		"WITH user, count(DISTINCT posts) AS posts_count WHERE posts_count < $posts_count RETURN user", runner.queries[0])
	assert.NotContains(t, runner.queries[0], "WHERE comments_count")
	assert.Equal(t, map[string]any{"comments_count": 1, "posts_count": 1}, runner.params[0])
}

func TestHasErrors(t *testing.T) {
	m, runner := newTestManager(t)

	_, err := m.Query("User").Has("friends", ">=", 1).Get(context.Background())
	assert.True(t, IsDeclarationError(err))

	_, err = m.Query("User").WhereHas("likes", func(q *Builder) { q.Where("url", "=", "x") }).Get(context.Background())
	assert.Error(t, err)

	_, err = m.Query("User").Has("posts", "~", 1).Get(context.Background())
	assert.Error(t, err)

	assert.Empty(t, runner.queries)
}
