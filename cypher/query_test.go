package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

func TestGrammar(t *testing.T) {
	t.Parallel()
	g := Grammar{}

	assert.Equal(t, "post", g.ModelAsNode([]string{"Post"}))
	assert.Equal(t, "user_admin", g.ModelAsNode([]string{"User", "Admin"}))
	assert.Equal(t, "blog_post", g.ModelAsNode([]string{"BlogPost"}))

	for _, in := range []string{"post", "`post`", "`post`:`Post`", "(post:Post)", " post:Post:Admin "} {
		assert.Equal(t, "post", g.CropLabelIdentifier(in), in)
	}

	assert.Equal(t, ":`User`:`Admin`", g.WrapLabels([]string{"User", "Admin"}))
	assert.Equal(t, "rel_wrote_author", g.EdgePlaceholder("WROTE", "author"))
}

func TestWhereNamespacesColumns(t *testing.T) {
	q := New("post", []string{"Post"}).
		Where("title", "=", "x").
		OrWhere("views", ">", 10).
		Where("deleted_at", "=", nil)

	cypher, params, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title = $post_title OR post.views > $post_views AND post.deleted_at IS NULL RETURN post", cypher)
	assert.Equal(t, map[string]any{"post_title": "x", "post_views": 10}, params)
}

func TestWhereDeduplicatesParameters(t *testing.T) {
	q := New("post", []string{"Post"}).
		Where("title", "=", "a").
		OrWhere("title", "=", "b").
		WhereIn("id", []any{1, 2}).
		WhereNotIn("id", []any{3})

	cypher, params, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title = $post_title OR post.title = $post_title_1 AND post.id IN $post_id AND NOT post.id IN $post_id_1 RETURN post", cypher)
	assert.Len(t, params, 4)
}

func TestWhereNested(t *testing.T) {
	q := New("post", []string{"Post"}).
		Where("published", "=", true).
		WhereNested(func(q *Query) {
			q.Where("title", "=", "a").OrWhereNull("title")
		})

	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.published = $post_published AND (post.title = $post_title OR post.title IS NULL) RETURN post", cypher)
}

func TestUnknownPlaceholderIsAReferenceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func(q *Query)
	}{
		{name: "where", build: func(q *Query) { q.Where("author.name", "=", "a") }},
		{name: "order", build: func(q *Query) { q.OrderBy("author.name", "asc") }},
		{name: "select", build: func(q *Query) { q.Select("author") }},
		{name: "from", build: func(q *Query) { q.From("author") }},
		{name: "element id", build: func(q *Query) { q.WhereElementID("author", "x") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New("post", []string{"Post"})
			tt.build(q)
			_, _, err := q.Compile()
			require.Error(t, err)
			assert.True(t, IsReferenceError(err))
			assert.False(t, q.IsDeclared("author"))
		})
	}
}

func TestInvalidOperator(t *testing.T) {
	q := New("post", []string{"Post"}).Where("title", "LIKE", "x")
	var opErr *OperatorError
	require.ErrorAs(t, q.Err(), &opErr)
	assert.Equal(t, "LIKE", opErr.Operator)

	op, ok := NormalizeOperator("starts with")
	assert.True(t, ok)
	assert.Equal(t, "STARTS WITH", op)
}

func TestRelateOut(t *testing.T) {
	q := New("comment", []string{"Comment"})
	q.Relate(Match{
		Parent:        "post",
		ParentLabels:  []string{"Post"},
		Related:       "comments",
		RelatedLabels: []string{"Comment"},
		EdgeType:      "COMMENTS",
		Direction:     model.Out,
	})
	q.Where("post.id", "=", 1).Where("approved", "=", true)

	assert.Equal(t, "comments", q.Node())
	assert.False(t, q.IsDeclared("comment"))
	assert.Equal(t, []string{"post", "comments", "rel_comments_comments"}, q.Placeholders())

	cypher, params, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`), (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) WHERE post.id = $post_id AND comments.approved = $comments_approved RETURN comments", cypher)
	assert.Equal(t, map[string]any{"post_id": 1, "comments_approved": true}, params)
}

func TestRelateInWithSelfParent(t *testing.T) {
	q := New("user", []string{"User"})
	q.Relate(Match{
		Parent:        "user",
		ParentLabels:  []string{"User"},
		Related:       "followers",
		RelatedLabels: []string{"User"},
		EdgeType:      "FOLLOWS",
		Direction:     model.In,
	})
	q.From("followers")
	q.Select("user", "followers", "rel_follows_followers")

	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (user:`User`), (user)<-[rel_follows_followers:`FOLLOWS`]-(followers:`User`) RETURN user, followers, rel_follows_followers", cypher)
}

func TestRelateMorphOmitsRelatedLabels(t *testing.T) {
	q := New("likes", nil)
	q.Relate(Match{Parent: "user", ParentLabels: []string{"User"}, Related: "likes", EdgeType: "LIKES", Direction: model.Out})
	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (user:`User`), (user)-[rel_likes_likes:`LIKES`]->(likes) RETURN likes", cypher)
}

func TestRelateTwiceIsADuplicate(t *testing.T) {
	q := New("post", []string{"Post"})
	m := Match{Parent: "post", Related: "tags", RelatedLabels: []string{"Tag"}, EdgeType: "TAGS", Direction: model.Out}
	q.Relate(m).Relate(m)

	var refErr *ReferenceError
	require.ErrorAs(t, q.Err(), &refErr)
	assert.True(t, refErr.Duplicate)
}

func commentsMatch(related string) Match {
	return Match{Parent: "post", Related: related, RelatedLabels: []string{"Comment"}, EdgeType: "COMMENTS", Direction: model.Out}
}

func TestHasAddsCountStage(t *testing.T) {
	q := New("post", []string{"Post"}).Has(commentsMatch("comments"), nil, ">=", 2, "and")

	cypher, params, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) OPTIONAL MATCH (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) WITH post, count(DISTINCT comments) AS comments_count WHERE comments_count >= $comments_count RETURN post", cypher)
	assert.Equal(t, map[string]any{"comments_count": 2}, params)
}

func TestHasMergesSubQuery(t *testing.T) {
	q := New("post", []string{"Post"}).Where("title", "=", "x")
	node := q.Unique("comments")
	sub := q.Sub(node, []string{"Comment"})
	sub.Where("title", "=", "y")

	q.Has(commentsMatch(node), sub, ">=", 1, "and")
	q.Where("views", ">", 3)

	cypher, params, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title = $post_title AND post.views > $post_views "+
		"OPTIONAL MATCH (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) WHERE (comments.title = $comments_title) "+
		"WITH post, count(DISTINCT comments) AS comments_count WHERE comments_count >= $comments_count RETURN post", cypher)
	assert.Equal(t, map[string]any{"post_title": "x", "post_views": 3, "comments_title": "y", "comments_count": 1}, params)
}

func TestHasUsesUniquePlaceholders(t *testing.T) {
	q := New("post", []string{"Post"})
	q.Has(commentsMatch(q.Unique("comments")), nil, ">=", 1, "and")
	q.Has(commentsMatch(q.Unique("comments")), nil, "<", 5, "and")

	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) "+
		"OPTIONAL MATCH (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) "+
		"WITH post, count(DISTINCT comments) AS comments_count WHERE comments_count >= $comments_count "+
		"OPTIONAL MATCH (post)-[rel_comments_comments_1:`COMMENTS`]->(comments_1:`Comment`) "+
		"WITH post, count(DISTINCT comments_1) AS comments_1_count WHERE comments_1_count < $comments_1_count RETURN post", cypher)
}

func TestOrHasSharesStage(t *testing.T) {
	q := New("post", []string{"Post"})
	q.Has(commentsMatch("comments"), nil, ">=", 2, "and")
	q.Has(Match{Parent: "post", Related: "tags", RelatedLabels: []string{"Tag"}, EdgeType: "TAGS", Direction: model.Out}, nil, ">=", 1, "or")

	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) "+
		"OPTIONAL MATCH (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) "+
		"OPTIONAL MATCH (post)-[rel_tags_tags:`TAGS`]->(tags:`Tag`) "+
		"WITH post, count(DISTINCT comments) AS comments_count, count(DISTINCT tags) AS tags_count "+
		"WHERE comments_count >= $comments_count OR tags_count >= $tags_count RETURN post", cypher)
}

func TestNestedHasCarriesOuterPlaceholders(t *testing.T) {
	q := New("post", []string{"Post"})
	node := q.Unique("comments")
	sub := q.Sub(node, []string{"Comment"})
	sub.Has(Match{Parent: node, Related: sub.Unique("likes"), RelatedLabels: []string{"Like"}, EdgeType: "LIKES", Direction: model.In}, nil, ">=", 1, "and")
	q.Has(commentsMatch(node), sub, ">=", 1, "and")

	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) "+
		"OPTIONAL MATCH (post)-[rel_comments_comments:`COMMENTS`]->(comments:`Comment`) "+
		"OPTIONAL MATCH (comments)<-[rel_likes_likes:`LIKES`]-(likes:`Like`) "+
		"WITH post, comments, count(DISTINCT likes) AS likes_count "+
		"WITH post, CASE WHEN likes_count >= $likes_count THEN comments END AS comments "+
		"WITH post, count(DISTINCT comments) AS comments_count WHERE comments_count >= $comments_count RETURN post", cypher)
}

func TestNestedHasKeepsParentsWithoutMatches(t *testing.T) {
	q := New("post", []string{"Post"})
	node := q.Unique("comments")
	sub := q.Sub(node, []string{"Comment"})
	sub.Has(Match{Parent: node, Related: sub.Unique("likes"), RelatedLabels: []string{"Like"}, EdgeType: "LIKES", Direction: model.In}, nil, ">=", 1, "and")
	q.Has(commentsMatch(node), sub, "<", 1, "and")

	cypher, params, err := q.Compile()
	require.NoError(t, err)
	assert.NotContains(t, cypher, "WHERE likes_count")
	assert.Contains(t, cypher, "WITH post, CASE WHEN likes_count >= $likes_count THEN comments END AS comments "+
		"WITH post, count(DISTINCT comments) AS comments_count WHERE comments_count < $comments_count RETURN post")
	assert.Equal(t, map[string]any{"likes_count": 1, "comments_count": 1}, params)

	clone, _, err := q.Clone().Compile()
	require.NoError(t, err)
	assert.Equal(t, cypher, clone)
}

func TestHasUnknownParent(t *testing.T) {
	q := New("post", []string{"Post"})
	q.Has(Match{Parent: "author", Related: "books", EdgeType: "WROTE"}, nil, ">=", 1, "and")
	assert.True(t, IsReferenceError(q.Err()))
}

func TestWindowAndOrder(t *testing.T) {
	q := New("post", []string{"Post"}).OrderBy("title", "desc").ForPage(3, 10).Distinct()
	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) RETURN DISTINCT post ORDER BY post.title DESC SKIP 20 LIMIT 10", cypher)
}

func TestSelectExpression(t *testing.T) {
	q := New("post", []string{"Post"}).Select("post {.title, _elementId: elementId(post)} AS post")
	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) RETURN post {.title, _elementId: elementId(post)} AS post", cypher)
	assert.Equal(t, []string{"post {.title, _elementId: elementId(post)} AS post"}, q.Columns())
}

func TestCompileCountUpdateDelete(t *testing.T) {
	q := New("post", []string{"Post"}).Where("title", "=", "x").OrderBy("title", "asc").Limit(5)

	count, _, err := q.CompileCount()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title = $post_title RETURN count(DISTINCT post) AS aggregate", count)

	update, params, err := q.CompileUpdate(map[string]any{"title": "y", "views": 1})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title = $post_title SET post.title = $post_title_1, post.views = $post_views RETURN count(DISTINCT post) AS aggregate", update)
	assert.Equal(t, map[string]any{"post_title": "x", "post_title_1": "y", "post_views": 1}, params)
	assert.Len(t, q.Params(), 1)

	del, _, err := q.CompileDelete()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (post:`Post`) WHERE post.title = $post_title DETACH DELETE post RETURN count(*) AS aggregate", del)
}

func TestCloneIsIndependent(t *testing.T) {
	q := New("post", []string{"Post"}).Where("title", "=", "x")
	before, beforeParams, err := q.Compile()
	require.NoError(t, err)

	c := q.Clone()
	c.Where("views", ">", 1).
		Has(commentsMatch("comments"), nil, ">=", 1, "and").
		WhereElementID("", "4:db:1")
	c.Select("post", "comments_count")

	after, afterParams, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeParams, afterParams)
	assert.False(t, q.IsDeclared("comments"))

	cloned, _, err := c.Compile()
	require.NoError(t, err)
	assert.Contains(t, cloned, "elementId(post) = $post_element_id")
	assert.Contains(t, cloned, "RETURN post, comments_count")
}

func TestRelateUntypedEdge(t *testing.T) {
	q := New("likes", nil)
	q.Relate(Match{Parent: "user", ParentLabels: []string{"User"}, Related: "likes", Direction: model.Out})

	assert.Equal(t, "rel_morph_likes", Grammar{}.EdgePlaceholder("", "likes"))
	cypher, _, err := q.Compile()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (user:`User`), (user)-[rel_morph_likes]->(likes) RETURN likes", cypher)
}

func TestCompileDeleteEdge(t *testing.T) {
	q := New("user", []string{"User"}).Where("id", "=", 7)
	q.Relate(Match{Parent: "user", Related: "target", Edge: "r", EdgeType: "PROFILE", Direction: model.Out})

	cypher, params, err := q.CompileDeleteEdge("r")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (user:`User`), (user)-[r:`PROFILE`]->(target) WHERE user.id = $user_id DELETE r RETURN count(*) AS aggregate", cypher)
	assert.Equal(t, map[string]any{"user_id": 7}, params)

	_, _, err = q.CompileDeleteEdge("missing")
	assert.True(t, IsReferenceError(err))
}
