package postfetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/internal/memsource"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// countingSource wraps the in-memory source to observe how many secondary
// queries a pass issues.
type countingSource struct {
	*memsource.Source
	selects int
}

func (s *countingSource) Select(ctx context.Context, p *queryset.Plan) ([]vireo.Entity, error) {
	s.selects++
	return s.Source.Select(ctx, p)
}

func newFixture(t *testing.T) (*queryset.Client, *countingSource) {
	t.Helper()
	reg := schema.MustRegistry(
		schema.New("User", []schema.Field{
			schema.Scalar("name"),
			schema.ReverseFK("posts", "Post", "author_id"),
			schema.Generic("attachments", "subject_id", schema.Candidates("Image", "Video")),
		}),
		schema.New("Post", []schema.Field{
			schema.Scalar("title"),
			schema.ForeignKey("author", "User"),
			schema.ManyToMany("tags", "Tag", "post_tags", "post_id", "tag_id"),
		}),
		schema.New("Tag", []schema.Field{
			schema.Scalar("label"),
		}),
		schema.New("Image", []schema.Field{
			schema.Scalar("url"),
			schema.ForeignKey("author", "User"),
		}),
		schema.New("Video", []schema.Field{
			schema.Scalar("url"),
			schema.ForeignKey("author", "User"),
		}),
	)
	src := &countingSource{Source: memsource.New(reg)}

	src.Insert("users", map[string]vireo.Value{"id": "1", "name": "ada"})
	src.Insert("users", map[string]vireo.Value{"id": "2", "name": "grace"})
	src.Insert("users", map[string]vireo.Value{"id": "3", "name": "lin"})
	src.Insert("posts", map[string]vireo.Value{"id": "10", "title": "alpha", "author_id": "1"})
	src.Insert("posts", map[string]vireo.Value{"id": "11", "title": "beta", "author_id": "1"})
	src.Insert("posts", map[string]vireo.Value{"id": "12", "title": "gamma", "author_id": "2"})
	src.Insert("tags", map[string]vireo.Value{"id": "100", "label": "go"})
	src.Insert("tags", map[string]vireo.Value{"id": "101", "label": "db"})
	src.Insert("post_tags", map[string]vireo.Value{"post_id": "10", "tag_id": "100"})
	src.Insert("post_tags", map[string]vireo.Value{"post_id": "10", "tag_id": "101"})
	src.Insert("post_tags", map[string]vireo.Value{"post_id": "11", "tag_id": "100"})
	src.Insert("images", map[string]vireo.Value{"id": "i1", "url": "a.png", "subject_id": "1", "author_id": "2"})
	src.Insert("videos", map[string]vireo.Value{"id": "v1", "url": "a.mp4", "subject_id": "1", "author_id": "1"})
	src.Insert("videos", map[string]vireo.Value{"id": "v2", "url": "b.mp4", "subject_id": "2", "author_id": "1"})

	client := queryset.NewClient(src, reg)
	client.Postfetch = Assign
	return client, src
}

func fetchUsers(t *testing.T, c *queryset.Client) []vireo.Entity {
	t.Helper()
	rows, err := c.MustQuery("User").All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	return rows
}

func cached(t *testing.T, row vireo.Entity, name string) []vireo.Entity {
	t.Helper()
	rc, ok := row.(vireo.RelationCacher)
	require.True(t, ok)
	children, ok := rc.CachedRelation(name)
	require.True(t, ok, "relation %q not cached", name)
	return children
}

func values(t *testing.T, rows []vireo.Entity, column string) []string {
	t.Helper()
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		v, err := row.Value(column)
		require.NoError(t, err)
		out = append(out, v.(string))
	}
	return out
}

func TestAssignCompoundPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newFixture(t)
	users := fetchUsers(t, client)

	Assign(ctx, client, users, "User", "posts.tags")

	posts := cached(t, users[0], "posts")
	assert.Equal(t, []string{"alpha", "beta"}, values(t, posts, "title"))
	assert.ElementsMatch(t, []string{"go", "db"}, values(t, cached(t, posts[0], "tags"), "label"))
	assert.Equal(t, []string{"go"}, values(t, cached(t, posts[1], "tags"), "label"))

	assert.Len(t, cached(t, users[1], "posts"), 1)
	assert.Empty(t, cached(t, users[2], "posts"))
}

func TestAssignReusesCachedLevels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, src := newFixture(t)
	users := fetchUsers(t, client)

	Assign(ctx, client, users, "User", "posts.tags")
	before := src.selects

	// Everything down the path is cached; a second pass issues no
	// queries at all.
	Assign(ctx, client, users, "User", "posts.tags")
	assert.Equal(t, before, src.selects)
}

func TestAssignGeneric(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newFixture(t)
	users := fetchUsers(t, client)

	Assign(ctx, client, users, "User", "attachments")

	assert.ElementsMatch(t, []string{"a.png", "a.mp4"}, values(t, cached(t, users[0], "attachments"), "url"))
	assert.Equal(t, []string{"b.mp4"}, values(t, cached(t, users[1], "attachments"), "url"))
	assert.Empty(t, cached(t, users[2], "attachments"))
}

func TestAssignGenericCompound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newFixture(t)
	users := fetchUsers(t, client)

	Assign(ctx, client, users, "User", "attachments.author")

	for _, user := range users[:2] {
		for _, att := range cached(t, user, "attachments") {
			authors := cached(t, att, "author")
			require.Len(t, authors, 1)
		}
	}
	image := cached(t, users[0], "attachments")[0]
	assert.Equal(t, []string{"grace"}, values(t, cached(t, image, "author"), "name"))
}

func TestAssignIsSilentOnBadPaths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newFixture(t)
	users := fetchUsers(t, client)

	Assign(ctx, client, users, "User", "nonexistent")
	Assign(ctx, client, users, "Nope", "posts")
	Assign(ctx, client, users, "User", "name")
	Assign(ctx, client, nil, "User", "posts")

	rc := users[0].(vireo.RelationCacher)
	_, ok := rc.CachedRelation("posts")
	assert.False(t, ok)
}

func TestAssignThroughBatchDirective(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newFixture(t)

	// Compound and generic batch directives reach Assign through the
	// client's post-fetch hook during materialization.
	rows, err := client.MustQuery("User").
		BatchFetch("posts.tags", nil).
		BatchFetch("attachments", nil).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	posts := cached(t, rows[0], "posts")
	require.Len(t, posts, 2)
	assert.Len(t, cached(t, posts[0], "tags"), 2)
	assert.Len(t, cached(t, rows[0], "attachments"), 2)
}
