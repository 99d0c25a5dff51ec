package pagination_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/internal/memsource"
	"github.com/vireolabs/vireo/pagination"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

func intp(n int) *int { return &n }

func newClient(t *testing.T, rows ...map[string]vireo.Value) *queryset.Client {
	t.Helper()
	user := schema.New("User", []schema.Field{
		schema.Scalar("id", schema.Codec(vireo.ParseInt, vireo.FormatInt)),
		schema.Scalar("name"),
		schema.Scalar("age", schema.Nullable(), schema.Codec(vireo.ParseInt, vireo.FormatInt)),
		schema.Scalar("teamId", schema.Column("team_id"), schema.Codec(vireo.ParseInt, vireo.FormatInt)),
	})
	reg := schema.MustRegistry(user)
	src := memsource.New(reg)
	for _, row := range rows {
		src.Insert("users", row)
	}
	return queryset.NewClient(src, reg)
}

func row(id int64, name string) map[string]vireo.Value {
	return map[string]vireo.Value{"id": id, "name": name, "team_id": int64(1)}
}

func names(t *testing.T, edges []pagination.Edge) []string {
	t.Helper()
	out := make([]string, len(edges))
	for i, e := range edges {
		v, err := e.Node.Value("name")
		require.NoError(t, err)
		out[i] = v.(string)
	}
	return out
}

func ids(t *testing.T, edges []pagination.Edge) []int64 {
	t.Helper()
	out := make([]int64, len(edges))
	for i, e := range edges {
		v, err := e.Node.Value("id")
		require.NoError(t, err)
		out[i] = v.(int64)
	}
	return out
}

func TestOrderings(t *testing.T) {
	t.Parallel()
	c := newClient(t)

	t.Run("AppendsPKTiebreak", func(t *testing.T) {
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		ords := pagination.Orderings(qs)
		require.Len(t, ords, 2)
		assert.Equal(t, "id", ords[1].Column)
		assert.False(t, ords[1].Desc)
		assert.Equal(t, ords, qs.Config().Orderings)
	})

	t.Run("PKAlreadyPresent", func(t *testing.T) {
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "id", Desc: true})
		ords := pagination.Orderings(qs)
		require.Len(t, ords, 1)
		assert.True(t, ords[0].Desc)
	})

	t.Run("ProjectionGainsOrderingColumns", func(t *testing.T) {
		qs := c.MustQuery("User").
			Project("id", "name").
			Order(queryset.Ordering{Column: "age"})
		pagination.Orderings(qs)
		assert.Equal(t, []string{"id", "name", "age"}, qs.Columns())
	})

	t.Run("FullProjectionStaysFull", func(t *testing.T) {
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "age"})
		pagination.Orderings(qs)
		assert.Empty(t, qs.Columns())
	})
}

func TestConnectNarrowedProjection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// The ordering column is deliberately left out of the projection, as
	// happens when the optimizer narrows columns from a selection that
	// never asks for the field the request sorts by.
	olderFirst := func(c *queryset.Client) *queryset.QuerySet {
		return c.MustQuery("User").
			Project("id", "name").
			Order(queryset.Ordering{
				Column: "age", Desc: true,
				Parse: vireo.ParseInt, Format: vireo.FormatInt,
			})
	}
	aged := func(id int64, name string, age int64) map[string]vireo.Value {
		return map[string]vireo.Value{"id": id, "name": name, "age": age, "team_id": int64(1)}
	}
	c := newClient(t,
		aged(1, "ada", 30), aged(2, "grace", 45), aged(3, "lin", 25),
	)

	first, err := pagination.Connect(ctx, olderFirst(c), pagination.Args{First: intp(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"grace"}, names(t, first.Edges))
	require.True(t, first.PageInfo.HasNextPage)
	require.NotNil(t, first.PageInfo.EndCursor)

	second, err := pagination.Connect(ctx, olderFirst(c), pagination.Args{
		First: intp(2), After: first.PageInfo.EndCursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "lin"}, names(t, second.Edges))
	assert.False(t, second.PageInfo.HasNextPage)
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()
	ords := []queryset.Ordering{
		{Column: "name"},
		{Column: "id", Parse: vireo.ParseInt, Format: vireo.FormatInt},
	}
	rec := queryset.NewRecord(map[string]vireo.Value{"id": int64(7), "name": "ada"})

	cursor, err := pagination.EncodeCursor(rec, ords)
	require.NoError(t, err)

	pos, err := pagination.DecodeCursor(cursor, ords)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, "ada", pos[0].Value)
	assert.Equal(t, int64(7), pos[1].Value)
	assert.False(t, pos[0].Null)
}

func TestCursorNulls(t *testing.T) {
	t.Parallel()
	ords := []queryset.Ordering{
		{Column: "age", Nullable: true, Parse: vireo.ParseInt, Format: vireo.FormatInt},
		{Column: "id", Parse: vireo.ParseInt, Format: vireo.FormatInt},
	}
	rec := queryset.NewRecord(map[string]vireo.Value{"id": int64(3), "age": nil})

	cursor, err := pagination.EncodeCursor(rec, ords)
	require.NoError(t, err)

	pos, err := pagination.DecodeCursor(cursor, ords)
	require.NoError(t, err)
	assert.True(t, pos[0].Null)
	assert.Equal(t, int64(3), pos[1].Value)
}

func TestDecodeCursorErrors(t *testing.T) {
	t.Parallel()
	ords := []queryset.Ordering{{Column: "id", Parse: vireo.ParseInt, Format: vireo.FormatInt}}

	cases := []struct {
		name   string
		cursor string
	}{
		{"NotBase64", "!!!"},
		{"WrongPrefix", "b2MyOlsiMSJd"},                 // oc2:["1"]
		{"NotJSONArray", "b2MxOnsiYSI6MX0="},            // oc1:{"a":1}
		{"WrongLength", "b2MxOlsiMSIsIjIiXQ=="},         // oc1:["1","2"]
		{"NonStringComponent", "b2MxOlsxXQ=="},          // oc1:[1]
		{"FailedParse", "b2MxOlsibm90YW51bWJlciJd"},     // oc1:["notanumber"]
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pagination.DecodeCursor(tc.cursor, ords)
			require.Error(t, err)
			assert.True(t, vireo.IsInvalidCursor(err))
		})
	}
}

func TestConnectForward(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("TieBrokenByPK", func(t *testing.T) {
		// Rows ordered by name ascending; the id tiebreak decides
		// between the two "a" rows.
		c := newClient(t,
			row(1, "b"), row(2, "a"), row(3, "a"),
		)
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		conn, err := pagination.Connect(ctx, qs, pagination.Args{First: intp(2)})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "a"}, names(t, conn.Edges))
		assert.Equal(t, []int64{2, 3}, ids(t, conn.Edges))
		assert.True(t, conn.PageInfo.HasNextPage)
		assert.False(t, conn.PageInfo.HasPreviousPage)
	})

	t.Run("ExactFitHasNoNextPage", func(t *testing.T) {
		c := newClient(t, row(1, "a"), row(2, "b"))
		qs := c.MustQuery("User")
		conn, err := pagination.Connect(ctx, qs, pagination.Args{First: intp(3)})
		require.NoError(t, err)
		assert.Len(t, conn.Edges, 2)
		assert.False(t, conn.PageInfo.HasNextPage)
	})

	t.Run("ResumeAfter", func(t *testing.T) {
		c := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"), row(4, "d"))
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		first, err := pagination.Connect(ctx, qs, pagination.Args{First: intp(2)})
		require.NoError(t, err)
		require.NotNil(t, first.PageInfo.EndCursor)

		qs2 := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		second, err := pagination.Connect(ctx, qs2, pagination.Args{
			First: intp(2), After: first.PageInfo.EndCursor,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, names(t, second.Edges))
		assert.True(t, second.PageInfo.HasPreviousPage)
		assert.False(t, second.PageInfo.HasNextPage)
	})

	t.Run("DefaultsToMaxResults", func(t *testing.T) {
		c := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"))
		qs := c.MustQuery("User")
		conn, err := pagination.Connect(ctx, qs, pagination.Args{},
			pagination.WithMaxResults(2))
		require.NoError(t, err)
		assert.Len(t, conn.Edges, 2)
		assert.True(t, conn.PageInfo.HasNextPage)
	})
}

func TestConnectBackward(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("LastOnly", func(t *testing.T) {
		c := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"))
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		conn, err := pagination.Connect(ctx, qs, pagination.Args{Last: intp(2)})
		require.NoError(t, err)
		// Page order stays forward after the reverse fetch.
		assert.Equal(t, []string{"b", "c"}, names(t, conn.Edges))
		assert.True(t, conn.PageInfo.HasPreviousPage)
		assert.False(t, conn.PageInfo.HasNextPage)
	})

	t.Run("ResumeBefore", func(t *testing.T) {
		c := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"), row(4, "d"))
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		tail, err := pagination.Connect(ctx, qs, pagination.Args{Last: intp(1)})
		require.NoError(t, err)
		require.Equal(t, []string{"d"}, names(t, tail.Edges))

		qs2 := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
		prev, err := pagination.Connect(ctx, qs2, pagination.Args{
			Last: intp(2), Before: tail.PageInfo.StartCursor,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, names(t, prev.Edges))
		assert.True(t, prev.PageInfo.HasPreviousPage)
		assert.True(t, prev.PageInfo.HasNextPage)
	})
}

func TestConnectBoth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// first=4 caps the forward set at rows a..d; last=2 keeps its tail.
	c := newClient(t,
		row(1, "a"), row(2, "b"), row(3, "c"), row(4, "d"), row(5, "e"), row(6, "f"),
	)
	qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
	conn, err := pagination.Connect(ctx, qs, pagination.Args{First: intp(4), Last: intp(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, names(t, conn.Edges))
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.True(t, conn.PageInfo.HasPreviousPage)

	// With fewer rows than first, only the last-trim applies.
	c2 := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"))
	qs2 := c2.MustQuery("User").Order(queryset.Ordering{Column: "name"})
	conn2, err := pagination.Connect(ctx, qs2, pagination.Args{First: intp(4), Last: intp(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(t, conn2.Edges))
	assert.False(t, conn2.PageInfo.HasNextPage)
	assert.True(t, conn2.PageInfo.HasPreviousPage)
}

func TestConnectNullOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// NULL ages sort last; resuming across the null boundary must not
	// skip or repeat rows.
	c := newClient(t,
		map[string]vireo.Value{"id": int64(1), "name": "a", "age": int64(30), "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(2), "name": "b", "age": nil, "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(3), "name": "c", "age": int64(20), "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(4), "name": "d", "age": nil, "team_id": int64(1)},
	)
	ageOrder := queryset.Ordering{
		Column: "age", Nullable: true,
		Parse: vireo.ParseInt, Format: vireo.FormatInt,
	}

	var seen []int64
	var after *string
	for {
		qs := c.MustQuery("User").Order(ageOrder)
		conn, err := pagination.Connect(ctx, qs, pagination.Args{First: intp(1), After: after})
		require.NoError(t, err)
		if len(conn.Edges) == 0 {
			break
		}
		seen = append(seen, ids(t, conn.Edges)...)
		if !conn.PageInfo.HasNextPage {
			break
		}
		after = conn.PageInfo.EndCursor
	}
	// 20, 30, then the two NULLs in id order.
	assert.Equal(t, []int64{3, 1, 2, 4}, seen)
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, row(1, "a"))

	cases := []struct {
		name string
		args pagination.Args
	}{
		{"NegativeFirst", pagination.Args{First: intp(-1)}},
		{"NegativeLast", pagination.Args{Last: intp(-2)}},
		{"FirstOverMax", pagination.Args{First: intp(101)}},
		// last is bounded by the ceiling independently of first.
		{"LastOverMaxWithFirst", pagination.Args{First: intp(10), Last: intp(101)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qs := c.MustQuery("User")
			_, err := pagination.Connect(ctx, qs, tc.args)
			require.Error(t, err)
			assert.True(t, vireo.IsPagination(err))
		})
	}

	t.Run("InvalidCursorSurfaces", func(t *testing.T) {
		bad := "notacursor"
		qs := c.MustQuery("User")
		_, err := pagination.Connect(ctx, qs, pagination.Args{After: &bad})
		require.Error(t, err)
		assert.True(t, vireo.IsInvalidCursor(err))
	})
}

func TestTotalCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"))

	qs := c.MustQuery("User")
	conn, err := pagination.Connect(ctx, qs, pagination.Args{First: intp(1)})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)

	// The total ignores cursor slicing.
	total, err := conn.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// Memoized on the connection.
	total2, err := conn.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, total2)
}

func TestConnectPartitioned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t,
		map[string]vireo.Value{"id": int64(1), "name": "a", "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(2), "name": "b", "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(3), "name": "c", "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(4), "name": "d", "team_id": int64(2)},
	)

	qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
	conns, err := pagination.ConnectPartitioned(ctx, qs, pagination.Args{First: intp(2)}, "team_id")
	require.NoError(t, err)
	require.Len(t, conns, 2)

	team1 := conns[vireo.Value(int64(1))]
	require.NotNil(t, team1)
	assert.Equal(t, []string{"a", "b"}, names(t, team1.Edges))
	assert.True(t, team1.PageInfo.HasNextPage)
	total, err := team1.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	team2 := conns[vireo.Value(int64(2))]
	require.NotNil(t, team2)
	assert.Equal(t, []string{"d"}, names(t, team2.Edges))
	assert.False(t, team2.PageInfo.HasNextPage)
}

func TestEffectiveLimit(t *testing.T) {
	t.Parallel()

	t.Run("Precedence", func(t *testing.T) {
		assert.Equal(t, 10, pagination.EffectiveLimit(nil, pagination.Limits{
			FieldDefault: intp(10), GlobalDefault: intp(20),
		}))
		assert.Equal(t, 20, pagination.EffectiveLimit(nil, pagination.Limits{
			GlobalDefault: intp(20),
		}))
		assert.Equal(t, pagination.UnboundedLimit, pagination.EffectiveLimit(nil, pagination.Limits{}))
	})

	t.Run("ExplicitClampedToMax", func(t *testing.T) {
		assert.Equal(t, 50, pagination.EffectiveLimit(intp(500), pagination.Limits{Max: intp(50)}))
		assert.Equal(t, 5, pagination.EffectiveLimit(intp(5), pagination.Limits{Max: intp(50)}))
	})

	t.Run("NegativePassthroughQuirk", func(t *testing.T) {
		// Negative explicit limits bypass clamping. This mirrors
		// long-standing behavior that callers may depend on; see the
		// design notes before changing it.
		assert.Equal(t, -3, pagination.EffectiveLimit(intp(-3), pagination.Limits{Max: intp(50)}))
	})
}

func TestPaginate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t, row(1, "a"), row(2, "b"), row(3, "c"))

	// offset=1, limit=1 over 3 rows returns exactly the second row.
	qs := c.MustQuery("User").Order(queryset.Ordering{Column: "id"})
	page, err := pagination.Paginate(ctx, qs, 1, 1)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	name, err := page.Results[0].Value("name")
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 1, page.PageInfo.Offset)
	assert.Equal(t, 1, page.PageInfo.Limit)

	t.Run("UnboundedTail", func(t *testing.T) {
		qs := c.MustQuery("User").Order(queryset.Ordering{Column: "id"})
		page, err := pagination.Paginate(ctx, qs, 1, pagination.UnboundedLimit)
		require.NoError(t, err)
		assert.Len(t, page.Results, 2)
	})
}

func TestPaginateScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t,
		map[string]vireo.Value{"id": int64(1), "name": "a", "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(2), "name": "b", "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(3), "name": "c", "team_id": int64(1)},
		map[string]vireo.Value{"id": int64(4), "name": "d", "team_id": int64(2)},
	)

	qs := c.MustQuery("User").Order(queryset.Ordering{Column: "name"})
	pagination.PaginateScoped(qs, 1, 1)
	w := qs.Window()
	require.NotNil(t, w)
	w.PartitionBy = "team_id"

	rows, err := qs.All(ctx)
	require.NoError(t, err)
	// Second row of team 1; team 2 has no second row.
	require.Len(t, rows, 1)
	name, err := rows[0].Value("name")
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	total, ok := pagination.ScopedTotal(rows[0])
	require.True(t, ok)
	assert.Equal(t, 3, total)
}
