package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/dialect"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	return schema.MustRegistry(
		schema.New("Team", []schema.Field{
			schema.Scalar("name"),
		}),
		schema.New("User", []schema.Field{
			schema.Scalar("name"),
			schema.Scalar("age", schema.Nullable()),
			schema.ForeignKey("team", "Team"),
		}),
	)
}

func TestBuildSelect(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	tests := []struct {
		name    string
		dialect string
		plan    *queryset.Plan
		want    string
		args    []any
	}{
		{
			name:    "ProjectionWhereOrderLimit",
			dialect: dialect.Postgres,
			plan: &queryset.Plan{
				Model:     "User",
				Table:     "users",
				Columns:   []string{"id", "name"},
				Predicate: queryset.GT("age", 21),
				Orders:    []queryset.Ordering{{Column: "name"}},
				Limit:     10,
			},
			want: `SELECT "users"."id", "users"."name" FROM "users" WHERE "users"."age" > $1 ORDER BY "users"."name" ASC LIMIT 10`,
			args: []any{21},
		},
		{
			name:    "JoinedReference",
			dialect: dialect.Postgres,
			plan: &queryset.Plan{
				Model:   "User",
				Table:   "users",
				Columns: []string{"id", "team_id", "team.name"},
				Joins:   []queryset.Join{{Path: "team"}},
				Limit:   queryset.UnboundedLimit,
			},
			want: `SELECT "users"."id", "users"."team_id", "team"."name" AS "team.name" FROM "users" LEFT JOIN "teams" AS "team" ON "users"."team_id" = "team"."id"`,
		},
		{
			name:    "MySQLComposite",
			dialect: dialect.MySQL,
			plan: &queryset.Plan{
				Model: "User",
				Table: "users",
				Predicate: queryset.And(
					queryset.In("id", 1, 2),
					queryset.Or(queryset.IsNull("age"), queryset.Contains("name", "a%")),
				),
				Limit: queryset.UnboundedLimit,
			},
			want: "SELECT `users`.* FROM `users` WHERE (`users`.`id` IN (?, ?) AND (`users`.`age` IS NULL OR `users`.`name` LIKE ?))",
			args: []any{1, 2, `%a\%%`},
		},
		{
			name:    "LikeEscapeClause",
			dialect: dialect.SQLite,
			plan: &queryset.Plan{
				Model:     "User",
				Table:     "users",
				Predicate: queryset.HasPrefix("name", "a_"),
				Limit:     queryset.UnboundedLimit,
			},
			want: `SELECT "users".* FROM "users" WHERE "users"."name" LIKE ? ESCAPE '\'`,
			args: []any{`a\_%`},
		},
		{
			name:    "NullsPlacementPostgres",
			dialect: dialect.Postgres,
			plan: &queryset.Plan{
				Model:  "User",
				Table:  "users",
				Orders: []queryset.Ordering{{Column: "age", Nullable: true, NullsFirst: true}},
				Limit:  queryset.UnboundedLimit,
			},
			want: `SELECT "users".* FROM "users" ORDER BY "users"."age" ASC NULLS FIRST`,
		},
		{
			name:    "NullsPlacementMySQL",
			dialect: dialect.MySQL,
			plan: &queryset.Plan{
				Model:  "User",
				Table:  "users",
				Orders: []queryset.Ordering{{Column: "age", Nullable: true, NullsFirst: true}},
				Limit:  queryset.UnboundedLimit,
			},
			want: "SELECT `users`.* FROM `users` ORDER BY (`users`.`age` IS NULL) DESC, `users`.`age` ASC",
		},
		{
			name:    "MatchesNothing",
			dialect: dialect.SQLite,
			plan: &queryset.Plan{
				Model:     "User",
				Table:     "users",
				Predicate: queryset.Nothing(),
				Limit:     queryset.UnboundedLimit,
			},
			want: `SELECT "users".* FROM "users" WHERE 1 = 0`,
		},
		{
			name:    "Window",
			dialect: dialect.SQLite,
			plan: &queryset.Plan{
				Model:   "User",
				Table:   "users",
				Columns: []string{"id", "name"},
				Window: &queryset.Window{
					PartitionBy: "team_id",
					Order:       []queryset.Ordering{{Column: "name"}},
					Limit:       2,
					WithTotal:   true,
				},
				Limit: queryset.UnboundedLimit,
			},
			want: `SELECT * FROM (SELECT "users"."id", "users"."name", "users"."team_id", ` +
				`ROW_NUMBER() OVER (PARTITION BY "users"."team_id" ORDER BY "users"."name" ASC) AS "_vireo_row_number", ` +
				`COUNT(*) OVER (PARTITION BY "users"."team_id") AS "_vireo_total_count" ` +
				`FROM "users") AS "_w" WHERE "_vireo_row_number" <= ? ` +
				`ORDER BY "_w"."team_id" ASC, "_w"."_vireo_row_number" ASC`,
			args: []any{2},
		},
		{
			name:    "WindowKeepsPlanOrdering",
			dialect: dialect.SQLite,
			plan: &queryset.Plan{
				Model:  "User",
				Table:  "users",
				Orders: []queryset.Ordering{{Column: "name", Desc: true}},
				Window: &queryset.Window{
					PartitionBy: "team_id",
					Limit:       3,
				},
				Limit: queryset.UnboundedLimit,
			},
			want: `SELECT * FROM (SELECT "users".*, ` +
				`ROW_NUMBER() OVER (PARTITION BY "users"."team_id") AS "_vireo_row_number" ` +
				`FROM "users") AS "_w" WHERE "_vireo_row_number" <= ? ` +
				`ORDER BY "_w"."name" DESC`,
			args: []any{3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := &builder{dialect: tt.dialect}
			require.NoError(t, b.selectPlan(reg, tt.plan))
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, tt.args, b.args)
		})
	}
}

func TestBuildCount(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	b := &builder{dialect: dialect.Postgres}
	require.NoError(t, b.countPlan(reg, &queryset.Plan{
		Model:     "User",
		Table:     "users",
		Predicate: queryset.EQ("team_id", 1),
		Limit:     queryset.UnboundedLimit,
	}))
	assert.Equal(t, `SELECT COUNT(*) FROM "users" WHERE "users"."team_id" = $1`, b.String())
	assert.Equal(t, []any{1}, b.args)
}

func TestBuildRejectsBadIdentifiers(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	b := &builder{dialect: dialect.Postgres}
	err := b.selectPlan(reg, &queryset.Plan{
		Model:   "User",
		Table:   "users",
		Columns: []string{"id; DROP TABLE users"},
		Limit:   queryset.UnboundedLimit,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identifier")
}

func TestSourceSelectMock(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	src := NewSource(OpenDB(dialect.Postgres, db), testRegistry(t))

	mock.ExpectQuery(`SELECT "users"."id", "users"."name", "team"."name" AS "team.name" FROM "users" LEFT JOIN "teams" AS "team" ON "users"."team_id" = "team"."id" WHERE "users"."age" > $1 ORDER BY "users"."name" ASC LIMIT 2`).
		WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "team.name"}).
			AddRow(int64(1), "ada", "red").
			AddRow(int64(2), "grace", nil))

	rows, err := src.Select(context.Background(), &queryset.Plan{
		Model:     "User",
		Table:     "users",
		Columns:   []string{"id", "name", "team.name"},
		Joins:     []queryset.Join{{Path: "team"}},
		Predicate: queryset.GT("age", 21),
		Orders:    []queryset.Ordering{{Column: "name"}},
		Limit:     2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	name, err := rows[0].Value("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", name)
	teamName, err := rows[0].Value("team.name")
	require.NoError(t, err)
	assert.Equal(t, "red", teamName)
	missing, err := rows[1].Value("team.name")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceCountMock(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	src := NewSource(OpenDB(dialect.Postgres, db), testRegistry(t))

	mock.ExpectQuery(`SELECT COUNT(*) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := src.Count(context.Background(), &queryset.Plan{
		Model: "User",
		Table: "users",
		Limit: queryset.UnboundedLimit,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *Driver {
	t.Helper()
	drv, err := Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	// In-memory databases live per connection.
	drv.DB().SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE teams (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER, team_id INTEGER)`,
		`INSERT INTO teams (id, name) VALUES (1, 'red'), (2, 'blue')`,
		`INSERT INTO users (id, name, age, team_id) VALUES
			(1, 'ada', 30, 1), (2, 'grace', NULL, 1), (3, 'lin', 25, 2)`,
	} {
		require.NoError(t, drv.Exec(context.Background(), stmt, []any{}, nil))
	}
	return drv
}

func TestSourceSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := testRegistry(t)
	drv := openSQLite(t)
	client := queryset.NewClient(NewSource(drv, reg), reg)

	names := func(rows []vireo.Entity) []string {
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			v, err := r.Value("name")
			require.NoError(t, err)
			out = append(out, v.(string))
		}
		return out
	}

	t.Run("FilterAndOrder", func(t *testing.T) {
		rows, err := client.MustQuery("User").
			Where(queryset.NotNull("age")).
			Order(queryset.Ordering{Column: "age", Desc: true}).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ada", "lin"}, names(rows))
	})

	t.Run("NullsOrdering", func(t *testing.T) {
		rows, err := client.MustQuery("User").
			Order(queryset.Ordering{Column: "age", Nullable: true, NullsFirst: true}).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"grace", "lin", "ada"}, names(rows))
	})

	t.Run("Substring", func(t *testing.T) {
		rows, err := client.MustQuery("User").
			Where(queryset.Contains("name", "ra")).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"grace"}, names(rows))
	})

	t.Run("TypedFields", func(t *testing.T) {
		var (
			userName = StringField("name")
			userAge  = IntField("age")
		)
		rows, err := client.MustQuery("User").
			Where(userName.HasPrefix("a"), userAge.GTE(30)).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ada"}, names(rows))
	})

	t.Run("JoinedProjection", func(t *testing.T) {
		rows, err := client.MustQuery("User").
			Project("id", "name", "team.name").
			Join("team").
			Where(queryset.EQ("team.name", "red")).
			Order(queryset.Ordering{Column: "id"}).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ada", "grace"}, names(rows))
		teamName, err := rows[0].Value("team.name")
		require.NoError(t, err)
		assert.Equal(t, "red", teamName)
	})

	t.Run("Count", func(t *testing.T) {
		n, err := client.MustQuery("User").Where(queryset.NotNull("age")).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Window", func(t *testing.T) {
		rows, err := client.MustQuery("User").
			SetWindow(&queryset.Window{
				PartitionBy: "team_id",
				Order:       []queryset.Ordering{{Column: "age", Nullable: true, NullsFirst: false}},
				Limit:       1,
				WithTotal:   true,
			}).
			All(ctx)
		require.NoError(t, err)
		// Partition-major order is part of the contract even though the
		// query carries no ordering of its own.
		assert.Equal(t, []string{"ada", "lin"}, names(rows))

		for _, r := range rows {
			ann, ok := r.(vireo.Annotated)
			require.True(t, ok)
			rn, ok := ann.Annotation(queryset.AnnotationRowNumber)
			require.True(t, ok)
			assert.EqualValues(t, 1, rn)
			_, ok = ann.Annotation(queryset.AnnotationTotalCount)
			require.True(t, ok)
		}
	})

	t.Run("BatchedRelation", func(t *testing.T) {
		rows, err := client.MustQuery("User").
			Order(queryset.Ordering{Column: "id"}).
			BatchFetch("team", nil).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		rc, ok := rows[0].(vireo.RelationCacher)
		require.True(t, ok)
		teams, ok := rc.CachedRelation("team")
		require.True(t, ok)
		require.Len(t, teams, 1)
		teamName, err := teams[0].Value("name")
		require.NoError(t, err)
		assert.Equal(t, "red", teamName)
	})
}
