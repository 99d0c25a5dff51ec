package sql

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireolabs/vireo/dialect"
)

func TestStatsDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("CountsQueriesAndExecs", func(t *testing.T) {
		t.Parallel()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		drv := NewStatsDriver(OpenDB(dialect.Postgres, db))
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))

		var rows Rows
		require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, &rows))
		rows.Close()
		require.NoError(t, drv.Exec(ctx, "UPDATE t SET x = 1", []any{}, nil))

		snap := drv.QueryStats().Stats()
		assert.Equal(t, int64(1), snap.TotalQueries)
		assert.Equal(t, int64(1), snap.TotalExecs)
		assert.Equal(t, int64(0), snap.Errors)
		assert.Positive(t, snap.TotalDuration)
		assert.Positive(t, snap.AvgQueryDuration())
	})

	t.Run("CountsErrors", func(t *testing.T) {
		t.Parallel()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		drv := NewStatsDriver(OpenDB(dialect.Postgres, db))
		mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

		var rows Rows
		require.Error(t, drv.Query(ctx, "SELECT 1", []any{}, &rows))
		assert.Equal(t, int64(1), drv.QueryStats().Stats().Errors)
	})

	t.Run("SlowQueryHook", func(t *testing.T) {
		t.Parallel()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		var slow []string
		drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
			WithSlowThreshold(0),
			WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
				slow = append(slow, query)
			}),
		)
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var rows Rows
		require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, &rows))
		rows.Close()

		assert.Equal(t, []string{"SELECT 1"}, slow)
		assert.Equal(t, int64(1), drv.QueryStats().Stats().SlowQueries)
	})

	t.Run("TxRecordsThroughDriver", func(t *testing.T) {
		t.Parallel()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		drv := NewStatsDriver(OpenDB(dialect.Postgres, db))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Exec(ctx, "INSERT INTO t VALUES (1)", []any{}, nil))
		require.NoError(t, tx.Commit())

		assert.Equal(t, int64(1), drv.QueryStats().Stats().TotalExecs)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reset", func(t *testing.T) {
		t.Parallel()
		stats := &QueryStats{}
		stats.TotalQueries.Add(3)
		stats.Errors.Add(1)
		stats.Reset()
		snap := stats.Stats()
		assert.Zero(t, snap.TotalQueries)
		assert.Zero(t, snap.Errors)
	})
}

func TestDebugDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newLogged := func(t *testing.T, db *sql.DB) (*DebugDriver, *bytes.Buffer) {
		t.Helper()
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		return NewDebugDriver(OpenDB(dialect.Postgres, db), log), &buf
	}

	t.Run("LogsStatements", func(t *testing.T) {
		t.Parallel()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		drv, buf := newLogged(t, db)
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var rows Rows
		require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, &rows))
		rows.Close()

		assert.Contains(t, buf.String(), "SELECT 1")
	})

	t.Run("LogsTransactionLifecycle", func(t *testing.T) {
		t.Parallel()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		drv, buf := newLogged(t, db)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Exec(ctx, "DELETE FROM t", []any{}, nil))
		require.NoError(t, tx.Commit())

		out := buf.String()
		assert.Contains(t, out, "begin transaction")
		assert.Contains(t, out, "DELETE FROM t")
		assert.Contains(t, out, "commit transaction")
	})

	t.Run("NilLoggerFallsBack", func(t *testing.T) {
		t.Parallel()
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		drv := NewDebugDriver(OpenDB(dialect.Postgres, db), nil)
		require.NotNil(t, drv)
	})
}

func TestOpenWithStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	drv, stats, err := OpenWithStats(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	defer drv.Close()
	drv.DB().SetMaxOpenConns(1)

	require.NoError(t, drv.Exec(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`, []any{}, nil))
	assert.Equal(t, int64(1), stats.Stats().TotalExecs)
}
