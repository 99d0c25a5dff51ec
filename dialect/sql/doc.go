// Package sql executes query plans against SQL databases.
//
// The package has three layers:
//
//   - Driver: a thin dialect.Driver over database/sql with transaction
//     support and per-request session variables (WithVar).
//   - Source: the queryset.Source implementation. It renders each plan
//     to one SELECT statement: projected columns, LEFT JOINs for joined
//     reference paths, predicate trees as parameterized WHERE clauses,
//     and per-partition row numbering for windowed plans.
//   - Typed fields: StringField, IntField and friends build predicate
//     trees without repeating column names at call sites.
//
// Wiring it together:
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	src := sql.NewSource(drv, registry)
//	client := queryset.NewClient(src, registry)
//
// Observability wrappers compose over the driver: NewStatsDriver counts
// statements and flags slow queries, NewDebugDriver logs every statement
// through slog.
package sql
