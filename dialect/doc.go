// Package dialect provides the database abstraction the SQL storage
// layer runs on.
//
// Each supported database is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The Driver interface carries the two standard operations plus
// transaction support:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Opening a connection goes through the dialect/sql sub-package:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	src := sql.NewSource(drv, registry)
//	client := queryset.NewClient(src, registry)
package dialect
