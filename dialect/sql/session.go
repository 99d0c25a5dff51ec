package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vireolabs/vireo/dialect"
)

// Session variables carry per-request state the SQL text itself never
// mentions, typically a tenant or actor id that row-level security
// policies read on the server. They ride on the context: every statement
// the driver runs under that context is preceded by the SET statements,
// pinned to one connection, and the variables are cleared again before
// the connection returns to the pool.
//
//	ctx = sql.WithVar(ctx, "app.current_tenant", tenantID)
//	rows, err := client.MustQuery("Doc").All(ctx)

type varsKey struct{}

type sessionVar struct {
	name  string
	value string
}

// WithVar returns a context under which every statement sees the session
// variable. Setting the same name again overrides the earlier value.
func WithVar(ctx context.Context, name, value string) context.Context {
	vars, _ := ctx.Value(varsKey{}).([]sessionVar)
	vars = append(vars[:len(vars):len(vars)], sessionVar{name: name, value: value})
	return context.WithValue(ctx, varsKey{}, vars)
}

// WithIntVar is WithVar for integer values.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// VarFromContext reports the value a session variable holds under ctx.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	vars, _ := ctx.Value(varsKey{}).([]sessionVar)
	for i := len(vars) - 1; i >= 0; i-- {
		if vars[i].name == name {
			return vars[i].value, true
		}
	}
	return "", false
}

// sessionExec resolves the ExecQuerier a statement should run on. Without
// session variables that is the Conn itself and there is nothing to
// release. With them, the statement is pinned to a dedicated connection
// (or the transaction, which is already pinned) with the variables set,
// and the returned release function restores the connection.
func (c Conn) sessionExec(ctx context.Context) (ExecQuerier, func() error, error) {
	vars, _ := ctx.Value(varsKey{}).([]sessionVar)
	if len(vars) == 0 {
		return c, nil, nil
	}
	ex, release, err := c.pin(ctx)
	if err != nil {
		return nil, nil, err
	}
	reset, err := applyVars(ctx, ex, c.dialect, vars)
	if err != nil {
		if release != nil {
			err = errors.Join(err, release())
		}
		return nil, nil, err
	}
	if release != nil && len(reset) > 0 {
		release = resetOnRelease(ex, reset, release)
	}
	return ex, release, nil
}

// pin returns an ExecQuerier bound to a single connection for the whole
// statement. A transaction already is one; a pool hands out a dedicated
// connection that must be released.
func (c Conn) pin(ctx context.Context) (ExecQuerier, func() error, error) {
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		return e, nil, nil
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
}

// applyVars sets each variable on the pinned connection and returns the
// statements that undo them. Names are validated as identifiers and
// values quote-escaped; both travel inside the SET text, outside the
// reach of placeholders.
func applyVars(ctx context.Context, ex ExecQuerier, dialectName string, vars []sessionVar) ([]string, error) {
	reset := make([]string, 0, len(vars))
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if !isValidIdentifier(v.name) {
			return nil, fmt.Errorf("invalid session variable name: %q", v.name)
		}
		if !seen[v.name] {
			seen[v.name] = true
			switch dialectName {
			case dialect.Postgres:
				reset = append(reset, "RESET "+v.name)
			case dialect.MySQL:
				reset = append(reset, "SET "+v.name+" = NULL")
			}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", v.name, escapeStringValue(v.value))); err != nil {
			return nil, err
		}
	}
	return reset, nil
}

// resetOnRelease clears the variables before the dedicated connection
// goes back to the pool. The request context may already be canceled by
// then, so the cleanup runs on its own deadline.
func resetOnRelease(ex ExecQuerier, reset []string, release func() error) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, stmt := range reset {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return errors.Join(err, release())
			}
		}
		return release()
	}
}

// escapeStringValue escapes a value for inlining in a SET statement:
// single quotes are doubled, backslashes doubled for MySQL.
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// rowsWithCloser couples a result set with the release of the dedicated
// connection it was read on.
type rowsWithCloser struct {
	*sql.Rows
	closer func() error
}

func (r rowsWithCloser) Close() error {
	return errors.Join(r.Rows.Close(), r.closer())
}
