// Package optimizer rewrites lazy queries so a GraphQL selection set
// determines exactly which columns and relations load. It plugs into
// gqlgen as a handler extension: every field resolver that returns a
// *queryset.QuerySet has its result inspected against the surrounding
// selection and annotated with projection, join and batched-fetch
// directives before materialization.
package optimizer

import (
	"context"
	"log/slog"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/vireolabs/vireo/queryset"
)

// A QueryHook customizes the base query for one model before hints apply.
// Hooks run at most once per query handle.
type QueryHook func(ctx context.Context, qs *queryset.QuerySet)

// Extension is the gqlgen execution hook. Register it on the handler:
//
//	srv := handler.New(es)
//	srv.Use(optimizer.New(client, optimizer.DefaultConfig()))
type Extension struct {
	client *queryset.Client
	cfg    Config
	hooks  map[string]QueryHook
	schema *ast.Schema
	log    *slog.Logger
}

var _ interface {
	graphql.HandlerExtension
	graphql.FieldInterceptor
} = (*Extension)(nil)

// An ExtensionOption configures the Extension.
type ExtensionOption func(*Extension)

// WithQueryHook installs a per-model hook on the extension.
func WithQueryHook(model string, hook QueryHook) ExtensionOption {
	return func(e *Extension) { e.hooks[model] = hook }
}

// WithExtensionLogger sets the logger for debug output.
func WithExtensionLogger(log *slog.Logger) ExtensionOption {
	return func(e *Extension) { e.log = log }
}

// New returns an Extension over the given client.
func New(client *queryset.Client, cfg Config, opts ...ExtensionOption) *Extension {
	e := &Extension{
		client: client,
		cfg:    cfg,
		hooks:  make(map[string]QueryHook),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtensionName implements graphql.HandlerExtension.
func (e *Extension) ExtensionName() string {
	return "QuerySetOptimizer"
}

// Validate implements graphql.HandlerExtension and captures the executable
// schema for selection walking.
func (e *Extension) Validate(es graphql.ExecutableSchema) error {
	e.schema = es.Schema()
	return nil
}

// SetSchema installs the schema directly, for use outside a gqlgen
// handler chain.
func (e *Extension) SetSchema(s *ast.Schema) {
	e.schema = s
}

// InterceptField implements graphql.FieldInterceptor: resolver results
// that are lazy queries are optimized in place before the field value is
// completed.
func (e *Extension) InterceptField(ctx context.Context, next graphql.Resolver) (any, error) {
	res, err := next(ctx)
	if err != nil {
		return res, err
	}
	qs, ok := res.(*queryset.QuerySet)
	if !ok {
		return res, nil
	}
	fc := graphql.GetFieldContext(ctx)
	if fc == nil {
		return res, nil
	}
	var vars map[string]any
	if oc := graphql.GetOperationContext(ctx); oc != nil {
		vars = oc.Variables
	}
	e.Optimize(ctx, qs, fc.Field.Field, vars)
	return res, nil
}

// Optimize rewrites one lazy query against the selection of the field that
// produced it. It never fails: any irregularity leaves the query
// unmodified and correctness to the unoptimized path. Optimizing an
// already-processed or already-materialized query is a silent no-op.
func (e *Extension) Optimize(ctx context.Context, qs *queryset.QuerySet, field *ast.Field, vars map[string]any) {
	if qs == nil || field == nil || e.schema == nil || !Enabled(ctx) {
		return
	}
	if qs.Materialized() || qs.Config().Optimized {
		return
	}
	if hook, ok := e.hooks[qs.Model().Name]; ok && !qs.Config().TypeHookRan {
		hook(ctx, qs)
		qs.Config().TypeHookRan = true
	}

	typeName := fieldTypeName(field)
	sels := field.SelectionSet
	w := &Walker{
		Schema:   e.schema,
		Registry: e.client.Registry(),
		Client:   e.client,
		Config:   e.cfg,
		Vars:     vars,
	}
	if w.isConnection(typeName) {
		// Pagination wrappers only matter through their node selection.
		nodeSels, nodeField := nodeSelection(sels)
		if nodeField == nil {
			qs.Config().Optimized = true
			return
		}
		typeName = fieldTypeName(nodeField)
		sels = nodeSels
	}

	store := w.Hints(ctx, qs.Model(), typeName, sels)
	if !store.Empty() {
		store.Apply(ctx, qs, w.flags())
		if len(qs.Batches()) > 0 {
			qs.Config().OptimizedByBatch = true
		}
		e.log.DebugContext(ctx, "query optimized",
			"model", qs.Model().Name,
			"type", typeName,
			"columns", len(qs.Columns()),
			"joins", len(qs.Joins()),
			"batches", len(qs.Batches()),
		)
	}
	qs.Config().Optimized = true
}
