// Package vireo provides selection-driven fetch optimization for GraphQL
// servers backed by relational models.
//
// The core idea: a GraphQL resolver returns a lazy query (a
// queryset.QuerySet) instead of materialized rows. The optimizer extension
// inspects the surrounding GraphQL selection set, derives column-projection,
// eager-join and batched-fetch hints for it, and rewrites the lazy query
// before it is ever executed. Pagination engines then slice or window the
// query according to the request arguments, and the caller materializes it.
//
// Sub-packages:
//
//   - schema: model field descriptor tables, built once at startup
//   - queryset: the lazy query handle and its storage-source interface
//   - hint: accumulated fetch directives and their merge rules
//   - optimizer: the selection walker and the gqlgen execution hook
//   - pagination: relay cursor connections and offset/window pagination
//   - postfetch: best-effort batched loading for polymorphic relations
//   - dialect/sql: a SQL storage source for MySQL, PostgreSQL and SQLite
package vireo

// Value represents a loaded field value.
type Value = any

// Entity is implemented by record types that expose field access by
// accessor name. Joined columns are addressed with dotted paths
// (e.g. "author.name").
type Entity interface {
	Value(name string) (Value, error)
}

// RelationCacher is optionally implemented by entities that can cache
// eagerly-loaded relations. Batched secondary fetches store their grouped
// children here; a later access to the relation reads the cache instead of
// issuing a per-row query. Single relations are cached as one-element slices.
type RelationCacher interface {
	// CachedRelation returns the cached children for the given relation
	// accessor, and whether the relation was loaded at all.
	CachedRelation(name string) ([]Entity, bool)

	// SetCachedRelation replaces the cache entry for the given relation
	// accessor. The entry is written atomically: callers must never store
	// a partially assembled child list.
	SetCachedRelation(name string, children []Entity)
}

// Annotated is optionally implemented by entities produced from
// window-function queries. Sources that support windows expose the computed
// row number and partition total under well-known annotation names
// (see queryset.AnnotationRowNumber and queryset.AnnotationTotalCount).
type Annotated interface {
	Annotation(name string) (Value, bool)
}
