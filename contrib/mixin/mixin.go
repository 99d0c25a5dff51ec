// Package mixin provides reusable field groups for registry models.
//
// Models are declared as plain field slices, so a mixin here is simply a
// function returning the fields it contributes. Compose them with Fields:
//
//	reg := schema.MustRegistry(
//		schema.New("User", mixin.Fields(
//			mixin.Time(),
//			mixin.SoftDelete(),
//			[]schema.Field{
//				schema.Scalar("name"),
//				schema.ForeignKey("team", "Team"),
//			},
//		)),
//	)
//
// The predicate helpers pair with the fields: a query over soft-deleted
// models usually starts as
//
//	client.MustQuery("User").Where(mixin.NotDeleted())
package mixin

import (
	"context"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/dialect/sql"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// Fields concatenates field groups into one slice for schema.New.
func Fields(groups ...[]schema.Field) []schema.Field {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]schema.Field, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// CreateTime contributes a created_at timestamp.
func CreateTime() []schema.Field {
	return []schema.Field{
		schema.Scalar("created_at", schema.Codec(vireo.ParseTime, vireo.FormatTime)),
	}
}

// UpdateTime contributes an updated_at timestamp.
func UpdateTime() []schema.Field {
	return []schema.Field{
		schema.Scalar("updated_at", schema.Codec(vireo.ParseTime, vireo.FormatTime)),
	}
}

// Time contributes created_at and updated_at timestamps.
func Time() []schema.Field {
	return Fields(CreateTime(), UpdateTime())
}

// SoftDelete contributes a nullable deleted_at timestamp. Rows are kept
// and marked rather than removed; filter them with NotDeleted.
func SoftDelete() []schema.Field {
	return []schema.Field{
		schema.Scalar("deleted_at",
			schema.Nullable(),
			schema.Codec(vireo.ParseTime, vireo.FormatTime)),
	}
}

// TenantID contributes a tenant_id column for row-level tenant isolation.
func TenantID() []schema.Field {
	return []schema.Field{
		schema.Scalar("tenant_id"),
	}
}

// UUIDKey contributes an explicit id field with a UUID codec. Because the
// field name matches the default primary key, schema.New adopts it instead
// of adding its own string-keyed id.
func UUIDKey() []schema.Field {
	return []schema.Field{
		schema.Scalar("id", schema.Codec(vireo.ParseUUID, vireo.FormatUUID)),
	}
}

// NotDeleted matches rows a SoftDelete mixin has not marked.
func NotDeleted() *queryset.Predicate {
	return queryset.IsNull("deleted_at")
}

// TenantScope restricts a query to one tenant.
func TenantScope(tenant vireo.Value) *queryset.Predicate {
	return queryset.EQ("tenant_id", tenant)
}

// TenantVar is the session variable TenantContext sets.
const TenantVar = "app.current_tenant"

// TenantContext makes the tenant visible to the database session: every
// statement run under the returned context carries TenantVar, which
// Postgres row-level security policies can read with
// current_setting('app.current_tenant'). Pair it with TenantScope when
// the tenant_id column is also filtered in the query itself.
func TenantContext(ctx context.Context, tenant string) context.Context {
	return sql.WithVar(ctx, TenantVar, tenant)
}
