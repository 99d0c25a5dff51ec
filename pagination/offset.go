package pagination

import (
	"context"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
)

// UnboundedLimit is the sentinel meaning "no limit" in offset pagination.
const UnboundedLimit = queryset.UnboundedLimit

// Limits configures effective-limit resolution for offset pagination.
type Limits struct {
	// FieldDefault applies when the request carries no explicit limit.
	FieldDefault *int

	// GlobalDefault applies when neither the request nor the field
	// declares a limit.
	GlobalDefault *int

	// Max clamps explicit non-negative limits when set.
	Max *int
}

// EffectiveLimit resolves the limit for one page. Precedence for an absent
// request: field default, then global default, then unbounded. An explicit
// non-negative limit is clamped to Max; an explicit negative limit is
// passed through unclamped. The negative passthrough reproduces observed
// legacy behavior and is intentionally not normalized here.
func EffectiveLimit(requested *int, l Limits) int {
	if requested != nil {
		n := *requested
		if n >= 0 && l.Max != nil && n > *l.Max {
			return *l.Max
		}
		return n
	}
	if l.FieldDefault != nil {
		return *l.FieldDefault
	}
	if l.GlobalDefault != nil {
		return *l.GlobalDefault
	}
	return UnboundedLimit
}

// OffsetPageInfo echoes the slice bounds of an offset page.
type OffsetPageInfo struct {
	Offset int
	Limit  int
}

// A Page is the materialized result of offset pagination.
type Page struct {
	Results    []vireo.Entity
	PageInfo   OffsetPageInfo
	TotalCount int
}

// Paginate slices a top-level query to [offset, offset+limit) and
// materializes it. TotalCount is computed before slicing.
func Paginate(ctx context.Context, qs *queryset.QuerySet, offset, limit int) (*Page, error) {
	total, err := qs.Clone().Count(ctx)
	if err != nil {
		return nil, err
	}
	qs.Slice(offset, limit)
	rows, err := qs.All(ctx)
	if err != nil {
		return nil, err
	}
	return &Page{
		Results:    rows,
		PageInfo:   OffsetPageInfo{Offset: offset, Limit: limit},
		TotalCount: total,
	}, nil
}

// PaginateScoped prepares a query for per-parent offset pagination: plain
// slicing cannot run after a batched per-parent filter, so the bounds are
// pushed into a row-number window instead. The partition key is left empty
// for the batch runner to fill with the relation's grouping column. The
// query is returned unmaterialized for use as a scoped prefetch sub-query.
func PaginateScoped(qs *queryset.QuerySet, offset, limit int) *queryset.QuerySet {
	ords := Orderings(qs)
	qs.SetOrder(nil)
	qs.SetWindow(&queryset.Window{
		Order:     ords,
		Offset:    offset,
		Limit:     limit,
		WithTotal: true,
	})
	return qs
}

// ScopedTotal reads the partition total a windowed row was annotated with.
func ScopedTotal(row vireo.Entity) (int, bool) {
	ann, ok := row.(vireo.Annotated)
	if !ok {
		return 0, false
	}
	v, ok := ann.Annotation(queryset.AnnotationTotalCount)
	if !ok {
		return 0, false
	}
	return toInt(v)
}
