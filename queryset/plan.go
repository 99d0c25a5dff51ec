package queryset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Annotation names under which window-capable sources expose computed
// values on returned entities.
const (
	// AnnotationRowNumber is the 1-based row number within the window
	// partition (or the whole result when unpartitioned).
	AnnotationRowNumber = "_vireo_row_number"

	// AnnotationTotalCount is the total row count of the window
	// partition before offset/limit filtering.
	AnnotationTotalCount = "_vireo_total_count"
)

// A Window describes row-number pagination pushed into the source. It is
// used where plain slicing cannot work: per-parent limits after a batched
// filter, and combined forward/backward cursor slicing.
type Window struct {
	// PartitionBy partitions the row numbering by a column, typically
	// the parent-pointing foreign key. Empty means a single partition.
	PartitionBy string

	// Order is the numbering order within each partition.
	Order []Ordering

	// Offset and Limit filter on the computed row number:
	// rows with number > Offset and, when Limit >= 0, number <= Offset+Limit.
	Offset int
	Limit  int

	// WithTotal additionally computes the partition's total row count
	// and exposes it under AnnotationTotalCount.
	WithTotal bool
}

// Clone returns a deep copy of the window.
func (w *Window) Clone() *Window {
	if w == nil {
		return nil
	}
	c := *w
	c.Order = append([]Ordering(nil), w.Order...)
	return &c
}

// A Join names a single-valued relation to eagerly include in the same
// query. Joined columns are exposed on result entities under
// "<path>.<column>".
type Join struct {
	// Path is the dotted relation path from the root model.
	Path string
}

// A Plan is the flattened, source-facing form of a QuerySet: everything a
// storage source needs to build and run one query. Plans are produced by
// QuerySet.plan and consumed read-only by sources.
type Plan struct {
	Model     string
	Table     string
	Columns   []string // Empty means all columns.
	Joins     []Join
	Predicate *Predicate
	Orders    []Ordering
	Offset    int
	Limit     int // UnboundedLimit means no limit.
	Window    *Window
}

// UnboundedLimit is the reserved sentinel meaning "no limit".
const UnboundedLimit = -1

// Fingerprint returns a stable digest of the plan, usable as a cache key.
// Two plans with the same fingerprint produce the same rows.
func (p *Plan) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "m=%s;t=%s;c=%s;", p.Model, p.Table, strings.Join(p.Columns, ","))
	for _, j := range p.Joins {
		fmt.Fprintf(&b, "j=%s;", j.Path)
	}
	writePredicate(&b, p.Predicate)
	for _, o := range p.Orders {
		fmt.Fprintf(&b, "o=%s,%t,%t;", o.Column, o.Desc, o.NullsFirst)
	}
	fmt.Fprintf(&b, "s=%d,%d;", p.Offset, p.Limit)
	if w := p.Window; w != nil {
		fmt.Fprintf(&b, "w=%s,%d,%d,%t;", w.PartitionBy, w.Offset, w.Limit, w.WithTotal)
		for _, o := range w.Order {
			fmt.Fprintf(&b, "wo=%s,%t,%t;", o.Column, o.Desc, o.NullsFirst)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

func writePredicate(b *strings.Builder, p *Predicate) {
	if p == nil {
		return
	}
	fmt.Fprintf(b, "p(%s,%s,%v,%v", p.Op, p.Column, p.Value, p.Values)
	for _, k := range p.Kids {
		writePredicate(b, k)
	}
	b.WriteString(");")
}
