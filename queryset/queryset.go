// Package queryset provides the lazy query handle at the center of
// selection-driven fetch optimization. A QuerySet accumulates projection,
// join, filter, ordering, slicing and batched-fetch directives without
// touching storage; materialization happens once, on All or Count, through
// a pluggable Source.
package queryset

import (
	"context"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/schema"
)

// Config is the optimization side-channel attached to a QuerySet. It
// survives cloning (deep-copied, never aliased) so that derived queries
// can be optimized independently.
type Config struct {
	// Optimized is set once the optimizer has processed the query.
	// A second pass skips the query entirely.
	Optimized bool

	// OptimizedByBatch is set when the optimizer attached batched-fetch
	// directives. Row caching is skipped for such queries because cached
	// rows would lose their relation caches.
	OptimizedByBatch bool

	// TypeHookRan is set once the per-type query hook has executed.
	TypeHookRan bool

	// Orderings are the augmented ordering descriptors computed for
	// cursor pagination, including the primary-key tiebreak.
	Orderings []Ordering
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cc := *c
	cc.Orderings = append([]Ordering(nil), c.Orderings...)
	return &cc
}

// A Batch is one batched-fetch directive: load the relation at Path for
// all result rows in a single secondary query. Sub, when non-nil, scopes
// the secondary query (projection, filters, ordering, per-parent window).
type Batch struct {
	Path string
	Sub  *QuerySet
}

// A QuerySet is a lazy query against one model. Builder methods mutate the
// receiver and return it for chaining; use Clone to derive an independent
// query. A QuerySet is not safe for concurrent mutation.
type QuerySet struct {
	client *Client
	model  *schema.Model

	columns []string
	joins   []Join
	pred    *Predicate
	orders  []Ordering
	offset  int
	limit   int
	window  *Window
	batches []Batch

	cfg *Config

	results      []vireo.Entity
	materialized bool
}

func newQuerySet(c *Client, m *schema.Model) *QuerySet {
	return &QuerySet{
		client: c,
		model:  m,
		limit:  UnboundedLimit,
		cfg:    &Config{},
	}
}

// Model returns the model the query targets.
func (qs *QuerySet) Model() *schema.Model { return qs.model }

// Client returns the client the query was created from.
func (qs *QuerySet) Client() *Client { return qs.client }

// Config returns the optimization side-channel. Never nil.
func (qs *QuerySet) Config() *Config {
	if qs.cfg == nil {
		qs.cfg = &Config{}
	}
	return qs.cfg
}

// Materialized reports whether the query has already been executed.
func (qs *QuerySet) Materialized() bool { return qs.materialized }

// Clone returns an independent copy of the query. Directive slices and the
// configuration side-channel are deep-copied; cached results are not
// carried over.
func (qs *QuerySet) Clone() *QuerySet {
	c := &QuerySet{
		client:  qs.client,
		model:   qs.model,
		columns: append([]string(nil), qs.columns...),
		joins:   append([]Join(nil), qs.joins...),
		pred:    qs.pred.Clone(),
		orders:  append([]Ordering(nil), qs.orders...),
		offset:  qs.offset,
		limit:   qs.limit,
		window:  qs.window.Clone(),
		cfg:     qs.Config().Clone(),
	}
	if qs.batches != nil {
		c.batches = make([]Batch, len(qs.batches))
		for i, b := range qs.batches {
			c.batches[i] = Batch{Path: b.Path}
			if b.Sub != nil {
				c.batches[i].Sub = b.Sub.Clone()
			}
		}
	}
	return c
}

// Where adds predicates, combined conjunctively with any existing ones.
func (qs *QuerySet) Where(ps ...*Predicate) *QuerySet {
	qs.pred = And(append([]*Predicate{qs.pred}, ps...)...)
	return qs
}

// Predicate returns the accumulated filter tree. May be nil.
func (qs *QuerySet) Predicate() *Predicate { return qs.pred }

// Order appends ordering descriptors.
func (qs *QuerySet) Order(ords ...Ordering) *QuerySet {
	qs.orders = append(qs.orders, ords...)
	return qs
}

// SetOrder replaces the ordering wholesale.
func (qs *QuerySet) SetOrder(ords []Ordering) *QuerySet {
	qs.orders = ords
	return qs
}

// Orders returns the current ordering descriptors.
func (qs *QuerySet) Orders() []Ordering { return qs.orders }

// Reverse flips every ordering descriptor in place.
func (qs *QuerySet) Reverse() *QuerySet {
	qs.orders = FlipOrderings(qs.orders)
	return qs
}

// Project narrows the selected columns to the given set, deduplicated,
// preserving first-seen order. Projecting twice unions the sets.
func (qs *QuerySet) Project(columns ...string) *QuerySet {
	seen := make(map[string]bool, len(qs.columns)+len(columns))
	for _, c := range qs.columns {
		seen[c] = true
	}
	for _, c := range columns {
		if !seen[c] {
			seen[c] = true
			qs.columns = append(qs.columns, c)
		}
	}
	return qs
}

// Columns returns the projected columns. Empty means all.
func (qs *QuerySet) Columns() []string { return qs.columns }

// Join adds eager-join directives for the given relation paths,
// deduplicated.
func (qs *QuerySet) Join(paths ...string) *QuerySet {
	seen := make(map[string]bool, len(qs.joins)+len(paths))
	for _, j := range qs.joins {
		seen[j.Path] = true
	}
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			qs.joins = append(qs.joins, Join{Path: p})
		}
	}
	return qs
}

// Joins returns the eager-join directives.
func (qs *QuerySet) Joins() []Join { return qs.joins }

// Slice restricts the query to rows [offset, offset+limit). A limit of
// UnboundedLimit keeps everything from offset on. Slicing an already
// sliced query composes relative to the previous slice.
func (qs *QuerySet) Slice(offset, limit int) *QuerySet {
	qs.offset += offset
	if limit != UnboundedLimit {
		if qs.limit == UnboundedLimit {
			qs.limit = limit
		} else if rest := qs.limit - offset; rest < limit {
			qs.limit = max(rest, 0)
		} else {
			qs.limit = limit
		}
	} else if qs.limit != UnboundedLimit {
		qs.limit = max(qs.limit-offset, 0)
	}
	return qs
}

// Offset and Limit report the current slice bounds.
func (qs *QuerySet) Offset() int { return qs.offset }
func (qs *QuerySet) Limit() int  { return qs.limit }

// SetWindow attaches row-number window pagination. It replaces any
// previous window.
func (qs *QuerySet) SetWindow(w *Window) *QuerySet {
	qs.window = w
	return qs
}

// Window returns the attached window, if any.
func (qs *QuerySet) Window() *Window { return qs.window }

// BatchFetch adds a batched-fetch directive for the relation at path.
// Adding the same path twice merges deterministically: a scoped entry wins
// over a plain one, and two scoped entries have their sub-queries merged
// with the later entry's filters and ordering taking precedence.
func (qs *QuerySet) BatchFetch(path string, sub *QuerySet) *QuerySet {
	for i, b := range qs.batches {
		if b.Path != path {
			continue
		}
		qs.batches[i] = mergeBatch(b, Batch{Path: path, Sub: sub})
		return qs
	}
	qs.batches = append(qs.batches, Batch{Path: path, Sub: sub})
	return qs
}

// Batches returns the batched-fetch directives.
func (qs *QuerySet) Batches() []Batch { return qs.batches }

// SetBatches replaces all batched-fetch directives at once. Applying hint
// stores clears then re-adds directives together because incremental adds
// can conflict with previously attached ones.
func (qs *QuerySet) SetBatches(batches []Batch) *QuerySet {
	qs.batches = nil
	for _, b := range batches {
		qs.BatchFetch(b.Path, b.Sub)
	}
	return qs
}

func mergeBatch(a, b Batch) Batch {
	switch {
	case a.Sub == nil:
		return b
	case b.Sub == nil:
		return a
	}
	merged := a.Sub.Clone()
	merged.Project(b.Sub.columns...)
	for _, j := range b.Sub.joins {
		merged.Join(j.Path)
	}
	// The later entry's filters, ordering and window take precedence.
	if b.Sub.pred != nil {
		merged.pred = b.Sub.pred.Clone()
	}
	if len(b.Sub.orders) > 0 {
		merged.orders = append([]Ordering(nil), b.Sub.orders...)
	}
	if b.Sub.window != nil {
		merged.window = b.Sub.window.Clone()
	}
	for _, nb := range b.Sub.batches {
		merged.BatchFetch(nb.Path, nb.Sub)
	}
	return Batch{Path: a.Path, Sub: merged}
}

// plan flattens the query into its source-facing form.
func (qs *QuerySet) plan() *Plan {
	return &Plan{
		Model:     qs.model.Name,
		Table:     qs.model.Table,
		Columns:   qs.columns,
		Joins:     qs.joins,
		Predicate: qs.pred,
		Orders:    qs.orders,
		Offset:    qs.offset,
		Limit:     qs.limit,
		Window:    qs.window,
	}
}

// All materializes the query, executing batched-fetch directives and
// caching the result on the handle. Subsequent calls return the cached
// rows without touching storage.
func (qs *QuerySet) All(ctx context.Context) ([]vireo.Entity, error) {
	if qs.materialized {
		return qs.results, nil
	}
	rows, err := qs.client.execute(ctx, qs)
	if err != nil {
		return nil, err
	}
	if err := qs.client.runBatches(ctx, rows, qs.model, qs.batches); err != nil {
		return nil, err
	}
	qs.results = rows
	qs.materialized = true
	return rows, nil
}

// SetResults installs pre-materialized rows on the handle, marking it
// materialized. Used by the in-process row cache and by tests.
func (qs *QuerySet) SetResults(rows []vireo.Entity) {
	qs.results = rows
	qs.materialized = true
}

// Count returns the number of rows the query would yield, ignoring any
// slice bounds and window.
func (qs *QuerySet) Count(ctx context.Context) (int, error) {
	p := qs.plan()
	p.Offset = 0
	p.Limit = UnboundedLimit
	p.Window = nil
	n, err := qs.client.src.Count(ctx, p)
	if err != nil {
		return 0, vireo.NewQueryError(qs.model.Name, "count", err)
	}
	return n, nil
}
