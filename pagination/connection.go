package pagination

import (
	"context"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
)

// Args are the relay pagination arguments of one connection field.
type Args struct {
	First  *int
	Last   *int
	After  *string
	Before *string
}

// An Edge pairs a node with its position cursor.
type Edge struct {
	Node   vireo.Entity
	Cursor string
}

// PageInfo describes the page boundaries of a connection.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
}

// A Connection is the materialized page of a cursor-paginated field.
// TotalCount is computed lazily on demand, against the filtered set
// without cursor predicates or slicing.
type Connection struct {
	Edges    []Edge
	PageInfo PageInfo

	totalQS *queryset.QuerySet
	total   *int
}

// TotalCount returns the size of the connection's underlying set.
func (c *Connection) TotalCount(ctx context.Context) (int, error) {
	if c.total != nil {
		return *c.total, nil
	}
	if c.totalQS == nil {
		return len(c.Edges), nil
	}
	n, err := c.totalQS.Count(ctx)
	if err != nil {
		return 0, err
	}
	c.total = &n
	return n, nil
}

type options struct {
	maxResults int
}

// An Option configures Connect.
type Option func(*options)

// DefaultMaxResults caps a connection page when no explicit ceiling is
// configured.
const DefaultMaxResults = 100

// WithMaxResults sets the page ceiling, which also serves as the page
// size when neither first nor last is requested.
func WithMaxResults(n int) Option {
	return func(o *options) { o.maxResults = n }
}

// Connect applies cursor pagination to a lazy query and materializes one
// page. The query's ordering is augmented with the primary-key tiebreak
// before any cursor is decoded, so cursors are only ever produced and
// consumed under a total order.
func Connect(ctx context.Context, qs *queryset.QuerySet, args Args, opts ...Option) (*Connection, error) {
	o := options{maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateArgs(args, o.maxResults); err != nil {
		return nil, err
	}

	ords := Orderings(qs)
	totalQS := qs.Clone()

	if args.After != nil {
		pos, err := DecodeCursor(*args.After, ords)
		if err != nil {
			return nil, err
		}
		qs.Where(After(ords, pos))
	}
	if args.Before != nil {
		pos, err := DecodeCursor(*args.Before, ords)
		if err != nil {
			return nil, err
		}
		qs.Where(Before(ords, pos))
	}

	var (
		rows    []vireo.Entity
		hasNext bool
		hasPrev bool
		err     error
	)
	switch {
	case args.First != nil && args.Last != nil:
		rows, hasNext, hasPrev, err = pageBoth(ctx, qs, ords, *args.First, *args.Last)
	case args.Last != nil:
		rows, hasNext, hasPrev, err = pageBackward(ctx, qs, args, *args.Last)
	default:
		first := o.maxResults
		if args.First != nil {
			first = *args.First
		}
		rows, hasNext, hasPrev, err = pageForward(ctx, qs, args, first)
	}
	if err != nil {
		return nil, err
	}

	conn := &Connection{totalQS: totalQS}
	conn.Edges = make([]Edge, len(rows))
	for i, row := range rows {
		cursor, err := EncodeCursor(row, ords)
		if err != nil {
			return nil, err
		}
		conn.Edges[i] = Edge{Node: row, Cursor: cursor}
	}
	conn.PageInfo = PageInfo{HasNextPage: hasNext, HasPreviousPage: hasPrev}
	if len(conn.Edges) > 0 {
		conn.PageInfo.StartCursor = &conn.Edges[0].Cursor
		conn.PageInfo.EndCursor = &conn.Edges[len(conn.Edges)-1].Cursor
	}
	return conn, nil
}

func validateArgs(args Args, maxResults int) error {
	if args.First != nil {
		if *args.First < 0 {
			return vireo.NewPaginationError("first", *args.First, 0)
		}
		if *args.First > maxResults {
			return vireo.NewPaginationError("first", *args.First, maxResults)
		}
	}
	// last is bounded by the ceiling independently of first.
	if args.Last != nil {
		if *args.Last < 0 {
			return vireo.NewPaginationError("last", *args.Last, 0)
		}
		if *args.Last > maxResults {
			return vireo.NewPaginationError("last", *args.Last, maxResults)
		}
	}
	return nil
}

// pageForward fetches first+1 rows; the overflow row only signals the next
// page and is dropped.
func pageForward(ctx context.Context, qs *queryset.QuerySet, args Args, first int) ([]vireo.Entity, bool, bool, error) {
	qs.Slice(0, first+1)
	rows, err := qs.All(ctx)
	if err != nil {
		return nil, false, false, err
	}
	hasNext := len(rows) > first
	if hasNext {
		rows = rows[:first]
	}
	// A resumed page always has something before it.
	hasPrev := args.After != nil
	return rows, hasNext, hasPrev, nil
}

// pageBackward reverses the ordering, fetches last+1 rows and un-reverses
// the page, so the tail is found without counting or materializing the
// whole set.
func pageBackward(ctx context.Context, qs *queryset.QuerySet, args Args, last int) ([]vireo.Entity, bool, bool, error) {
	qs.Reverse()
	qs.Slice(0, last+1)
	rows, err := qs.All(ctx)
	if err != nil {
		return nil, false, false, err
	}
	hasPrev := len(rows) > last
	if hasPrev {
		rows = rows[:last]
	}
	reverseRows(rows)
	hasNext := args.Before != nil
	return rows, hasNext, hasPrev, nil
}

// pageBoth serves first and last together in one query: a row-number
// window over the forward order caps the set at first+1 rows, the query's
// reversed ordering slices the tail by last+2, and the row-number
// annotations recover both boundary flags.
func pageBoth(ctx context.Context, qs *queryset.QuerySet, ords []queryset.Ordering, first, last int) ([]vireo.Entity, bool, bool, error) {
	qs.Reverse()
	qs.SetWindow(&queryset.Window{
		Order: ords,
		Limit: first + 1,
	})
	qs.Slice(0, last+2)
	rows, err := qs.All(ctx)
	if err != nil {
		return nil, false, false, err
	}
	reverseRows(rows)

	// The row numbered first+1 exists only to signal the next page.
	maxRN := 0
	for _, row := range rows {
		if rn, ok := rowNumber(row); ok && rn > maxRN {
			maxRN = rn
		}
	}
	hasNext := maxRN == first+1
	if hasNext {
		trimmed := rows[:0]
		for _, row := range rows {
			if rn, ok := rowNumber(row); ok && rn == first+1 {
				continue
			}
			trimmed = append(trimmed, row)
		}
		rows = trimmed
	}
	hasPrev := len(rows) > last
	if hasPrev {
		rows = rows[len(rows)-last:]
	}
	return rows, hasNext, hasPrev, nil
}

func rowNumber(row vireo.Entity) (int, bool) {
	ann, ok := row.(vireo.Annotated)
	if !ok {
		return 0, false
	}
	v, ok := ann.Annotation(queryset.AnnotationRowNumber)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func reverseRows(rows []vireo.Entity) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// ConnectPartitioned serves nested per-parent cursor pagination through a
// partitioned row-number window, since plain slicing cannot run after a
// batched per-parent filter. Only forward pagination applies per parent;
// the returned map is keyed by the partition column's value.
func ConnectPartitioned(ctx context.Context, qs *queryset.QuerySet, args Args, partitionBy string, opts ...Option) (map[vireo.Value]*Connection, error) {
	o := options{maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateArgs(args, o.maxResults); err != nil {
		return nil, err
	}
	first := o.maxResults
	if args.First != nil {
		first = *args.First
	}

	ords := Orderings(qs)
	if args.After != nil {
		pos, err := DecodeCursor(*args.After, ords)
		if err != nil {
			return nil, err
		}
		qs.Where(After(ords, pos))
	}
	qs.SetOrder(nil)
	qs.SetWindow(&queryset.Window{
		PartitionBy: partitionBy,
		Order:       ords,
		Limit:       first + 1,
		WithTotal:   true,
	})
	rows, err := qs.All(ctx)
	if err != nil {
		return nil, err
	}

	conns := make(map[vireo.Value]*Connection)
	for _, row := range rows {
		key, err := row.Value(partitionBy)
		if err != nil {
			continue
		}
		conn := conns[key]
		if conn == nil {
			conn = &Connection{}
			conns[key] = conn
		}
		rn, _ := rowNumber(row)
		if rn == first+1 {
			conn.PageInfo.HasNextPage = true
			continue
		}
		if ann, ok := row.(vireo.Annotated); ok {
			if v, ok := ann.Annotation(queryset.AnnotationTotalCount); ok {
				if n, ok := toInt(v); ok {
					conn.total = &n
				}
			}
		}
		cursor, err := EncodeCursor(row, ords)
		if err != nil {
			return nil, err
		}
		conn.Edges = append(conn.Edges, Edge{Node: row, Cursor: cursor})
		conn.PageInfo.HasPreviousPage = conn.PageInfo.HasPreviousPage || args.After != nil
	}
	for _, conn := range conns {
		if len(conn.Edges) > 0 {
			conn.PageInfo.StartCursor = &conn.Edges[0].Cursor
			conn.PageInfo.EndCursor = &conn.Edges[len(conn.Edges)-1].Cursor
		}
	}
	return conns, nil
}

func toInt(v vireo.Value) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
