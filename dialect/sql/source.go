package sql

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/dialect"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// Source executes query plans against a SQL database. It implements
// queryset.Source: plans are rendered to a single SELECT statement with
// left joins for joined paths and a row-number subquery for windows.
type Source struct {
	drv dialect.Driver
	reg *schema.Registry
	log *slog.Logger
}

var _ queryset.Source = (*Source)(nil)

// A SourceOption configures the Source.
type SourceOption func(*Source)

// WithSourceLogger sets the logger for debug output.
func WithSourceLogger(log *slog.Logger) SourceOption {
	return func(s *Source) { s.log = log }
}

// NewSource returns a Source over the given driver and registry.
func NewSource(drv dialect.Driver, reg *schema.Registry, opts ...SourceOption) *Source {
	s := &Source{drv: drv, reg: reg, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select implements queryset.Source.
func (s *Source) Select(ctx context.Context, p *queryset.Plan) ([]vireo.Entity, error) {
	b := &builder{dialect: s.drv.Dialect()}
	if err := b.selectPlan(s.reg, p); err != nil {
		return nil, err
	}
	query, args := b.String(), b.args
	s.log.DebugContext(ctx, "select", "query", query, "args", args)

	var rows Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanRecords(&rows)
	if err != nil {
		return nil, err
	}
	return out, rows.Err()
}

// Count implements queryset.Source.
func (s *Source) Count(ctx context.Context, p *queryset.Plan) (int, error) {
	b := &builder{dialect: s.drv.Dialect()}
	if err := b.countPlan(s.reg, p); err != nil {
		return 0, err
	}
	query, args := b.String(), b.args
	s.log.DebugContext(ctx, "count", "query", query, "args", args)

	var rows Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, fmt.Errorf("dialect/sql: count returned no rows")
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		return 0, err
	}
	return n, rows.Err()
}

// scanRecords reads every result row into a generic record. Byte slices
// are converted to strings; the window bookkeeping columns are moved into
// record annotations.
func scanRecords(rows *Rows) ([]vireo.Entity, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []vireo.Entity
	for rows.Next() {
		dest := make([]any, len(columns))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		values := make(map[string]vireo.Value, len(columns))
		rec := &recordAnnotations{}
		for i, name := range columns {
			v := normalize(*(dest[i].(*any)))
			switch name {
			case queryset.AnnotationRowNumber:
				rec.rowNumber, rec.hasRowNumber = v, true
			case queryset.AnnotationTotalCount:
				rec.totalCount, rec.hasTotalCount = v, true
			default:
				values[name] = v
			}
		}
		r := queryset.NewRecord(values)
		if rec.hasRowNumber {
			r.Annotate(queryset.AnnotationRowNumber, rec.rowNumber)
		}
		if rec.hasTotalCount {
			r.Annotate(queryset.AnnotationTotalCount, rec.totalCount)
		}
		out = append(out, r)
	}
	return out, nil
}

type recordAnnotations struct {
	rowNumber     vireo.Value
	totalCount    vireo.Value
	hasRowNumber  bool
	hasTotalCount bool
}

func normalize(v any) vireo.Value {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v
	}
	return v
}

// builder renders one plan to a SQL statement. It is single-use.
type builder struct {
	dialect string
	sb      strings.Builder
	args    []any
}

func (b *builder) String() string { return b.sb.String() }

func (b *builder) write(s string) { b.sb.WriteString(s) }

// arg appends a bound argument and writes its placeholder.
func (b *builder) arg(v any) {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		fmt.Fprintf(&b.sb, "$%d", len(b.args))
		return
	}
	b.sb.WriteByte('?')
}

// quote writes one identifier. Join aliases contain dots and are quoted
// whole; qualification is the caller's business.
func (b *builder) quote(ident string) error {
	if !isValidIdentifier(ident) {
		return fmt.Errorf("dialect/sql: invalid identifier %q", ident)
	}
	q := byte('"')
	if b.dialect == dialect.MySQL {
		q = '`'
	}
	b.sb.WriteByte(q)
	b.write(ident)
	b.sb.WriteByte(q)
	return nil
}

// column writes a qualified column reference. A dotted name addresses a
// joined alias, a plain name the base table.
func (b *builder) column(table, name string) error {
	alias, col := table, name
	if i := strings.LastIndex(name, "."); i >= 0 {
		alias, col = name[:i], name[i+1:]
	}
	if err := b.quote(alias); err != nil {
		return err
	}
	b.sb.WriteByte('.')
	return b.quote(col)
}

func (b *builder) selectPlan(reg *schema.Registry, p *queryset.Plan) error {
	if p.Window != nil {
		return b.windowPlan(reg, p)
	}
	b.write("SELECT ")
	if err := b.columns(p); err != nil {
		return err
	}
	if err := b.from(reg, p); err != nil {
		return err
	}
	if err := b.where(p.Table, p.Predicate); err != nil {
		return err
	}
	if err := b.orderBy(p.Table, p.Orders); err != nil {
		return err
	}
	b.limitOffset(p.Limit, p.Offset)
	return nil
}

func (b *builder) countPlan(reg *schema.Registry, p *queryset.Plan) error {
	b.write("SELECT COUNT(*)")
	if err := b.from(reg, p); err != nil {
		return err
	}
	return b.where(p.Table, p.Predicate)
}

// windowPlan wraps the base select in a subquery that numbers rows per
// partition, then filters on the row number and applies the plan's own
// ordering and slicing on the outside.
func (b *builder) windowPlan(reg *schema.Registry, p *queryset.Plan) error {
	w := p.Window
	b.write("SELECT * FROM (SELECT ")
	if err := b.columnList(p.Table, windowColumns(p)); err != nil {
		return err
	}
	b.write(", ROW_NUMBER() OVER (")
	if err := b.over(p.Table, w); err != nil {
		return err
	}
	b.write(") AS ")
	if err := b.quote(queryset.AnnotationRowNumber); err != nil {
		return err
	}
	if w.WithTotal {
		b.write(", COUNT(*) OVER (")
		if w.PartitionBy != "" {
			b.write("PARTITION BY ")
			if err := b.column(p.Table, w.PartitionBy); err != nil {
				return err
			}
		}
		b.write(") AS ")
		if err := b.quote(queryset.AnnotationTotalCount); err != nil {
			return err
		}
	}
	if err := b.from(reg, p); err != nil {
		return err
	}
	if err := b.where(p.Table, p.Predicate); err != nil {
		return err
	}
	b.write(") AS ")
	if err := b.quote("_w"); err != nil {
		return err
	}
	var conds []func() error
	if w.Offset > 0 {
		conds = append(conds, func() error {
			if err := b.quote(queryset.AnnotationRowNumber); err != nil {
				return err
			}
			b.write(" > ")
			b.arg(w.Offset)
			return nil
		})
	}
	if w.Limit != queryset.UnboundedLimit {
		conds = append(conds, func() error {
			if err := b.quote(queryset.AnnotationRowNumber); err != nil {
				return err
			}
			b.write(" <= ")
			b.arg(w.Offset + w.Limit)
			return nil
		})
	}
	for i, cond := range conds {
		if i == 0 {
			b.write(" WHERE ")
		} else {
			b.write(" AND ")
		}
		if err := cond(); err != nil {
			return err
		}
	}
	if len(p.Orders) > 0 {
		for i, o := range p.Orders {
			if i == 0 {
				b.write(" ORDER BY ")
			} else {
				b.write(", ")
			}
			// The subquery exposes joined columns under their full path
			// name, so the outer ordering addresses them as one
			// identifier.
			if err := b.flatOrdering("_w", o); err != nil {
				return err
			}
		}
	} else {
		// A plan without its own ordering still needs a deterministic
		// outer order: partition-major, rank-minor. The engine is free
		// to interleave partitions otherwise.
		b.write(" ORDER BY ")
		if w.PartitionBy != "" {
			if err := b.flatColumn("_w", w.PartitionBy); err != nil {
				return err
			}
			b.write(" ASC, ")
		}
		if err := b.flatColumn("_w", queryset.AnnotationRowNumber); err != nil {
			return err
		}
		b.write(" ASC")
	}
	b.limitOffset(p.Limit, p.Offset)
	return nil
}

// windowColumns returns the projection of the window subquery: the plan's
// columns plus any partition and ordering columns it left out. An empty
// projection selects everything and needs no help.
func windowColumns(p *queryset.Plan) []string {
	if len(p.Columns) == 0 {
		return nil
	}
	cols := append([]string(nil), p.Columns...)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	add(p.Window.PartitionBy)
	for _, o := range p.Window.Order {
		add(o.Column)
	}
	for _, o := range p.Orders {
		add(o.Column)
	}
	return cols
}

func (b *builder) over(table string, w *queryset.Window) error {
	wrote := false
	if w.PartitionBy != "" {
		b.write("PARTITION BY ")
		if err := b.column(table, w.PartitionBy); err != nil {
			return err
		}
		wrote = true
	}
	for i, o := range w.Order {
		if i == 0 {
			if wrote {
				b.write(" ")
			}
			b.write("ORDER BY ")
		} else {
			b.write(", ")
		}
		if err := b.ordering(table, o); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) columns(p *queryset.Plan) error {
	return b.columnList(p.Table, p.Columns)
}

func (b *builder) columnList(table string, cols []string) error {
	if len(cols) == 0 {
		if err := b.quote(table); err != nil {
			return err
		}
		b.write(".*")
		return nil
	}
	for i, col := range cols {
		if i > 0 {
			b.write(", ")
		}
		if err := b.column(table, col); err != nil {
			return err
		}
		if strings.Contains(col, ".") {
			// Joined columns keep their path name in the result set.
			b.write(" AS ")
			if err := b.quote(col); err != nil {
				return err
			}
		}
	}
	return nil
}

// flatColumn writes a column of a subquery alias, where dotted names are
// plain identifiers rather than join references.
func (b *builder) flatColumn(table, name string) error {
	if err := b.quote(table); err != nil {
		return err
	}
	b.sb.WriteByte('.')
	return b.quote(name)
}

func (b *builder) flatOrdering(table string, o queryset.Ordering) error {
	return b.orderingTerm(func() error { return b.flatColumn(table, o.Column) }, o)
}

func (b *builder) from(reg *schema.Registry, p *queryset.Plan) error {
	b.write(" FROM ")
	if err := b.quote(p.Table); err != nil {
		return err
	}
	if len(p.Joins) == 0 {
		return nil
	}
	m, err := reg.Model(p.Model)
	if err != nil {
		return fmt.Errorf("dialect/sql: join on unknown model %q", p.Model)
	}
	emitted := make(map[string]bool)
	for _, j := range p.Joins {
		if err := b.joinPath(reg, m, p.Table, j.Path, emitted); err != nil {
			return err
		}
	}
	return nil
}

// joinPath emits one LEFT JOIN per path segment that has not been joined
// yet. The alias of a joined table is its full path, so projected columns
// and predicates address it by the accessor path.
func (b *builder) joinPath(reg *schema.Registry, m *schema.Model, baseTable, path string, emitted map[string]bool) error {
	parentAlias := baseTable
	prefix := ""
	for _, seg := range strings.Split(path, ".") {
		alias := seg
		if prefix != "" {
			alias = prefix + "." + seg
		}
		f, err := m.Field(seg)
		if err != nil {
			return fmt.Errorf("dialect/sql: join path %q: unknown field %q on %s", path, seg, m.Name)
		}
		target, err := reg.Model(f.Target)
		if err != nil {
			return fmt.Errorf("dialect/sql: join path %q: unknown model %q", path, f.Target)
		}
		var localCol, remoteCol string
		switch f.Kind {
		case schema.KindForeignKey:
			localCol = f.Column
			remoteCol = f.RemoteColumn
			if remoteCol == "" {
				remoteCol = target.PKColumn()
			}
		case schema.KindOneToOne:
			localCol = m.PKColumn()
			remoteCol = f.RemoteColumn
		default:
			return fmt.Errorf("dialect/sql: join path %q: field %q is not a single reference", path, seg)
		}
		if !emitted[alias] {
			emitted[alias] = true
			b.write(" LEFT JOIN ")
			if err := b.quote(target.Table); err != nil {
				return err
			}
			b.write(" AS ")
			if err := b.quote(alias); err != nil {
				return err
			}
			b.write(" ON ")
			if err := b.quote(parentAlias); err != nil {
				return err
			}
			b.sb.WriteByte('.')
			if err := b.quote(localCol); err != nil {
				return err
			}
			b.write(" = ")
			if err := b.quote(alias); err != nil {
				return err
			}
			b.sb.WriteByte('.')
			if err := b.quote(remoteCol); err != nil {
				return err
			}
		}
		parentAlias = alias
		prefix = alias
		m = target
	}
	return nil
}

func (b *builder) where(table string, p *queryset.Predicate) error {
	if p == nil {
		return nil
	}
	b.write(" WHERE ")
	return b.predicate(table, p)
}

func (b *builder) predicate(table string, p *queryset.Predicate) error {
	switch p.Op {
	case queryset.OpAnd, queryset.OpOr:
		sep := " AND "
		if p.Op == queryset.OpOr {
			sep = " OR "
		}
		b.sb.WriteByte('(')
		for i, k := range p.Kids {
			if i > 0 {
				b.write(sep)
			}
			if err := b.predicate(table, k); err != nil {
				return err
			}
		}
		b.sb.WriteByte(')')
		return nil
	case queryset.OpNothing:
		b.write("1 = 0")
		return nil
	case queryset.OpIsNull, queryset.OpNotNull:
		if err := b.column(table, p.Column); err != nil {
			return err
		}
		if p.Op == queryset.OpIsNull {
			b.write(" IS NULL")
		} else {
			b.write(" IS NOT NULL")
		}
		return nil
	case queryset.OpIn:
		if err := b.column(table, p.Column); err != nil {
			return err
		}
		b.write(" IN (")
		for i, v := range p.Values {
			if i > 0 {
				b.write(", ")
			}
			b.arg(v)
		}
		b.sb.WriteByte(')')
		return nil
	case queryset.OpContains, queryset.OpHasPrefix, queryset.OpHasSuffix:
		if err := b.column(table, p.Column); err != nil {
			return err
		}
		b.write(" LIKE ")
		frag, _ := p.Value.(string)
		frag = escapeLike(frag)
		switch p.Op {
		case queryset.OpContains:
			b.arg("%" + frag + "%")
		case queryset.OpHasPrefix:
			b.arg(frag + "%")
		default:
			b.arg("%" + frag)
		}
		// Backslash already escapes on MySQL; elsewhere it must be
		// declared.
		if b.dialect != dialect.MySQL {
			b.write(` ESCAPE '\'`)
		}
		return nil
	}
	var op string
	switch p.Op {
	case queryset.OpEQ:
		op = " = "
	case queryset.OpNEQ:
		op = " <> "
	case queryset.OpGT:
		op = " > "
	case queryset.OpGTE:
		op = " >= "
	case queryset.OpLT:
		op = " < "
	case queryset.OpLTE:
		op = " <= "
	default:
		return fmt.Errorf("dialect/sql: unsupported operator %s", p.Op)
	}
	if err := b.column(table, p.Column); err != nil {
		return err
	}
	b.write(op)
	b.arg(p.Value)
	return nil
}

// escapeLike escapes the LIKE metacharacters in a raw fragment.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (b *builder) orderBy(table string, orders []queryset.Ordering) error {
	for i, o := range orders {
		if i == 0 {
			b.write(" ORDER BY ")
		} else {
			b.write(", ")
		}
		if err := b.ordering(table, o); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) ordering(table string, o queryset.Ordering) error {
	return b.orderingTerm(func() error { return b.column(table, o.Column) }, o)
}

// orderingTerm writes one ORDER BY term. Null placement is emitted
// explicitly for nullable columns: native NULLS FIRST/LAST where the
// dialect has it, an IS NULL prefix term on MySQL.
func (b *builder) orderingTerm(col func() error, o queryset.Ordering) error {
	if o.Nullable && b.dialect == dialect.MySQL {
		b.sb.WriteByte('(')
		if err := col(); err != nil {
			return err
		}
		if o.NullsFirst {
			b.write(" IS NULL) DESC, ")
		} else {
			b.write(" IS NULL) ASC, ")
		}
	}
	if err := col(); err != nil {
		return err
	}
	if o.Desc {
		b.write(" DESC")
	} else {
		b.write(" ASC")
	}
	if o.Nullable && b.dialect != dialect.MySQL {
		if o.NullsFirst {
			b.write(" NULLS FIRST")
		} else {
			b.write(" NULLS LAST")
		}
	}
	return nil
}

func (b *builder) limitOffset(limit, offset int) {
	if limit == queryset.UnboundedLimit && offset > 0 && b.dialect == dialect.MySQL {
		// MySQL cannot express OFFSET without LIMIT.
		limit = math.MaxInt64
	}
	if limit != queryset.UnboundedLimit {
		b.write(" LIMIT ")
		fmt.Fprintf(&b.sb, "%d", limit)
	}
	if offset > 0 {
		b.write(" OFFSET ")
		fmt.Fprintf(&b.sb, "%d", offset)
	}
}
