// Package memsource provides an in-memory queryset.Source used in tests.
// It implements the full plan surface: projection, joins, predicate
// filtering, null-aware ordering, slicing and row-number windows.
package memsource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// Source is an in-memory queryset.Source backed by per-table row slices.
type Source struct {
	reg *schema.Registry

	mu     sync.RWMutex
	tables map[string][]map[string]vireo.Value
}

// New returns an empty Source resolving joins through the given registry.
func New(reg *schema.Registry) *Source {
	return &Source{reg: reg, tables: make(map[string][]map[string]vireo.Value)}
}

// Insert appends a row to the named table. The map is copied.
func (s *Source) Insert(table string, row map[string]vireo.Value) {
	cp := make(map[string]vireo.Value, len(row))
	for k, v := range row {
		cp[k] = v
	}
	s.mu.Lock()
	s.tables[table] = append(s.tables[table], cp)
	s.mu.Unlock()
}

// Select implements queryset.Source.
func (s *Source) Select(ctx context.Context, p *queryset.Plan) ([]vireo.Entity, error) {
	rows, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	if p.Window != nil {
		return s.applyWindow(rows, p)
	}
	sortRows(rows, p.Orders)
	rows = slice(rows, p.Offset, p.Limit)
	out := make([]vireo.Entity, len(rows))
	for i, row := range rows {
		out[i] = queryset.NewRecord(project(row, p.Columns))
	}
	return out, nil
}

// Count implements queryset.Source.
func (s *Source) Count(ctx context.Context, p *queryset.Plan) (int, error) {
	rows, err := s.resolve(p)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// resolve returns the joined, filtered rows of the plan, unsorted and
// unsliced.
func (s *Source) resolve(p *queryset.Plan) ([]map[string]vireo.Value, error) {
	s.mu.RLock()
	base := s.tables[p.Table]
	s.mu.RUnlock()

	rows := make([]map[string]vireo.Value, 0, len(base))
	for _, src := range base {
		row := make(map[string]vireo.Value, len(src))
		for k, v := range src {
			row[k] = v
		}
		rows = append(rows, row)
	}
	for _, j := range p.Joins {
		if err := s.applyJoin(rows, p.Model, j.Path); err != nil {
			return nil, err
		}
	}
	if p.Predicate != nil {
		kept := rows[:0]
		for _, row := range rows {
			ok, err := eval(p.Predicate, row)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return rows, nil
}

// applyJoin flattens the single-valued relation at path into each row
// under "<path>.<column>" keys. Compound paths join level by level.
func (s *Source) applyJoin(rows []map[string]vireo.Value, model, path string) error {
	m, err := s.reg.Model(model)
	if err != nil {
		return err
	}
	return s.joinLevel(rows, m, strings.Split(path, "."), nil)
}

func (s *Source) joinLevel(rows []map[string]vireo.Value, m *schema.Model, segs, prefix []string) error {
	f, err := m.Field(segs[0])
	if err != nil {
		return err
	}
	if !f.Kind.IsSingle() {
		return fmt.Errorf("memsource: cannot join %s.%s of kind %s", m.Name, f.Name, f.Kind)
	}
	target, err := s.reg.Model(f.Target)
	if err != nil {
		return err
	}
	s.mu.RLock()
	related := s.tables[target.Table]
	s.mu.RUnlock()

	var localKey, remoteKey string
	if f.Kind == schema.KindForeignKey {
		localKey = f.Column
		remoteKey = f.RemoteColumn
		if remoteKey == "" {
			remoteKey = target.PKColumn()
		}
	} else { // one-to-one, FK on the target side
		localKey = m.PKColumn()
		remoteKey = f.RemoteColumn
	}

	index := make(map[vireo.Value]map[string]vireo.Value, len(related))
	for _, rel := range related {
		if k, ok := rel[remoteKey]; ok && k != nil {
			index[k] = rel
		}
	}
	keyPath := append(append([]string(nil), prefix...), f.Name)
	joined := strings.Join(keyPath, ".")
	for _, row := range rows {
		localVal := row[strings.Join(append(append([]string(nil), prefix...), localKey), ".")]
		if len(prefix) == 0 {
			localVal = row[localKey]
		}
		rel, ok := index[localVal]
		if !ok {
			continue
		}
		for col, v := range rel {
			row[joined+"."+col] = v
		}
	}
	if len(segs) > 1 {
		return s.joinLevel(rows, target, segs[1:], keyPath)
	}
	return nil
}

func project(row map[string]vireo.Value, columns []string) map[string]vireo.Value {
	if len(columns) == 0 {
		return row
	}
	out := make(map[string]vireo.Value, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
		// Joined columns under the path prefix travel with the join.
		for k, v := range row {
			if strings.HasPrefix(k, c+".") {
				out[k] = v
			}
		}
	}
	return out
}

func slice(rows []map[string]vireo.Value, offset, limit int) []map[string]vireo.Value {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit != queryset.UnboundedLimit && limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// applyWindow numbers rows per partition in window order, filters on the
// row number, then applies the plan's outer ordering and slice to the
// survivors. Survivors carry their row number and, when requested, the
// partition total as annotations.
func (s *Source) applyWindow(rows []map[string]vireo.Value, p *queryset.Plan) ([]vireo.Entity, error) {
	w := p.Window
	partitions := make(map[vireo.Value][]map[string]vireo.Value)
	var keys []vireo.Value
	for _, row := range rows {
		var key vireo.Value
		if w.PartitionBy != "" {
			key = row[w.PartitionBy]
		}
		if _, ok := partitions[key]; !ok {
			keys = append(keys, key)
		}
		partitions[key] = append(partitions[key], row)
	}

	type numbered struct {
		row   map[string]vireo.Value
		rn    int
		total int
	}
	var survivors []numbered
	for _, key := range keys {
		part := partitions[key]
		sortRows(part, w.Order)
		total := len(part)
		for i, row := range part {
			rn := i + 1
			if rn <= w.Offset {
				continue
			}
			if w.Limit != queryset.UnboundedLimit && w.Limit >= 0 && rn > w.Offset+w.Limit {
				break
			}
			survivors = append(survivors, numbered{row: row, rn: rn, total: total})
		}
	}
	if len(p.Orders) > 0 {
		sort.SliceStable(survivors, func(i, j int) bool {
			for _, o := range p.Orders {
				c := compareNullable(survivors[i].row[o.Column], survivors[j].row[o.Column], o)
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}
	if p.Offset > 0 {
		if p.Offset >= len(survivors) {
			survivors = nil
		} else {
			survivors = survivors[p.Offset:]
		}
	}
	if p.Limit != queryset.UnboundedLimit && p.Limit >= 0 && p.Limit < len(survivors) {
		survivors = survivors[:p.Limit]
	}

	out := make([]vireo.Entity, 0, len(survivors))
	for _, n := range survivors {
		rec := queryset.NewRecord(project(n.row, p.Columns))
		rec.Annotate(queryset.AnnotationRowNumber, int64(n.rn))
		if w.WithTotal {
			rec.Annotate(queryset.AnnotationTotalCount, int64(n.total))
		}
		out = append(out, rec)
	}
	return out, nil
}

func sortRows(rows []map[string]vireo.Value, orders []queryset.Ordering) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			a, b := rows[i][o.Column], rows[j][o.Column]
			c := compareNullable(a, b, o)
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// compareNullable orders two values under one descriptor: null placement
// first, then the natural comparison, inverted for descending.
func compareNullable(a, b vireo.Value, o queryset.Ordering) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if o.NullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if o.NullsFirst {
			return 1
		}
		return -1
	}
	c := compare(a, b)
	if o.Desc {
		return -c
	}
	return c
}

func compare(a, b vireo.Value) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(av, toString(b))
	case int, int32, int64:
		ai, bi := toInt64(a), toInt64(b)
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case float32, float64:
		af, bf := toFloat64(a), toFloat64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case bool:
		bv, _ := b.(bool)
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		}
		return 0
	case time.Time:
		bt, _ := b.(time.Time)
		return av.Compare(bt)
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func toString(v vireo.Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toInt64(v vireo.Value) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v vireo.Value) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// eval evaluates a predicate against one row.
func eval(p *queryset.Predicate, row map[string]vireo.Value) (bool, error) {
	switch p.Op {
	case queryset.OpAnd:
		for _, k := range p.Kids {
			ok, err := eval(k, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case queryset.OpOr:
		for _, k := range p.Kids {
			ok, err := eval(k, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case queryset.OpNothing:
		return false, nil
	case queryset.OpIsNull:
		return row[p.Column] == nil, nil
	case queryset.OpNotNull:
		return row[p.Column] != nil, nil
	case queryset.OpIn:
		v := row[p.Column]
		if v == nil {
			return false, nil
		}
		for _, candidate := range p.Values {
			if candidate != nil && compare(v, candidate) == 0 {
				return true, nil
			}
		}
		return false, nil
	case queryset.OpContains, queryset.OpHasPrefix, queryset.OpHasSuffix:
		s, ok := row[p.Column].(string)
		frag, fok := p.Value.(string)
		if !ok || !fok {
			return false, nil
		}
		switch p.Op {
		case queryset.OpContains:
			return strings.Contains(s, frag), nil
		case queryset.OpHasPrefix:
			return strings.HasPrefix(s, frag), nil
		default:
			return strings.HasSuffix(s, frag), nil
		}
	}
	v := row[p.Column]
	if v == nil || p.Value == nil {
		// SQL semantics: comparisons against NULL match nothing.
		return false, nil
	}
	c := compare(v, p.Value)
	switch p.Op {
	case queryset.OpEQ:
		return c == 0, nil
	case queryset.OpNEQ:
		return c != 0, nil
	case queryset.OpGT:
		return c > 0, nil
	case queryset.OpGTE:
		return c >= 0, nil
	case queryset.OpLT:
		return c < 0, nil
	case queryset.OpLTE:
		return c <= 0, nil
	}
	return false, fmt.Errorf("memsource: unsupported operator %s", p.Op)
}
