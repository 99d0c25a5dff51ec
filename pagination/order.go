// Package pagination slices lazy queries two ways: relay-style cursor
// connections with stable multi-column ordering, and plain offset/limit
// pages with a window-function variant for per-parent slicing.
package pagination

import (
	"github.com/vireolabs/vireo/queryset"
)

// Orderings returns the query's ordering augmented with a primary-key
// ascending tiebreak, guaranteeing a total order: no two distinct rows
// compare equal across all descriptors. The result is installed as the
// query's effective order and recorded on its configuration side-channel
// for cursor encoding.
func Orderings(qs *queryset.QuerySet) []queryset.Ordering {
	m := qs.Model()
	pk := m.PKColumn()
	ords := append([]queryset.Ordering(nil), qs.Orders()...)
	found := false
	for _, o := range ords {
		if o.Column == pk {
			found = true
			break
		}
	}
	if !found {
		tiebreak := queryset.Ordering{Column: pk}
		if f := m.PKField(); f != nil {
			tiebreak.Parse = f.Parse
			tiebreak.Format = f.Format
			tiebreak.Nullable = f.Nullable
		}
		ords = append(ords, tiebreak)
	}
	qs.SetOrder(ords)
	if len(qs.Columns()) > 0 {
		// A narrowed projection must still fetch every ordering column,
		// or cursors could not be encoded from the returned rows.
		for _, o := range ords {
			qs.Project(o.Column)
		}
	}
	qs.Config().Orderings = append([]queryset.Ordering(nil), ords...)
	return ords
}
