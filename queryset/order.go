package queryset

import (
	"github.com/vireolabs/vireo"
)

// An Ordering is one component of a multi-column stable sort: a column,
// a direction, null placement and the codecs used to carry the column's
// values through cursors.
type Ordering struct {
	// Column is the storage column the sort applies to.
	Column string

	// Desc sorts descending when set.
	Desc bool

	// NullsFirst places NULLs before all non-null values. When unset,
	// NULLs sort last.
	NullsFirst bool

	// Nullable reports whether the column admits NULL at all. Non-null
	// columns skip the null-placement clauses entirely.
	Nullable bool

	// Parse and Format convert the column's values to and from their
	// cursor string form. Nil falls back to the string identity codec
	// and a dynamic-type formatter respectively.
	Parse  vireo.ParseFunc
	Format vireo.FormatFunc
}

// Flip returns the ordering with its direction and null placement reversed.
// Flipping twice restores the original.
func (o Ordering) Flip() Ordering {
	o.Desc = !o.Desc
	o.NullsFirst = !o.NullsFirst
	return o
}

// ParseValue converts the cursor string form back to a value using the
// ordering's codec.
func (o Ordering) ParseValue(s string) (vireo.Value, error) {
	if o.Parse == nil {
		return vireo.ParseString(s)
	}
	return o.Parse(s)
}

// FormatValue renders a value in its cursor string form using the
// ordering's codec.
func (o Ordering) FormatValue(v vireo.Value) (string, error) {
	if o.Format == nil {
		return vireo.FormatAny(v)
	}
	return o.Format(v)
}

// FlipOrderings returns a new slice with every ordering flipped.
func FlipOrderings(ords []Ordering) []Ordering {
	out := make([]Ordering, len(ords))
	for i, o := range ords {
		out[i] = o.Flip()
	}
	return out
}
