package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
)

// cursorPrefix versions the cursor wire form. Decoders reject anything
// else.
const cursorPrefix = "oc1"

// A Component is one decoded cursor position value: the parsed value, or
// null when the row's column was NULL.
type Component struct {
	Value vireo.Value
	Null  bool
}

// A Position is a decoded cursor: one component per ordering descriptor,
// in descriptor order.
type Position []Component

// EncodeCursor renders a row's position under the given orderings as an
// opaque cursor: base64 of the version prefix plus a JSON array of
// string-serialized values, nulls preserved as JSON null.
func EncodeCursor(row vireo.Entity, ords []queryset.Ordering) (string, error) {
	parts := make([]*string, len(ords))
	for i, o := range ords {
		v, err := row.Value(o.Column)
		if err != nil {
			return "", err
		}
		if v == nil {
			continue
		}
		s, err := o.FormatValue(v)
		if err != nil {
			return "", err
		}
		parts[i] = &s
	}
	payload, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append([]byte(cursorPrefix+":"), payload...)), nil
}

// DecodeCursor validates and decodes a cursor against the given orderings.
// Any violation, wrong prefix, wrong component count, a non-string
// component or a value that fails its descriptor's parse function, yields
// an InvalidCursorError.
func DecodeCursor(cursor string, ords []queryset.Ordering) (Position, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, vireo.NewInvalidCursorError(cursor, "malformed encoding")
	}
	payload, ok := strings.CutPrefix(string(raw), cursorPrefix+":")
	if !ok {
		return nil, vireo.NewInvalidCursorError(cursor, "unrecognized prefix")
	}
	var parts []any
	if err := json.Unmarshal([]byte(payload), &parts); err != nil {
		return nil, vireo.NewInvalidCursorError(cursor, "payload is not a JSON array")
	}
	if len(parts) != len(ords) {
		return nil, vireo.NewInvalidCursorError(cursor,
			fmt.Sprintf("expected %d components, got %d", len(ords), len(parts)))
	}
	pos := make(Position, len(parts))
	for i, part := range parts {
		if part == nil {
			pos[i] = Component{Null: true}
			continue
		}
		s, ok := part.(string)
		if !ok {
			return nil, vireo.NewInvalidCursorError(cursor,
				fmt.Sprintf("component %d is not a string", i))
		}
		v, err := ords[i].ParseValue(s)
		if err != nil {
			return nil, vireo.NewInvalidCursorError(cursor,
				fmt.Sprintf("component %d does not parse for its ordering", i))
		}
		pos[i] = Component{Value: v}
	}
	return pos, nil
}

// After builds the resume predicate matching rows strictly after pos in
// the composite order: the OR over each descriptor of "equal on all
// earlier descriptors AND strictly past on this one". Null placement
// follows the descriptor: a NULL is the most extreme value in its
// configured direction.
func After(ords []queryset.Ordering, pos Position) *queryset.Predicate {
	disjuncts := make([]*queryset.Predicate, 0, len(ords))
	for i, o := range ords {
		var terms []*queryset.Predicate
		for j := 0; j < i; j++ {
			terms = append(terms, equalComponent(ords[j], pos[j]))
		}
		past := pastComponent(o, pos[i])
		if past == nil {
			// Nothing sorts past this component's value; the whole
			// disjunct is unsatisfiable.
			continue
		}
		terms = append(terms, past)
		disjuncts = append(disjuncts, queryset.And(terms...))
	}
	if len(disjuncts) == 0 {
		return queryset.Nothing()
	}
	return queryset.Or(disjuncts...)
}

// Before builds the symmetric strictly-before predicate. Before under an
// ordering is exactly After under the flipped ordering.
func Before(ords []queryset.Ordering, pos Position) *queryset.Predicate {
	return After(queryset.FlipOrderings(ords), pos)
}

func equalComponent(o queryset.Ordering, c Component) *queryset.Predicate {
	if c.Null {
		return queryset.IsNull(o.Column)
	}
	return queryset.EQ(o.Column, c.Value)
}

// pastComponent matches rows strictly past the component under the
// descriptor's direction. Returns nil when no row can sort past it.
func pastComponent(o queryset.Ordering, c Component) *queryset.Predicate {
	if c.Null {
		if o.NullsFirst {
			// Everything non-null comes after a leading NULL.
			return queryset.NotNull(o.Column)
		}
		// NULLs sort last; nothing comes after.
		return nil
	}
	var cmp *queryset.Predicate
	if o.Desc {
		cmp = queryset.LT(o.Column, c.Value)
	} else {
		cmp = queryset.GT(o.Column, c.Value)
	}
	if o.Nullable && !o.NullsFirst {
		// Trailing NULLs sort after every concrete value.
		return queryset.Or(cmp, queryset.IsNull(o.Column))
	}
	return cmp
}
