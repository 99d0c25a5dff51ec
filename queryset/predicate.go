package queryset

import (
	"github.com/vireolabs/vireo"
)

// Op enumerates predicate operators.
type Op int

const (
	// OpAnd and OpOr combine child predicates.
	OpAnd Op = iota
	OpOr

	// Comparison operators against a single column.
	OpEQ
	OpNEQ
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpIn

	// Substring operators. Value holds the raw fragment; sources add
	// their own wildcard syntax.
	OpContains
	OpHasPrefix
	OpHasSuffix

	// Null checks.
	OpIsNull
	OpNotNull

	// OpNothing matches no rows. Used for empty IN lists.
	OpNothing
)

var opNames = [...]string{
	OpAnd:       "and",
	OpOr:        "or",
	OpEQ:        "eq",
	OpNEQ:       "neq",
	OpGT:        "gt",
	OpGTE:       "gte",
	OpLT:        "lt",
	OpLTE:       "lte",
	OpIn:        "in",
	OpContains:  "contains",
	OpHasPrefix: "has_prefix",
	OpHasSuffix: "has_suffix",
	OpIsNull:    "is_null",
	OpNotNull:   "not_null",
	OpNothing:   "nothing",
}

// String returns the operator name.
func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// A Predicate is a filter expression tree. Sources walk the tree and
// translate it to their native filter form; the in-memory source evaluates
// it directly.
type Predicate struct {
	Op     Op
	Column string        // Set for comparison and null-check operators.
	Value  vireo.Value   // Set for single-value comparisons.
	Values []vireo.Value // Set for OpIn.
	Kids   []*Predicate  // Set for OpAnd and OpOr.
}

// And combines predicates conjunctively. Nil children are dropped; a single
// survivor is returned unwrapped.
func And(ps ...*Predicate) *Predicate {
	return combine(OpAnd, ps)
}

// Or combines predicates disjunctively.
func Or(ps ...*Predicate) *Predicate {
	return combine(OpOr, ps)
}

func combine(op Op, ps []*Predicate) *Predicate {
	kids := make([]*Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			kids = append(kids, p)
		}
	}
	switch len(kids) {
	case 0:
		return nil
	case 1:
		return kids[0]
	}
	return &Predicate{Op: op, Kids: kids}
}

// EQ matches rows whose column equals v.
func EQ(column string, v vireo.Value) *Predicate {
	return &Predicate{Op: OpEQ, Column: column, Value: v}
}

// NEQ matches rows whose column does not equal v.
func NEQ(column string, v vireo.Value) *Predicate {
	return &Predicate{Op: OpNEQ, Column: column, Value: v}
}

// GT matches rows whose column is strictly greater than v.
func GT(column string, v vireo.Value) *Predicate {
	return &Predicate{Op: OpGT, Column: column, Value: v}
}

// GTE matches rows whose column is greater than or equal to v.
func GTE(column string, v vireo.Value) *Predicate {
	return &Predicate{Op: OpGTE, Column: column, Value: v}
}

// LT matches rows whose column is strictly less than v.
func LT(column string, v vireo.Value) *Predicate {
	return &Predicate{Op: OpLT, Column: column, Value: v}
}

// LTE matches rows whose column is less than or equal to v.
func LTE(column string, v vireo.Value) *Predicate {
	return &Predicate{Op: OpLTE, Column: column, Value: v}
}

// In matches rows whose column equals any of vs. An empty list matches
// nothing.
func In(column string, vs ...vireo.Value) *Predicate {
	if len(vs) == 0 {
		return Nothing()
	}
	return &Predicate{Op: OpIn, Column: column, Values: vs}
}

// Contains matches rows whose column contains the substring v.
func Contains(column, v string) *Predicate {
	return &Predicate{Op: OpContains, Column: column, Value: v}
}

// HasPrefix matches rows whose column starts with v.
func HasPrefix(column, v string) *Predicate {
	return &Predicate{Op: OpHasPrefix, Column: column, Value: v}
}

// HasSuffix matches rows whose column ends with v.
func HasSuffix(column, v string) *Predicate {
	return &Predicate{Op: OpHasSuffix, Column: column, Value: v}
}

// IsNull matches rows whose column is NULL.
func IsNull(column string) *Predicate {
	return &Predicate{Op: OpIsNull, Column: column}
}

// NotNull matches rows whose column is not NULL.
func NotNull(column string) *Predicate {
	return &Predicate{Op: OpNotNull, Column: column}
}

// Nothing matches no rows.
func Nothing() *Predicate {
	return &Predicate{Op: OpNothing}
}

// Clone returns a deep copy of the predicate tree. Values are copied
// shallowly; they are treated as immutable.
func (p *Predicate) Clone() *Predicate {
	if p == nil {
		return nil
	}
	c := &Predicate{Op: p.Op, Column: p.Column, Value: p.Value}
	if p.Values != nil {
		c.Values = append([]vireo.Value(nil), p.Values...)
	}
	if p.Kids != nil {
		c.Kids = make([]*Predicate, len(p.Kids))
		for i, k := range p.Kids {
			c.Kids[i] = k.Clone()
		}
	}
	return c
}
