package sql

import (
	"time"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
)

// Typed field helpers build predicate trees without repeating column
// names and value boxing at every call site. Declare them once next to
// the model definition:
//
//	var (
//	    Name = sql.StringField("name")
//	    Age  = sql.IntField("age")
//	)
//
//	qs.Where(Name.HasPrefix("a"), Age.GTE(21))

// StringField provides predicates over a string column.
type StringField string

// Name returns the column name.
func (f StringField) Name() string { return string(f) }

// EQ matches rows whose column equals v.
func (f StringField) EQ(v string) *queryset.Predicate { return queryset.EQ(string(f), v) }

// NEQ matches rows whose column does not equal v.
func (f StringField) NEQ(v string) *queryset.Predicate { return queryset.NEQ(string(f), v) }

// GT matches rows whose column is greater than v.
func (f StringField) GT(v string) *queryset.Predicate { return queryset.GT(string(f), v) }

// GTE matches rows whose column is greater than or equal to v.
func (f StringField) GTE(v string) *queryset.Predicate { return queryset.GTE(string(f), v) }

// LT matches rows whose column is less than v.
func (f StringField) LT(v string) *queryset.Predicate { return queryset.LT(string(f), v) }

// LTE matches rows whose column is less than or equal to v.
func (f StringField) LTE(v string) *queryset.Predicate { return queryset.LTE(string(f), v) }

// In matches rows whose column equals any of vs.
func (f StringField) In(vs ...string) *queryset.Predicate {
	return queryset.In(string(f), box(vs)...)
}

// Contains matches rows whose column contains the substring v.
func (f StringField) Contains(v string) *queryset.Predicate {
	return queryset.Contains(string(f), v)
}

// HasPrefix matches rows whose column starts with v.
func (f StringField) HasPrefix(v string) *queryset.Predicate {
	return queryset.HasPrefix(string(f), v)
}

// HasSuffix matches rows whose column ends with v.
func (f StringField) HasSuffix(v string) *queryset.Predicate {
	return queryset.HasSuffix(string(f), v)
}

// IsNull matches rows whose column is NULL.
func (f StringField) IsNull() *queryset.Predicate { return queryset.IsNull(string(f)) }

// NotNull matches rows whose column is not NULL.
func (f StringField) NotNull() *queryset.Predicate { return queryset.NotNull(string(f)) }

// IntField provides predicates over an integer column.
type IntField string

// Name returns the column name.
func (f IntField) Name() string { return string(f) }

// EQ matches rows whose column equals v.
func (f IntField) EQ(v int) *queryset.Predicate { return queryset.EQ(string(f), v) }

// NEQ matches rows whose column does not equal v.
func (f IntField) NEQ(v int) *queryset.Predicate { return queryset.NEQ(string(f), v) }

// GT matches rows whose column is greater than v.
func (f IntField) GT(v int) *queryset.Predicate { return queryset.GT(string(f), v) }

// GTE matches rows whose column is greater than or equal to v.
func (f IntField) GTE(v int) *queryset.Predicate { return queryset.GTE(string(f), v) }

// LT matches rows whose column is less than v.
func (f IntField) LT(v int) *queryset.Predicate { return queryset.LT(string(f), v) }

// LTE matches rows whose column is less than or equal to v.
func (f IntField) LTE(v int) *queryset.Predicate { return queryset.LTE(string(f), v) }

// In matches rows whose column equals any of vs.
func (f IntField) In(vs ...int) *queryset.Predicate {
	return queryset.In(string(f), box(vs)...)
}

// IsNull matches rows whose column is NULL.
func (f IntField) IsNull() *queryset.Predicate { return queryset.IsNull(string(f)) }

// NotNull matches rows whose column is not NULL.
func (f IntField) NotNull() *queryset.Predicate { return queryset.NotNull(string(f)) }

// Float64Field provides predicates over a float column.
type Float64Field string

// Name returns the column name.
func (f Float64Field) Name() string { return string(f) }

// EQ matches rows whose column equals v.
func (f Float64Field) EQ(v float64) *queryset.Predicate { return queryset.EQ(string(f), v) }

// NEQ matches rows whose column does not equal v.
func (f Float64Field) NEQ(v float64) *queryset.Predicate { return queryset.NEQ(string(f), v) }

// GT matches rows whose column is greater than v.
func (f Float64Field) GT(v float64) *queryset.Predicate { return queryset.GT(string(f), v) }

// GTE matches rows whose column is greater than or equal to v.
func (f Float64Field) GTE(v float64) *queryset.Predicate { return queryset.GTE(string(f), v) }

// LT matches rows whose column is less than v.
func (f Float64Field) LT(v float64) *queryset.Predicate { return queryset.LT(string(f), v) }

// LTE matches rows whose column is less than or equal to v.
func (f Float64Field) LTE(v float64) *queryset.Predicate { return queryset.LTE(string(f), v) }

// IsNull matches rows whose column is NULL.
func (f Float64Field) IsNull() *queryset.Predicate { return queryset.IsNull(string(f)) }

// NotNull matches rows whose column is not NULL.
func (f Float64Field) NotNull() *queryset.Predicate { return queryset.NotNull(string(f)) }

// BoolField provides predicates over a boolean column.
type BoolField string

// Name returns the column name.
func (f BoolField) Name() string { return string(f) }

// EQ matches rows whose column equals v.
func (f BoolField) EQ(v bool) *queryset.Predicate { return queryset.EQ(string(f), v) }

// IsNull matches rows whose column is NULL.
func (f BoolField) IsNull() *queryset.Predicate { return queryset.IsNull(string(f)) }

// NotNull matches rows whose column is not NULL.
func (f BoolField) NotNull() *queryset.Predicate { return queryset.NotNull(string(f)) }

// TimeField provides predicates over a timestamp column.
type TimeField string

// Name returns the column name.
func (f TimeField) Name() string { return string(f) }

// EQ matches rows whose column equals v.
func (f TimeField) EQ(v time.Time) *queryset.Predicate { return queryset.EQ(string(f), v) }

// NEQ matches rows whose column does not equal v.
func (f TimeField) NEQ(v time.Time) *queryset.Predicate { return queryset.NEQ(string(f), v) }

// After matches rows whose column is after v.
func (f TimeField) After(v time.Time) *queryset.Predicate { return queryset.GT(string(f), v) }

// Before matches rows whose column is before v.
func (f TimeField) Before(v time.Time) *queryset.Predicate { return queryset.LT(string(f), v) }

// IsNull matches rows whose column is NULL.
func (f TimeField) IsNull() *queryset.Predicate { return queryset.IsNull(string(f)) }

// NotNull matches rows whose column is not NULL.
func (f TimeField) NotNull() *queryset.Predicate { return queryset.NotNull(string(f)) }

func box[T any](vs []T) []vireo.Value {
	out := make([]vireo.Value, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
