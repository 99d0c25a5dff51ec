// Package schema describes the models, fields and relations that queries
// and fetch hints operate on. A Registry maps model names (and the GraphQL
// type names that expose them) to Model descriptors; each Model lists its
// fields with enough relational metadata to drive projection, joins and
// batched relation fetching.
package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/vireolabs/vireo"
)

// A Kind classifies how a field relates to other models.
type Kind int

const (
	// KindScalar is a plain column with no relational meaning.
	KindScalar Kind = iota

	// KindForeignKey is a single-valued relation held by a local FK column.
	KindForeignKey

	// KindOneToOne is a single-valued relation whose FK lives on the
	// target model.
	KindOneToOne

	// KindReverseFK is a collection of target rows whose FK column points
	// back at this model.
	KindReverseFK

	// KindManyToMany is a collection reached through a join table.
	KindManyToMany

	// KindGeneric is a relation whose target model varies per row and is
	// only known from a set of candidates.
	KindGeneric
)

var kindNames = [...]string{
	KindScalar:     "scalar",
	KindForeignKey: "foreign_key",
	KindOneToOne:   "one_to_one",
	KindReverseFK:  "reverse_fk",
	KindManyToMany: "many_to_many",
	KindGeneric:    "generic",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsRelation reports whether the kind points at another model.
func (k Kind) IsRelation() bool {
	return k != KindScalar
}

// IsCollection reports whether the kind yields many rows per parent.
func (k Kind) IsCollection() bool {
	switch k {
	case KindReverseFK, KindManyToMany, KindGeneric:
		return true
	}
	return false
}

// IsSingle reports whether the kind yields at most one row per parent.
func (k Kind) IsSingle() bool {
	switch k {
	case KindForeignKey, KindOneToOne:
		return true
	}
	return false
}

// Hints carries field-level fetch hints that are merged into a hint store
// whenever the field is selected. Paths are relative to the field's model.
type Hints struct {
	Only          []string
	SelectRelated []string
	PrefetchNames []string
}

// Empty reports whether no hints are set.
func (h Hints) Empty() bool {
	return len(h.Only) == 0 && len(h.SelectRelated) == 0 && len(h.PrefetchNames) == 0
}

// A Field describes one accessor of a model: a scalar column or a relation.
type Field struct {
	// Name is the accessor name used in hint paths and GraphQL mapping.
	Name string

	// Column is the underlying storage column. Defaults to the
	// snake_case form of Name.
	Column string

	// GQLName overrides the GraphQL field name this accessor maps to.
	// Empty means Name is used as-is.
	GQLName string

	// Kind classifies the field.
	Kind Kind

	// Nullable reports whether the column admits NULL. Cursor encoding
	// and resume predicates need this.
	Nullable bool

	// Target is the related model name. Empty for scalars and generic
	// relations.
	Target string

	// Candidates lists the possible target models of a generic relation.
	Candidates []string

	// RemoteColumn is the column on the target side that carries the
	// relation: the parent-pointing FK for KindOneToOne, KindReverseFK
	// and KindGeneric. For KindForeignKey it is the target's key column
	// the local Column references (defaults to the target PK).
	RemoteColumn string

	// JoinTable and JoinLocalKey describe the through-table of a
	// KindManyToMany relation. RemoteColumn is the target-pointing key
	// of the join table.
	JoinTable    string
	JoinLocalKey string

	// Hints are merged into the active store when this field is selected.
	Hints Hints

	// Parse converts the string form of a cursor component back to a
	// value. Defaults to the identity string codec.
	Parse vireo.ParseFunc

	// Format renders a value for cursor encoding. Defaults to the
	// string codec.
	Format vireo.FormatFunc
}

// A FieldOption configures a Field constructor.
type FieldOption func(*Field)

// Nullable marks the field's column as admitting NULL.
func Nullable() FieldOption {
	return func(f *Field) { f.Nullable = true }
}

// Column overrides the default snake_case storage column.
func Column(name string) FieldOption {
	return func(f *Field) { f.Column = name }
}

// GQLName overrides the GraphQL field name the accessor maps to.
func GQLName(name string) FieldOption {
	return func(f *Field) { f.GQLName = name }
}

// RemoteColumn sets the column on the relation's target side.
func RemoteColumn(name string) FieldOption {
	return func(f *Field) { f.RemoteColumn = name }
}

// WithHints attaches field-level fetch hints.
func WithHints(h Hints) FieldOption {
	return func(f *Field) { f.Hints = h }
}

// Codec sets the parse and format functions used for cursor values.
func Codec(parse vireo.ParseFunc, format vireo.FormatFunc) FieldOption {
	return func(f *Field) {
		f.Parse = parse
		f.Format = format
	}
}

// Candidates sets the possible targets of a generic relation.
func Candidates(models ...string) FieldOption {
	return func(f *Field) { f.Candidates = models }
}

func newField(name string, kind Kind, target string, opts []FieldOption) Field {
	f := Field{
		Name:   name,
		Column: inflect.Underscore(name),
		Kind:   kind,
		Target: target,
		Parse:  vireo.ParseString,
		Format: vireo.FormatString,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Scalar returns a plain column field.
func Scalar(name string, opts ...FieldOption) Field {
	return newField(name, KindScalar, "", opts)
}

// ForeignKey returns a single-valued relation held by a local FK column.
// The column defaults to name + "_id".
func ForeignKey(name, target string, opts ...FieldOption) Field {
	f := newField(name, KindForeignKey, target, nil)
	f.Column = inflect.Underscore(name) + "_id"
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// OneToOne returns a single-valued relation whose FK lives on the target.
func OneToOne(name, target, remoteColumn string, opts ...FieldOption) Field {
	f := newField(name, KindOneToOne, target, nil)
	f.RemoteColumn = remoteColumn
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// ReverseFK returns a collection of target rows pointing back via remoteColumn.
func ReverseFK(name, target, remoteColumn string, opts ...FieldOption) Field {
	f := newField(name, KindReverseFK, target, nil)
	f.RemoteColumn = remoteColumn
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// ManyToMany returns a collection reached through a join table.
func ManyToMany(name, target, joinTable, localKey, remoteKey string, opts ...FieldOption) Field {
	f := newField(name, KindManyToMany, target, nil)
	f.JoinTable = joinTable
	f.JoinLocalKey = localKey
	f.RemoteColumn = remoteKey
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Generic returns a relation whose concrete target varies per row.
// Use Candidates to name the possible target models.
func Generic(name, remoteColumn string, opts ...FieldOption) Field {
	f := newField(name, KindGeneric, "", nil)
	f.RemoteColumn = remoteColumn
	for _, opt := range opts {
		opt(&f)
	}
	return f
}
