package schema

import (
	"github.com/go-openapi/inflect"

	"github.com/vireolabs/vireo"
)

// A Model describes one queryable entity: its table, primary key and fields.
type Model struct {
	// Name is the model's registry name.
	Name string

	// Table is the storage table. Defaults to the pluralized snake_case
	// form of Name.
	Table string

	// TypeName is the GraphQL type this model is exposed as. Defaults
	// to Name.
	TypeName string

	// PK is the primary key field name. Defaults to "id".
	PK string

	// Implements lists the GraphQL interface names the model's type
	// implements.
	Implements []string

	// Disabled excludes the model from optimization. Queries still run,
	// but no hints are derived for it.
	Disabled bool

	fields []Field
	index  map[string]*Field
	byGQL  map[string]*Field
}

// A ModelOption configures a Model constructor.
type ModelOption func(*Model)

// Table overrides the default storage table name.
func Table(name string) ModelOption {
	return func(m *Model) { m.Table = name }
}

// TypeName overrides the GraphQL type name the model is exposed as.
func TypeName(name string) ModelOption {
	return func(m *Model) { m.TypeName = name }
}

// PK overrides the default "id" primary key field.
func PK(name string) ModelOption {
	return func(m *Model) { m.PK = name }
}

// Implements declares the GraphQL interfaces the model's type implements.
func Implements(names ...string) ModelOption {
	return func(m *Model) { m.Implements = names }
}

// Disabled excludes the model from optimization.
func Disabled() ModelOption {
	return func(m *Model) { m.Disabled = true }
}

// New returns a Model with the given fields. A primary key field is added
// automatically when none of the fields matches the PK name.
func New(name string, fields []Field, opts ...ModelOption) *Model {
	m := &Model{
		Name:     name,
		Table:    inflect.Underscore(inflect.Pluralize(name)),
		TypeName: name,
		PK:       "id",
		fields:   fields,
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, err := m.lookup(m.PK); err != nil {
		pk := Scalar(m.PK)
		pk.Parse = vireo.ParseString
		pk.Format = vireo.FormatString
		m.fields = append([]Field{pk}, m.fields...)
	}
	m.reindex()
	return m
}

func (m *Model) reindex() {
	m.index = make(map[string]*Field, len(m.fields))
	m.byGQL = make(map[string]*Field, len(m.fields))
	for i := range m.fields {
		f := &m.fields[i]
		m.index[f.Name] = f
		gql := f.GQLName
		if gql == "" {
			gql = f.Name
		}
		m.byGQL[gql] = f
	}
}

func (m *Model) lookup(name string) (*Field, error) {
	if m.index == nil {
		for i := range m.fields {
			if m.fields[i].Name == name {
				return &m.fields[i], nil
			}
		}
		return nil, vireo.NewFieldNotFoundError(m.Name, name)
	}
	if f, ok := m.index[name]; ok {
		return f, nil
	}
	return nil, vireo.NewFieldNotFoundError(m.Name, name)
}

// Field returns the field with the given accessor name.
func (m *Model) Field(name string) (*Field, error) {
	return m.lookup(name)
}

// FieldByGQL returns the field mapped to the given GraphQL field name.
func (m *Model) FieldByGQL(name string) (*Field, error) {
	if f, ok := m.byGQL[name]; ok {
		return f, nil
	}
	return nil, vireo.NewFieldNotFoundError(m.Name, name)
}

// Fields returns the model's fields in declaration order.
func (m *Model) Fields() []Field {
	return m.fields
}

// PKField returns the primary key field.
func (m *Model) PKField() *Field {
	f, _ := m.lookup(m.PK)
	return f
}

// PKColumn returns the primary key's storage column.
func (m *Model) PKColumn() string {
	if f := m.PKField(); f != nil {
		return f.Column
	}
	return inflect.Underscore(m.PK)
}

// ColumnOf returns the storage column of the named field, or the
// snake_case form of the name when the field is unknown.
func (m *Model) ColumnOf(name string) string {
	if f, err := m.lookup(name); err == nil {
		return f.Column
	}
	return inflect.Underscore(name)
}
