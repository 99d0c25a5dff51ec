package optimizer

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/vireolabs/vireo/hint"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// A Walker derives a hint store from a GraphQL selection set against a
// model's field graph. A Walker lives for one optimization pass over one
// request; its cross-call cache keys model hints discovered at shallower
// nesting levels so deeper visits of the same model inherit them.
type Walker struct {
	Schema   *ast.Schema
	Registry *schema.Registry
	Client   *queryset.Client
	Config   Config
	Vars     map[string]any

	seen map[string]*hint.Store
}

// Hints walks the selection rendered as typeName against model m and
// returns the accumulated store. It returns nil when m is outside the
// optimized hierarchy, disabled, or optimization is off in this scope.
// The walker never fails: unknown fields and unsupported shapes
// contribute no hints.
func (w *Walker) Hints(ctx context.Context, m *schema.Model, typeName string, sels ast.SelectionSet) *hint.Store {
	if m == nil || m.Disabled || !Enabled(ctx) {
		return nil
	}
	if def := w.Schema.Types[typeName]; def != nil && (def.Kind == ast.Interface || def.Kind == ast.Union) {
		// A polymorphic root unions the stores of every implementor;
		// fragment narrowing inside collect keeps each store to its own
		// concrete type.
		store := hint.New(nil, nil)
		for _, impl := range w.Registry.Implementors(typeName) {
			if impl.Disabled {
				continue
			}
			store.Merge(w.modelHints(ctx, impl, sels))
		}
		if store.Empty() {
			return nil
		}
		return store
	}
	return w.modelHints(ctx, m, sels)
}

func (w *Walker) modelHints(ctx context.Context, m *schema.Model, sels ast.SelectionSet) *hint.Store {
	store := hint.New(nil, nil)
	for _, field := range w.collect(m.TypeName, sels) {
		w.fieldHints(ctx, store, m, field)
	}
	if w.seen == nil {
		w.seen = make(map[string]*hint.Store)
	}
	// Hints found for this model at a shallower level carry over; the
	// storage layer keeps "already selected" state per model across the
	// whole query tree, so missing them here would cost a round-trip
	// later.
	if prev, ok := w.seen[m.Name]; ok {
		store.Merge(prev.Clone())
	}
	w.seen[m.Name] = store.Clone()
	return store
}

func (w *Walker) fieldHints(ctx context.Context, store *hint.Store, m *schema.Model, field *ast.Field) {
	f, err := m.FieldByGQL(field.Name)
	if err != nil {
		// Computed resolvers and pagination metadata have no descriptor;
		// they degrade to an unoptimized fetch.
		return
	}
	if !f.Hints.Empty() {
		store.AddOnly(f.Hints.Only...)
		store.AddSelectRelated(f.Hints.SelectRelated...)
		for _, name := range f.Hints.PrefetchNames {
			store.AddPrefetch(hint.Plain(name))
		}
	}
	switch f.Kind {
	case schema.KindScalar:
		// Derived properties declare their dependencies as hints and
		// have no column of their own.
		if f.Hints.Empty() {
			store.AddOnly(f.Name)
		}

	case schema.KindForeignKey, schema.KindOneToOne:
		w.singleRelationHints(ctx, store, f, field)

	case schema.KindReverseFK, schema.KindManyToMany:
		w.collectionHints(ctx, store, f, field)

	case schema.KindGeneric:
		// The concrete type is unknown until the base rows resolve;
		// narrowing happens post-fetch, group-by-key.
		store.AddPrefetch(hint.Plain(f.Name))
	}
}

// singleRelationHints handles foreign references and reverse one-to-ones:
// the join lands in the same row, so the nested store merges directly into
// the parent under the relation's path prefix.
func (w *Walker) singleRelationHints(ctx context.Context, store *hint.Store, f *schema.Field, field *ast.Field) {
	store.AddOnly(f.Name)
	store.AddSelectRelated(f.Name)
	target, err := w.Registry.Model(f.Target)
	if err != nil {
		return
	}
	child := w.Hints(ctx, target, fieldTypeName(field), field.SelectionSet)
	if child == nil {
		child = hint.New(nil, nil)
	}
	if f.Kind == schema.KindOneToOne {
		// The pointer column lives on the related side; dropping it from
		// the projection forces a reload on dereference.
		child.AddOnly(f.RemoteColumn)
	}
	if !child.Empty() {
		store.Merge(child.WithPrefix(ctx, f.Name))
	}
}

// collectionHints wraps the nested selection as a batched-fetch entry:
// scoped to a narrowed sub-query when exactly one concrete type is in
// play, plain when the target is polymorphic with several selected types.
// Nested connection fields are skipped outright; their own slicing would
// discard whatever was prefetched for them.
func (w *Walker) collectionHints(ctx context.Context, store *hint.Store, f *schema.Field, field *ast.Field) {
	typeName := fieldTypeName(field)
	if w.isConnection(typeName) {
		return
	}
	target := f.Target
	sels := field.SelectionSet
	if def := w.Schema.Types[typeName]; def != nil && def.Kind != ast.Object {
		concrete := w.selectedConcreteTypes(sels)
		if len(concrete) != 1 {
			store.AddPrefetch(hint.Plain(f.Name))
			return
		}
		m, ok := w.Registry.ModelForType(concrete[0])
		if !ok {
			store.AddPrefetch(hint.Plain(f.Name))
			return
		}
		target = m.Name
		typeName = concrete[0]
	}
	targetModel, err := w.Registry.Model(target)
	if err != nil {
		store.AddPrefetch(hint.Plain(f.Name))
		return
	}
	child := w.Hints(ctx, targetModel, typeName, sels)
	sub, err := w.Client.Query(targetModel.Name)
	if err != nil {
		store.AddPrefetch(hint.Plain(f.Name))
		return
	}
	child.Apply(ctx, sub, w.flags())
	store.AddPrefetch(hint.Scoped(f.Name, sub))
}

func (w *Walker) flags() hint.Flags {
	return hint.Flags{
		Project:    w.Config.Projection,
		Join:       w.Config.Joins,
		BatchFetch: w.Config.BatchFetch,
	}
}

// collect flattens one selection set for a concrete type: fragment spreads
// and inline fragments are inlined when their type condition applies, and
// skip/include directives are resolved against the request variables.
func (w *Walker) collect(typeName string, sels ast.SelectionSet) []*ast.Field {
	var out []*ast.Field
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name == "__typename" || w.skipped(s.Directives) {
				continue
			}
			out = append(out, s)
		case *ast.InlineFragment:
			if w.skipped(s.Directives) {
				continue
			}
			if w.typeApplies(s.TypeCondition, typeName) {
				out = append(out, w.collect(typeName, s.SelectionSet)...)
			}
		case *ast.FragmentSpread:
			if s.Definition == nil || w.skipped(s.Directives) {
				continue
			}
			if w.typeApplies(s.Definition.TypeCondition, typeName) {
				out = append(out, w.collect(typeName, s.Definition.SelectionSet)...)
			}
		}
	}
	return out
}

// typeApplies reports whether a fragment with the given type condition
// narrows to typeName: same type, an interface it implements, or a union
// containing it.
func (w *Walker) typeApplies(cond, typeName string) bool {
	if cond == "" || cond == typeName {
		return true
	}
	condDef := w.Schema.Types[cond]
	if condDef == nil {
		return false
	}
	switch condDef.Kind {
	case ast.Interface:
		if def := w.Schema.Types[typeName]; def != nil {
			for _, iface := range def.Interfaces {
				if iface == cond {
					return true
				}
			}
		}
	case ast.Union:
		for _, member := range condDef.Types {
			if member == typeName {
				return true
			}
		}
	}
	return false
}

// selectedConcreteTypes returns the object types a polymorphic selection
// narrows to via fragments, deduplicated in selection order.
func (w *Walker) selectedConcreteTypes(sels ast.SelectionSet) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(cond string) {
		if cond == "" || seen[cond] {
			return
		}
		if def := w.Schema.Types[cond]; def != nil && def.Kind == ast.Object {
			seen[cond] = true
			out = append(out, cond)
		}
	}
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.InlineFragment:
			add(s.TypeCondition)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				add(s.Definition.TypeCondition)
			}
		}
	}
	return out
}

func (w *Walker) skipped(ds ast.DirectiveList) bool {
	if d := ds.ForName("skip"); d != nil {
		if v, ok := w.directiveIf(d); ok && v {
			return true
		}
	}
	if d := ds.ForName("include"); d != nil {
		if v, ok := w.directiveIf(d); ok && !v {
			return true
		}
	}
	return false
}

func (w *Walker) directiveIf(d *ast.Directive) (bool, bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	v, err := arg.Value.Value(w.Vars)
	if err != nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// isConnection reports whether the type is a relay connection wrapper:
// an object with edges and pageInfo fields.
func (w *Walker) isConnection(typeName string) bool {
	def := w.Schema.Types[typeName]
	if def == nil || def.Kind != ast.Object {
		return false
	}
	return def.Fields.ForName("edges") != nil && def.Fields.ForName("pageInfo") != nil
}

// fieldTypeName unwraps list and non-null wrappers down to the named type
// of a selected field.
func fieldTypeName(field *ast.Field) string {
	if field.Definition == nil || field.Definition.Type == nil {
		return ""
	}
	t := field.Definition.Type
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}

// nodeSelection digs the node sub-selection out of a connection field:
// edges { node { ... } }. It returns nil when the shape is absent.
func nodeSelection(sels ast.SelectionSet) (ast.SelectionSet, *ast.Field) {
	for _, sel := range sels {
		f, ok := sel.(*ast.Field)
		if !ok || f.Name != "edges" {
			continue
		}
		for _, inner := range f.SelectionSet {
			nf, ok := inner.(*ast.Field)
			if !ok || nf.Name != "node" {
				continue
			}
			return nf.SelectionSet, nf
		}
	}
	return nil, nil
}
