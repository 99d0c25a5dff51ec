// Package hint accumulates fetch directives derived from a GraphQL
// selection: dotted column paths to project, relation paths to eagerly
// join, and batched-fetch specs for collection relations. Stores are built
// bottom-up by the selection walker, merged across paths, applied once to
// a lazy query and then discarded.
package hint

import (
	"context"
	"strings"

	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// A Prefetch is one batched-fetch directive in tagged-union form:
//
//   - Plain: just a relation path; the secondary query is unscoped.
//   - Scoped: a path plus a sub-query narrowing the secondary fetch.
//   - Deferred: a path resolved later with request context.
//
// Exactly one of Sub and Resolve is set for the scoped and deferred
// variants; both nil means plain.
type Prefetch struct {
	Path    string
	Sub     *queryset.QuerySet
	Resolve func(ctx context.Context) Prefetch
}

// Plain returns an unscoped prefetch for path.
func Plain(path string) Prefetch {
	return Prefetch{Path: path}
}

// Scoped returns a prefetch whose secondary query is narrowed by sub.
func Scoped(path string, sub *queryset.QuerySet) Prefetch {
	return Prefetch{Path: path, Sub: sub}
}

// Deferred returns a prefetch resolved with request context at apply or
// prefix time.
func Deferred(resolve func(ctx context.Context) Prefetch) Prefetch {
	return Prefetch{Resolve: resolve}
}

// resolved collapses a deferred entry. Non-deferred entries pass through.
func (p Prefetch) resolved(ctx context.Context) Prefetch {
	for p.Resolve != nil {
		p = p.Resolve(ctx)
	}
	return p
}

// A Store accumulates the three directive kinds. Only and SelectRelated
// behave as ordered sets; Prefetch is a list whose duplicate paths are
// reconciled when the store is applied.
type Store struct {
	only          []string
	selectRelated []string
	prefetch      []Prefetch
}

// New returns a store populated with the given directives. Inputs are
// deduplicated but keep first-seen order.
func New(only, selectRelated []string, prefetch ...Prefetch) *Store {
	s := &Store{}
	s.AddOnly(only...)
	s.AddSelectRelated(selectRelated...)
	s.AddPrefetch(prefetch...)
	return s
}

// AddOnly records column paths to project.
func (s *Store) AddOnly(paths ...string) *Store {
	s.only = addUnique(s.only, paths)
	return s
}

// AddSelectRelated records relation paths to eagerly join.
func (s *Store) AddSelectRelated(paths ...string) *Store {
	s.selectRelated = addUnique(s.selectRelated, paths)
	return s
}

// AddPrefetch appends batched-fetch directives.
func (s *Store) AddPrefetch(ps ...Prefetch) *Store {
	s.prefetch = append(s.prefetch, ps...)
	return s
}

func addUnique(dst []string, paths []string) []string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == p {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, p)
		}
	}
	return dst
}

// Only returns the projection paths.
func (s *Store) Only() []string { return s.only }

// SelectRelated returns the eager-join paths.
func (s *Store) SelectRelated() []string { return s.selectRelated }

// Prefetch returns the batched-fetch directives.
func (s *Store) Prefetch() []Prefetch { return s.prefetch }

// Empty reports whether the store holds no directives.
func (s *Store) Empty() bool {
	return s == nil || (len(s.only) == 0 && len(s.selectRelated) == 0 && len(s.prefetch) == 0)
}

// Clone returns an independent copy. Prefetch sub-queries are cloned too.
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	c := &Store{
		only:          append([]string(nil), s.only...),
		selectRelated: append([]string(nil), s.selectRelated...),
	}
	if s.prefetch != nil {
		c.prefetch = make([]Prefetch, len(s.prefetch))
		for i, p := range s.prefetch {
			c.prefetch[i] = p
			if p.Sub != nil {
				c.prefetch[i].Sub = p.Sub.Clone()
			}
		}
	}
	return c
}

// Merge folds other into s: projection and join paths are unioned,
// prefetches are appended. Duplicate prefetch paths are reconciled later,
// when the store is applied. Merging nil is a no-op.
func (s *Store) Merge(other *Store) *Store {
	if other == nil {
		return s
	}
	s.AddOnly(other.only...)
	s.AddSelectRelated(other.selectRelated...)
	s.AddPrefetch(other.prefetch...)
	return s
}

// WithPrefix returns a new store with every path pushed one nesting level
// down: prefix + "." + path. Deferred prefetches are resolved first, since
// their paths are unknown until then. Prefixing happens exactly once per
// nesting level; the walker never re-prefixes a store it already merged.
func (s *Store) WithPrefix(ctx context.Context, prefix string) *Store {
	c := &Store{
		only:          prefixAll(s.only, prefix),
		selectRelated: prefixAll(s.selectRelated, prefix),
	}
	for _, p := range s.prefetch {
		p = p.resolved(ctx)
		p.Path = prefix + "." + p.Path
		c.prefetch = append(c.prefetch, p)
	}
	return c
}

func prefixAll(paths []string, prefix string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = prefix + "." + p
	}
	return out
}

// Flags gates which directive kinds Apply attaches.
type Flags struct {
	Project    bool
	Join       bool
	BatchFetch bool
}

// Apply attaches the store's directives to a lazy query. Batched-fetch
// directives are cleared and re-added as one set so duplicate paths merge
// deterministically with anything already attached. The primary key is
// always projected: dropping it would force a reload on any later
// dereference. Malformed paths are passed through untouched and left to
// fail, or not, at the storage layer.
func (s *Store) Apply(ctx context.Context, qs *queryset.QuerySet, flags Flags) {
	if s.Empty() || qs == nil {
		return
	}
	if flags.Join {
		qs.Join(s.selectRelated...)
	}
	if flags.BatchFetch && len(s.prefetch) > 0 {
		batches := append([]queryset.Batch(nil), qs.Batches()...)
		for _, p := range s.prefetch {
			p = p.resolved(ctx)
			batches = append(batches, queryset.Batch{Path: p.Path, Sub: p.Sub})
		}
		qs.SetBatches(batches)
	}
	if flags.Project && len(s.only) > 0 {
		m := qs.Model()
		columns := make([]string, 0, len(s.only)+1)
		columns = append(columns, m.PKColumn())
		for _, path := range s.only {
			columns = append(columns, pathColumn(qs.Client().Registry(), m, path))
		}
		qs.Project(columns...)
	}
}

// pathColumn maps a dotted accessor path to its storage column path:
// relation segments keep their accessor names (joined columns are exposed
// under them), the leaf is translated to its storage column. Unknown
// segments pass through unchanged.
func pathColumn(reg *schema.Registry, m *schema.Model, path string) string {
	segs := strings.Split(path, ".")
	out := make([]string, 0, len(segs))
	for i, seg := range segs {
		if m == nil {
			out = append(out, seg)
			continue
		}
		f, err := m.Field(seg)
		if err != nil {
			out = append(out, seg)
			m = nil
			continue
		}
		if i == len(segs)-1 {
			if f.Kind == schema.KindScalar || f.Kind == schema.KindForeignKey {
				out = append(out, f.Column)
			} else {
				out = append(out, seg)
			}
			break
		}
		out = append(out, f.Name)
		if f.Target == "" {
			m = nil
			continue
		}
		next, err := reg.Model(f.Target)
		if err != nil {
			m = nil
			continue
		}
		m = next
	}
	return strings.Join(out, ".")
}
