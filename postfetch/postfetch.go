// Package postfetch implements the fallback relation loader for paths the
// inline batch runner cannot express: generic relations whose target model
// varies per row, and compound paths traversing an intermediate relation.
// Assign satisfies queryset.PostfetchFunc:
//
//	client.Postfetch = postfetch.Assign
//
// The pass is best effort by contract. It caches what it can resolve and
// leaves the rest to lazy per-row loading; failures are logged at debug
// level and never surface to the request.
package postfetch

import (
	"context"
	"strings"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
	"github.com/vireolabs/vireo/schema"
)

// maxDepth bounds compound-path recursion so a cyclic schema cannot spin
// the pass forever.
const maxDepth = 8

// Assign resolves the relation path on all parents and caches the loaded
// children on each row. Compound paths load level by level, batching each
// level across every row reached so far.
func Assign(ctx context.Context, c *queryset.Client, parents []vireo.Entity, model, path string) {
	assign(ctx, c, parents, model, path, 0)
}

func assign(ctx context.Context, c *queryset.Client, parents []vireo.Entity, model, path string, depth int) {
	if len(parents) == 0 || path == "" || depth > maxDepth {
		return
	}
	m, err := c.Registry().Model(model)
	if err != nil {
		c.Logger().DebugContext(ctx, "postfetch: unknown model", "model", model, "path", path)
		return
	}
	head, rest, _ := strings.Cut(path, ".")
	f, err := m.Field(head)
	if err != nil {
		c.Logger().DebugContext(ctx, "postfetch: unknown field", "model", model, "field", head)
		return
	}

	switch {
	case f.Kind == schema.KindGeneric:
		byModel := assignGeneric(ctx, c, parents, m, f)
		if rest == "" {
			return
		}
		for candidate, children := range byModel {
			assign(ctx, c, children, candidate, rest, depth+1)
		}

	case f.Kind.IsRelation():
		children, ok := loadLevel(ctx, c, parents, model, f)
		if !ok || rest == "" {
			return
		}
		assign(ctx, c, children, f.Target, rest, depth+1)

	default:
		c.Logger().DebugContext(ctx, "postfetch: non-relation field",
			"model", model, "field", head, "kind", f.Kind.String())
	}
}

// loadLevel ensures the relation is cached on every parent, batching the
// load for those that miss, and returns the distinct children of the
// whole level.
func loadLevel(ctx context.Context, c *queryset.Client, parents []vireo.Entity, model string, f *schema.Field) ([]vireo.Entity, bool) {
	var misses []vireo.Entity
	for _, p := range parents {
		rc, ok := p.(vireo.RelationCacher)
		if !ok {
			continue
		}
		if _, ok := rc.CachedRelation(f.Name); !ok {
			misses = append(misses, p)
		}
	}
	if len(misses) > 0 {
		if err := c.BatchLoad(ctx, misses, model, f.Name, nil); err != nil {
			c.Logger().DebugContext(ctx, "postfetch: level load failed",
				"model", model, "field", f.Name, "err", err)
			return nil, false
		}
	}

	var out []vireo.Entity
	seen := make(map[vireo.Entity]bool)
	for _, p := range parents {
		rc, ok := p.(vireo.RelationCacher)
		if !ok {
			continue
		}
		children, ok := rc.CachedRelation(f.Name)
		if !ok {
			continue
		}
		for _, child := range children {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
		}
	}
	return out, true
}

// assignGeneric loads a generic relation by querying every candidate
// model for children pointing back at the parents, then caches the
// combined result per parent. It returns the loaded children grouped by
// candidate model name so compound paths can descend per concrete type.
func assignGeneric(ctx context.Context, c *queryset.Client, parents []vireo.Entity, m *schema.Model, f *schema.Field) map[string][]vireo.Entity {
	pk := m.PKColumn()
	keys := make([]vireo.Value, 0, len(parents))
	seen := make(map[vireo.Value]bool, len(parents))
	for _, p := range parents {
		v, err := p.Value(pk)
		if err != nil || v == nil || seen[v] {
			continue
		}
		seen[v] = true
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		return nil
	}

	byModel := make(map[string][]vireo.Entity, len(f.Candidates))
	grouped := make(map[vireo.Value][]vireo.Entity)
	for _, candidate := range f.Candidates {
		qs, err := c.Query(candidate)
		if err != nil {
			c.Logger().DebugContext(ctx, "postfetch: unknown candidate",
				"model", m.Name, "field", f.Name, "candidate", candidate)
			continue
		}
		children, err := qs.Where(queryset.In(f.RemoteColumn, keys...)).All(ctx)
		if err != nil {
			c.Logger().DebugContext(ctx, "postfetch: candidate load failed",
				"model", m.Name, "field", f.Name, "candidate", candidate, "err", err)
			continue
		}
		for _, child := range children {
			v, err := child.Value(f.RemoteColumn)
			if err != nil || v == nil {
				continue
			}
			grouped[v] = append(grouped[v], child)
		}
		if len(children) > 0 {
			byModel[candidate] = children
		}
	}

	for _, p := range parents {
		rc, ok := p.(vireo.RelationCacher)
		if !ok {
			continue
		}
		v, err := p.Value(pk)
		if err != nil {
			continue
		}
		children := grouped[v]
		if children == nil {
			children = []vireo.Entity{}
		}
		rc.SetCachedRelation(f.Name, children)
	}
	return byModel
}
