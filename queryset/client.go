package queryset

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/schema"
)

// A Source executes flattened query plans against storage. Implementations
// must honor column projection, eager joins, predicate filtering, ordering
// with null placement, offset/limit slicing and row-number windows.
type Source interface {
	// Select returns the rows matching the plan.
	Select(ctx context.Context, p *Plan) ([]vireo.Entity, error)

	// Count returns the number of rows matching the plan, ignoring
	// offset, limit and window.
	Count(ctx context.Context, p *Plan) (int, error)
}

// PostfetchFunc loads the relation at path for already-materialized
// parents of the given model and injects the children into each parent's
// relation cache. It is best-effort: failures are handled internally.
type PostfetchFunc func(ctx context.Context, c *Client, parents []vireo.Entity, model, path string)

// A Client binds a Source to a schema Registry and hands out lazy queries.
// It owns the optional row cache and runs batched-fetch directives during
// materialization. A Client is safe for concurrent use.
type Client struct {
	src      Source
	reg      *schema.Registry
	cache    vireo.Cache
	cacheTTL time.Duration
	flight   singleflight.Group
	log      *slog.Logger

	// Postfetch handles relation paths the inline batch runner cannot:
	// compound paths and generic (polymorphic) relations. Nil disables
	// those paths; they are skipped silently.
	Postfetch PostfetchFunc
}

// A ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache enables row caching for window-free, batch-free queries.
func WithCache(cache vireo.Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger used for debug output. Defaults to
// slog.Default.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient returns a Client over the given source and registry.
func NewClient(src Source, reg *schema.Registry, opts ...ClientOption) *Client {
	c := &Client{src: src, reg: reg, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the schema registry.
func (c *Client) Registry() *schema.Registry { return c.reg }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.log }

// Query returns a new lazy query against the named model.
func (c *Client) Query(model string) (*QuerySet, error) {
	m, err := c.reg.Model(model)
	if err != nil {
		return nil, err
	}
	return newQuerySet(c, m), nil
}

// MustQuery is like Query but panics on an unknown model. Intended for
// resolvers over registry names validated at startup.
func (c *Client) MustQuery(model string) *QuerySet {
	qs, err := c.Query(model)
	if err != nil {
		panic(err)
	}
	return qs
}

// execute runs the plan through the row cache when possible, falling back
// to the source.
func (c *Client) execute(ctx context.Context, qs *QuerySet) ([]vireo.Entity, error) {
	p := qs.plan()
	if !c.cacheable(qs) {
		rows, err := c.src.Select(ctx, p)
		if err != nil {
			return nil, vireo.NewQueryError(qs.model.Name, "select", err)
		}
		return rows, nil
	}
	key := "vireo:q:" + p.Fingerprint()
	if data, err := c.cache.Get(ctx, key); err == nil && data != nil {
		if maps, err := vireo.DecodeRows(data); err == nil {
			c.log.DebugContext(ctx, "query cache hit", "model", qs.model.Name, "key", key)
			return recordsFromMaps(maps), nil
		}
		// Corrupt entries are dropped and refetched.
		_ = c.cache.Delete(ctx, key)
	}
	v, err, _ := c.flight.Do(key, func() (any, error) {
		rows, err := c.src.Select(ctx, p)
		if err != nil {
			return nil, err
		}
		if maps, ok := rowsToMaps(rows); ok {
			if data, err := vireo.EncodeRows(maps); err == nil {
				if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
					c.log.DebugContext(ctx, "query cache write failed", "key", key, "err", err)
				}
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, vireo.NewQueryError(qs.model.Name, "select", err)
	}
	return v.([]vireo.Entity), nil
}

// cacheable reports whether row caching applies. Queries with windows
// carry annotations and queries with batches carry relation caches;
// neither survives the row codec.
func (c *Client) cacheable(qs *QuerySet) bool {
	return c.cache != nil && qs.window == nil && len(qs.batches) == 0 && !qs.Config().OptimizedByBatch
}

func rowsToMaps(rows []vireo.Entity) ([]map[string]vireo.Value, bool) {
	maps := make([]map[string]vireo.Value, len(rows))
	for i, row := range rows {
		r, ok := row.(*Record)
		if !ok {
			return nil, false
		}
		maps[i] = r.Values()
	}
	return maps, true
}

func recordsFromMaps(maps []map[string]vireo.Value) []vireo.Entity {
	rows := make([]vireo.Entity, len(maps))
	for i, m := range maps {
		rows[i] = NewRecord(m)
	}
	return rows
}

// runBatches executes every batched-fetch directive against the
// materialized rows. Single-segment paths over statically-typed relations
// run inline; compound and generic paths are handed to the Postfetch hook.
func (c *Client) runBatches(ctx context.Context, rows []vireo.Entity, model *schema.Model, batches []Batch) error {
	if len(rows) == 0 {
		return nil
	}
	for _, b := range batches {
		head, rest, _ := strings.Cut(b.Path, ".")
		f, err := model.Field(head)
		if err != nil || rest != "" || f.Kind == schema.KindGeneric {
			// Paths the inline runner cannot express degrade to the
			// best-effort post-fetch pass.
			if c.Postfetch != nil {
				c.Postfetch(ctx, c, rows, model.Name, b.Path)
			}
			continue
		}
		if !f.Kind.IsRelation() {
			c.log.DebugContext(ctx, "skipping batch on non-relation field",
				"model", model.Name, "field", head, "kind", f.Kind.String())
			continue
		}
		if err := c.runBatch(ctx, rows, model, f, b); err != nil {
			return err
		}
	}
	return nil
}

// BatchLoad resolves one single-segment relation for the given rows in a
// single secondary query and caches the result on each row. It is the
// public entry point for post-fetch passes that need the inline batch
// runner. Compound paths and generic relations are rejected.
func (c *Client) BatchLoad(ctx context.Context, rows []vireo.Entity, model, path string, sub *QuerySet) error {
	m, err := c.reg.Model(model)
	if err != nil {
		return err
	}
	f, err := m.Field(path)
	if err != nil {
		return err
	}
	if !f.Kind.IsRelation() || f.Kind == schema.KindGeneric {
		return vireo.NewUnsupportedKindError(model, path, f.Kind.String())
	}
	if len(rows) == 0 {
		return nil
	}
	return c.runBatch(ctx, rows, m, f, Batch{Path: path, Sub: sub})
}

func (c *Client) runBatch(ctx context.Context, rows []vireo.Entity, model *schema.Model, f *schema.Field, b Batch) error {
	switch f.Kind {
	case schema.KindForeignKey:
		return c.batchForeignKey(ctx, rows, f, b.Sub)
	case schema.KindOneToOne, schema.KindReverseFK:
		return c.batchReverse(ctx, rows, model, f, b.Sub)
	case schema.KindManyToMany:
		return c.batchManyToMany(ctx, rows, model, f, b.Sub)
	}
	return vireo.NewUnsupportedKindError(model.Name, f.Name, f.Kind.String())
}

// batchForeignKey loads targets whose key column matches the parents'
// local FK values, then assigns each parent its single match.
func (c *Client) batchForeignKey(ctx context.Context, rows []vireo.Entity, f *schema.Field, sub *QuerySet) error {
	target, err := c.reg.Model(f.Target)
	if err != nil {
		return err
	}
	remote := f.RemoteColumn
	if remote == "" {
		remote = target.PKColumn()
	}
	keys := collectKeys(rows, f.Column)
	if len(keys) == 0 {
		return nil
	}
	children, err := c.batchSelect(ctx, target, sub, remote, keys)
	if err != nil {
		return err
	}
	grouped := groupChildren(children, remote)
	assignGroups(rows, f.Name, f.Column, grouped)
	return nil
}

// batchReverse loads children pointing back at the parents via the
// relation's remote FK column.
func (c *Client) batchReverse(ctx context.Context, rows []vireo.Entity, model *schema.Model, f *schema.Field, sub *QuerySet) error {
	target, err := c.reg.Model(f.Target)
	if err != nil {
		return err
	}
	pk := model.PKColumn()
	keys := collectKeys(rows, pk)
	if len(keys) == 0 {
		return nil
	}
	children, err := c.batchSelect(ctx, target, sub, f.RemoteColumn, keys)
	if err != nil {
		return err
	}
	grouped := groupChildren(children, f.RemoteColumn)
	assignGroups(rows, f.Name, pk, grouped)
	return nil
}

// batchManyToMany resolves the join table first, then loads the distinct
// targets and fans them back out per parent.
func (c *Client) batchManyToMany(ctx context.Context, rows []vireo.Entity, model *schema.Model, f *schema.Field, sub *QuerySet) error {
	target, err := c.reg.Model(f.Target)
	if err != nil {
		return err
	}
	pk := model.PKColumn()
	keys := collectKeys(rows, pk)
	if len(keys) == 0 {
		return nil
	}
	pairs, err := c.src.Select(ctx, &Plan{
		Model:     model.Name,
		Table:     f.JoinTable,
		Columns:   []string{f.JoinLocalKey, f.RemoteColumn},
		Predicate: In(f.JoinLocalKey, keys...),
		Limit:     UnboundedLimit,
	})
	if err != nil {
		return vireo.NewQueryError(model.Name, "batch", err)
	}
	targetKeys := collectKeys(pairs, f.RemoteColumn)
	children, err := c.batchSelect(ctx, target, sub, target.PKColumn(), targetKeys)
	if err != nil {
		return err
	}
	byPK := make(map[vireo.Value]vireo.Entity, len(children))
	for _, child := range children {
		if v, err := child.Value(target.PKColumn()); err == nil {
			byPK[v] = child
		}
	}
	grouped := make(map[vireo.Value][]vireo.Entity)
	for _, pair := range pairs {
		local, err1 := pair.Value(f.JoinLocalKey)
		remote, err2 := pair.Value(f.RemoteColumn)
		if err1 != nil || err2 != nil {
			continue
		}
		if child, ok := byPK[remote]; ok {
			grouped[local] = append(grouped[local], child)
		}
	}
	assignGroups(rows, f.Name, pk, grouped)
	return nil
}

// batchSelect runs the secondary query for a batch: the scoped sub-query
// when one exists, otherwise a fresh query on the target, filtered to the
// parent keys. The key column is always projected so grouping can read it.
func (c *Client) batchSelect(ctx context.Context, target *schema.Model, sub *QuerySet, keyColumn string, keys []vireo.Value) ([]vireo.Entity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var qs *QuerySet
	if sub != nil {
		qs = sub.Clone()
	} else {
		qs = newQuerySet(c, target)
	}
	qs.Where(In(keyColumn, keys...))
	if len(qs.columns) > 0 {
		qs.Project(keyColumn, target.PKColumn())
	}
	if w := qs.window; w != nil && w.PartitionBy == "" {
		// Per-parent windows are partitioned by the grouping key.
		w.PartitionBy = keyColumn
	}
	return qs.All(ctx)
}

func collectKeys(rows []vireo.Entity, column string) []vireo.Value {
	seen := make(map[vireo.Value]bool, len(rows))
	keys := make([]vireo.Value, 0, len(rows))
	for _, row := range rows {
		v, err := row.Value(column)
		if err != nil || v == nil {
			continue
		}
		if !seen[v] {
			seen[v] = true
			keys = append(keys, v)
		}
	}
	return keys
}

func groupChildren(children []vireo.Entity, keyColumn string) map[vireo.Value][]vireo.Entity {
	grouped := make(map[vireo.Value][]vireo.Entity)
	for _, child := range children {
		v, err := child.Value(keyColumn)
		if err != nil || v == nil {
			continue
		}
		grouped[v] = append(grouped[v], child)
	}
	return grouped
}

// assignGroups writes each parent's children into its relation cache.
// Parents without a cacher are skipped; parents without children get an
// explicit empty entry so later access does not fall back to a per-row
// query.
func assignGroups(rows []vireo.Entity, accessor, keyColumn string, grouped map[vireo.Value][]vireo.Entity) {
	for _, row := range rows {
		cacher, ok := row.(vireo.RelationCacher)
		if !ok {
			continue
		}
		key, err := row.Value(keyColumn)
		if err != nil {
			continue
		}
		children := grouped[key]
		if children == nil {
			children = []vireo.Entity{}
		}
		cacher.SetCachedRelation(accessor, children)
	}
}
