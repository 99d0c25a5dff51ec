// Package dataloader provides batch-loading helpers for resolvers that
// fall outside the selection-driven fetch path.
//
// The helpers are loader-library agnostic: ByPK and ByColumn produce
// batch functions in the shape expected by implementations such as
// github.com/graph-gophers/dataloader/v7 and
// github.com/vikstrous/dataloadgen, and the Order* functions restore the
// key order those libraries require.
//
//	loader := dataloadgen.NewLoader(dataloader.ByPK(client, "User"))
//	user, err := loader.Load(ctx, userID)
package dataloader

import (
	"context"
	"errors"

	"github.com/vireolabs/vireo"
	"github.com/vireolabs/vireo/queryset"
)

// ErrNotFound is reported for keys a batch produced no entity for.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads a batch of values by their keys. The result and error
// slices are key-ordered.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, []error)

// ColumnKey returns a KeyFunc reading the named column of an entity.
// Entities missing the column key as nil.
func ColumnKey(column string) KeyFunc[vireo.Value, vireo.Entity] {
	return func(e vireo.Entity) vireo.Value {
		v, err := e.Value(column)
		if err != nil {
			return nil
		}
		return v
	}
}

// ByPK returns a batch function loading entities of a model by primary
// key. Results come back in key order with ErrNotFound for misses.
func ByPK(c *queryset.Client, model string) BatchFunc[vireo.Value, vireo.Entity] {
	return func(ctx context.Context, keys []vireo.Value) ([]vireo.Entity, []error) {
		m, err := c.Registry().Model(model)
		if err != nil {
			return nil, errorPerKey(len(keys), err)
		}
		return byColumn(ctx, c, model, m.PKColumn(), keys)
	}
}

// ByColumn is ByPK generalized to any unique column.
func ByColumn(c *queryset.Client, model, column string) BatchFunc[vireo.Value, vireo.Entity] {
	return func(ctx context.Context, keys []vireo.Value) ([]vireo.Entity, []error) {
		return byColumn(ctx, c, model, column, keys)
	}
}

func byColumn(ctx context.Context, c *queryset.Client, model, column string, keys []vireo.Value) ([]vireo.Entity, []error) {
	rows, err := c.MustQuery(model).Where(queryset.In(column, keys...)).All(ctx)
	if err != nil {
		return nil, errorPerKey(len(keys), err)
	}
	return OrderByKeys(keys, rows, ColumnKey(column))
}

func errorPerKey(n int, err error) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

// OrderByKeys reorders values to match the requested key order. Keys
// without a value get the zero value and an ErrNotFound entry.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey buckets values by key. Use it for one-to-many loads where
// several values share a foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		result[keyFn(v)] = append(result[keyFn(v)], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped values to match the requested key
// order. Keys without a group get a nil slice.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// GroupBy returns a batch function loading the entities of a model whose
// column matches each key, grouped and key-ordered. It backs list-valued
// loaders the way ByPK backs single-valued ones.
func GroupBy(c *queryset.Client, model, column string) BatchFunc[vireo.Value, []vireo.Entity] {
	return func(ctx context.Context, keys []vireo.Value) ([][]vireo.Entity, []error) {
		rows, err := c.MustQuery(model).Where(queryset.In(column, keys...)).All(ctx)
		if err != nil {
			return nil, errorPerKey(len(keys), err)
		}
		return OrderGroupsByKeys(keys, GroupByKey(rows, ColumnKey(column))), make([]error, len(keys))
	}
}

type ctxKey struct{}

// WithLoaders stashes per-request loaders in the context, usually from
// HTTP middleware sitting in front of the GraphQL handler.
func WithLoaders[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// For retrieves the loaders WithLoaders stored. The zero value is
// returned when the context carries none.
func For[T any](ctx context.Context) T {
	v, _ := ctx.Value(ctxKey{}).(T)
	return v
}
