// Package batch provides helpers for loading values by keys in batches,
// such as the elements of the collections of many views at once.
//
//	elems, err := batch.Load(ctx, ownerIDs, 100, 1, func(ctx context.Context, ids []int64) ([]Revision, error) {
//	    return loadRevisions(ctx, ids)
//	})
//	byOwner := batch.GroupByKey(elems, func(r Revision) int64 { return r.DocumentID })
//	ordered := batch.OrderGroupsByKeys(ownerIDs, byOwner)
package batch

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when a value is missing from a batch result.
var ErrNotFound = errors.New("batch: value not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Func loads the values of one chunk of keys.
type Func[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// OrderByKeys reorders values to match the order of keys. Missing values
// are zero values with an ErrNotFound at the same index.
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

// GroupByKey groups values by key, keeping their order within a group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of every key, in the order of keys.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Unique returns keys without duplicates, keeping the first occurrence.
func Unique[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Chunk splits keys into chunks of at most size keys. A size below one
// returns a single chunk.
func Chunk[K any](keys []K, size int) [][]K {
	if len(keys) == 0 {
		return nil
	}
	if size < 1 || size >= len(keys) {
		return [][]K{keys}
	}
	chunks := make([][]K, 0, (len(keys)+size-1)/size)
	for size < len(keys) {
		keys, chunks = keys[size:], append(chunks, keys[:size:size])
	}
	return append(chunks, keys)
}

// Load calls fn for every chunk of keys and returns the concatenated values
// in chunk order. At most concurrency chunks are loaded at the same time;
// values below two load chunks sequentially, which is required when fn
// runs on a transaction.
func Load[K comparable, V any](ctx context.Context, keys []K, size, concurrency int, fn Func[K, V]) ([]V, error) {
	chunks := Chunk(keys, size)
	switch len(chunks) {
	case 0:
		return nil, nil
	case 1:
		return fn(ctx, chunks[0])
	}
	results := make([][]V, len(chunks))
	if concurrency < 2 {
		for i, c := range chunks {
			vs, err := fn(ctx, c)
			if err != nil {
				return nil, err
			}
			results[i] = vs
		}
	} else {
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, c := range chunks {
			g.Go(func() error {
				vs, err := fn(ctx, c)
				results[i] = vs
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	var out []V
	for _, vs := range results {
		out = append(out, vs...)
	}
	return out, nil
}
