package batcher

import "context"

// DefaultBatchSize is the number of items sent to the engine per call when
// no size is configured.
const DefaultBatchSize = 32

// Results maps every requested Item to its analysis. A present key with a
// nil value is the null result: the item is trivial or the engine produced
// nothing for it. An absent key means the item has not been resolved.
type Results[T any] map[Item]*T

// InOrder returns the results aligned with items, repeating values for
// duplicate items.
func (r Results[T]) InOrder(items []Item) []*T {
	out := make([]*T, len(items))
	for i, item := range items {
		out[i] = r[item]
	}
	return out
}

// Builder selects the next batch of items to send to the engine.
type Builder[T any] struct {
	Size  int
	Rules Rules
}

func (b Builder[T]) size() int {
	if b.Size <= 0 {
		return DefaultBatchSize
	}
	return b.Size
}

// Next returns up to Size items to analyse next. Requested items are
// considered first, in order. Trivial and cached items met along the way are
// written into resolved instead of the batch. If room remains, the batch is
// topped up from the pool: first with the items following the first batch
// member, then with the items preceding it, nearest first.
func (b Builder[T]) Next(ctx context.Context, store Store[T], requested []Item, pool *Pool, resolved Results[T]) []Item {
	limit := b.size()
	batch := make([]Item, 0, limit)
	inBatch := make(map[Item]struct{}, limit)

	consider := func(item Item) {
		if _, done := resolved[item]; done {
			return
		}
		if _, dup := inBatch[item]; dup {
			return
		}
		if b.Rules.Trivial(item) {
			resolved[item] = nil
			return
		}
		if v, ok := store.Get(ctx, item); ok {
			resolved[item] = &v
			return
		}
		inBatch[item] = struct{}{}
		batch = append(batch, item)
	}

	for _, item := range requested {
		if len(batch) >= limit {
			break
		}
		consider(item)
	}
	if len(batch) == 0 || len(batch) >= limit {
		return batch
	}

	anchor := pool.position(batch[0])
	if anchor < 0 {
		return batch
	}
	for i := anchor + 1; i < pool.Len() && len(batch) < limit; i++ {
		consider(pool.items[i])
	}
	for i := anchor - 1; i >= 0 && len(batch) < limit; i-- {
		consider(pool.items[i])
	}
	return batch
}
