package cache

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
)

// Tiered reads through a fast local store to a slower shared one, promoting
// shared hits into the local store.
type Tiered[T any] struct {
	local  batcher.Store[T]
	shared batcher.Store[T]
}

// NewTiered combines local and shared stores.
func NewTiered[T any](local, shared batcher.Store[T]) *Tiered[T] {
	return &Tiered[T]{local: local, shared: shared}
}

func (t *Tiered[T]) Get(ctx context.Context, item batcher.Item) (T, bool) {
	if v, ok := t.local.Get(ctx, item); ok {
		return v, true
	}
	v, ok := t.shared.Get(ctx, item)
	if ok {
		t.local.Put(ctx, map[batcher.Item]T{item: v})
	}
	return v, ok
}

func (t *Tiered[T]) Put(ctx context.Context, results map[batcher.Item]T) {
	t.local.Put(ctx, results)
	t.shared.Put(ctx, results)
}

func (t *Tiered[T]) Clear(ctx context.Context) error {
	return errors.Join(t.local.Clear(ctx), t.shared.Clear(ctx))
}
