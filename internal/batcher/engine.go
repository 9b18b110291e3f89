package batcher

import "context"

// Engine is the expensive analysis backend. Parse must be idempotent: the
// same Item always yields the same result, because results are cached
// indefinitely. Items absent from the returned map resolve to the null
// result and are not cached.
type Engine[T any] interface {
	Parse(ctx context.Context, items []Item) (map[Item]T, error)
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc[T any] func(ctx context.Context, items []Item) (map[Item]T, error)

func (f EngineFunc[T]) Parse(ctx context.Context, items []Item) (map[Item]T, error) {
	return f(ctx, items)
}
