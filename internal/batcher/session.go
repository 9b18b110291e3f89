package batcher

import "context"

// Session binds one Pool snapshot to a Batcher's shared store and lock. It
// holds no state of its own between calls and is cheap to create.
type Session[T any] struct {
	batcher *Batcher[T]
	pool    *Pool
}

// Resolve returns a result for every item in items. Items are served from
// the store or the triviality rules where possible; the rest are analysed in
// batches, each topped up with neighbouring pool items. An engine failure
// aborts the call, but results of earlier batches stay cached.
func (s *Session[T]) Resolve(ctx context.Context, items []Item) (Results[T], error) {
	return s.batcher.resolve(ctx, s.pool, items)
}

// Pool returns the session's pool, which is nil for a minimal session.
func (s *Session[T]) Pool() *Pool {
	return s.pool
}
