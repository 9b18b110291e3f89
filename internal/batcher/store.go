package batcher

import (
	"context"
	"sync"
)

// Store is the process-wide result cache shared by every Session of a
// Batcher. Any entry may disappear at any time; a missing entry only means
// the item is analysed again. Only non-null engine results are ever stored.
type Store[T any] interface {
	Get(ctx context.Context, item Item) (T, bool)
	Put(ctx context.Context, results map[Item]T)
	Clear(ctx context.Context) error
}

// MapStore is an unbounded in-memory Store that never evicts. It is meant
// for tests and short-lived tools; services use the evicting stores in the
// cache package.
type MapStore[T any] struct {
	mu   sync.RWMutex
	data map[Item]T
}

// NewMapStore creates an empty MapStore.
func NewMapStore[T any]() *MapStore[T] {
	return &MapStore[T]{data: make(map[Item]T)}
}

func (s *MapStore[T]) Get(_ context.Context, item Item) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[item]
	return v, ok
}

func (s *MapStore[T]) Put(_ context.Context, results map[Item]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for item, v := range results {
		s.data[item] = v
	}
}

func (s *MapStore[T]) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[Item]T)
	return nil
}

// Len returns the number of stored results.
func (s *MapStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
