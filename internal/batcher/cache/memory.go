// Package cache provides the evicting result stores used by the batcher: a
// cost-bounded in-process store, a Redis store shared between service
// replicas, and a tiered store combining the two.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
)

const (
	defaultNumCounters = 1e6
	defaultMaxCost     = 64 << 20
	defaultBufferItems = 64
	entryOverhead      = 64
)

// MemoryConfig bounds the in-process store.
type MemoryConfig struct {
	NumCounters int64
	// MaxCost is the approximate memory budget in bytes.
	MaxCost     int64
	BufferItems int64
}

type entry[T any] struct {
	item  batcher.Item
	value T
}

// Memory is an in-process batcher.Store that evicts entries on its own once
// its cost budget is exceeded.
type Memory[T any] struct {
	cache  *ristretto.Cache[string, entry[T]]
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates a Memory store, filling in defaults for zero values.
func NewMemory[T any](cfg MemoryConfig) (*Memory[T], error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = defaultBufferItems
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, entry[T]]{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory result cache: %w", err)
	}
	return &Memory[T]{
		cache:  c,
		logger: slog.Default().With("component", "memory-result-cache"),
	}, nil
}

func (m *Memory[T]) Get(_ context.Context, item batcher.Item) (T, bool) {
	e, ok := m.cache.Get(item.Key())
	if !ok || e.item != item {
		m.misses.Add(1)
		var zero T
		return zero, false
	}
	m.hits.Add(1)
	return e.value, true
}

// Put stores results and waits until they are visible to Get.
func (m *Memory[T]) Put(_ context.Context, results map[batcher.Item]T) {
	if len(results) == 0 {
		return
	}
	for item, v := range results {
		m.cache.Set(item.Key(), entry[T]{item: item, value: v}, int64(len(item.Text))+entryOverhead)
	}
	m.cache.Wait()
}

func (m *Memory[T]) Clear(context.Context) error {
	m.cache.Clear()
	m.logger.Info("memory result cache cleared")
	return nil
}

// Stats returns lookup hit and miss counts.
func (m *Memory[T]) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

// Close releases the cache's background goroutines.
func (m *Memory[T]) Close() {
	m.cache.Close()
}
