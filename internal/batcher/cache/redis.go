package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/redis"
)

const keyPrefix = "analysis:"

// Redis is a batcher.Store shared by every replica talking to the same
// Redis. Entries expire after the configured TTL. Redis errors are logged
// and reported as misses, never surfaced to the batcher.
type Redis[T any] struct {
	client    *pkgredis.Client
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewRedis creates a Redis store. namespace separates engines and
// languages sharing one Redis, e.g. "local:en".
func NewRedis[T any](client *pkgredis.Client, namespace string, ttl time.Duration) *Redis[T] {
	return &Redis[T]{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    slog.Default().With("component", "redis-result-cache", "namespace", namespace),
	}
}

func (r *Redis[T]) Get(ctx context.Context, item batcher.Item) (T, bool) {
	var zero T
	key := r.buildKey(item)
	data, err := r.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			r.logger.Error("cache get failed", "key", key, "error", err)
		}
		r.misses.Add(1)
		return zero, false
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		r.logger.Error("cache unmarshal failed", "key", key, "error", err)
		r.misses.Add(1)
		return zero, false
	}
	r.hits.Add(1)
	return v, true
}

func (r *Redis[T]) Put(ctx context.Context, results map[batcher.Item]T) {
	if len(results) == 0 {
		return
	}
	values := make(map[string][]byte, len(results))
	for item, v := range results {
		data, err := json.Marshal(v)
		if err != nil {
			r.logger.Error("cache marshal failed", "item", item.String(), "error", err)
			continue
		}
		values[r.buildKey(item)] = data
	}
	if err := r.client.SetMany(ctx, values, r.ttl); err != nil {
		r.logger.Error("cache set failed", "count", len(values), "error", err)
	}
}

func (r *Redis[T]) Clear(ctx context.Context) error {
	deleted, err := r.client.FlushByPattern(ctx, r.prefix()+"*")
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	r.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Stats returns lookup hit and miss counts.
func (r *Redis[T]) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func (r *Redis[T]) prefix() string {
	return keyPrefix + r.namespace + ":"
}

func (r *Redis[T]) buildKey(item batcher.Item) string {
	return r.prefix() + item.Key()
}
