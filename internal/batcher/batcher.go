package batcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/tracing"
)

// ErrDisposed is returned by every Resolve that is waiting on, or started
// after, a disposed Batcher.
var ErrDisposed = errors.New("batcher disposed")

// Options configures a Batcher.
type Options struct {
	// Name identifies the engine in logs, metrics, and progress messages.
	Name     string
	Language string
	// BatchSize bounds the number of items per engine call.
	BatchSize int
	Rules     Rules
	// Progress, when set, is called once per Resolve that needs the engine.
	Progress func(ctx context.Context, status string)
	Metrics  *metrics.Metrics
}

// Batcher owns the result store and the engine for one (engine, language)
// pair. At most one engine call is in flight per Batcher. Engine calls run
// under the Batcher's own context, so a caller giving up does not abort a
// batch other callers will benefit from; only Dispose does.
type Batcher[T any] struct {
	name     string
	language string
	engine   Engine[T]
	store    Store[T]
	builder  Builder[T]
	progress func(ctx context.Context, status string)
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// commitMu orders ClearCache against batch commits. generation is only
	// incremented while it is held.
	commitMu   sync.Mutex
	generation atomic.Uint64
}

// New creates a Batcher. The store is shared by every Session the Batcher
// hands out and outlives all of them.
func New[T any](engine Engine[T], store Store[T], opts Options) *Batcher[T] {
	if opts.Name == "" {
		opts.Name = "engine"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher[T]{
		name:     opts.Name,
		language: opts.Language,
		engine:   engine,
		store:    store,
		builder:  Builder[T]{Size: opts.BatchSize, Rules: opts.Rules},
		progress: opts.Progress,
		metrics:  opts.Metrics,
		logger: slog.Default().With(
			"component", "batcher",
			"engine", opts.Name,
			"language", opts.Language,
		),
		sem:    semaphore.NewWeighted(1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name returns the configured engine name.
func (b *Batcher[T]) Name() string { return b.name }

// Language returns the configured language.
func (b *Batcher[T]) Language() string { return b.language }

// NewSession binds a pool snapshot to this Batcher.
func (b *Batcher[T]) NewSession(pool *Pool) *Session[T] {
	if b.metrics != nil {
		b.metrics.SessionsBuiltTotal.WithLabelValues(b.name).Inc()
	}
	return &Session[T]{batcher: b, pool: pool}
}

// Minimal returns a Session without a pool: requests are served from the
// store, the triviality rules, and direct engine calls, with no prefetch.
func (b *Batcher[T]) Minimal() *Session[T] {
	return &Session[T]{batcher: b}
}

// ClearCache drops every stored result. Batches already running when the
// cache is cleared still answer their callers but do not repopulate it.
func (b *Batcher[T]) ClearCache(ctx context.Context) error {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()
	b.generation.Add(1)
	if err := b.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing %s result cache: %w", b.name, err)
	}
	b.logger.Info("result cache cleared")
	return nil
}

// Dispose cancels the running batch, if any, and fails all current and
// future Resolve calls with ErrDisposed.
func (b *Batcher[T]) Dispose() {
	if b.ctx.Err() != nil {
		return
	}
	b.cancel()
	b.logger.Info("batcher disposed")
}

// Wait blocks until every dispatched engine call has returned.
func (b *Batcher[T]) Wait() {
	b.wg.Wait()
}

func (b *Batcher[T]) resolve(ctx context.Context, pool *Pool, requested []Item) (_ Results[T], err error) {
	if b.ctx.Err() != nil {
		return nil, ErrDisposed
	}
	if parent := tracing.SpanFromContext(ctx); parent != nil {
		var span *tracing.Span
		ctx, span = tracing.StartChildSpan(ctx, "batcher.resolve")
		span.SetAttr("engine", b.name)
		span.SetAttr("requested", len(requested))
		defer func() {
			if err != nil {
				span.SetError(err)
			}
			span.End()
		}()
	}

	resolved := make(Results[T], len(requested))
	pending := make([]Item, 0, len(requested))
	queued := make(map[Item]struct{}, len(requested))
	for _, item := range requested {
		if _, done := resolved[item]; done {
			continue
		}
		if b.builder.Rules.Trivial(item) {
			resolved[item] = nil
			b.countLookup("trivial")
			continue
		}
		if v, ok := b.store.Get(ctx, item); ok {
			resolved[item] = &v
			b.countLookup("hit")
			continue
		}
		if _, dup := queued[item]; dup {
			continue
		}
		queued[item] = struct{}{}
		pending = append(pending, item)
		b.countLookup("miss")
	}

	if len(pending) > 0 && b.progress != nil {
		b.progress(ctx, fmt.Sprintf("Analyzing %d sentences with %s", len(pending), b.name))
	}

	for len(pending) > 0 {
		if err := b.acquire(ctx); err != nil {
			return nil, err
		}
		batch := b.builder.Next(ctx, b.store, pending, pool, resolved)
		if len(batch) == 0 {
			b.sem.Release(1)
			break
		}
		b.observeBatch(batch, queued)

		select {
		case out := <-b.dispatch(batch):
			if out.err != nil {
				return nil, out.err
			}
			for _, item := range batch {
				if v, ok := out.values[item]; ok {
					resolved[item] = &v
				} else {
					resolved[item] = nil
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.ctx.Done():
			return nil, ErrDisposed
		}

		remaining := pending[:0]
		for _, item := range pending {
			if _, done := resolved[item]; !done {
				remaining = append(remaining, item)
			}
		}
		pending = remaining
	}

	out := make(Results[T], len(requested))
	for _, item := range requested {
		out[item] = resolved[item]
	}
	return out, nil
}

// acquire takes the single-flight lock. It gives up when the caller's
// context ends or the Batcher is disposed.
func (b *Batcher[T]) acquire(ctx context.Context) error {
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.ctx, cancel)
	defer stop()

	if err := b.sem.Acquire(acquireCtx, 1); err != nil {
		if b.ctx.Err() != nil {
			return ErrDisposed
		}
		return err
	}
	if b.ctx.Err() != nil {
		b.sem.Release(1)
		return ErrDisposed
	}
	return nil
}

type outcome[T any] struct {
	values map[Item]T
	err    error
}

// dispatch runs one engine call in the Batcher's task scope. The lock taken
// by acquire is released when the call finishes, whether or not the caller
// is still waiting for it.
func (b *Batcher[T]) dispatch(batch []Item) <-chan outcome[T] {
	done := make(chan outcome[T], 1)
	generation := b.generation.Load()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)

		start := time.Now()
		values, err := b.parse(batch)
		elapsed := time.Since(start)
		if err != nil {
			if b.ctx.Err() != nil {
				err = ErrDisposed
			} else {
				err = fmt.Errorf("engine %s: %w", b.name, err)
			}
			b.observeCall("error", elapsed)
			b.logger.Error("engine call failed", "batch_size", len(batch), "error", err)
			done <- outcome[T]{err: err}
			return
		}

		committed := make(map[Item]T, len(batch))
		for _, item := range batch {
			if v, ok := values[item]; ok {
				committed[item] = v
			}
		}
		if !b.commit(generation, committed) {
			b.logger.Debug("batch results not stored after cache clear", "batch_size", len(batch))
		}
		b.observeCall("ok", elapsed)
		b.logger.Debug("batch analysed",
			"batch_size", len(batch),
			"results", len(committed),
			"duration_ms", elapsed.Milliseconds(),
		)
		done <- outcome[T]{values: committed}
	}()
	return done
}

// commit stores values unless the cache was cleared after the batch was
// dispatched.
func (b *Batcher[T]) commit(generation uint64, values map[Item]T) bool {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()
	if b.generation.Load() != generation {
		return false
	}
	b.store.Put(b.ctx, values)
	return true
}

func (b *Batcher[T]) parse(batch []Item) (values map[Item]T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return b.engine.Parse(b.ctx, batch)
}

func (b *Batcher[T]) countLookup(result string) {
	if b.metrics == nil {
		return
	}
	b.metrics.ResultCacheLookups.WithLabelValues(b.name, result).Inc()
}

func (b *Batcher[T]) observeBatch(batch []Item, requested map[Item]struct{}) {
	if b.metrics == nil {
		return
	}
	prefetched := 0
	for _, item := range batch {
		if _, ok := requested[item]; !ok {
			prefetched++
		}
	}
	b.metrics.BatchSize.WithLabelValues(b.name).Observe(float64(len(batch)))
	b.metrics.BatchPrefetchedTotal.WithLabelValues(b.name).Add(float64(prefetched))
}

func (b *Batcher[T]) observeCall(status string, elapsed time.Duration) {
	if b.metrics == nil {
		return
	}
	b.metrics.EngineCallsTotal.WithLabelValues(b.name, status).Inc()
	b.metrics.EngineCallDuration.WithLabelValues(b.name).Observe(elapsed.Seconds())
}
