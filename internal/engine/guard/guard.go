// Package guard wraps an analysis engine with a circuit breaker, a per-call
// timeout, and optional retries.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/resilience"
)

// Options configures an Engine.
type Options struct {
	Name    string
	Timeout time.Duration
	Breaker resilience.CircuitBreakerConfig
	// RetryAttempts above 1 enables retries. The wrapped engine must be
	// idempotent.
	RetryAttempts int
	Retry         resilience.RetryConfig
	Metrics       *metrics.Metrics
}

// OptionsFromConfig maps the engine config section onto Options.
func OptionsFromConfig(name string, cfg config.EngineConfig, m *metrics.Metrics) Options {
	return Options{
		Name:    name,
		Timeout: cfg.Timeout,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
		},
		RetryAttempts: cfg.RetryAttempts,
		Metrics:       m,
	}
}

// Engine is a guarded batcher.Engine.
type Engine[T any] struct {
	next    batcher.Engine[T]
	name    string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// New wraps next.
func New[T any](next batcher.Engine[T], opts Options) *Engine[T] {
	if opts.Name == "" {
		opts.Name = "engine"
	}
	cb := opts.Breaker
	// A cancelled call says nothing about the engine's health.
	cb.IsFailure = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	if m := opts.Metrics; m != nil {
		gauge := m.CircuitBreakerState
		gauge.WithLabelValues(opts.Name).Set(float64(resilience.StateClosed))
		cb.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	retry := opts.Retry
	retry.MaxAttempts = opts.RetryAttempts
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
	}
	if m := opts.Metrics; m != nil {
		retries := m.EngineRetriesTotal.WithLabelValues(opts.Name)
		retry.OnRetry = func(int, error) { retries.Inc() }
	}
	return &Engine[T]{
		next:    next,
		name:    opts.Name,
		timeout: opts.Timeout,
		breaker: resilience.NewCircuitBreaker(opts.Name, cb),
		retry:   retry,
	}
}

// Parse implements batcher.Engine.
func (g *Engine[T]) Parse(ctx context.Context, items []batcher.Item) (map[batcher.Item]T, error) {
	var out map[batcher.Item]T
	attempt := func() error {
		return g.breaker.Execute(func() error {
			var values map[batcher.Item]T
			err := resilience.WithTimeout(ctx, g.timeout, g.name, func(ctx context.Context) error {
				var err error
				values, err = g.next.Parse(ctx, items)
				return err
			})
			if err == nil {
				out = values
			}
			return err
		})
	}

	var err error
	if g.retry.MaxAttempts > 1 {
		err = resilience.Retry(ctx, g.name, g.retry, attempt)
	} else {
		err = attempt()
	}
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEngineUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	default:
		return nil, err
	}
}

// State returns the breaker state.
func (g *Engine[T]) State() resilience.State {
	return g.breaker.GetState()
}

// HealthCheck reports the engine down while the breaker is open and
// degraded while it is probing.
func (g *Engine[T]) HealthCheck() health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		switch state := g.State(); state {
		case resilience.StateOpen:
			return health.ComponentHealth{Status: health.StatusDown, Message: "circuit " + state.String()}
		case resilience.StateHalfOpen:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		default:
			return health.ComponentHealth{Status: health.StatusUp}
		}
	}
}
