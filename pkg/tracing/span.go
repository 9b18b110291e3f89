// Package tracing records per-request span trees in the context and logs
// them through slog when the root span finishes.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed operation. Children are appended concurrently by the
// goroutines working on the same request.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	Err       error
	mu        sync.Mutex
}

// Sampled reports whether a new trace should be recorded at rate, a
// fraction in [0, 1]. Rates at or above 1 always sample.
func Sampled(rate float64) bool {
	if rate >= 1 {
		return true
	}
	return rate > 0 && rand.Float64() < rate
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a span under the one in ctx. Without a parent the
// child is detached and never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// End records the span's duration.
func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

// SetAttr attaches a key-value attribute.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SetError marks the span failed.
func (s *Span) SetError(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// Finish ends a root span and logs the whole tree.
func (s *Span) Finish() {
	s.End()
	s.Log()
}

// Log writes the span tree to slog, one record per span, depth first.
func (s *Span) Log() {
	s.log(slog.Default(), 0)
}

func (s *Span) log(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	keys := make([]string, 0, len(s.Attrs))
	for k := range s.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, s.Attrs[k])
	}
	err := s.Err
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	if err != nil {
		logger.Warn("span", append(attrs, "error", err)...)
	} else {
		logger.Info("span", attrs...)
	}
	for _, child := range children {
		child.log(logger, depth+1)
	}
}
