package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/kafka"
)

// Clearer is implemented by every batcher.Batcher.
type Clearer interface {
	Name() string
	Language() string
	ClearCache(ctx context.Context) error
}

// Invalidator broadcasts cache invalidations and applies the ones it
// receives to local batchers.
type Invalidator struct {
	origin   string
	clearers []Clearer
	producer EventPublisher
	logger   *slog.Logger
}

// EventPublisher is the subset of *kafka.Producer used for broadcasts.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// NewInvalidator creates an Invalidator. origin identifies this instance so
// its own broadcasts are not applied twice. producer may be nil when Kafka
// is disabled.
func NewInvalidator(origin string, producer EventPublisher, clearers ...Clearer) *Invalidator {
	return &Invalidator{
		origin:   origin,
		clearers: clearers,
		producer: producer,
		logger:   slog.Default().With("component", "cache-invalidator"),
	}
}

// Invalidate clears matching local caches and, when Kafka is configured,
// tells the other instances to do the same.
func (inv *Invalidator) Invalidate(ctx context.Context, ev InvalidateEvent) (int, error) {
	cleared, err := inv.apply(ctx, ev)
	if err != nil {
		return cleared, err
	}
	if inv.producer == nil {
		return cleared, nil
	}
	ev.Origin = inv.origin
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := inv.producer.Publish(ctx, kafka.Event{Key: ev.Engine, Value: ev}); err != nil {
		return cleared, fmt.Errorf("broadcasting invalidation: %w", err)
	}
	return cleared, nil
}

// Handler decodes InvalidateEvents from Kafka and applies them.
func (inv *Invalidator) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[InvalidateEvent](value)
		if err != nil {
			// a malformed message would otherwise be redelivered forever
			inv.logger.Warn("dropping malformed invalidation", "error", err)
			return nil
		}
		if ev.Origin != "" && ev.Origin == inv.origin {
			return nil
		}
		_, err = inv.apply(ctx, ev)
		return err
	}
}

func (inv *Invalidator) apply(ctx context.Context, ev InvalidateEvent) (int, error) {
	cleared := 0
	for _, c := range inv.clearers {
		if !ev.Matches(c.Name(), c.Language()) {
			continue
		}
		if err := c.ClearCache(ctx); err != nil {
			return cleared, err
		}
		cleared++
	}
	inv.logger.Info("caches invalidated",
		"cleared", cleared,
		"engine", ev.Engine,
		"language", ev.Language,
		"reason", ev.Reason,
		"origin", ev.Origin,
	)
	return cleared, nil
}
