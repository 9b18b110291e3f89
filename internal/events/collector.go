package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/logger"
)

// Publisher is the subset of *kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector accumulates events and flushes them to Kafka either when the
// buffer reaches the batch size or after the flush interval. Track never
// blocks on Kafka.
type Collector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
	// flushing counts size-triggered flushes. Add is only called under mu
	// while closed is false.
	flushing sync.WaitGroup
	closed   bool
}

// NewCollector creates a Collector.
func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "event-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop, which runs until ctx is
// cancelled and then flushes once more.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				c.mu.Lock()
				c.closed = true
				c.mu.Unlock()
				c.flushing.Wait()
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("event collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers an event. Once the flush loop starts shutting down, Track
// only buffers.
func (c *Collector) Track(key string, value any) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: key, Value: value})
	shouldFlush := !c.closed && len(c.buffer) >= c.batchSize
	if shouldFlush {
		c.flushing.Add(1)
	}
	c.mu.Unlock()

	if shouldFlush {
		go func() {
			defer c.flushing.Done()
			c.flush(context.Background())
		}()
	}
}

// Progress returns a batcher progress hook that logs the status line and
// tracks an AnalysisEvent.
func (c *Collector) Progress(engine, language string) func(ctx context.Context, status string) {
	return func(ctx context.Context, status string) {
		logger.FromContext(ctx).Info(status, "engine", engine, "language", language)
		c.Track(engine, AnalysisEvent{
			Type:      EventAnalysisStarted,
			Engine:    engine,
			Language:  language,
			Status:    status,
			RequestID: logger.RequestID(ctx),
			Timestamp: time.Now().UTC(),
		})
	}
}

// Close waits for the flush loop started by Start to finish.
func (c *Collector) Close() {
	<-c.done
}

// BufferLen returns the number of buffered events.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("event flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[:limit]
			c.logger.Warn("event buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("events flushed", "events", len(batch))
}
