// Package analytics ships retrieval events (queries, ingests) to Kafka off
// the request path. Tracking never blocks: when the buffer is full the
// event is dropped and counted.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/kafka"
)

// Publisher is the part of the kafka producer the collector uses.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events and publishes them in batches, flushing when a
// batch fills or the interval elapses. A nil *Collector discards events.
type Collector struct {
	publisher Publisher
	eventCh   chan kafka.Event
	opts      Options
	logger    *slog.Logger
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewCollector(publisher Publisher, opts Options) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan kafka.Event, opts.BufferSize),
		opts:      opts,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close; later calls are
// no-ops.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", c.opts.BufferSize, "batch_size", c.opts.BatchSize)
}

func (c *Collector) TrackQuery(e QueryEvent) {
	if e.Type == "" {
		e.Type = EventQuery
	}
	c.track(kafka.Event{Key: string(e.Type), Value: e})
}

func (c *Collector) TrackIngest(e IngestEvent) {
	e.Type = EventIngest
	c.track(kafka.Event{Key: e.Index, Value: e})
}

func (c *Collector) track(event kafka.Event) {
	if c == nil {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events, publishes what is buffered and waits for
// the loop to exit. A collector that was never started drains its buffer
// inline. Close is idempotent; Track must not be called after it.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.eventCh)
		if c.started.CompareAndSwap(false, true) {
			c.run(context.Background())
		}
		<-c.done
	})
}

// Stats reports events dropped for a full buffer and events lost to
// failed publishes.
func (c *Collector) Stats() (dropped, failed int64) {
	return c.dropped.Load(), c.failed.Load()
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.opts.BatchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(context.Background(), batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.opts.BatchSize {
				c.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.failed.Add(int64(len(batch)))
		c.logger.Error("failed to publish analytics batch", "count", len(batch), "error", err)
	}
}
