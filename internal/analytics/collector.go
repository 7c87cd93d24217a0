package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/kafka"
)

// Publisher sends a batch of events to the broker.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events in memory and publishes them in batches from a
// single goroutine. Track never blocks: when the buffer is full the event is
// dropped and counted.
type Collector struct {
	publisher     Publisher
	eventCh       chan kafka.Event
	mu            sync.RWMutex
	closed        bool
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	published     atomic.Int64
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan kafka.Event, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until ctx is cancelled or Close
// is called, then flushes whatever is buffered.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.dropped.Add(int64(len(batch)))
			c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
		} else {
			c.published.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(&batch, flush)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(&batch)
			c.finalFlush(&batch, flush)
			return
		}
	}
}

func (c *Collector) drain(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, event)
		default:
			return
		}
	}
}

func (c *Collector) finalFlush(batch *[]kafka.Event, flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flush(ctx)
	c.logger.Info("analytics collector stopped",
		"published", c.published.Load(),
		"dropped", c.dropped.Load(),
	)
}

// Track queues event for publishing. Events tracked after Close are dropped.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- kafka.Event{Key: key(event), Value: event}:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

// Dropped reports events lost to a full buffer or a failed publish.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Published reports events handed to the broker.
func (c *Collector) Published() int64 {
	return c.published.Load()
}
