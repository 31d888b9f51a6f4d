package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teetime/backend/internal/metrics"
)

var (
	// ErrDispatcherClosed is returned by Notify after Shutdown.
	ErrDispatcherClosed = errors.New("event dispatcher closed")
	// ErrQueueFull is returned when the dispatch queue cannot take another event.
	ErrQueueFull = errors.New("event dispatch queue full")
)

// DispatcherConfig controls queueing and delivery retries.
type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	MaxAttempts    int
	PublishTimeout time.Duration
	BaseBackoff    time.Duration
}

// Dispatcher hands events to a Publisher from a pool of background workers so
// connection mutations never wait on broker round trips.
type Dispatcher struct {
	publisher Publisher
	cfg       DispatcherConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Event
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers goroutines draining the queue into publisher.
func NewDispatcher(publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		jobs:      make(chan Event, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Notify queues an event for delivery. It never blocks on the broker.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- event:
		return nil
	default:
		metrics.EventsPublished.WithLabelValues(string(event.Type), "dropped").Inc()
		return ErrQueueFull
	}
}

// Shutdown stops accepting events, waits for queued ones to drain and closes
// the publisher.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	if d.publisher == nil {
		return nil
	}
	return d.publisher.Close()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.jobs {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	if d.publisher == nil {
		d.logger.Error("event dispatcher missing publisher", "eventId", event.ID, "type", event.Type)
		return
	}

	var err error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(d.cfg.BaseBackoff * time.Duration(1<<(attempt-1)))
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
		err = d.publisher.Publish(ctx, event)
		cancel()
		if err == nil {
			metrics.EventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
			return
		}
		d.logger.Warn("publish event failed", "eventId", event.ID, "type", event.Type, "attempt", attempt+1, "error", err)
	}

	metrics.EventsPublished.WithLabelValues(string(event.Type), "failed").Inc()
	d.logger.Error("giving up on event", "eventId", event.ID, "type", event.Type, "error", err)
}
