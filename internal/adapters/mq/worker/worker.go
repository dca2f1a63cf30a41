// Package worker drains the rep event queue into the event store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/pkg/logger"
	"github.com/okian/repsense/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = model.RepEvent

// Appender persists rep events.
type Appender interface {
	Append(ctx context.Context, ev model.RepEvent) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events from the queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for persisting events.
type InMemoryWorker struct {
	queue    Queue
	appender Appender
	name     string
	active   *atomic.Int64

	appendTimeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		appender: appender,
		name:     "worker",
		active:   &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, ev); err != nil {
				w.logger.Error(ctx, "error processing rep event", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// processEvent stores a single event. Failures are not retried.
func (w *InMemoryWorker) processEvent(ctx context.Context, ev Event) error {
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.active.Add(-1))) }()

	appendCtx := ctx
	if w.appendTimeout > 0 {
		var cancel context.CancelFunc
		appendCtx, cancel = context.WithTimeout(ctx, w.appendTimeout)
		defer cancel()
	}

	start := time.Now()
	err := w.appender.Append(appendCtx, ev)
	latency := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordWorkerProcessingLatency(latency)

	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "append_failed")
		w.logger.Error(ctx, "storing rep event failed",
			logger.String("event_id", ev.ID),
			logger.String("session", ev.SessionID),
			logger.Error(err),
		)
		return fmt.Errorf("store rep event %s: %w", ev.ID, err)
	}

	w.logger.Debug(ctx, "rep event stored",
		logger.String("event_id", ev.ID),
		logger.String("class", ev.ClassName),
		logger.Int("count", ev.Count),
	)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	active := &atomic.Int64{}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, appender, wopts...)
		pool.workers[i].active = active
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain it. Workers
// still busy when ctx (or the pool timeout) expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
			worker.shutdownOnce.Do(func() { close(worker.shutdown) })
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
