package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultDispatchWorkers = 2
	defaultDispatchBuffer  = 256
)

var (
	droppedEventsOnce sync.Once
	droppedEvents     prometheus.Counter
)

func getDroppedEventsCounter() prometheus.Counter {
	droppedEventsOnce.Do(func() {
		droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcscatalog",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the dispatch buffer was full.",
		})
		prometheus.DefaultRegisterer.MustRegister(droppedEvents)
	})
	return droppedEvents
}

type DispatcherOptions struct {
	Workers int
	Buffer  int
	Logger  *slog.Logger
}

// AsyncDispatcher hands events to a wrapped sink from a pool of workers so
// that slow subscribers never block writers. Events are dropped when the
// buffer is full.
type AsyncDispatcher struct {
	sink    Sink
	queue   chan queued
	workers int
	logger  *slog.Logger
	dropped prometheus.Counter

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

type queued struct {
	ctx context.Context
	e   Event
}

func NewAsyncDispatcher(sink Sink, opts DispatcherOptions) *AsyncDispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultDispatchBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncDispatcher{
		sink:    sink,
		queue:   make(chan queued, buffer),
		workers: workers,
		logger:  logger,
		dropped: getDroppedEventsCounter(),
	}
}

// Emit enqueues e without blocking.
func (d *AsyncDispatcher) Emit(ctx context.Context, e Event) {
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), e: e}:
	default:
		d.dropped.Inc()
		d.logger.Warn("event dropped, dispatch buffer full", "event_id", e.ID, "event", e.Name())
	}
}

func (d *AsyncDispatcher) Start(parent context.Context) error {
	if d == nil || d.sink == nil {
		return fmt.Errorf("event dispatcher is not configured")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.started = true

	go d.run(ctx, done)
	return nil
}

// Stop delivers what is already queued, then stops the workers.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	d.started = false
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()
	return nil
}

func (d *AsyncDispatcher) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runWorker(ctx)
		}()
	}
	wg.Wait()
}

func (d *AsyncDispatcher) runWorker(ctx context.Context) {
	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.e)
		case <-ctx.Done():
			for {
				select {
				case q := <-d.queue:
					d.sink.Emit(q.ctx, q.e)
				default:
					return
				}
			}
		}
	}
}
