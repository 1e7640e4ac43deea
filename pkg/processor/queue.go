package processor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/trackstack/server/pkg/infrastructure/middleware"
	"github.com/trackstack/server/pkg/infrastructure/sentry"
	"github.com/trackstack/server/pkg/types"
)

// Queue hands webhook events from the receiver to a bounded worker pool, so
// the HTTP response never waits on provider fetches. A full queue is
// reported back to the caller instead of blocking; the provider's own retry
// redelivers the event and the dedup gate re-enqueues it.
type Queue struct {
	events  chan *types.WebhookEvent
	handler func(context.Context, *types.WebhookEvent)
	workers int
	logger  *slog.Logger

	wg   sync.WaitGroup
	stop context.CancelFunc
}

func NewQueue(size, workers int, logger *slog.Logger, handler func(context.Context, *types.WebhookEvent)) *Queue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		events:  make(chan *types.WebhookEvent, size),
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker pool. Workers drain the queue until Stop.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.stop = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.events:
			middleware.SetQueueDepth(len(q.events))
			q.handle(ctx, ev)
		}
	}
}

// handle isolates one event so a panic cannot take the worker down with it.
func (q *Queue) handle(ctx context.Context, ev *types.WebhookEvent) {
	defer sentry.RecoverWorker(q.logger, map[string]interface{}{
		"dedup_key": ev.ID,
		"provider":  string(ev.Provider),
	})
	q.handler(ctx, ev)
}

// Enqueue offers an event to the pool without blocking. Returns false when
// the queue is full.
func (q *Queue) Enqueue(ev *types.WebhookEvent) bool {
	select {
	case q.events <- ev:
		middleware.SetQueueDepth(len(q.events))
		return true
	default:
		q.logger.Warn("processor queue full, dropping enqueue", "dedup_key", ev.ID)
		return false
	}
}

// Depth returns the number of queued events.
func (q *Queue) Depth() int {
	return len(q.events)
}

// Stop cancels the workers and waits for in-flight events to finish.
func (q *Queue) Stop() {
	if q.stop != nil {
		q.stop()
	}
	q.wg.Wait()
}
