package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trackstack/server/pkg/types"
)

func TestQueueProcessesEnqueuedEvents(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 2)

	q := NewQueue(8, 2, testLogger(), func(ctx context.Context, ev *types.WebhookEvent) {
		mu.Lock()
		seen[ev.ID] = true
		mu.Unlock()
		done <- struct{}{}
	})
	q.Start(context.Background())
	defer q.Stop()

	if !q.Enqueue(&types.WebhookEvent{ID: "a"}) || !q.Enqueue(&types.WebhookEvent{ID: "b"}) {
		t.Fatal("enqueue rejected with capacity available")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for workers")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if !seen["a"] || !seen["b"] {
		t.Errorf("seen = %v, want both events handled", seen)
	}
}

func TestQueueFullEnqueueIsRejected(t *testing.T) {
	// No workers started, so the single slot stays occupied.
	q := NewQueue(1, 1, testLogger(), func(ctx context.Context, ev *types.WebhookEvent) {})

	if !q.Enqueue(&types.WebhookEvent{ID: "first"}) {
		t.Fatal("first enqueue should fit")
	}
	if q.Enqueue(&types.WebhookEvent{ID: "second"}) {
		t.Fatal("full queue must reject, not block")
	}
	if q.Depth() != 1 {
		t.Errorf("Depth = %d, want 1", q.Depth())
	}
}

func TestQueueSurvivesHandlerPanic(t *testing.T) {
	done := make(chan string, 2)
	q := NewQueue(8, 1, testLogger(), func(ctx context.Context, ev *types.WebhookEvent) {
		if ev.ID == "poison" {
			panic("handler exploded")
		}
		done <- ev.ID
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(&types.WebhookEvent{ID: "poison"})
	q.Enqueue(&types.WebhookEvent{ID: "after"})

	select {
	case id := <-done:
		if id != "after" {
			t.Errorf("handled %q, want the event after the panic", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}
