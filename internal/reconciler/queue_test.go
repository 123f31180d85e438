package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWorkQueue_AddAndGet(t *testing.T) {
	q := NewQueue()

	req := ReconcileRequest{Playbook: "demo", Attempt: 1}
	q.Add(req)

	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}
	if got.Playbook != req.Playbook {
		t.Errorf("got unexpected request: %+v", got)
	}

	q.Done(got)
}

func TestWorkQueue_Deduplication(t *testing.T) {
	q := NewQueue()

	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})
	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 2})

	if q.Len() != 1 {
		t.Errorf("expected queue length 1 after deduplication, got %d", q.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}
	if got.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", got.Attempt)
	}

	q.Done(got)
}

func TestWorkQueue_DirtyCoalescing(t *testing.T) {
	q := NewQueue()

	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	inFlight, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}

	// Any number of changes while processing collapse into one follow-up.
	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})
	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})
	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})

	if q.Len() != 0 {
		t.Errorf("expected empty queue while processing, got %d", q.Len())
	}

	q.Done(inFlight)

	if q.Len() != 1 {
		t.Errorf("expected exactly one re-added request, got %d", q.Len())
	}

	again, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected requeued item")
	}
	q.Done(again)

	if q.Len() != 0 {
		t.Errorf("expected empty queue after follow-up pass, got %d", q.Len())
	}
}

func TestWorkQueue_GetBlocksUntilAdd(t *testing.T) {
	q := NewQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var got ReconcileRequest
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = q.Get(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})
	wg.Wait()

	if !ok || got.Playbook != "demo" {
		t.Errorf("expected blocked Get to receive the added request, got %+v ok=%v", got, ok)
	}
}

func TestWorkQueue_GetHonorsContextCancellation(t *testing.T) {
	q := NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, ok := q.Get(ctx)
	if ok {
		t.Error("expected Get to return false on context cancellation")
	}
}

func TestWorkQueue_Shutdown(t *testing.T) {
	q := NewQueue()
	q.Shutdown()

	q.Add(ReconcileRequest{Playbook: "demo", Attempt: 1})
	if q.Len() != 0 {
		t.Error("expected Add after shutdown to be ignored")
	}

	ctx := context.Background()
	if _, ok := q.Get(ctx); ok {
		t.Error("expected Get to return false after shutdown")
	}
}

func TestDelayedQueue_AddAfter(t *testing.T) {
	q := NewDelayedQueue()
	defer q.Shutdown()

	q.AddAfter(ReconcileRequest{Playbook: "demo", Attempt: 2}, 30*time.Millisecond)

	if q.Len() != 0 {
		t.Error("expected delayed request to not be queued immediately")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected delayed request to arrive")
	}
	if got.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", got.Attempt)
	}
	q.Done(got)
}

func TestDelayedQueue_AddAfterReplacesTimer(t *testing.T) {
	q := NewDelayedQueue()
	defer q.Shutdown()

	q.AddAfter(ReconcileRequest{Playbook: "demo", Attempt: 1}, 20*time.Millisecond)
	q.AddAfter(ReconcileRequest{Playbook: "demo", Attempt: 5}, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected delayed request to arrive")
	}
	if got.Attempt != 5 {
		t.Errorf("expected the replacing request, got attempt %d", got.Attempt)
	}
	q.Done(got)

	// The first timer was replaced, nothing else should arrive.
	time.Sleep(50 * time.Millisecond)
	if q.Len() != 0 {
		t.Errorf("expected no further requests, got %d queued", q.Len())
	}
}
