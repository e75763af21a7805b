package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/skincheck/internal/domain/model"
)

func job(id string, ticket uint64) model.Job {
	return model.Job{ID: id, Ticket: ticket, Image: []byte{0xff, 0xd8}, SubmittedAt: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job("job1", 1)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "job1" || got.Ticket != 1 {
		t.Errorf("expected job1/1, got %v/%d", got.ID, got.Ticket)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("a", 1)) || !q.Enqueue(ctx, job("b", 2)) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue(ctx, job("c", 3)) {
		t.Error("expected enqueue to fail when full")
	}
	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, job("pending", 1))
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, job("late", 2)) {
		t.Error("expected enqueue after close to fail")
	}

	var ids []string
	for j := range q.Dequeue(ctx) {
		ids = append(ids, j.ID)
	}
	if len(ids) != 1 || ids[0] != "pending" {
		t.Errorf("expected queued job to drain after close, got %v", ids)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, job("x", 1)) {
		t.Error("expected enqueue with cancelled context to fail")
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Error("expected no job from a cancelled dequeue")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel should close when context is cancelled")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if q.Enqueue(ctx, job(fmt.Sprintf("job-%d-%d", id, j), uint64(id*100+j))) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()

	if accepted != 100 {
		t.Errorf("expected exactly capacity (100) jobs accepted, got %d", accepted)
	}
	if l := q.Len(ctx); l != 100 {
		t.Errorf("expected length 100, got %d", l)
	}
}
