package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/leadpulse/internal/domain/model"
)

func event(visitor string, n int) Event {
	return Event{VisitorID: visitor, EventType: model.EventPageView, PagePath: fmt.Sprintf("/p/%d", n)}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(8), WithPartitions(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, event("visitor-1", 1)); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx, q.Partition("visitor-1"))
	if got.PagePath != "/p/1" {
		t.Errorf("expected /p/1, got %v", got.PagePath)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_PartitionIsStable(t *testing.T) {
	q := NewInMemoryQueue(WithPartitions(8))
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("visitor-%d", i)
		p := q.Partition(id)
		if p < 0 || p >= q.Partitions() {
			t.Fatalf("partition %d out of range", p)
		}
		if again := q.Partition(id); again != p {
			t.Fatalf("visitor %s moved from %d to %d", id, p, again)
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected visitors to spread over partitions, got %d", len(seen))
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithPartitions(1))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, event("visitor-1", i)); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}
	if err := q.Enqueue(ctx, event("visitor-1", 3)); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, event("visitor-1", 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_PerVisitorOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4000), WithPartitions(4))
	ctx := context.Background()
	visitors := 10
	perVisitor := 50

	var wg sync.WaitGroup
	for v := 0; v < visitors; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			id := fmt.Sprintf("visitor-%d", v)
			for i := 0; i < perVisitor; i++ {
				for q.Enqueue(ctx, event(id, i)) != nil {
					time.Sleep(time.Millisecond)
				}
			}
		}(v)
	}
	wg.Wait()
	_ = q.Close()

	last := map[string]int{}
	total := 0
	for p := 0; p < q.Partitions(); p++ {
		for e := range q.Dequeue(ctx, p) {
			var n int
			if _, err := fmt.Sscanf(e.PagePath, "/p/%d", &n); err != nil {
				t.Fatalf("unexpected path %q", e.PagePath)
			}
			if prev, ok := last[e.VisitorID]; ok && n <= prev {
				t.Fatalf("visitor %s out of order: %d after %d", e.VisitorID, n, prev)
			}
			last[e.VisitorID] = n
			total++
		}
	}
	if total != visitors*perVisitor {
		t.Errorf("expected %d events, got %d", visitors*perVisitor, total)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10), WithPartitions(1))
	ctx := context.Background()

	if err := q.Enqueue(ctx, event("visitor-1", 1)); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, event("visitor-1", 2)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	ch := q.Dequeue(ctx, 0)
	if e, ok := <-ch; !ok || e.PagePath != "/p/1" {
		t.Errorf("expected queued event to survive close, got %v %v", e, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("expected partition channel to be closed")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
