package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	want := Event{
		Kind:       KindCheckOut,
		EmployeeID: "emp-1",
		Day:        "2025-03-10",
		Hours:      9.5,
		At:         time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC),
	}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-events:
		if got != want {
			t.Fatalf("consumed %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestInMemoryPublishHonorsCancellation(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := q.Publish(ctx, Event{Kind: KindCheckIn}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	cancel()
	// queue is full and nobody is consuming; publish must return ctx.Err.
	if err := q.Publish(ctx, Event{Kind: KindCheckIn}); err == nil {
		t.Fatal("expected error publishing to a full queue with a cancelled context")
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}
