package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.retry); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestNewSupervisorRequiresURL(t *testing.T) {
	if _, err := NewSupervisor(SupervisorConfig{}); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{
		URL:            "postgres://localhost:5432/attendtrack_test",
		MaxRetries:     5,
		ConnectTimeout: time.Second,
		Heartbeat:      time.Hour, // keep the watch loop quiet unless a test wants it
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	return s
}

func TestSupervisorBackoffAndReset(t *testing.T) {
	s := newTestSupervisor(t)

	var mu sync.Mutex
	var delays []time.Duration
	attempts := 0

	s.ping = func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts <= 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never became ready")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 3 {
		t.Fatalf("expected 3 retry delays, got %d", len(delays))
	}
	for i, d := range delays {
		if d > 30*time.Second {
			t.Errorf("delay %d = %v exceeds the 30s cap", i, d)
		}
		if i > 0 && d < delays[i-1] {
			t.Errorf("delays decreased: %v after %v", d, delays[i-1])
		}
	}
	if got := s.RetryCount(); got != 0 {
		t.Errorf("retryCount = %d after success, want 0", got)
	}
	if got := s.State(); got != StateConnected {
		t.Errorf("state = %v, want connected", got)
	}
}

func TestSupervisorReconnectsAfterHeartbeatFailure(t *testing.T) {
	s := newTestSupervisor(t)
	s.cfg.Heartbeat = 5 * time.Millisecond

	var mu sync.Mutex
	attempts := 0
	reconnected := false

	s.ping = func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		// call 1: initial connect succeeds; call 2: heartbeat fails;
		// everything after: reconnect succeeds.
		if attempts == 2 {
			return errors.New("connection reset")
		}
		if attempts > 2 {
			reconnected = true
		}
		return nil
	}
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := reconnected
		mu.Unlock()
		if ok && s.State() == StateConnected && s.RetryCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("supervisor did not reconnect: state=%v retryCount=%d", s.State(), s.RetryCount())
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	s := newTestSupervisor(t)
	s.ping = func(ctx context.Context) error { return errors.New("down") }

	slept := make(chan struct{}, 16)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-slept:
	case <-time.After(time.Second):
		t.Fatal("supervisor never attempted a retry")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
