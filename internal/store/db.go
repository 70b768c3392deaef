package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"attendtrack/internal/metrics"
)

// State describes the supervised database connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// maxBackoff caps the delay between reconnect attempts.
const maxBackoff = 30 * time.Second

// SupervisorConfig controls connection and retry behaviour.
type SupervisorConfig struct {
	URL            string
	MaxRetries     int           // consecutive failures before the warning threshold; retrying continues past it
	ConnectTimeout time.Duration // per-attempt deadline
	Heartbeat      time.Duration // interval between liveness pings while connected
}

// Supervisor owns the process-wide database handle and keeps it alive.
//
// It is a single state machine: one goroutine (Run) drives both the initial
// connect loop and event-driven reconnection after a failed heartbeat, so at
// most one retry timer is ever outstanding. The *sql.DB itself is opened once
// and never swapped; "connecting" means driving a ping until it succeeds.
type Supervisor struct {
	cfg SupervisorConfig
	db  *sql.DB

	mu         sync.Mutex
	state      State
	retryCount int

	ready     chan struct{}
	readyOnce sync.Once

	// ping and sleep are swappable in tests.
	ping  func(ctx context.Context) error
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSupervisor opens the (lazy) database handle and prepares the supervisor.
// It fails only when the connection string is absent; reachability is Run's job.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.URL == "" {
		return nil, errors.New("database connection string required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 2 * time.Second
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Supervisor{
		cfg:   cfg,
		db:    db,
		ready: make(chan struct{}),
	}
	s.ping = func(ctx context.Context) error { return db.PingContext(ctx) }
	s.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s, nil
}

// DB returns the shared handle. Callers borrow it and must never close it.
func (s *Supervisor) DB() *sql.DB { return s.db }

// Ready is closed after the first successful connection.
func (s *Supervisor) Ready() <-chan struct{} { return s.ready }

// State reports the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetryCount reports consecutive failed attempts since the last success.
func (s *Supervisor) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// Healthy verifies database connectivity with a short ping.
func (s *Supervisor) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.ping(ctx) == nil
}

// Run drives the connection until ctx is canceled. It blocks; start it on its
// own goroutine. Exhausting MaxRetries logs a warning but never exits the
// process: retrying continues indefinitely at the capped delay, since the
// database may come back long after startup.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateConnecting)

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		err := s.ping(attemptCtx)
		cancel()

		if err == nil {
			s.mu.Lock()
			s.state = StateConnected
			s.retryCount = 0
			s.mu.Unlock()
			s.readyOnce.Do(func() { close(s.ready) })
			log.Println("database connected")

			if !s.watch(ctx) {
				return nil
			}
			// heartbeat failed; re-enter the connect path immediately
			continue
		}

		s.mu.Lock()
		s.state = StateDisconnected
		s.retryCount++
		n := s.retryCount
		s.mu.Unlock()
		metrics.DBReconnectAttempts.Inc()

		delay := backoffDelay(n)
		if s.cfg.MaxRetries > 0 && n == s.cfg.MaxRetries {
			log.Printf("database unreachable after %d attempts, continuing to retry every %s: %v", n, maxBackoff, err)
		} else {
			log.Printf("database connection failed (attempt %d), retrying in %s: %v", n, delay, err)
		}
		if s.sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// watch pings on the heartbeat interval while connected. It returns true when
// a heartbeat failed and reconnection should begin, false on ctx cancellation.
func (s *Supervisor) watch(ctx context.Context) bool {
	t := time.NewTicker(s.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Heartbeat)
			err := s.ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				log.Printf("database heartbeat failed, reconnecting: %v", err)
				s.setState(StateDisconnected)
				return true
			}
		}
	}
}

// Close shuts the connection down, waiting at most until ctx expires.
func (s *Supervisor) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.db.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// backoffDelay returns min(1s * 2^(attempt-1), 30s): 1s, 2s, 4s, 8s, 16s,
// then the cap.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 { // 1s << 5 already exceeds the cap
		return maxBackoff
	}
	d := time.Second << uint(attempt-1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
