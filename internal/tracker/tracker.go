// Package tracker implements the periodic location sampling loop that runs
// for the duration of a checked-in session.
package tracker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sample is one position reading with its capture time.
type Sample struct {
	Latitude   float64
	Longitude  float64
	Address    string
	CapturedAt time.Time
}

// Positioner acquires one position reading from the device.
type Positioner interface {
	CurrentPosition(ctx context.Context) (Sample, error)
}

// Sink receives accepted samples, usually the attendance API.
type Sink interface {
	UpdateLocation(ctx context.Context, s Sample) error
}

// Tracker pushes a location sample to the sink on a fixed period. A failed
// tick, whether acquisition or the network call, is logged and the loop
// continues: location updates are best-effort telemetry.
type Tracker struct {
	interval time.Duration
	pos      Positioner
	sink     Sink

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a tracker; Start must be called to begin sampling.
func New(interval time.Duration, pos Positioner, sink Sink) *Tracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Tracker{
		interval: interval,
		pos:      pos,
		sink:     sink,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop. The first sample fires immediately, then
// once per interval. Cancellation of ctx is equivalent to Stop.
func (t *Tracker) Start(ctx context.Context) {
	go t.run(ctx)
}

// Stop cancels future sampling. Safe to call repeatedly and concurrently with
// an in-flight tick: the tick may finish its own network call but nothing
// further is scheduled.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the loop has fully exited.
func (t *Tracker) Done() <-chan struct{} { return t.done }

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	t.tick(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-t.stop:
				return
			default:
			}
			t.tick(ctx)
		}
	}
}

// tick acquires one reading and pushes it. Errors never escape.
func (t *Tracker) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, t.interval)
	defer cancel()

	sample, err := t.pos.CurrentPosition(tickCtx)
	if err != nil {
		log.Printf("tracker: position unavailable, skipping tick: %v", err)
		return
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}
	if err := t.sink.UpdateLocation(tickCtx, sample); err != nil {
		log.Printf("tracker: location update failed, will retry next tick: %v", err)
	}
}
