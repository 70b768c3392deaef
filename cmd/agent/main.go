// The agent performs a check-in against the attendance API and then runs the
// periodic location tracking loop until interrupted, at which point it checks
// out. It stands in for the device-side client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendtrack/internal/apiclient"
	"attendtrack/internal/attendance"
	"attendtrack/internal/tracker"
)

type flags struct {
	api          string
	token        string
	employeeID   string
	name         string
	imagePath    string
	lat          float64
	lng          float64
	address      string
	interval     time.Duration
	confirmEarly bool
}

func main() {
	var f flags
	flag.StringVar(&f.api, "api", "http://localhost:8081", "attendance API base URL")
	flag.StringVar(&f.token, "token", "", "bearer token; when empty the agent registers first")
	flag.StringVar(&f.employeeID, "employee", "", "employee id (required when registering)")
	flag.StringVar(&f.name, "name", "", "employee display name")
	flag.StringVar(&f.imagePath, "image", "", "path to the check-in photo (required)")
	flag.Float64Var(&f.lat, "lat", 0, "device latitude")
	flag.Float64Var(&f.lng, "lng", 0, "device longitude")
	flag.StringVar(&f.address, "address", "", "human-readable address for samples")
	flag.DurationVar(&f.interval, "interval", 30*time.Second, "location sampling period")
	flag.BoolVar(&f.confirmEarly, "confirm-early", false, "confirm checkout below the minimum shift without prompting")
	flag.Parse()

	if err := run(f); err != nil {
		log.Fatalf("agent failed: %v", err)
	}
}

func run(f flags) error {
	if f.imagePath == "" {
		return errors.New("-image is required")
	}
	photo, err := os.ReadFile(f.imagePath)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiclient.New(f.api, f.token)
	if client.Token == "" {
		if f.employeeID == "" {
			return errors.New("-employee is required when no -token is given")
		}
		if err := client.Register(ctx, f.employeeID, f.name); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		log.Printf("registered employee %s", f.employeeID)
	}

	loc := attendance.Location{
		Latitude:   f.lat,
		Longitude:  f.lng,
		Address:    f.address,
		CapturedAt: time.Now().UTC(),
	}

	// Rehydrate from the server rather than assuming local state: today's
	// record decides whether a check-in is still needed.
	rec, err := client.Today(ctx)
	if err != nil {
		return fmt.Errorf("fetch today: %w", err)
	}
	switch {
	case rec == nil:
		created, err := client.CheckIn(ctx, photo, f.imagePath, loc)
		if err != nil {
			if errors.Is(err, apiclient.ErrTimeout) {
				return fmt.Errorf("check-in timed out, not retrying to avoid duplicate evidence: %w", err)
			}
			return fmt.Errorf("check-in: %w", err)
		}
		log.Printf("checked in at %s (record %s)", created.CheckInAt.Format(time.RFC3339), created.ID)
	case rec.Status == attendance.StatusCheckedOut:
		log.Println("already checked out today, nothing to do")
		return nil
	default:
		log.Printf("already checked in at %s, resuming tracking", rec.CheckInAt.Format(time.RFC3339))
	}

	t := tracker.New(f.interval, staticPositioner{lat: f.lat, lng: f.lng, address: f.address}, client)
	t.Start(ctx)
	log.Printf("location tracking started, every %s; interrupt to check out", f.interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	t.Stop()
	<-t.Done()

	checkoutLoc := loc
	checkoutLoc.CapturedAt = time.Now().UTC()
	out, confirmationRequired, err := client.CheckOut(ctx, checkoutLoc, false)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if confirmationRequired {
		if !f.confirmEarly {
			log.Println("shift is below the minimum; re-run with -confirm-early to check out anyway")
			return nil
		}
		out, _, err = client.CheckOut(ctx, checkoutLoc, true)
		if err != nil {
			return fmt.Errorf("confirmed checkout: %w", err)
		}
	}
	if out.HoursWorked != nil {
		log.Printf("checked out, %.2f hours worked", *out.HoursWorked)
	}
	return nil
}

// staticPositioner reports a fixed position with fresh capture timestamps.
// A real device would wrap its platform location API here.
type staticPositioner struct {
	lat, lng float64
	address  string
}

func (p staticPositioner) CurrentPosition(_ context.Context) (tracker.Sample, error) {
	return tracker.Sample{
		Latitude:   p.lat,
		Longitude:  p.lng,
		Address:    p.address,
		CapturedAt: time.Now().UTC(),
	}, nil
}
