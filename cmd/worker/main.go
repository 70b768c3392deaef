package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendtrack/internal/config"
	"attendtrack/internal/queue"
	"attendtrack/internal/store"
)

// Worker consumes attendance lifecycle events and maintains the per-day
// summary counters in Redis that back the summary endpoint.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:events")
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for events...")
	for evt := range events {
		if evt.Day == "" {
			continue
		}
		switch evt.Kind {
		case queue.KindCheckIn:
			apply(ctx, redisClient, evt.Day, "checkins", 1)
		case queue.KindCheckOut:
			apply(ctx, redisClient, evt.Day, "checkouts", 1)
			apply(ctx, redisClient, evt.Day, "hours", evt.Hours)
		case queue.KindLocation:
			apply(ctx, redisClient, evt.Day, "location_updates", 1)
		default:
			log.Printf("unknown event kind %q, skipping", evt.Kind)
		}
	}

	log.Println("worker stopped")
}

func apply(ctx context.Context, r *store.Redis, day, field string, delta float64) {
	if err := r.IncrSummary(ctx, day, field, delta); err != nil {
		log.Printf("summary update failed for %s/%s: %v", day, field, err)
	}
}
