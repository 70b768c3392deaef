package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client used for the event queue and summary cache.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// summaryKey is the per-day hash maintained by the worker.
func summaryKey(day string) string {
	return "attendance:summary:" + day
}

// IncrSummary bumps a counter field on the daily summary hash. Hashes expire
// after 45 days so the cache does not grow without bound.
func (r *Redis) IncrSummary(ctx context.Context, day, field string, delta float64) error {
	key := summaryKey(day)
	if err := r.Client.HIncrByFloat(ctx, key, field, delta).Err(); err != nil {
		return fmt.Errorf("redis summary incr: %w", err)
	}
	return r.Client.Expire(ctx, key, 45*24*time.Hour).Err()
}

// Summary returns the daily summary hash, empty when no events were recorded.
func (r *Redis) Summary(ctx context.Context, day string) (map[string]string, error) {
	res, err := r.Client.HGetAll(ctx, summaryKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis summary read: %w", err)
	}
	return res, nil
}
