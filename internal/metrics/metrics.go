package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the attendance lifecycle and connection supervision.
var (
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendtrack_checkins_total",
		Help: "Successful check-ins.",
	})

	CheckOuts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendtrack_checkouts_total",
		Help: "Successful check-outs.",
	})

	EarlyCheckoutPrompts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendtrack_early_checkout_prompts_total",
		Help: "Checkout attempts below the minimum shift that required confirmation.",
	})

	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendtrack_location_updates_total",
		Help: "Accepted location samples.",
	})

	StaleLocationSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendtrack_stale_location_samples_total",
		Help: "Location samples rejected for arriving out of order.",
	})

	DBReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendtrack_db_reconnect_attempts_total",
		Help: "Failed database connection attempts.",
	})
)
