package monitoring

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	lockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_lock_operations_total",
			Help: "Seat lock operations by outcome",
		},
		[]string{"operation", "trip_id", "outcome"},
	)

	activeSeatLocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_seat_locks_total",
			Help: "Current number of unexpired seat locks per trip",
		},
		[]string{"trip_id"},
	)

	sweptSeatLocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swept_seat_locks_total",
			Help: "Expired seat locks removed by the sweeper",
		},
	)

	sweepCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_cycle_duration_seconds",
			Help:    "Duration of sweeper cycles",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// TrackLockOperation records the outcome of an acquire/release/confirm call.
func TrackLockOperation(operation, tripID, outcome string) {
	lockOperations.WithLabelValues(operation, tripID, outcome).Inc()
}

// TrackSweep records one sweeper cycle.
func TrackSweep(swept int, took time.Duration) {
	sweptSeatLocks.Add(float64(swept))
	sweepCycleDuration.Observe(took.Seconds())
}

type Monitor struct {
	redis    *redis.Client
	interval time.Duration
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{
		redis:    redisClient,
		interval: 30 * time.Second,
	}
}

// Start runs the gauge collector until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectLockMetrics(ctx)
		}
	}
}

func (m *Monitor) collectLockMetrics(ctx context.Context) {
	keys, err := m.redis.Keys(ctx, "seatlock:*").Result()
	if err != nil {
		return
	}

	now := time.Now().UnixMilli()
	perTrip := make(map[string]int)

	for _, key := range keys {
		// seatlock:<trip>:<seat>
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			continue
		}
		fields, err := m.redis.HMGet(ctx, key, "state", "expires_at").Result()
		if err != nil || len(fields) != 2 {
			continue
		}
		state, _ := fields[0].(string)
		expires, _ := fields[1].(string)
		if state != "locked" {
			continue
		}
		if ms, parseErr := strconv.ParseInt(expires, 10, 64); parseErr == nil && ms > now {
			perTrip[parts[1]]++
		}
	}

	activeSeatLocks.Reset()
	for tripID, count := range perTrip {
		activeSeatLocks.WithLabelValues(tripID).Set(float64(count))
	}
}
