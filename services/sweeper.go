package services

import (
	"context"
	"log/slog"
	"time"

	"bus-ticketing/monitoring"

	"github.com/redis/go-redis/v9"
)

// sweepSeatScript deletes one lock record only when it is still in locked
// state and already expired. The check and the delete are atomic, so a seat
// re-acquired between the scan and the delete is never dropped by mistake.
// Confirmed records are left alone.
const sweepSeatScript = `if redis.call('HGET', KEYS[1], 'state') == 'locked' and tonumber(redis.call('HGET', KEYS[1], 'expires_at')) <= tonumber(ARGV[1]) then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0`

// Sweeper is the recurring cleanup for timed-out seat locks across all trips.
// It is housekeeping only: acquire and occupancy reads filter by expiry on
// every call, so a lagging or failing sweep never causes a double sale.
// Deletions are idempotent, so multiple instances may sweep concurrently.
type Sweeper struct {
	Redis    *redis.Client
	interval time.Duration

	now func() time.Time
}

func NewSweeper(redisClient *redis.Client, interval time.Duration) *Sweeper {
	return &Sweeper{
		Redis:    redisClient,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs sweep cycles until the context is cancelled. A failed cycle is
// logged and the next one runs as scheduled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("seat lock sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("seat lock sweeper stopped")
			return
		case <-ticker.C:
			started := time.Now()
			swept, err := s.SweepExpired(ctx)
			if err != nil {
				slog.Error("sweep cycle failed", "error", err)
				continue
			}
			monitoring.TrackSweep(swept, time.Since(started))
			if swept > 0 {
				slog.Info("swept expired seat locks", "count", swept)
			}
		}
	}
}

// SweepExpired deletes every expired locked-state record system-wide and
// returns how many were removed. Per-key failures are skipped so one bad
// record cannot stall the cycle.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	keys, err := s.Redis.Keys(ctx, "seatlock:*").Result()
	if err != nil {
		return 0, err
	}

	nowMs := s.now().UnixMilli()
	swept := 0
	for _, key := range keys {
		n, err := s.Redis.Eval(ctx, sweepSeatScript, []string{key}, nowMs).Int()
		if err != nil {
			slog.Warn("failed to sweep seat lock", "key", key, "error", err)
			continue
		}
		swept += n
	}

	return swept, nil
}
