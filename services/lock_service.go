package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"bus-ticketing/models"
	"bus-ticketing/monitoring"
	"bus-ticketing/status"

	"github.com/redis/go-redis/v9"
)

// CapacitySource reads trip capacity and permanent-booking occupancy. It is
// never mutated from here.
type CapacitySource interface {
	TripSeatCount(ctx context.Context, tripID string) (int, error)
	PermanentlyOccupiedSeats(ctx context.Context, tripID string) (map[string]struct{}, error)
	IsTripOpenForBooking(ctx context.Context, tripID string) error
}

// acquireSeatScript is the conditional upsert for one seat. The check and the
// write happen inside Redis, so two racing acquires for the same seat cannot
// both win. Expired foreign locks are overwritten in place. The key TTL is set
// one hour past the hold expiry; readers filter by the expires_at field and
// never rely on the TTL.
const acquireSeatScript = `local state = redis.call('HGET', KEYS[1], 'state')
if state == 'confirmed' then
	return 'confirmed'
end
local holder = redis.call('HGET', KEYS[1], 'holder_id')
local expires = redis.call('HGET', KEYS[1], 'expires_at')
if state == 'locked' and holder ~= ARGV[1] and expires and tonumber(expires) > tonumber(ARGV[2]) then
	return 'locked_by_other'
end
redis.call('HSET', KEYS[1], 'holder_id', ARGV[1], 'locked_at', ARGV[2], 'expires_at', ARGV[3], 'state', 'locked')
redis.call('PEXPIREAT', KEYS[1], tonumber(ARGV[3]) + 3600000)
return 'granted'`

// releaseSeatScript deletes the lock only when the caller still owns it and it
// was never confirmed. Expiry state is ignored on purpose: a holder may always
// give a seat back early or late.
const releaseSeatScript = `if redis.call('HGET', KEYS[1], 'state') == 'locked' and redis.call('HGET', KEYS[1], 'holder_id') == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0`

// confirmSeatScript flips a lock to confirmed and removes the TTL so the
// record survives as an audit trail. No expiry check: payment success is
// authoritative over the soft hold's timer. A missing or foreign record
// returns 0, which callers treat as a no-op.
const confirmSeatScript = `if redis.call('HGET', KEYS[1], 'state') == 'locked' and redis.call('HGET', KEYS[1], 'holder_id') == ARGV[1] then
	redis.call('HSET', KEYS[1], 'state', 'confirmed')
	redis.call('PERSIST', KEYS[1])
	return 1
end
return 0`

// LockService mediates all transient seat claims for scheduled trips. The
// Redis lock store is the single source of truth for soft holds; permanent
// occupancy comes from the capacity source.
type LockService struct {
	Redis    *redis.Client
	capacity CapacitySource
	notifier Notifier

	now func() time.Time
}

func NewLockService(redisClient *redis.Client, capacity CapacitySource, notifier Notifier) *LockService {
	return &LockService{
		Redis:    redisClient,
		capacity: capacity,
		notifier: notifier,
		now:      time.Now,
	}
}

func seatLockKey(tripID, seatNumber string) string {
	return fmt.Sprintf("seatlock:%s:%s", tripID, seatNumber)
}

func seatLockPattern(tripID string) string {
	return fmt.Sprintf("seatlock:%s:*", tripID)
}

// AcquireSeats tries to place a soft hold on every requested seat. Seats that
// are permanently booked or actively held by another holder are reported as
// denied; the rest are committed. There is no rollback of the granted subset,
// the caller decides whether to keep a partial win or release it.
func (s *LockService) AcquireSeats(ctx context.Context, tripID string, seatNumbers []string, holderID string, holdFor time.Duration) (*models.AcquireResult, error) {
	if tripID == "" || holderID == "" || holdFor <= 0 {
		return nil, fmt.Errorf("%w: trip, holder and hold duration are required", status.ErrInvalidRequest)
	}
	seats := dedupeSeats(seatNumbers)
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: empty seat selection", status.ErrInvalidRequest)
	}

	occupied, err := s.capacity.PermanentlyOccupiedSeats(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading trip occupancy: %v", status.ErrStoreUnavailable, err)
	}

	now := s.now()
	expiresAt := now.Add(holdFor)
	nowMs := now.UnixMilli()
	expMs := expiresAt.UnixMilli()

	result := &models.AcquireResult{
		Granted: []string{},
		Denied:  map[string]string{},
	}

	for _, seat := range seats {
		if _, taken := occupied[seat]; taken {
			result.Denied[seat] = models.DeniedOccupiedByBooking
			continue
		}

		verdict, err := s.Redis.Eval(ctx, acquireSeatScript, []string{seatLockKey(tripID, seat)}, holderID, nowMs, expMs).Text()
		if err != nil {
			return nil, fmt.Errorf("%w: acquiring seat %s: %v", status.ErrStoreUnavailable, seat, err)
		}

		switch verdict {
		case "granted":
			result.Granted = append(result.Granted, seat)
		case "confirmed":
			result.Denied[seat] = models.DeniedOccupiedByBooking
		default:
			result.Denied[seat] = models.DeniedLockedByOther
		}
	}

	result.Classify()
	if len(result.Granted) > 0 {
		result.ExpiresAt = expiresAt
		s.notifier.Broadcast(ctx, models.SeatEvent{
			Type:        models.EventSeatsLocked,
			TripID:      tripID,
			SeatNumbers: result.Granted,
			HolderID:    holderID,
		})
	}

	monitoring.TrackLockOperation("acquire", tripID, result.Status)
	slog.Info("seat acquire",
		"trip_id", tripID,
		"holder_id", holderID,
		"status", result.Status,
		"granted", len(result.Granted),
		"denied", len(result.Denied),
	)

	return result, nil
}

// ReleaseSeats drops the caller's locks on the given seats. Seats not held by
// the caller are skipped silently; the call is idempotent per seat.
func (s *LockService) ReleaseSeats(ctx context.Context, tripID string, seatNumbers []string, holderID string) (int, error) {
	if tripID == "" || holderID == "" {
		return 0, fmt.Errorf("%w: trip and holder are required", status.ErrInvalidRequest)
	}
	seats := dedupeSeats(seatNumbers)
	if len(seats) == 0 {
		return 0, fmt.Errorf("%w: empty seat selection", status.ErrInvalidRequest)
	}

	released := []string{}
	for _, seat := range seats {
		n, err := s.Redis.Eval(ctx, releaseSeatScript, []string{seatLockKey(tripID, seat)}, holderID).Int()
		if err != nil {
			return len(released), fmt.Errorf("%w: releasing seat %s: %v", status.ErrStoreUnavailable, seat, err)
		}
		if n > 0 {
			released = append(released, seat)
		}
	}

	if len(released) > 0 {
		s.notifier.Broadcast(ctx, models.SeatEvent{
			Type:        models.EventSeatsUnlocked,
			TripID:      tripID,
			SeatNumbers: released,
			HolderID:    holderID,
		})
	}

	monitoring.TrackLockOperation("release", tripID, "ok")
	return len(released), nil
}

// ConfirmSeats marks the caller's locks as confirmed once a permanent booking
// has been durably written. Locks that already expired and were swept simply
// count as zero; the booking record carries the occupancy from here on.
func (s *LockService) ConfirmSeats(ctx context.Context, tripID string, seatNumbers []string, holderID string) (int, error) {
	if tripID == "" || holderID == "" {
		return 0, fmt.Errorf("%w: trip and holder are required", status.ErrInvalidRequest)
	}
	seats := dedupeSeats(seatNumbers)
	if len(seats) == 0 {
		return 0, fmt.Errorf("%w: empty seat selection", status.ErrInvalidRequest)
	}

	confirmed := 0
	for _, seat := range seats {
		n, err := s.Redis.Eval(ctx, confirmSeatScript, []string{seatLockKey(tripID, seat)}, holderID).Int()
		if err != nil {
			return confirmed, fmt.Errorf("%w: confirming seat %s: %v", status.ErrStoreUnavailable, seat, err)
		}
		confirmed += n
	}

	monitoring.TrackLockOperation("confirm", tripID, "ok")
	return confirmed, nil
}

// SeatsLockedByOthers returns the subset of the given seats currently under an
// unexpired lock owned by a different holder. Absent, expired and own locks all
// pass; the booking finalizer uses this to refuse seats another customer is
// actively checking out without punishing a holder whose own hold lapsed.
func (s *LockService) SeatsLockedByOthers(ctx context.Context, tripID string, seatNumbers []string, holderID string) ([]string, error) {
	now := s.now()
	blocked := []string{}
	for _, seat := range dedupeSeats(seatNumbers) {
		fields, err := s.Redis.HGetAll(ctx, seatLockKey(tripID, seat)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: reading lock for seat %s: %v", status.ErrStoreUnavailable, seat, err)
		}
		if len(fields) == 0 {
			continue
		}
		lock := lockFromHash(tripID, seat, fields)
		if lock.Active(now) && lock.HolderID != holderID {
			blocked = append(blocked, seat)
		}
	}
	return blocked, nil
}

// GetOccupancy merges permanent-booking seats with unexpired locks. The expiry
// check happens here on every call; the sweeper runs on its own schedule and
// may lag behind.
func (s *LockService) GetOccupancy(ctx context.Context, tripID, holderID string) (*models.TripOccupancy, error) {
	if tripID == "" {
		return nil, fmt.Errorf("%w: trip is required", status.ErrInvalidRequest)
	}

	seatCount, err := s.capacity.TripSeatCount(ctx, tripID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.capacity.PermanentlyOccupiedSeats(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading trip occupancy: %v", status.ErrStoreUnavailable, err)
	}

	keys, err := s.Redis.Keys(ctx, seatLockPattern(tripID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing seat locks: %v", status.ErrStoreUnavailable, err)
	}

	now := s.now()
	prefix := len(seatLockKey(tripID, ""))

	occ := &models.TripOccupancy{
		TripID:         tripID,
		SeatCount:      seatCount,
		Occupied:       setToSorted(occupied),
		LockedByOthers: []string{},
		LockedByHolder: []string{},
	}

	for _, key := range keys {
		fields, err := s.Redis.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		seat := key[prefix:]
		lock := lockFromHash(tripID, seat, fields)
		if !lock.Active(now) {
			// Expired or confirmed records never block anyone. Confirmed
			// seats show up through the permanent booking instead.
			continue
		}
		if _, taken := occupied[seat]; taken {
			continue
		}
		if holderID != "" && lock.HolderID == holderID {
			occ.LockedByHolder = append(occ.LockedByHolder, seat)
		} else {
			occ.LockedByOthers = append(occ.LockedByOthers, seat)
		}
	}

	sort.Strings(occ.LockedByOthers)
	sort.Strings(occ.LockedByHolder)

	return occ, nil
}

func lockFromHash(tripID, seatNumber string, fields map[string]string) *models.SeatLock {
	lockedMs, _ := strconv.ParseInt(fields["locked_at"], 10, 64)
	expiresMs, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	return &models.SeatLock{
		TripID:     tripID,
		SeatNumber: seatNumber,
		HolderID:   fields["holder_id"],
		LockedAt:   time.UnixMilli(lockedMs),
		ExpiresAt:  time.UnixMilli(expiresMs),
		State:      fields["state"],
	}
}

func dedupeSeats(seatNumbers []string) []string {
	seen := make(map[string]struct{}, len(seatNumbers))
	seats := make([]string, 0, len(seatNumbers))
	for _, seat := range seatNumbers {
		if seat == "" {
			continue
		}
		if _, dup := seen[seat]; dup {
			continue
		}
		seen[seat] = struct{}{}
		seats = append(seats, seat)
	}
	return seats
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for seat := range set {
		out = append(out, seat)
	}
	sort.Strings(out)
	return out
}
