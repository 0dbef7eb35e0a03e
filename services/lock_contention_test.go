package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bus-ticketing/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// These tests run the lock scripts against an in-process Redis so the
// check-and-set actually executes, instead of being asserted as a string.

func newContentionService(t *testing.T) *LockService {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	capacity := &mockCapacity{}
	capacity.On("PermanentlyOccupiedSeats", mock.Anything, mock.Anything).
		Return(map[string]struct{}{}, nil)

	return NewLockService(client, capacity, NopNotifier{})
}

func TestLockService_AcquireSeats_ConcurrentHoldersSingleWinner(t *testing.T) {
	service := newContentionService(t)
	ctx := context.Background()

	const holders = 16
	var granted, contended int64
	var wg sync.WaitGroup

	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			result, err := service.AcquireSeats(ctx, "trip-1", []string{"7"}, fmt.Sprintf("user-%d", i), 5*time.Minute)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			if len(result.Granted) > 0 {
				atomic.AddInt64(&granted, 1)
				return
			}
			if result.Denied["7"] == models.DeniedLockedByOther {
				atomic.AddInt64(&contended, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), granted)
	assert.Equal(t, int64(holders-1), contended)
}

func TestLockService_AcquireSeats_ExpiredForeignLockReclaimed(t *testing.T) {
	service := newContentionService(t)
	ctx := context.Background()

	first, err := service.AcquireSeats(ctx, "trip-1", []string{"5"}, "holder-a", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, first.Granted)

	second, err := service.AcquireSeats(ctx, "trip-1", []string{"5"}, "holder-b", 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second.Granted)
	assert.Equal(t, models.DeniedLockedByOther, second.Denied["5"])

	// The hold lapses; the same script overwrites the stale record in place.
	service.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	third, err := service.AcquireSeats(ctx, "trip-1", []string{"5"}, "holder-b", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, third.Granted)
}

func TestLockService_ReleaseThenReacquire(t *testing.T) {
	service := newContentionService(t)
	ctx := context.Background()

	first, err := service.AcquireSeats(ctx, "trip-1", []string{"3"}, "holder-a", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"3"}, first.Granted)

	released, err := service.ReleaseSeats(ctx, "trip-1", []string{"3"}, "holder-a")
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	second, err := service.AcquireSeats(ctx, "trip-1", []string{"3"}, "holder-b", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, second.Granted)
}

func TestLockService_ConfirmedSeatStaysTaken(t *testing.T) {
	service := newContentionService(t)
	ctx := context.Background()

	first, err := service.AcquireSeats(ctx, "trip-1", []string{"9"}, "holder-a", time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"9"}, first.Granted)

	confirmed, err := service.ConfirmSeats(ctx, "trip-1", []string{"9"}, "holder-a")
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	// Long after any hold window, the confirmed record still reports the seat
	// as booked rather than contended.
	service.now = func() time.Time { return time.Now().Add(time.Hour) }

	second, err := service.AcquireSeats(ctx, "trip-1", []string{"9"}, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second.Granted)
	assert.Equal(t, models.DeniedOccupiedByBooking, second.Denied["9"])
}
