package models

import (
	"time"
)

// Lock states stored in the "state" field of a seat-lock hash.
const (
	LockStateLocked    = "locked"
	LockStateConfirmed = "confirmed"
)

// Denial reasons reported per seat by an acquire call.
const (
	DeniedOccupiedByBooking = "occupied_by_booking"
	DeniedLockedByOther     = "locked_by_other"
)

// Acquire result statuses.
const (
	AcquireFullyLocked     = "fully_locked"
	AcquirePartiallyLocked = "partially_locked"
	AcquireFullyDenied     = "fully_denied"
)

type SeatLock struct {
	TripID     string    `json:"trip_id"`
	SeatNumber string    `json:"seat_number"`
	HolderID   string    `json:"holder_id"`
	LockedAt   time.Time `json:"locked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	State      string    `json:"state"` // locked, confirmed
}

// Active reports whether the lock still blocks other holders at the given
// instant. Confirmed locks are inert audit records; the permanent booking
// carries the occupancy from that point on.
func (l *SeatLock) Active(now time.Time) bool {
	return l.State == LockStateLocked && l.ExpiresAt.After(now)
}

type AcquireResult struct {
	Status    string            `json:"status"` // fully_locked, partially_locked, fully_denied
	Granted   []string          `json:"granted"`
	Denied    map[string]string `json:"denied"` // seat number -> denial reason
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Classify sets Status from the granted/denied split.
func (r *AcquireResult) Classify() {
	switch {
	case len(r.Denied) == 0:
		r.Status = AcquireFullyLocked
	case len(r.Granted) == 0:
		r.Status = AcquireFullyDenied
	default:
		r.Status = AcquirePartiallyLocked
	}
}

type TripOccupancy struct {
	TripID         string   `json:"trip_id"`
	SeatCount      int      `json:"seat_count"`
	Occupied       []string `json:"occupied"`         // seats held by permanent bookings
	LockedByOthers []string `json:"locked_by_others"` // active locks held by other holders
	LockedByHolder []string `json:"locked_by_holder"` // active locks held by the requesting holder
}

// Seat-change event types broadcast to trip watchers.
const (
	EventSeatsLocked   = "seats_locked"
	EventSeatsUnlocked = "seats_unlocked"
	EventSeatsBooked   = "seats_booked"
)

type SeatEvent struct {
	Type        string   `json:"type"`
	TripID      string   `json:"trip_id"`
	SeatNumbers []string `json:"seat_numbers"`
	HolderID    string   `json:"holder_id,omitempty"`
}
