package status

import "errors"

var (
	ErrInvalidRequest   = errors.New("seatlock: invalid request")
	ErrStoreUnavailable = errors.New("seatlock: lock store unavailable")
	ErrTripNotFound     = errors.New("trip: trip not found")
	ErrTripNotBookable  = errors.New("trip: trip not open for booking")
	ErrSeatsNotHeld     = errors.New("booking: seats no longer available")
)
