package models

import (
	"time"
)

// Booking statuses that permanently occupy seats. Anything else (pending,
// cancelled, refunded) does not block a seat.
var OccupyingBookingStatuses = []string{"confirmed", "checked_in", "completed"}

type Booking struct {
	ID          string     `json:"id"`
	Reference   string     `json:"reference"` // short code printed on the ticket
	TripID      string     `json:"trip_id"`
	UserID      string     `json:"user_id"`
	Seats       []string   `json:"seats"`
	TotalAmount string     `json:"total_amount"`
	Status      string     `json:"status"` // pending, confirmed, checked_in, completed, cancelled
	PaymentID   string     `json:"payment_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
