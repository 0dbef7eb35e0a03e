package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bus-ticketing/models"
	"bus-ticketing/status"
	"bus-ticketing/utils"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// BookingService turns a paid seat selection into a permanent booking record
// and retires the corresponding soft holds.
type BookingService struct {
	app      core.App
	locks    *LockService
	capacity *CapacityService
	notifier Notifier
	events   *BookingEventPublisher
}

func NewBookingService(app core.App, locks *LockService, capacity *CapacityService, notifier Notifier, events *BookingEventPublisher) *BookingService {
	return &BookingService{
		app:      app,
		locks:    locks,
		capacity: capacity,
		notifier: notifier,
		events:   events,
	}
}

// FinalizeBooking writes the permanent booking for seats the customer paid
// for, then confirms the matching locks. Payment success is authoritative: a
// hold that lapsed while the customer was paying does not block finalization.
// Seats already sold to someone else do.
func (s *BookingService) FinalizeBooking(ctx context.Context, tripID string, seatNumbers []string, userID, paymentID string) (*models.Booking, error) {
	if tripID == "" || userID == "" {
		return nil, fmt.Errorf("%w: trip and user are required", status.ErrInvalidRequest)
	}
	seats := dedupeSeats(seatNumbers)
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: empty seat selection", status.ErrInvalidRequest)
	}

	occupied, err := s.capacity.PermanentlyOccupiedSeats(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading trip occupancy: %v", status.ErrStoreUnavailable, err)
	}
	for _, seat := range seats {
		if _, taken := occupied[seat]; taken {
			return nil, fmt.Errorf("%w: seat %s already booked", status.ErrSeatsNotHeld, seat)
		}
	}

	// A seat mid-checkout with another customer must not be sold out from
	// under them. The payer's own lock being expired or already swept is fine.
	blocked, err := s.locks.SeatsLockedByOthers(ctx, tripID, seats, userID)
	if err != nil {
		return nil, err
	}
	if len(blocked) > 0 {
		return nil, fmt.Errorf("%w: seat %s held by another customer", status.ErrSeatsNotHeld, blocked[0])
	}

	total, err := s.totalFare(ctx, tripID, len(seats))
	if err != nil {
		return nil, err
	}

	collection, err := s.app.FindCollectionByNameOrId("bookings")
	if err != nil {
		return nil, fmt.Errorf("%w: bookings collection: %v", status.ErrStoreUnavailable, err)
	}

	reference, err := utils.GenerateCode(4)
	if err != nil {
		return nil, fmt.Errorf("%w: generating booking reference: %v", status.ErrStoreUnavailable, err)
	}

	now := time.Now()
	record := core.NewRecord(collection)
	record.Set("reference", reference)
	record.Set("trip", tripID)
	record.Set("user", userID)
	record.Set("seats", seats)
	record.Set("total_amount", total.String())
	record.Set("status", "confirmed")
	record.Set("payment_id", paymentID)
	record.Set("confirmed_at", now)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: saving booking: %v", status.ErrStoreUnavailable, err)
	}

	// The booking record now carries the occupancy. Confirming the locks is
	// an audit-trail transition and zero confirmations is fine: the holds may
	// already have been swept during a slow payment.
	confirmed, err := s.locks.ConfirmSeats(ctx, tripID, seats, userID)
	if err != nil {
		slog.Warn("lock confirm failed after booking write",
			"booking_id", record.Id,
			"trip_id", tripID,
			"error", err,
		)
	}

	s.notifier.Broadcast(ctx, models.SeatEvent{
		Type:        models.EventSeatsBooked,
		TripID:      tripID,
		SeatNumbers: seats,
	})

	event := BookingConfirmedEvent{
		BookingID:   record.Id,
		TripID:      tripID,
		UserID:      userID,
		Seats:       seats,
		TotalAmount: total.String(),
		ConfirmedAt: now,
	}
	if err := s.events.PublishBookingConfirmed(ctx, event); err != nil {
		slog.Warn("booking event publish failed", "booking_id", record.Id, "error", err)
	}

	slog.Info("booking finalized",
		"booking_id", record.Id,
		"trip_id", tripID,
		"user_id", userID,
		"seats", len(seats),
		"locks_confirmed", confirmed,
	)

	booking := &models.Booking{
		ID:          record.Id,
		Reference:   reference,
		TripID:      tripID,
		UserID:      userID,
		Seats:       seats,
		TotalAmount: total.String(),
		Status:      "confirmed",
		PaymentID:   paymentID,
		CreatedAt:   now,
		ConfirmedAt: &now,
	}
	return booking, nil
}

func (s *BookingService) totalFare(ctx context.Context, tripID string, seatCount int) (decimal.Decimal, error) {
	fare, err := s.capacity.TripFare(ctx, tripID)
	if err != nil {
		return decimal.Zero, err
	}
	return TotalFare(fare, seatCount), nil
}

// TotalFare multiplies the per-seat fare by the seat count without float
// drift.
func TotalFare(perSeat float64, seats int) decimal.Decimal {
	return decimal.NewFromFloat(perSeat).Mul(decimal.NewFromInt(int64(seats)))
}
