package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bus-ticketing/status"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// CapacityService is the read-only view over trips, buses and permanent
// bookings. It owns the single "is this trip still bookable" predicate so the
// check is not reimplemented per call site.
type CapacityService struct {
	app core.App
}

func NewCapacityService(app core.App) *CapacityService {
	return &CapacityService{app: app}
}

func (s *CapacityService) TripSeatCount(ctx context.Context, tripID string) (int, error) {
	trip, err := s.app.FindRecordById("trips", tripID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", status.ErrTripNotFound, tripID)
	}

	if count := trip.GetInt("seat_count"); count > 0 {
		return count, nil
	}

	// Older trips predate the denormalized seat_count; fall back to the bus.
	bus, err := s.app.FindRecordById("buses", trip.GetString("bus"))
	if err != nil {
		return 0, fmt.Errorf("%w: bus for trip %s", status.ErrTripNotFound, tripID)
	}
	return bus.GetInt("capacity"), nil
}

// PermanentlyOccupiedSeats returns the seats held by bookings in a
// final/occupying status. Pending and cancelled bookings never block a seat.
func (s *CapacityService) PermanentlyOccupiedSeats(ctx context.Context, tripID string) (map[string]struct{}, error) {
	var records []dbx.NullStringMap
	err := s.app.DB().
		NewQuery("SELECT seats FROM bookings WHERE trip = {:trip} AND status IN ('confirmed', 'checked_in', 'completed')").
		Bind(dbx.Params{"trip": tripID}).
		All(&records)
	if err != nil {
		return nil, err
	}

	occupied := make(map[string]struct{})
	for _, record := range records {
		raw := record["seats"].String
		if raw == "" {
			continue
		}
		var seats []string
		if err := json.Unmarshal([]byte(raw), &seats); err != nil {
			continue
		}
		for _, seat := range seats {
			occupied[seat] = struct{}{}
		}
	}

	return occupied, nil
}

// IsTripOpenForBooking is the consolidated bookability predicate: the trip
// must still be scheduled, must not have departed, and its bus must not be
// pulled for maintenance.
func (s *CapacityService) IsTripOpenForBooking(ctx context.Context, tripID string) error {
	trip, err := s.app.FindRecordById("trips", tripID)
	if err != nil {
		return fmt.Errorf("%w: %s", status.ErrTripNotFound, tripID)
	}

	if trip.GetString("status") != "scheduled" {
		return fmt.Errorf("%w: trip %s is %s", status.ErrTripNotBookable, tripID, trip.GetString("status"))
	}
	if depart := trip.GetDateTime("depart_at").Time(); !depart.After(time.Now()) {
		return fmt.Errorf("%w: trip %s already departed", status.ErrTripNotBookable, tripID)
	}

	if busID := trip.GetString("bus"); busID != "" {
		bus, err := s.app.FindRecordById("buses", busID)
		if err == nil && bus.GetString("status") != "active" {
			return fmt.Errorf("%w: bus for trip %s is %s", status.ErrTripNotBookable, tripID, bus.GetString("status"))
		}
	}

	return nil
}

// ValidateSeatRange rejects seat labels outside the trip's numbered range.
// Seats are numbered "1" through seat_count; the lock manager itself treats
// labels opaquely, so the range check lives with the capacity data.
func ValidateSeatRange(seatNumbers []string, seatCount int) error {
	for _, seat := range seatNumbers {
		n, err := strconv.Atoi(seat)
		if err != nil || n < 1 || n > seatCount {
			return fmt.Errorf("%w: seat %q out of range", status.ErrInvalidRequest, seat)
		}
	}
	return nil
}

// TripFare returns the per-seat fare for the trip as stored on the record.
func (s *CapacityService) TripFare(ctx context.Context, tripID string) (float64, error) {
	trip, err := s.app.FindRecordById("trips", tripID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", status.ErrTripNotFound, tripID)
	}
	return trip.GetFloat("fare"), nil
}
