package handlers

import (
	"net/http"
	"time"

	"bus-ticketing/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SeatHandler struct {
	locks    *services.LockService
	capacity *services.CapacityService
	holdFor  time.Duration
	holdMax  time.Duration
}

func NewSeatHandler(locks *services.LockService, capacity *services.CapacityService, holdFor, holdMax time.Duration) *SeatHandler {
	return &SeatHandler{
		locks:    locks,
		capacity: capacity,
		holdFor:  holdFor,
		holdMax:  holdMax,
	}
}

// GetTripSeats returns the merged occupancy view for a trip: permanent
// bookings plus active holds, with the caller's own holds called out. This is
// the snapshot a client fetches when it joins the trip's realtime channel.
func (h *SeatHandler) GetTripSeats(e *core.RequestEvent) error {
	tripID := e.Request.PathValue("tripId")

	holderID := ""
	if e.Auth != nil {
		holderID = e.Auth.Id
	}

	occ, err := h.locks.GetOccupancy(e.Request.Context(), tripID, holderID)
	if err != nil {
		return apiError(err)
	}

	available := occ.SeatCount - len(occ.Occupied) - len(occ.LockedByOthers) - len(occ.LockedByHolder)
	if available < 0 {
		available = 0
	}

	return e.JSON(http.StatusOK, map[string]any{
		"trip_id":          occ.TripID,
		"seat_count":       occ.SeatCount,
		"occupied":         occ.Occupied,
		"locked_by_others": occ.LockedByOthers,
		"locked_by_you":    occ.LockedByHolder,
		"available_seats":  available,
	})
}

// LockSeats places a soft hold on the requested seats for the authed
// customer's checkout session. Partial grants are reported, not rolled back.
func (h *SeatHandler) LockSeats(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TripID      string   `json:"trip_id"`
		SeatNumbers []string `json:"seat_numbers"`
		HoldSeconds int      `json:"hold_seconds"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()

	if err := h.capacity.IsTripOpenForBooking(ctx, req.TripID); err != nil {
		return apiError(err)
	}

	seatCount, err := h.capacity.TripSeatCount(ctx, req.TripID)
	if err != nil {
		return apiError(err)
	}
	if err := services.ValidateSeatRange(req.SeatNumbers, seatCount); err != nil {
		return apiError(err)
	}

	holdFor := h.holdFor
	if req.HoldSeconds > 0 {
		holdFor = time.Duration(req.HoldSeconds) * time.Second
		if holdFor > h.holdMax {
			holdFor = h.holdMax
		}
	}

	result, err := h.locks.AcquireSeats(ctx, req.TripID, req.SeatNumbers, e.Auth.Id, holdFor)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, result)
}

// UnlockSeats releases the caller's holds. Seats the caller does not hold are
// skipped silently.
func (h *SeatHandler) UnlockSeats(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TripID      string   `json:"trip_id"`
		SeatNumbers []string `json:"seat_numbers"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	released, err := h.locks.ReleaseSeats(e.Request.Context(), req.TripID, req.SeatNumbers, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"released": released})
}
