package handlers

import (
	"net/http"

	"bus-ticketing/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type BookingHandler struct {
	app      *pocketbase.PocketBase
	bookings *services.BookingService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{
		app:      app,
		bookings: bookings,
	}
}

// ConfirmBooking finalizes a paid seat selection into a permanent booking.
// Normally driven by the payment listener; this endpoint covers providers
// that confirm via redirect instead of a notification channel.
func (h *BookingHandler) ConfirmBooking(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TripID      string   `json:"trip_id"`
		SeatNumbers []string `json:"seat_numbers"`
		PaymentID   string   `json:"payment_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	booking, err := h.bookings.FinalizeBooking(e.Request.Context(), req.TripID, req.SeatNumbers, e.Auth.Id, req.PaymentID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// GetBookingHistory returns the authed customer's recent bookings.
func (h *BookingHandler) GetBookingHistory(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	bookings, err := h.app.FindRecordsByFilter(
		"bookings",
		"user = {:userId}",
		"-created",
		20,
		0,
		map[string]any{"userId": e.Auth.Id},
	)
	if err != nil {
		return apis.NewBadRequestError("Failed to get bookings", err)
	}

	result := []map[string]any{}
	for _, booking := range bookings {
		routeName := ""
		if trip, err := h.app.FindRecordById("trips", booking.GetString("trip")); err == nil {
			routeName = trip.GetString("route_name")
		}

		result = append(result, map[string]any{
			"id":           booking.Id,
			"reference":    booking.GetString("reference"),
			"trip_id":      booking.GetString("trip"),
			"route_name":   routeName,
			"seats":        booking.Get("seats"),
			"total_amount": booking.GetString("total_amount"),
			"status":       booking.GetString("status"),
			"created":      booking.GetDateTime("created"),
		})
	}

	return e.JSON(http.StatusOK, result)
}
