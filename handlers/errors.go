package handlers

import (
	"errors"
	"net/http"

	"bus-ticketing/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError maps service errors to HTTP responses. Business denials never end
// up here; they travel inside structured results.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidRequest):
		return apis.NewBadRequestError("Invalid request", err)
	case errors.Is(err, status.ErrTripNotFound):
		return apis.NewNotFoundError("Trip not found", err)
	case errors.Is(err, status.ErrTripNotBookable):
		return apis.NewBadRequestError("Trip is not open for booking", err)
	case errors.Is(err, status.ErrSeatsNotHeld):
		return apis.NewBadRequestError("Seats are not available for booking", err)
	case errors.Is(err, status.ErrStoreUnavailable):
		return apis.NewApiError(http.StatusServiceUnavailable, "Temporarily unavailable, please retry", err)
	default:
		return apis.NewInternalServerError("Something went wrong", err)
	}
}
