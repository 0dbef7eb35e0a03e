package services

import (
	"testing"

	"bus-ticketing/status"

	"github.com/stretchr/testify/assert"
)

func TestValidateSeatRange(t *testing.T) {
	assert.NoError(t, ValidateSeatRange([]string{"1", "40"}, 40))
	assert.NoError(t, ValidateSeatRange([]string{"7"}, 10))

	assert.ErrorIs(t, ValidateSeatRange([]string{"0"}, 40), status.ErrInvalidRequest)
	assert.ErrorIs(t, ValidateSeatRange([]string{"41"}, 40), status.ErrInvalidRequest)
	assert.ErrorIs(t, ValidateSeatRange([]string{"-3"}, 40), status.ErrInvalidRequest)
	assert.ErrorIs(t, ValidateSeatRange([]string{"99Z"}, 40), status.ErrInvalidRequest)
	assert.ErrorIs(t, ValidateSeatRange([]string{""}, 40), status.ErrInvalidRequest)
}

func TestValidateSeatRange_MixedRequest(t *testing.T) {
	// One bad label fails the whole request before any lock is attempted.
	err := ValidateSeatRange([]string{"1", "2", "99"}, 40)
	assert.ErrorIs(t, err, status.ErrInvalidRequest)
}
