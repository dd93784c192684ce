package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", ErrReservationNotFound, KindNotFound},
		{"wrapped not found", fmt.Errorf("load flight: %w", ErrFlightNotFound), KindNotFound},
		{"forbidden", ErrForbidden, KindForbidden},
		{"seat taken", fmt.Errorf("reserve: %w", ErrSeatUnavailable), KindConflict},
		{"duplicate payment", ErrPaymentAlreadyStarted, KindConflict},
		{"bank slip", ErrBankSlipTooLate, KindBadRequest},
		{"unknown", errors.New("connection reset"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}

	assert.True(t, IsNotFoundError(ErrAircraftNotFound))
	assert.True(t, IsConflictError(ErrConcurrentUpdate))
	assert.Equal(t, "CONFLICT", KindConflict.String())
}

func TestSeatColumns_UnmarshalJSON(t *testing.T) {
	var fromString SeatMapDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"rows":2,"columns":"ABC"}`), &fromString))
	assert.Equal(t, SeatColumns{"A", "B", "C"}, fromString.Columns)

	var fromList SeatMapDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"rows":2,"columns":["A","C"]}`), &fromList))
	assert.Equal(t, SeatColumns{"A", "C"}, fromList.Columns)

	var layout SeatMapDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"layout":"3-3"}`), &layout))
	assert.Equal(t, "3-3", layout.Layout)
	assert.Empty(t, layout.Columns)
}

func TestReservationHelpers(t *testing.T) {
	r := Reservation{Tickets: []Ticket{{SeatNumber: "1A"}, {SeatNumber: "1B"}}}
	assert.Equal(t, []string{"1A", "1B"}, r.SeatNumbers())

	assert.True(t, ReservationStatusPending.IsActive())
	assert.True(t, ReservationStatusConfirmed.IsActive())
	assert.False(t, ReservationStatusCancelled.IsActive())

	admin := Actor{UserID: 1, Role: RoleAdmin}
	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.Owns(2))
}
