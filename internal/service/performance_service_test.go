package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/service"
)

func TestPerformanceService_CreateValidatesPrice(t *testing.T) {
	f := newFixture(t)
	_, err := f.performances.Create(f.ctx, service.CreatePerformanceInput{
		Title:    "Free",
		StartsAt: time.Now(),
		Seats:    []service.SeatSpec{{Code: "A-1", Price: -1}},
	})
	assert.ErrorIs(t, err, model.ErrInvalidSeatPrice)
}

func TestPerformanceService_ListSeats(t *testing.T) {
	f := newFixture(t)
	seats, err := f.performances.ListSeats(f.ctx, f.performance.ID)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, "A-1", seats[0].Code)
	assert.Equal(t, model.SeatAvailable, seats[0].Status)

	_, err = f.performances.ListSeats(f.ctx, 999)
	assert.ErrorIs(t, err, service.ErrPerformanceNotFound)
}

func TestPerformanceService_DeleteBlockedByActiveSeats(t *testing.T) {
	f := newFixture(t)
	_, err := f.reservations.ReserveSeat(f.ctx, buyer, f.seat.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.performances.Delete(f.ctx, f.performance.ID), service.ErrPerformanceHasActiveSeats)

	require.NoError(t, f.reservations.CancelReservation(f.ctx, buyer, f.seat.ID))
	require.NoError(t, f.performances.Delete(f.ctx, f.performance.ID))
	assert.ErrorIs(t, f.performances.Delete(f.ctx, f.performance.ID), service.ErrPerformanceNotFound)
}
