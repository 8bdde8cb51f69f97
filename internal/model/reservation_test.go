package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-settlement/internal/model"
)

func reservedSeat(t *testing.T) *model.Seat {
	t.Helper()
	seat, err := model.NewSeat(1, "B-7", 10000)
	require.NoError(t, err)
	require.NoError(t, seat.Reserve())
	return seat
}

func TestNewReservation_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := model.NewReservation(7, 3, now, 10*time.Minute)

	assert.Equal(t, model.ReservationPendingPayment, r.Status)
	assert.Equal(t, now.Add(10*time.Minute), r.ExpiresAt)
	assert.False(t, r.IsExpired(now.Add(10*time.Minute)))
	assert.True(t, r.IsExpired(now.Add(10*time.Minute+time.Second)))
	assert.Equal(t, model.ReservationKey{AccountID: 7, SeatID: 3}, r.Key())
}

func TestReservation_ConfirmSetsConfirmedAtOnce(t *testing.T) {
	now := time.Now()
	seat := reservedSeat(t)
	r := model.NewReservation(1, seat.ID, now, time.Minute)

	require.NoError(t, r.Confirm(seat, now))
	assert.Equal(t, model.ReservationConfirmed, r.Status)
	assert.Equal(t, model.SeatSold, seat.Status)
	require.NotNil(t, r.ConfirmedAt)

	first := *r.ConfirmedAt
	assert.ErrorIs(t, r.Confirm(seat, now.Add(time.Hour)), model.ErrReservationNotPending)
	assert.Equal(t, first, *r.ConfirmedAt)
}

func TestReservation_CancelIsNoOpWhenCanceled(t *testing.T) {
	seat := reservedSeat(t)
	r := model.NewReservation(1, seat.ID, time.Now(), time.Minute)

	changed, err := r.Cancel(seat)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SeatAvailable, seat.Status)

	changed, err = r.Cancel(seat)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.ReservationCanceled, r.Status)
}

func TestReservation_CancelConfirmedFails(t *testing.T) {
	seat := reservedSeat(t)
	r := model.NewReservation(1, seat.ID, time.Now(), time.Minute)
	require.NoError(t, r.Confirm(seat, time.Now()))

	_, err := r.Cancel(seat)
	assert.ErrorIs(t, err, model.ErrSeatAlreadySold)
	assert.Equal(t, model.ReservationConfirmed, r.Status)
	assert.Equal(t, model.SeatSold, seat.Status)
}

func TestReservation_ConfirmCanceledFails(t *testing.T) {
	seat := reservedSeat(t)
	r := model.NewReservation(1, seat.ID, time.Now(), time.Minute)
	_, err := r.Cancel(seat)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Confirm(seat, time.Now()), model.ErrReservationNotPending)
}

func TestReservation_RefundReleasesSoldSeat(t *testing.T) {
	seat := reservedSeat(t)
	r := model.NewReservation(1, seat.ID, time.Now(), time.Minute)
	require.NoError(t, r.Confirm(seat, time.Now()))

	assert.True(t, r.Refund(seat))
	assert.Equal(t, model.ReservationCanceled, r.Status)
	assert.Equal(t, model.SeatAvailable, seat.Status)
	assert.False(t, r.Refund(seat))
}

func TestPayment_CompleteOnlyFromPending(t *testing.T) {
	now := time.Now()
	p := &model.Payment{PaymentKey: "k", Status: model.PaymentPending}

	require.NoError(t, p.Complete("CARD", "https://receipt", "10.0.0.1", now, now))
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.Equal(t, "CARD", p.Method)
	assert.ErrorIs(t, p.Complete("CARD", "", "", now, now), model.ErrPaymentNotPending)

	assert.True(t, p.Cancel("refund", now))
	assert.False(t, p.Cancel("again", now))
	assert.Equal(t, "refund", p.CancelReason)
}
