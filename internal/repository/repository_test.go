package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-settlement/internal/database"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSeatRepo_UpdateComparesVersion(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewSeatRepo(db)
	seat := &model.Seat{ID: 5, Price: 10000, Status: model.SeatReserved, Version: 2}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE seats SET status = ?, price = ?, version = version + 1`)).
		WithArgs("RESERVED", int64(10000), uint64(5), uint32(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), seat))
	assert.Equal(t, uint32(3), seat.Version)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE seats`)).
		WithArgs("RESERVED", int64(10000), uint64(5), uint32(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), seat), repository.ErrVersionConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepo_UpdateRejectsNegativePrice(t *testing.T) {
	db, _ := newMock(t)
	repo := repository.NewSeatRepo(db)
	err := repo.Update(context.Background(), &model.Seat{ID: 1, Price: -1})
	assert.ErrorIs(t, err, model.ErrInvalidSeatPrice)
}

func TestSeatRepo_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewSeatRepo(db)

	rows := sqlmock.NewRows([]string{"id", "performance_id", "code", "price", "status", "version"}).
		AddRow(uint64(7), uint64(1), "A-1", int64(5000), "AVAILABLE", uint32(0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM seats WHERE id = ?`)).WithArgs(uint64(7)).WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM seats WHERE id = ?`)).WithArgs(uint64(8)).WillReturnError(sql.ErrNoRows)

	seat, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seat.Status)
	assert.Equal(t, "A-1", seat.Code)

	_, err = repo.GetByID(context.Background(), 8)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepo_CreateBulkAssignsConsecutiveIDs(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewSeatRepo(db)
	a, _ := model.NewSeat(3, "A-1", 100)
	b, _ := model.NewSeat(3, "A-2", 100)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO seats (performance_id, code, price, status, version) VALUES (?, ?, ?, ?, ?),(?, ?, ?, ?, ?)`)).
		WillReturnResult(sqlmock.NewResult(40, 2))
	require.NoError(t, repo.CreateBulk(context.Background(), []*model.Seat{a, b}))
	assert.Equal(t, uint64(40), a.ID)
	assert.Equal(t, uint64(41), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepo_ExistsNotAvailable(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewSeatRepo(db)
	mock.ExpectQuery(regexp.QuoteMeta(`status <> 'AVAILABLE'`)).WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsNotAvailable(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReservationRepo_CreateDuplicateIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewReservationRepo(db)
	res := model.NewReservation(1, 2, time.Now(), time.Minute)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reservations`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.ErrorIs(t, repo.Create(context.Background(), res), repository.ErrConflict)
}

func TestReservationRepo_FindExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewReservationRepo(db)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"account_id", "seat_id", "status", "created_at", "expires_at", "confirmed_at", "version"}).
		AddRow(uint64(1), uint64(2), "PENDING_PAYMENT", now.Add(-20*time.Minute), now.Add(-10*time.Minute), nil, uint32(0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = ? AND expires_at < ?`)).
		WithArgs("PENDING_PAYMENT", now, 50).
		WillReturnRows(rows)

	got, err := repo.FindByStatusAndExpiresBefore(context.Background(), model.ReservationPendingPayment, now, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ReservationKey{AccountID: 1, SeatID: 2}, got[0].Key())
	assert.Nil(t, got[0].ConfirmedAt)
}

func TestReservationRepo_UpdateRunsOnScopedTx(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewReservationRepo(db)
	runner := database.NewTxManager(db)
	res := model.NewReservation(1, 2, time.Now(), time.Minute)
	res.Status = model.ReservationCanceled

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reservations`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := runner.WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.Update(ctx, res)
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_UpdateGuardsPreviousStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewPaymentRepo(db)
	p := &model.Payment{PaymentKey: "pk", Status: model.PaymentCompleted, UpdatedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta(`WHERE payment_key = ? AND status = ?`)).
		WithArgs("COMPLETED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "pk", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), p, model.PaymentPending)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByAccountAndKey(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewPaymentRepo(db)
	now := time.Now().UTC()

	cols := []string{"payment_key", "account_id", "seat_id", "amount", "currency", "method", "order_name", "status",
		"request_ip", "verify_ip", "paid_at", "receipt_url", "cancel_reason", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE account_id = ? AND payment_key = ?`)).
		WithArgs(uint64(9), "pk").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("pk", uint64(9), uint64(2), int64(10000), "KRW", "", "seat A-1",
			"PENDING", "10.0.0.1", nil, nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE account_id = ? AND payment_key = ?`)).
		WithArgs(uint64(10), "pk").
		WillReturnError(sql.ErrNoRows)

	p, err := repo.GetByAccountAndKey(context.Background(), 9, "pk")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), p.Amount)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Empty(t, p.VerifyIP)
	assert.Nil(t, p.PaidAt)

	_, err = repo.GetByAccountAndKey(context.Background(), 10, "pk")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPaymentRepo_ExistsCompletedForReservationScopedToCycle(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewPaymentRepo(db)
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`status = 'COMPLETED' AND created_at >= ?`)).
		WithArgs(uint64(1), uint64(7), since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.ExistsCompletedForReservation(context.Background(), model.ReservationKey{AccountID: 1, SeatID: 7}, since)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_FetchPending(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewOutboxRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE published_at IS NULL`)).WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "aggregate_key", "payload", "attempts", "last_error", "created_at"}).
			AddRow("m1", "payment.completed", "pk", []byte(`{"paymentKey":"pk"}`), 1, "broker down", now))

	msgs, err := repo.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"paymentKey":"pk"}`, string(msgs[0].Payload))
	assert.Equal(t, "broker down", msgs[0].LastError)
}
