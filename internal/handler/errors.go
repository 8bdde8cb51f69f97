package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/gateway"
	"github.com/iliyamo/ticket-settlement/internal/lock"
	"github.com/iliyamo/ticket-settlement/internal/model"
	"github.com/iliyamo/ticket-settlement/internal/repository"
	"github.com/iliyamo/ticket-settlement/internal/service"
)

type rejection struct {
	err    error
	status int
	code   string
}

// rejections is matched in order with errors.Is; the first hit wins.  A
// processor cancel failure wraps the underlying 4xx/5xx cause, so it comes
// before them.
var rejections = []rejection{
	{lock.ErrLockAcquisitionFailed, http.StatusConflict, "SEAT_LOCKED"},
	{lock.ErrLockInterrupted, http.StatusServiceUnavailable, "LOCK_INTERRUPTED"},

	{model.ErrSeatAlreadyReserved, http.StatusConflict, "SEAT_ALREADY_RESERVED"},
	{model.ErrSeatAlreadySold, http.StatusConflict, "SEAT_ALREADY_SOLD"},
	{model.ErrSeatNotAvailable, http.StatusConflict, "SEAT_NOT_AVAILABLE"},
	{model.ErrInvalidSeatPrice, http.StatusBadRequest, "INVALID_SEAT_PRICE"},
	{model.ErrReservationNotPending, http.StatusConflict, "RESERVATION_NOT_PENDING"},
	{model.ErrPaymentNotPending, http.StatusConflict, "PAYMENT_NOT_PENDING"},
	{model.ErrPaymentNotCompleted, http.StatusConflict, "PAYMENT_NOT_COMPLETED"},

	{service.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
	{service.ErrSeatNotFound, http.StatusNotFound, "SEAT_NOT_FOUND"},
	{service.ErrPerformanceNotFound, http.StatusNotFound, "PERFORMANCE_NOT_FOUND"},
	{service.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
	{service.ErrPaymentNotFound, http.StatusNotFound, service.ReasonNotFound},
	{service.ErrPaymentAccountMismatch, http.StatusForbidden, service.ReasonAccountMismatch},
	{service.ErrPaymentAlreadyProcessed, http.StatusConflict, service.ReasonAlreadyHandled},
	{service.ErrExpiredPaymentVerificationTime, http.StatusUnprocessableEntity, service.ReasonExpired},
	{service.ErrPaymentVerificationFailed, http.StatusUnprocessableEntity, service.ReasonNotCompleted},
	{service.ErrPaymentAmountMismatch, http.StatusUnprocessableEntity, service.ReasonAmountMismatch},
	{service.ErrReservationNotPayable, http.StatusConflict, service.ReasonNotPayable},
	{service.ErrReservationAlreadyPaid, http.StatusConflict, service.ReasonDuplicate},
	{service.ErrReservationSettling, http.StatusConflict, "RESERVATION_SETTLING"},
	{service.ErrPerformanceHasActiveSeats, http.StatusConflict, "PERFORMANCE_HAS_ACTIVE_SEATS"},

	{gateway.ErrPaymentCancelFailed, http.StatusBadGateway, "PAYMENT_CANCEL_FAILED"},
	{gateway.ErrPaymentNotFoundInPG, http.StatusNotFound, "PAYMENT_NOT_FOUND_AT_PROCESSOR"},
	{gateway.ErrPaymentAPIError, http.StatusBadGateway, "PAYMENT_PROCESSOR_ERROR"},

	{repository.ErrVersionConflict, http.StatusConflict, "CONCURRENT_UPDATE"},
	{repository.ErrConflict, http.StatusConflict, "CONFLICT"},
}

// fail writes {"error": code, "message": msg} for a known error and a
// generic 500 for anything else.
func fail(c echo.Context, log *zap.Logger, err error) error {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return c.JSON(r.status, echo.Map{"error": r.code, "message": r.err.Error()})
		}
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL_ERROR", "message": "internal error"})
}

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "BAD_REQUEST", "message": msg})
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
