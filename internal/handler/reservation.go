package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/middleware"
	"github.com/iliyamo/ticket-settlement/internal/service"
)

// ReservationHandler exposes the caller's reservation on one seat.  Routes
// sit behind JWTAuth; the account comes from the token, never the body.
type ReservationHandler struct {
	svc *service.ReservationService
	log *zap.Logger
}

// NewReservationHandler panics on a nil service.
func NewReservationHandler(svc *service.ReservationService, log *zap.Logger) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc, log: log}
}

// caller returns the authenticated account and the :id seat.  The error is
// an *echo.HTTPError ready to be returned.
func caller(c echo.Context) (accountID, seatID uint64, err error) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return 0, 0, errUnauthorized
	}
	seatID, ok = pathID(c, "id")
	if !ok {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "BAD_REQUEST", "message": "invalid seat id"})
	}
	return accountID, seatID, nil
}

// Reserve handles POST /v1/seats/:id/reservation.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	accountID, seatID, err := caller(c)
	if err != nil {
		return err
	}
	r, err := h.svc.ReserveSeat(c.Request().Context(), accountID, seatID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, newReservationResponse(r))
}

// Get handles GET /v1/seats/:id/reservation.
func (h *ReservationHandler) Get(c echo.Context) error {
	accountID, seatID, err := caller(c)
	if err != nil {
		return err
	}
	r, err := h.svc.FindReservation(c.Request().Context(), accountID, seatID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationResponse(r))
}

// Cancel handles DELETE /v1/seats/:id/reservation.  Cancelling twice
// succeeds both times.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	accountID, seatID, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.svc.CancelReservation(c.Request().Context(), accountID, seatID); err != nil {
		return fail(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
