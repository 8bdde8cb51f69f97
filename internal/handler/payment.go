package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/middleware"
	"github.com/iliyamo/ticket-settlement/internal/repository"
	"github.com/iliyamo/ticket-settlement/internal/service"
)

// PaymentHandler covers the payment lifecycle: the pre-payment record,
// the processor callback confirmation and refunds.
type PaymentHandler struct {
	accounts     service.AccountRepository
	reservations *service.ReservationService
	payments     *service.PaymentService
	facade       *service.PaymentFacade
	log          *zap.Logger
}

// NewPaymentHandler panics on a nil dependency.
func NewPaymentHandler(
	accounts service.AccountRepository,
	reservations *service.ReservationService,
	payments *service.PaymentService,
	facade *service.PaymentFacade,
	log *zap.Logger,
) *PaymentHandler {
	if accounts == nil || reservations == nil || payments == nil || facade == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{accounts: accounts, reservations: reservations, payments: payments, facade: facade, log: log}
}

type prePaymentRequest struct {
	SeatID      uint64 `json:"seat_id"`
	Method      string `json:"method"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// Create handles POST /v1/payments.  The amount is taken from the seat,
// never from the client.
func (h *PaymentHandler) Create(c echo.Context) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return errUnauthorized
	}
	// parse and validate the body
	var body prePaymentRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.SeatID == 0 {
		return badRequest(c, "seat_id is required")
	}
	// the account and its reservation must both exist before anything is saved
	ctx := c.Request().Context()
	account, err := h.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		err = service.ErrAccountNotFound
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	reservation, err := h.reservations.FindReservation(ctx, accountID, body.SeatID)
	if err != nil {
		return fail(c, h.log, err)
	}
	p, err := h.payments.SavePrePayment(ctx, account, reservation,
		service.PrePaymentRequest{Method: body.Method, Currency: strings.ToUpper(body.Currency)},
		strings.TrimSpace(body.Description), c.RealIP())
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, newPaymentResponse(p))
}

type confirmRequest struct {
	PaymentKey string `json:"payment_key"`
}

// Confirm handles POST /v1/payments/confirm, called once the client
// finished paying at the processor.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return errUnauthorized
	}
	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.PaymentKey) == "" {
		return badRequest(c, "payment_key is required")
	}
	// a rejected verification is already compensated by the facade
	p, err := h.facade.VerifyPayment(c.Request().Context(), accountID, body.PaymentKey, c.RealIP())
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newPaymentResponse(p))
}

type refundRequest struct {
	PaymentKey string `json:"payment_key"`
	Reason     string `json:"reason"`
}

// Refund handles POST /v1/payments/refund.
func (h *PaymentHandler) Refund(c echo.Context) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return errUnauthorized
	}
	var body refundRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.PaymentKey) == "" {
		return badRequest(c, "payment_key is required")
	}
	// the processor requires a cancel reason
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "customer request"
	}
	p, err := h.facade.RefundPayment(c.Request().Context(), accountID, service.RefundRequest{PaymentKey: body.PaymentKey, Reason: reason})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newPaymentResponse(p))
}
