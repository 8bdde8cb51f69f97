package handler

import (
	"time"

	"github.com/iliyamo/ticket-settlement/internal/model"
)

type seatResponse struct {
	ID            uint64 `json:"id"`
	PerformanceID uint64 `json:"performance_id"`
	Code          string `json:"code"`
	Price         int64  `json:"price"`
	Status        string `json:"status"`
}

func newSeatResponse(s *model.Seat) seatResponse {
	return seatResponse{ID: s.ID, PerformanceID: s.PerformanceID, Code: s.Code, Price: s.Price, Status: string(s.Status)}
}

type performanceResponse struct {
	ID       uint64         `json:"id"`
	Title    string         `json:"title"`
	StartsAt time.Time      `json:"starts_at"`
	Seats    []seatResponse `json:"seats"`
}

func newPerformanceResponse(p *model.Performance) performanceResponse {
	out := performanceResponse{ID: p.ID, Title: p.Title, StartsAt: p.StartsAt, Seats: make([]seatResponse, 0, len(p.Seats))}
	for _, s := range p.Seats {
		out.Seats = append(out.Seats, newSeatResponse(s))
	}
	return out
}

type reservationResponse struct {
	AccountID   uint64     `json:"account_id"`
	SeatID      uint64     `json:"seat_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

func newReservationResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		AccountID:   r.AccountID,
		SeatID:      r.SeatID,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		ConfirmedAt: r.ConfirmedAt,
	}
}

type paymentResponse struct {
	PaymentKey   string     `json:"payment_key"`
	SeatID       uint64     `json:"seat_id"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	Method       string     `json:"method,omitempty"`
	OrderName    string     `json:"order_name"`
	Status       string     `json:"status"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	ReceiptURL   string     `json:"receipt_url,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

func newPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		PaymentKey:   p.PaymentKey,
		SeatID:       p.SeatID,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Method:       p.Method,
		OrderName:    p.OrderName,
		Status:       string(p.Status),
		PaidAt:       p.PaidAt,
		ReceiptURL:   p.ReceiptURL,
		CancelReason: p.CancelReason,
	}
}
