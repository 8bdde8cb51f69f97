package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/service"
)

// PerformanceHandler serves the seat map and the owner's performance admin.
type PerformanceHandler struct {
	svc *service.PerformanceService
	log *zap.Logger
}

// NewPerformanceHandler panics on a nil service.
func NewPerformanceHandler(svc *service.PerformanceService, log *zap.Logger) *PerformanceHandler {
	if svc == nil {
		panic("nil service passed to NewPerformanceHandler")
	}
	return &PerformanceHandler{svc: svc, log: log}
}

type seatSpecRequest struct {
	Code  string `json:"code"`
	Price int64  `json:"price"`
}

// createPerformanceRequest takes either explicit seats or a rectangular
// layout of rows x seats_per_row at one price, coded "A-1", "A-2", ...
type createPerformanceRequest struct {
	Title       string            `json:"title"`
	StartsAt    time.Time         `json:"starts_at"`
	Seats       []seatSpecRequest `json:"seats"`
	Rows        int               `json:"rows"`
	SeatsPerRow int               `json:"seats_per_row"`
	Price       int64             `json:"price"`
}

// Create handles POST /v1/performances.
func (h *PerformanceHandler) Create(c echo.Context) error {
	var body createPerformanceRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	body.Title = strings.TrimSpace(body.Title)
	if body.Title == "" {
		return badRequest(c, "title is required")
	}
	if body.StartsAt.IsZero() {
		return badRequest(c, "starts_at is required")
	}
	specs, msg := seatSpecs(body)
	if msg != "" {
		return badRequest(c, msg)
	}
	p, err := h.svc.Create(c.Request().Context(), service.CreatePerformanceInput{
		Title:    body.Title,
		StartsAt: body.StartsAt,
		Seats:    specs,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, newPerformanceResponse(p))
}

func seatSpecs(body createPerformanceRequest) ([]service.SeatSpec, string) {
	if len(body.Seats) > 0 {
		seen := make(map[string]bool, len(body.Seats))
		specs := make([]service.SeatSpec, 0, len(body.Seats))
		for _, s := range body.Seats {
			code := strings.ToUpper(strings.TrimSpace(s.Code))
			if code == "" {
				return nil, "seat code is required"
			}
			if seen[code] {
				return nil, "duplicate seat code " + code
			}
			seen[code] = true
			specs = append(specs, service.SeatSpec{Code: code, Price: s.Price})
		}
		return specs, ""
	}
	if body.Rows <= 0 || body.SeatsPerRow <= 0 {
		return nil, "seats or rows and seats_per_row are required"
	}
	specs := make([]service.SeatSpec, 0, body.Rows*body.SeatsPerRow)
	for r := 0; r < body.Rows; r++ {
		label := rowLabel(r)
		for n := 1; n <= body.SeatsPerRow; n++ {
			specs = append(specs, service.SeatSpec{Code: label + "-" + strconv.Itoa(n), Price: body.Price})
		}
	}
	return specs, ""
}

// rowLabel converts a zero-based index to A, B, ..., Z, AA, AB, ...
func rowLabel(i int) string {
	var res []byte
	for {
		res = append(res, byte('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// ListSeats handles GET /v1/performances/:id/seats.
func (h *PerformanceHandler) ListSeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid performance id")
	}
	seats, err := h.svc.ListSeats(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	out := make([]seatResponse, 0, len(seats))
	for _, s := range seats {
		out = append(out, newSeatResponse(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"performance_id": id, "seats": out})
}

// Delete handles DELETE /v1/performances/:id.
func (h *PerformanceHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid performance id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return fail(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
