// Package router registers the HTTP routes on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-settlement/internal/handler"
	"github.com/iliyamo/ticket-settlement/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPerformances exposes the seat map to everyone and creation and
// deletion to owners.
func RegisterPerformances(e *echo.Echo, h *handler.PerformanceHandler, jwtSecret string) {
	g := e.Group("/v1/performances")
	g.GET("/:id/seats", h.ListSeats)

	owner := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOwner),
	}
	g.POST("", h.Create, owner...)
	g.DELETE("/:id", h.Delete, owner...)
}

// RegisterCustomer registers the reservation and payment endpoints.  Any
// authenticated account may call them; each request is charged against the
// caller's token bucket after authentication.
func RegisterCustomer(e *echo.Echo, r *handler.ReservationHandler, p *handler.PaymentHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	chain := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOwner, middleware.RoleCustomer),
	}
	if limiter != nil {
		chain = append(chain, limiter)
	}

	seats := e.Group("/v1/seats", chain...)
	seats.POST("/:id/reservation", r.Reserve)
	seats.GET("/:id/reservation", r.Get)
	seats.DELETE("/:id/reservation", r.Cancel)

	payments := e.Group("/v1/payments", chain...)
	payments.POST("", p.Create)
	payments.POST("/confirm", p.Confirm)
	payments.POST("/refund", p.Refund)
}
