// Package handler holds the echo handlers.  Each one binds and validates
// the request, calls a service and maps its error through the rejection
// table in errors.go.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health answers load balancer health checks.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
