// Package middleware holds the echo middleware shared by every route group:
// authentication, role checks, request logging and rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys populated by JWTAuth.
const (
	ContextAccountID = "account_id"
	ContextRole      = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject as the numeric account id and its role claim
// into the request context.  The provided secret must match the one used
// when issuing tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// expect "Authorization: Bearer <token>"
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// only HMAC signatures are accepted; anything else is rejected
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			id, ok := subject(claims["sub"])
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}

			// handlers read these through AccountID and RequireRole
			c.Set(ContextAccountID, id)
			role, _ := claims["role"].(string)
			c.Set(ContextRole, role)
			return next(c)
		}
	}
}

// subject accepts a numeric claim (JSON numbers decode as float64) or a
// decimal string.
func subject(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// AccountID returns the authenticated account id set by JWTAuth.
func AccountID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextAccountID).(uint64)
	return id, ok
}
