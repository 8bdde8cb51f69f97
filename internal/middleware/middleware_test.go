package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/ticket-settlement/internal/config"
)

const secret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(h echo.HandlerFunc, mw ...echo.MiddlewareFunc) func(r *http.Request) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/", h, mw...)
	return func(r *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, r)
		return rec
	}
}

func echoAccount(c echo.Context) error {
	id, ok := AccountID(c)
	if !ok {
		return c.NoContent(http.StatusTeapot)
	}
	return c.JSON(http.StatusOK, echo.Map{"account_id": id, "role": c.Get(ContextRole)})
}

func TestJWTAuth(t *testing.T) {
	do := serve(echoAccount, JWTAuth(secret))
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing bearer token"},
		{"garbage", "Bearer abc", http.StatusUnauthorized, "invalid token"},
		{"numeric subject", "Bearer " + signed(t, jwt.MapClaims{"sub": 7, "role": "CUSTOMER", "exp": exp}), http.StatusOK, `"account_id":7`},
		{"string subject", "Bearer " + signed(t, jwt.MapClaims{"sub": "42", "role": "OWNER", "exp": exp}), http.StatusOK, `"account_id":42`},
		{"bad subject", "Bearer " + signed(t, jwt.MapClaims{"sub": "alice", "exp": exp}), http.StatusUnauthorized, "invalid subject"},
		{"expired", "Bearer " + signed(t, jwt.MapClaims{"sub": 7, "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized, "invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := do(req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestJWTAuth_RejectsOtherSecret(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": 1}).SignedString([]byte("other"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, serve(echoAccount, JWTAuth(secret))(req).Code)
}

func TestRequireRole(t *testing.T) {
	do := serve(echoAccount, JWTAuth(secret), RequireRole(RoleOwner))
	exp := time.Now().Add(time.Hour).Unix()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"sub": 1, "role": RoleCustomer, "exp": exp}))
	assert.Equal(t, http.StatusForbidden, do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"sub": 1, "role": RoleOwner, "exp": exp}))
	assert.Equal(t, http.StatusOK, do(req).Code)
}

func withAccount(id uint64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextAccountID, id)
			return next(c)
		}
	}
}

func TestTokenBucket(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		Prefix:         "rl",
	}
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	args := []interface{}{now.UnixMilli(), 2, 1, int64(1000), int64(60)}

	mock.ExpectEvalSha(tokenBucket.Hash(), []string{"rl:account:7"}, args...).
		SetVal([]interface{}{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(tokenBucket.Hash(), []string{"rl:account:7"}, args...).
		SetVal([]interface{}{int64(0), int64(0), int64(400)})
	mock.ExpectEvalSha(tokenBucket.Hash(), []string{"rl:account:7"}, args...).
		SetErr(errors.New("connection refused"))

	do := serve(echoAccount, withAccount(7), newTokenBucket(cfg, db, zap.NewNop(), func() time.Time { return now }))

	rec := do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "redis outage must not block traffic")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucket_Disabled(t *testing.T) {
	do := serve(echoAccount, withAccount(1), NewTokenBucket(config.RateLimitConfig{}, nil, zap.NewNop()))
	assert.Equal(t, http.StatusOK, do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	do := serve(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	}, RequestLogger(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "rid-1")
	rec := do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "rid-1", rec.Header().Get(HeaderRequestID))
	entries := logs.FilterMessage("client error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rid-1", entries[0].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
}
