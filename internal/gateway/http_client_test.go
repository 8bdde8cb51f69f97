package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-settlement/internal/gateway"
)

func newClient(url string) *gateway.HTTPClient {
	return gateway.NewHTTPClient(gateway.HTTPConfig{
		BaseURL:      url,
		SecretKey:    "test_sk",
		Timeout:      time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}, zap.NewNop())
}

func TestHTTPClient_GetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test_sk", user)
		assert.Empty(t, pass)
		assert.Equal(t, "/v1/payments/pk-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"paymentKey":  "pk-1",
			"totalAmount": 10000,
			"status":      "DONE",
			"method":      "CARD",
			"approvedAt":  "2026-03-01T12:00:00+09:00",
			"receipt":     map[string]string{"url": "https://receipt/1"},
		})
	}))
	defer srv.Close()

	p, err := newClient(srv.URL).GetPayment(context.Background(), "pk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), p.Amount)
	assert.True(t, p.IsCompleted())
	assert.Equal(t, "https://receipt/1", p.ReceiptURL())
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), p.PaidAt.UTC())
}

func TestHTTPClient_GetPaymentClassifiesStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"client error", http.StatusNotFound, gateway.ErrPaymentNotFoundInPG},
		{"server error", http.StatusBadGateway, gateway.ErrPaymentAPIError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"code":"X","message":"nope"}`))
			}))
			defer srv.Close()

			_, err := newClient(srv.URL).GetPayment(context.Background(), "pk")
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		})
	}
}

func TestHTTPClient_GetPaymentRecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"paymentKey":"pk","totalAmount":5,"status":"paid"}`))
	}))
	defer srv.Close()

	p, err := newClient(srv.URL).GetPayment(context.Background(), "pk")
	require.NoError(t, err)
	assert.True(t, p.IsCompleted())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPClient_CancelIsNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/payments/pk/cancel", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "amount mismatch", body["cancelReason"])
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newClient(srv.URL).CancelPayment(context.Background(), "pk", "amount mismatch")
	assert.ErrorIs(t, err, gateway.ErrPaymentCancelFailed)
	assert.ErrorIs(t, err, gateway.ErrPaymentAPIError)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_CancelSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"CANCELED"}`))
	}))
	defer srv.Close()
	assert.NoError(t, newClient(srv.URL).CancelPayment(context.Background(), "pk", "refund"))
}

func TestPayment_IsCompleted(t *testing.T) {
	for status, want := range map[string]bool{"DONE": true, "paid": true, " Paid ": true, "READY": false, "CANCELED": false, "": false} {
		p := gateway.Payment{Status: status}
		assert.Equal(t, want, p.IsCompleted(), status)
	}
}
