package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIError carries a non-2xx processor answer.  It unwraps to
// ErrPaymentNotFoundInPG for 4xx and ErrPaymentAPIError for 5xx.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor responded %d: %s %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return ErrPaymentNotFoundInPG
	}
	return ErrPaymentAPIError
}

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL      string
	SecretKey    string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	RatePerSec   int
}

// HTTPClient calls the processor's REST API.  Requests authenticate with
// HTTP basic auth using the secret key as user name and an empty password.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	secretKey    string
	maxAttempts  int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	log          *zap.Logger
}

// NewHTTPClient builds an HTTPClient.  A RatePerSec of zero disables the
// outbound limiter.
func NewHTTPClient(cfg HTTPConfig, log *zap.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:    cfg.SecretKey,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		limiter:      limiter,
		log:          log,
	}
}

// GetPayment fetches the processor record.  Any failure is retried up to
// MaxAttempts with a fixed backoff; the last error is returned.
func (c *HTTPClient) GetPayment(ctx context.Context, paymentKey string) (*Payment, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentKey))

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var p Payment
		err := c.do(ctx, http.MethodGet, endpoint, nil, &p)
		if err == nil {
			return &p, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}
		c.log.Warn("processor get payment failed, retrying",
			zap.String("payment_key", paymentKey), zap.Int("attempt", attempt), zap.Error(err))
		if err := wait(ctx, c.retryBackoff); err != nil {
			break
		}
	}
	return nil, lastErr
}

// CancelPayment asks the processor to cancel the whole payment.  It makes
// exactly one attempt; every failure is reported as ErrPaymentCancelFailed.
func (c *HTTPClient) CancelPayment(ctx context.Context, paymentKey, reason string) error {
	endpoint := fmt.Sprintf("%s/v1/payments/%s/cancel", c.baseURL, url.PathEscape(paymentKey))
	body := map[string]string{"cancelReason": reason}
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrPaymentCancelFailed, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", ErrPaymentAPIError, err)
	}
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPaymentAPIError, err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: res.StatusCode}
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
		_ = json.Unmarshal(snippet, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(snippet))
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode response: %w", ErrPaymentAPIError, err)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
