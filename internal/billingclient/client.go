// Package billingclient fetches subscription billing reports from the admin API.
package billingclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ncecere/seat_billing/internal/billing"
)

var (
	ErrForbidden       = errors.New("admin access required")
	ErrNotFound        = errors.New("organization not found")
	ErrInvalidClientID = errors.New("invalid client_id format")
	ErrInvalidRequest  = errors.New("invalid billing request")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnauthorized    = errors.New("invalid or expired token")
	ErrServer          = errors.New("billing server error")
	ErrUnexpected      = errors.New("unexpected billing response")
)

// BillingDataSource yields reports for organizations. Implementations may
// perform network I/O; the calculator itself never does.
type BillingDataSource interface {
	GetSubscriptionBilling(ctx context.Context, adminToken, clientID string) (*billing.BillingReport, error)
}

// StatusError is a non-2xx answer from the billing API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("billing api: status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnprocessableEntity:
		// 422 also covers a bad year or month
		if strings.EqualFold(strings.TrimSpace(e.Message), "invalid client_id format") {
			return ErrInvalidClientID
		}
		return ErrInvalidRequest
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return ErrUnexpected
	}
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	maxRetries uint64
	baseDelay  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets how many times a retryable failure is retried and the first
// backoff delay. Zero retries disables retrying.
func WithRetry(maxRetries uint64, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseDelay <= 0 {
		c.baseDelay = time.Millisecond
	}
	return c, nil
}

// GetSubscriptionBilling fetches the current month's report.
func (c *Client) GetSubscriptionBilling(ctx context.Context, adminToken, clientID string) (*billing.BillingReport, error) {
	return c.GetSubscriptionBillingPeriod(ctx, adminToken, clientID, 0, 0)
}

// GetSubscriptionBillingPeriod fetches the report for year/month; zero values
// leave the choice to the server.
func (c *Client) GetSubscriptionBillingPeriod(ctx context.Context, adminToken, clientID string, year, month int) (*billing.BillingReport, error) {
	endpoint := c.baseURL.JoinPath("admin", "organizations", clientID, "subscription-billing")
	if year > 0 || month > 0 {
		q := endpoint.Query()
		if year > 0 {
			q.Set("year", strconv.Itoa(year))
		}
		if month > 0 {
			q.Set("month", strconv.Itoa(month))
		}
		endpoint.RawQuery = q.Encode()
	}

	var report *billing.BillingReport
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.fetch(ctx, endpoint.String(), adminToken)
		if err != nil {
			if isRetryable(ctx, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Client) fetch(ctx context.Context, endpoint, adminToken string) (*billing.BillingReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read billing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return billing.ParseReport(body)
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, msg := range []string{payload.Error, payload.Detail, payload.Message} {
			if msg != "" {
				return msg
			}
		}
	}
	return http.StatusText(status)
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	// malformed bodies are not transient
	return !errors.Is(err, billing.ErrMalformedReport)
}
