// internal/notify/http.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultRatePerMinute  = 60
	breakerFailureRatio   = 0.6
	breakerMinRequests    = 5
	breakerOpenTimeout    = 30 * time.Second
	breakerHalfOpenProbes = 1
	breakerCountWindow    = time.Minute
)

var (
	// ErrRateLimited is returned when the send budget for the current window is spent.
	ErrRateLimited = errors.New("notification rate limit exceeded")
)

// HTTPNotifier posts messages as JSON to an email relay.
type HTTPNotifier struct {
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// HTTPOption configures an HTTPNotifier.
type HTTPOption func(*HTTPNotifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(n *HTTPNotifier) {
		n.client = c
	}
}

// WithToken sets a bearer token on every request.
func WithToken(token string) HTTPOption {
	return func(n *HTTPNotifier) {
		n.token = token
	}
}

// WithRatePerMinute caps sends per minute. Zero or less disables the cap.
func WithRatePerMinute(perMinute int) HTTPOption {
	return func(n *HTTPNotifier) {
		if perMinute <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		n.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// NewHTTPNotifier returns a notifier posting to url.
func NewHTTPNotifier(url string, opts ...HTTPOption) *HTTPNotifier {
	n := &HTTPNotifier{
		url:     url,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/defaultRatePerMinute), defaultRatePerMinute),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-http",
		MaxRequests: breakerHalfOpenProbes,
		Interval:    breakerCountWindow,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && ratio >= breakerFailureRatio
		},
	})
	return n
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send posts the message. It fails fast while the breaker is open.
func (n *HTTPNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !n.limiter.Allow() {
		return ErrRateLimited
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, sendRequest{To: to, Subject: subject, HTML: htmlBody})
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// State reports the breaker state, for health output.
func (n *HTTPNotifier) State() string {
	return n.breaker.State().String()
}

func (n *HTTPNotifier) post(ctx context.Context, msg sendRequest) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
