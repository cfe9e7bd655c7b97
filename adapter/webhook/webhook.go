// Package webhook publishes session completion events by HTTP POST.
//
// Every request carries the event type and an idempotency key so receivers
// can discard retried deliveries. With a Secret configured the body is
// signed with HMAC-SHA256 in the X-Mediasync-Signature header.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pithecene-io/mediasync/adapter"
	"github.com/pithecene-io/mediasync/iox"
)

// Request headers set on every delivery.
const (
	HeaderEvent          = "X-Mediasync-Event"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderSignature      = "X-Mediasync-Signature"
)

// Defaults for Config.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Config configures the webhook adapter.
type Config struct {
	// URL is required.
	URL string
	// Headers are added to every request. They cannot override the
	// event, idempotency or signature headers.
	Headers map[string]string
	// Secret enables body signing when non-empty.
	Secret string
	// Timeout bounds one delivery attempt.
	Timeout time.Duration
	// Retries after the first attempt.
	Retries int
}

// Adapter delivers events to an HTTP endpoint.
type Adapter struct {
	config Config
	client *http.Client
}

// New creates a webhook adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError is a non-2xx delivery response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// rejected reports a 4xx other than 429: the receiver refused the event
// and a retry would be refused the same way.
func rejected(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Publish POSTs the event as JSON. Network errors, 5xx and 429 are
// retried; other 4xx responses fail immediately.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	headers := a.headersFor(event, body)
	return adapter.Retry(ctx, "webhook", a.config.Retries, func(ctx context.Context) error {
		return a.deliver(ctx, body, headers)
	}, rejected)
}

func (a *Adapter) headersFor(event *adapter.SessionCompletedEvent, body []byte) http.Header {
	h := make(http.Header, len(a.config.Headers)+4)
	for k, v := range a.config.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderIdempotencyKey, event.IdempotencyKey())
	if a.config.Secret != "" {
		h.Set(HeaderSignature, Sign(a.config.Secret, body))
	}
	return h
}

func (a *Adapter) deliver(ctx context.Context, body []byte, headers http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
