// Package webhook POSTs JSON payloads to subscriber URLs.
//
//	sender := webhook.NewSender(webhook.WithSignature(secret))
//	err := sender.Send(ctx, "https://example.com/hooks", event)
//
// Requests are signed with HMAC-SHA256 when a secret is configured. A Sender
// does not retry by default; enable WithRetries when no outer retry policy exists.
// Errors wrapping ErrPermanentFailure, ErrInvalidURL or ErrInvalidPayload will
// not succeed on retry.
package webhook

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

	"github.com/dmitrymomot/notifykit/pkg/backoff"
)

const userAgent = "notifykit-webhook/1.0"

// Sender delivers webhook payloads. Safe for concurrent use.
type Sender struct {
	client     *http.Client
	timeout    time.Duration
	headers    map[string]string
	secret     string
	maxRetries int
	backoff    backoff.Strategy
	breakers   *breakerSet
	onDelivery DeliveryHook
}

// NewSender returns a Sender with a pooled HTTP client.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: 10 * time.Second,
		headers: make(map[string]string),
		backoff: backoff.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data to JSON and POSTs it to webhookURL.
func (s *Sender) Send(ctx context.Context, webhookURL string, data any) error {
	if err := validateURL(webhookURL); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var breaker *CircuitBreaker
	if s.breakers != nil {
		breaker = s.breakers.get(webhookURL)
		if !breaker.Allow() {
			return ErrCircuitOpen
		}
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.Wait(ctx, s.backoff.NextInterval(attempt)); err != nil {
				return err
			}
		}

		result := s.attempt(ctx, webhookURL, payload)
		result.Attempt = attempt + 1
		if s.onDelivery != nil {
			s.onDelivery(result)
		}

		if breaker != nil {
			if result.Err == nil {
				breaker.RecordSuccess()
			} else {
				breaker.RecordFailure()
			}
		}

		if result.Err == nil {
			return nil
		}
		lastErr = result.Err

		if isPermanentStatus(result.StatusCode) {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, result.Err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, s.maxRetries+1, lastErr)
}

func (s *Sender) attempt(ctx context.Context, webhookURL string, payload []byte) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{URL: webhookURL}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		result.Err = fmt.Errorf("failed to create request: %w", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if s.secret != "" {
		sig, err := SignPayload(s.secret, payload)
		if err != nil {
			result.Err = err
			return result
		}
		for k, v := range sig.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			result.Err = fmt.Errorf("%w: %w", ErrTimeout, err)
		} else {
			result.Err = fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
		}
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return result
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	if len(body) > 0 {
		text := strings.ReplaceAll(string(body), "\n", " ")
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		msg += ": " + text
	}
	result.Err = errors.New(msg)

	return result
}

func validateURL(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}

// isPermanentStatus reports 4xx responses other than 408, 425 and 429.
func isPermanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}
