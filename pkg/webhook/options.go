package webhook

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
)

// DeliveryResult describes one HTTP attempt.
type DeliveryResult struct {
	URL        string
	StatusCode int
	Attempt    int
	Duration   time.Duration
	Err        error
}

// DeliveryHook is called after each attempt.
type DeliveryHook func(result DeliveryResult)

// Option configures a Sender.
type Option func(*Sender)

// WithTimeout sets the per-request timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(s *Sender) {
		if key != "" && value != "" {
			s.headers[key] = value
		}
	}
}

// WithSignature signs every request body with HMAC-SHA256.
func WithSignature(secret string) Option {
	return func(s *Sender) {
		s.secret = secret
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRetries makes Send retry temporary failures up to n extra times.
// The default is no retries, leaving retry policy to the caller.
func WithRetries(n int, strategy backoff.Strategy) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.maxRetries = n
		}
		if strategy != nil {
			s.backoff = strategy
		}
	}
}

// WithCircuitBreaker keeps one breaker per destination URL.
func WithCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) Option {
	return func(s *Sender) {
		s.breakers = newBreakerSet(failureThreshold, successThreshold, recoveryTimeout)
	}
}

// WithOnDelivery registers a hook called after each attempt.
func WithOnDelivery(hook DeliveryHook) Option {
	return func(s *Sender) {
		s.onDelivery = hook
	}
}
