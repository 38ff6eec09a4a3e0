package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/backoff"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// FailureReason explains why a channel or a record was not delivered.
type FailureReason string

const (
	ReasonNoSubscription  FailureReason = "no_subscription"
	ReasonEndpointExpired FailureReason = "endpoint_expired"
	ReasonNoAddress       FailureReason = "no_address"
	ReasonUnavailable     FailureReason = "channel_unavailable"
	ReasonUnsupported     FailureReason = "unsupported"
	ReasonPermanent       FailureReason = "permanent_failure"
	ReasonTransport       FailureReason = "transport_error"
	ReasonCancelled       FailureReason = "cancelled"
	ReasonExpired         FailureReason = "expired"
)

// ReasonOf classifies a channel error.
func ReasonOf(err error) FailureReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSubscription):
		return ReasonNoSubscription
	case errors.Is(err, ErrEndpointExpired):
		return ReasonEndpointExpired
	case errors.Is(err, ErrNoAddress):
		return ReasonNoAddress
	case errors.Is(err, ErrChannelUnavailable):
		return ReasonUnavailable
	case errors.Is(err, ErrUnsupported):
		return ReasonUnsupported
	case errors.Is(err, ErrRecordExpired):
		return ReasonExpired
	case errors.Is(err, ErrPermanentFailure):
		return ReasonPermanent
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	default:
		return ReasonTransport
	}
}

// ChannelResult is the delivery result of one channel.
type ChannelResult struct {
	Channel   Channel       `json:"channel"`
	Delivered bool          `json:"delivered"`
	Attempts  int           `json:"attempts"`
	Reason    FailureReason `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	// DeliveredVia names the fallback channel that succeeded in place of Channel.
	DeliveredVia Channel `json:"delivered_via,omitempty"`
}

// Succeeded reports whether the channel or one of its fallbacks delivered.
func (r ChannelResult) Succeeded() bool {
	return r.Delivered || r.DeliveredVia != ""
}

// Outcome summarizes one delivery across all channels.
type Outcome struct {
	Delivered bool
	// Channels holds results for the requested channels, in order.
	Channels []ChannelResult
	// Fallbacks holds results for fallback channels that were not also requested.
	Fallbacks []ChannelResult
	// Attempts counts every send across channels and fallbacks.
	Attempts int
	// Reason is the first requested channel's failure reason when nothing delivered.
	Reason FailureReason
	// Err wraps ErrDeliveryExhausted when nothing delivered.
	Err error
}

type attemptResult struct {
	attempts int
	err      error
}

func (a attemptResult) toChannelResult(ch Channel) ChannelResult {
	r := ChannelResult{Channel: ch, Delivered: a.err == nil, Attempts: a.attempts}
	if a.err != nil {
		r.Reason = ReasonOf(a.err)
		r.Error = a.err.Error()
	}
	return r
}

// Dispatcher sends records through channel adapters with per-channel retry
// and a linear fallback chain.
type Dispatcher struct {
	adapters map[Channel]Adapter
	wait     func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	metrics  *Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for the Dispatcher.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDispatcherMetrics records channel attempts.
func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithRetryWait replaces the pause between retries. Defaults to backoff.Wait.
func WithRetryWait(wait func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) {
		if wait != nil {
			d.wait = wait
		}
	}
}

// NewDispatcher registers adapters by channel. A later adapter for the same
// channel replaces an earlier one.
func NewDispatcher(adapters []Adapter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		adapters: make(map[Channel]Adapter, len(adapters)),
		wait:     backoff.Wait,
		logger:   slog.Default(),
	}
	for _, a := range adapters {
		if a != nil {
			d.adapters[a.Channel()] = a
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Supports reports whether an adapter is registered for ch.
func (d *Dispatcher) Supports(ch Channel) bool {
	_, ok := d.adapters[ch]
	return ok
}

// Deliver attempts every channel of rec concurrently. A channel that fails
// for good walks rec.Options.FallbackChannels in order and stops at the first
// success. Each channel is sent at most once per call, so a fallback shared
// by several failed channels reuses its first result.
func (d *Dispatcher) Deliver(ctx context.Context, rec Record) Outcome {
	futures := make([]*async.Future[attemptResult], len(rec.Channels))
	for i, ch := range rec.Channels {
		futures[i] = async.Async(ctx, ch, func(ctx context.Context, ch Channel) (attemptResult, error) {
			res := d.attempt(ctx, rec, ch)
			return res, res.err
		})
	}

	done := make(map[Channel]attemptResult, len(rec.Channels))
	primaries := make([]attemptResult, len(futures))
	for i, f := range futures {
		res, err := f.Await()
		if err != nil && res.err == nil {
			res.err = err
		}
		primaries[i] = res
		done[rec.Channels[i]] = res
	}

	var (
		out       Outcome
		fallbacks []Channel
	)
	for i, ch := range rec.Channels {
		cr := primaries[i].toChannelResult(ch)
		if !cr.Delivered {
			for _, fb := range rec.Options.FallbackChannels {
				if fb == ch {
					continue
				}
				res, seen := done[fb]
				if !seen {
					res = d.attempt(ctx, rec, fb)
					done[fb] = res
					fallbacks = append(fallbacks, fb)
				}
				if res.err == nil {
					cr.DeliveredVia = fb
					break
				}
			}
		}
		out.Delivered = out.Delivered || cr.Succeeded()
		out.Channels = append(out.Channels, cr)
	}
	for _, fb := range fallbacks {
		out.Fallbacks = append(out.Fallbacks, done[fb].toChannelResult(fb))
	}
	for _, res := range done {
		out.Attempts += res.attempts
	}

	if !out.Delivered {
		errs := []error{ErrDeliveryExhausted}
		for _, ch := range rec.Channels {
			errs = append(errs, fmt.Errorf("%s: %w", ch, done[ch].err))
		}
		for _, fb := range fallbacks {
			errs = append(errs, fmt.Errorf("%s (fallback): %w", fb, done[fb].err))
		}
		out.Err = errors.Join(errs...)
		if len(out.Channels) > 0 {
			out.Reason = out.Channels[0].Reason
		}
	}
	return out
}

// attempt sends rec over ch up to 1+RetryAttempts times, stopping early on
// success or a non-retryable error.
func (d *Dispatcher) attempt(ctx context.Context, rec Record, ch Channel) attemptResult {
	adapter, ok := d.adapters[ch]
	if !ok {
		return attemptResult{err: fmt.Errorf("%w: %s", ErrChannelUnavailable, ch)}
	}

	strategy := backoff.Fixed{Interval: time.Duration(rec.Options.RetryDelayMinutes) * time.Minute}
	maxAttempts := 1 + max(rec.Options.RetryAttempts, 0)

	var (
		n   int
		err error
	)
	for n < maxAttempts {
		if n > 0 {
			if werr := d.wait(ctx, strategy.NextInterval(n)); werr != nil {
				return attemptResult{attempts: n, err: errors.Join(err, werr)}
			}
		}
		n++

		start := time.Now()
		err = adapter.Send(ctx, rec)
		d.metrics.channelAttempt(ch, err, time.Since(start))
		if err == nil {
			return attemptResult{attempts: n}
		}

		retryable := IsRetryable(err) && n < maxAttempts
		d.logger.LogAttrs(ctx, slog.LevelWarn, "channel send failed",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.UserID),
			logger.Channel(string(ch)),
			logger.Attempt(n),
			slog.Bool("will_retry", retryable),
			logger.Error(err),
		)
		if !IsRetryable(err) {
			break
		}
	}
	return attemptResult{attempts: n, err: err}
}
