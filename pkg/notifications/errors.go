package notifications

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
)

var (
	ErrValidation         = errors.New("notifications: validation failed")
	ErrNotFound           = errors.New("notifications: not found")
	ErrSubscription       = errors.New("notifications: push subscription failed")
	ErrUnsupported        = errors.New("notifications: push is not supported")
	ErrChannelTransport   = errors.New("notifications: channel transport failed")
	ErrDeliveryExhausted  = errors.New("notifications: all channels and fallbacks failed")
	ErrNoSubscription     = errors.New("notifications: no active push subscription")
	ErrEndpointExpired    = errors.New("notifications: push endpoint expired")
	ErrNoAddress          = errors.New("notifications: no destination address for channel")
	ErrChannelUnavailable = errors.New("notifications: channel has no adapter")
	ErrInvalidTransition  = errors.New("notifications: invalid status transition")
	ErrRecordExpired      = errors.New("notifications: record expired")
	ErrPermanentFailure   = errors.New("notifications: permanent transport failure")
	// ErrPendingBatchExists is returned by a Storage that refuses a second
	// pending batch for the same user and key.
	ErrPendingBatchExists = errors.New("notifications: pending batch already exists for user and key")

	ErrSchedulerRunning = errors.New("notifications: scheduler already running")
	ErrEngineClosed     = errors.New("notifications: engine closed")
)

// ValidationError maps field names to messages.
type ValidationError url.Values

// NewValidationError creates an empty ValidationError.
func NewValidationError() ValidationError {
	return make(ValidationError)
}

// Add appends msg to field.
func (e ValidationError) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Get returns the first message for field.
func (e ValidationError) Get(field string) string {
	if len(e[field]) == 0 {
		return ""
	}
	return e[field][0]
}

// Has reports whether field has a message.
func (e ValidationError) Has(field string) bool {
	return len(e[field]) > 0
}

// Empty reports whether no field failed.
func (e ValidationError) Empty() bool {
	return len(e) == 0
}

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return ErrValidation.Error()
	}
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	for i, field := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(strings.Join(e[field], ", "))
	}
	return b.String()
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsRetryable reports whether a failed channel attempt may be tried again.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNoSubscription),
		errors.Is(err, ErrEndpointExpired),
		errors.Is(err, ErrChannelUnavailable),
		errors.Is(err, ErrNoAddress),
		errors.Is(err, ErrRecordExpired),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrPermanentFailure),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
