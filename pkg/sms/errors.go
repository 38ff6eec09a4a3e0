package sms

import "errors"

var (
	ErrInvalidConfig = errors.New("sms: invalid config")
	ErrInvalidParams = errors.New("sms: invalid params")
	ErrFailedToSend  = errors.New("sms: failed to send")

	// ErrRejected marks a message the provider refused for good, such as an
	// unsubscribed or non-mobile number.
	ErrRejected = errors.New("sms: rejected by provider")
)
