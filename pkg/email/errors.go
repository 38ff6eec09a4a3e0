package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidParams     = errors.New("email: invalid params")

	// ErrRejected marks a send the provider refused for good, such as an
	// inactive recipient. Retrying will not help.
	ErrRejected = errors.New("email: rejected by provider")
)
