package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("transition definition needs from, to and event")
	ErrInvalidEvent      = errors.New("state and event are required")
	ErrNoTransition      = errors.New("no transition for state and event")
	ErrGuardRejected     = errors.New("transition rejected by guards")
)

// TransitionError reports a failed lookup in a Table. Unwrap yields
// ErrNoTransition or ErrGuardRejected.
type TransitionError struct {
	From  string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s on %q from %q", e.Err, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return e.Err }
