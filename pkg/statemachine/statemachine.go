// Package statemachine implements finite state machines driven by named events.
//
// A Table holds transitions and evaluates them against a state supplied by the
// caller, which suits entities whose state is persisted elsewhere (for example a
// notification record's status column). A Machine wraps a Table and tracks the
// current state itself.
//
//	table := statemachine.MustNewTable(
//		statemachine.TransitionDef{From: Pending, To: Delivered, Event: Deliver},
//		statemachine.TransitionDef{From: Delivered, To: Read, Event: MarkRead},
//	)
//	next, err := table.Next(ctx, Pending, Deliver, nil)
//
// Guards decide whether a transition applies; actions run in order before the
// state changes and abort the transition on error.
package statemachine

import "context"

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action runs during a transition. Returning an error prevents it.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard reports whether a transition may proceed.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// TransitionDef defines a transition between states.
type TransitionDef struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // all must pass
	Actions []Action // run in order before the state changes
}

// StringState is a State backed by a string.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event backed by a string.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
