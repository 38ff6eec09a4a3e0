package notifications

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/statemachine"
)

// Name implements statemachine.State.
func (s Status) Name() string { return string(s) }

// LifecycleEvent moves a record between statuses.
type LifecycleEvent string

// Name implements statemachine.Event.
func (e LifecycleEvent) Name() string { return string(e) }

const (
	EventSchedule LifecycleEvent = "schedule"
	EventDeliver  LifecycleEvent = "deliver"
	EventFail     LifecycleEvent = "fail"
	EventRead     LifecycleEvent = "read"
	EventDismiss  LifecycleEvent = "dismiss"
	EventRetry    LifecycleEvent = "retry"
)

// lifecycle only moves forward; failed -> pending is reachable through retry alone.
var lifecycle = statemachine.MustNewTable(
	statemachine.TransitionDef{From: StatusPending, To: StatusScheduled, Event: EventSchedule},
	statemachine.TransitionDef{From: StatusPending, To: StatusDelivered, Event: EventDeliver},
	statemachine.TransitionDef{From: StatusScheduled, To: StatusDelivered, Event: EventDeliver},
	statemachine.TransitionDef{From: StatusPending, To: StatusFailed, Event: EventFail},
	statemachine.TransitionDef{From: StatusScheduled, To: StatusFailed, Event: EventFail},
	statemachine.TransitionDef{From: StatusDelivered, To: StatusRead, Event: EventRead},
	statemachine.TransitionDef{From: StatusScheduled, To: StatusRead, Event: EventRead},
	statemachine.TransitionDef{From: StatusRead, To: StatusDismissed, Event: EventDismiss},
	statemachine.TransitionDef{From: StatusFailed, To: StatusPending, Event: EventRetry},
)

// CanTransition reports whether event applies to a record in status from.
func CanTransition(ctx context.Context, from Status, event LifecycleEvent) bool {
	return lifecycle.Can(ctx, from, event, nil)
}

// transition applies event to rec, updating its status in place.
func transition(ctx context.Context, rec *Record, event LifecycleEvent) error {
	next, err := lifecycle.Next(ctx, rec.Status, event, rec)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrInvalidTransition, event, rec.Status, err)
	}
	rec.Status = next.(Status)
	return nil
}
