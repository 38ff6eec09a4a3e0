package notifications

import (
	"context"
	"net/url"
	"strings"
)

// DispatchKind tells the caller how to carry out an action.
type DispatchKind string

const (
	DispatchNavigate DispatchKind = "navigate"
	DispatchInvoke   DispatchKind = "invoke"
)

// ActionDispatch is the resolved form of a clicked action.
type ActionDispatch struct {
	Kind     DispatchKind   `json:"kind"`
	RecordID string         `json:"record_id"`
	UserID   string         `json:"user_id"`
	ActionID string         `json:"action_id"`
	Target   string         `json:"target"`
	Params   map[string]any `json:"params,omitempty"`
}

// ActionHandler carries out dispatched actions, for example by routing the
// client or calling a named operation.
type ActionHandler interface {
	HandleAction(ctx context.Context, d ActionDispatch) error
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, d ActionDispatch) error

func (f ActionHandlerFunc) HandleAction(ctx context.Context, d ActionDispatch) error {
	return f(ctx, d)
}

// resolveAction classifies a as navigation when its Ref is an absolute path
// or a URL, and as an invocation of a named handler otherwise.
func resolveAction(rec Record, a Action) ActionDispatch {
	kind := DispatchInvoke
	if isNavigation(a.Ref) {
		kind = DispatchNavigate
	}
	return ActionDispatch{
		Kind:     kind,
		RecordID: rec.ID,
		UserID:   rec.UserID,
		ActionID: a.ID,
		Target:   a.Ref,
		Params:   a.Params,
	}
}

func isNavigation(ref string) bool {
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return false
	}
	switch u.Scheme {
	case "mailto", "tel":
		return true
	default:
		return u.Host != ""
	}
}
