package notifyapi

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/notifykit/handler"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	errInvalidTransition = handler.NewHTTPError(http.StatusConflict, "invalid_transition")
	errRecordExpired     = handler.NewHTTPError(http.StatusGone, "expired")
	errPushUnsupported   = handler.NewHTTPError(http.StatusNotImplemented, "push_unsupported")
	errSubscription      = handler.NewHTTPError(http.StatusUnprocessableEntity, "push_subscription_failed")
)

// classify maps engine errors to HTTP errors.
func classify(err error) error {
	var verr notifications.ValidationError
	if errors.As(err, &verr) {
		return handler.ValidationError(verr)
	}

	switch {
	case errors.Is(err, notifications.ErrNotFound):
		return handler.ErrNotFound.Wrap(err)
	case errors.Is(err, notifications.ErrInvalidTransition):
		return errInvalidTransition.Wrap(err)
	case errors.Is(err, notifications.ErrRecordExpired):
		return errRecordExpired.Wrap(err)
	case errors.Is(err, notifications.ErrUnsupported):
		return errPushUnsupported.Wrap(err)
	case errors.Is(err, notifications.ErrSubscription):
		return errSubscription.Wrap(err)
	case errors.Is(err, notifications.ErrValidation):
		return handler.ErrUnprocessableEntity.Wrap(err)
	case errors.Is(err, notifications.ErrEngineClosed):
		return handler.ErrServiceUnavailable.Wrap(err)
	}
	return err
}
