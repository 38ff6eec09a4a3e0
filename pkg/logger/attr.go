package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under the key "error".
// A nil error yields an empty Attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under the key "errors", indexed by position.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// UserID records the owning user under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// NotificationID records a notification record identifier.
func NotificationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("notification_id", id)
}

// BatchID records a notification batch identifier.
func BatchID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("batch_id", id)
}

// Channel records a delivery channel name.
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

// Status records a lifecycle status.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// Attempt records the 1-based attempt number under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Count records a generic count under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
