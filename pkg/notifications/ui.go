package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// EventKind names a UI update.
type EventKind string

const (
	EventAppend      EventKind = "append"
	EventToast       EventKind = "toast"
	EventMarkRead    EventKind = "read"
	EventMarkDismiss EventKind = "dismiss"
)

// Event is a real-time update for a connected client.
type Event struct {
	Kind     EventKind `json:"kind"`
	UserID   string    `json:"user_id"`
	RecordID string    `json:"record_id,omitempty"`
	Record   *Record   `json:"record,omitempty"`
	Action   *Action   `json:"action,omitempty"`
}

// UI receives real-time events. Implementations must not block.
type UI interface {
	Publish(ctx context.Context, e Event) error
}

// NopUI discards every event.
type NopUI struct{}

func (NopUI) Publish(context.Context, Event) error { return nil }

// Hub fans events out to each user's connected clients. Per-user
// broadcasters live in an LRU; evicted users lose their open streams.
type Hub struct {
	users      *cache.LRUCache[string, broadcast.Broadcaster[Event]]
	bufferSize int
	maxUsers   int
	logger     *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHubMaxUsers caps how many users hold a broadcaster at once. Default 10000.
func WithHubMaxUsers(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxUsers = n
		}
	}
}

// NewHub creates a Hub whose subscribers buffer bufferSize events.
func NewHub(bufferSize int, opts ...HubOption) *Hub {
	h := &Hub{
		bufferSize: bufferSize,
		maxUsers:   10000,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.users = cache.NewLRUCache[string, broadcast.Broadcaster[Event]](h.maxUsers)
	h.users.SetEvictCallback(func(userID string, b broadcast.Broadcaster[Event]) {
		if err := b.Close(); err != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelError, "failed to close user broadcaster",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	})
	return h
}

// Publish sends e to the user's subscribers. Users without a stream are skipped.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	b, ok := h.users.Get(e.UserID)
	if !ok {
		return nil
	}
	return b.Broadcast(ctx, broadcast.Message[Event]{Data: e})
}

// Subscribe opens a stream of the user's events that ends with ctx.
func (h *Hub) Subscribe(ctx context.Context, userID string) broadcast.Subscriber[Event] {
	b := h.users.GetOrCreate(userID, func() broadcast.Broadcaster[Event] {
		return broadcast.NewMemoryBroadcaster[Event](h.bufferSize)
	})
	return b.Subscribe(ctx)
}

// Close shuts every user stream.
func (h *Hub) Close() error {
	h.users.Clear()
	return nil
}
