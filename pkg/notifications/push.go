package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// PushSubscription links a user to a push endpoint.
type PushSubscription struct {
	UserID    string     `json:"user_id"`
	Endpoint  string     `json:"endpoint"`
	Platform  string     `json:"platform,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`
}

// Active reports whether the subscription can still receive pushes.
func (s PushSubscription) Active() bool {
	return s.ExpiredAt == nil
}

// Registration is what a push transport returns for an accepted device.
type Registration struct {
	Endpoint string
	Platform string
}

// PushTransport talks to a push provider.
type PushTransport interface {
	// RegisterEndpoint validates a device token. Failures wrap ErrSubscription.
	RegisterEndpoint(ctx context.Context, userID, token string) (Registration, error)

	// Send delivers p to endpoint. An endpoint the provider no longer
	// recognises yields ErrEndpointExpired.
	Send(ctx context.Context, endpoint string, p Payload) error
}

// PushManager owns the push subscription for each user.
type PushManager struct {
	storage   SubscriptionStorage
	transport PushTransport
	now       func() time.Time
	logger    *slog.Logger
}

// PushManagerOption configures a PushManager.
type PushManagerOption func(*PushManager)

// WithPushLogger sets the logger for the PushManager.
func WithPushLogger(l *slog.Logger) PushManagerOption {
	return func(m *PushManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPushClock overrides the time source.
func WithPushClock(now func() time.Time) PushManagerOption {
	return func(m *PushManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewPushManager creates a PushManager. A nil transport disables push:
// Subscribe then returns ErrUnsupported.
func NewPushManager(storage SubscriptionStorage, transport PushTransport, opts ...PushManagerOption) *PushManager {
	m := &PushManager{
		storage:   storage,
		transport: transport,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Supported reports whether a push transport is configured.
func (m *PushManager) Supported() bool {
	return m.transport != nil
}

// Subscribe registers token with the transport and stores the resulting
// endpoint, replacing any earlier subscription of the user.
func (m *PushManager) Subscribe(ctx context.Context, userID, token string) (PushSubscription, error) {
	if !m.Supported() {
		return PushSubscription{}, ErrUnsupported
	}
	if userID == "" || token == "" {
		v := NewValidationError()
		if userID == "" {
			v.Add("user_id", "is required")
		}
		if token == "" {
			v.Add("token", "is required")
		}
		return PushSubscription{}, v
	}

	reg, err := m.transport.RegisterEndpoint(ctx, userID, token)
	if err != nil {
		if !errors.Is(err, ErrSubscription) {
			err = fmt.Errorf("%w: %w", ErrSubscription, err)
		}
		return PushSubscription{}, err
	}

	sub := PushSubscription{
		UserID:    userID,
		Endpoint:  reg.Endpoint,
		Platform:  reg.Platform,
		CreatedAt: m.now(),
	}
	if err := m.storage.SaveSubscription(ctx, sub); err != nil {
		return PushSubscription{}, fmt.Errorf("failed to save push subscription: %w", err)
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "push subscription registered",
		logger.UserID(userID),
		slog.String("platform", reg.Platform),
	)
	return sub, nil
}

// ActiveSubscription returns the user's live subscription or ErrNoSubscription.
func (m *PushManager) ActiveSubscription(ctx context.Context, userID string) (PushSubscription, error) {
	sub, err := m.storage.ActiveSubscription(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return PushSubscription{}, ErrNoSubscription
	}
	if err != nil {
		return PushSubscription{}, fmt.Errorf("failed to load push subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe invalidates the user's subscription. Unknown users are a no-op.
func (m *PushManager) Unsubscribe(ctx context.Context, userID string) error {
	if err := m.storage.ExpireSubscription(ctx, userID, "", m.now()); err != nil {
		return fmt.Errorf("failed to expire push subscription: %w", err)
	}
	return nil
}

// Send pushes p to the user's active endpoint. An expired endpoint is
// invalidated before ErrEndpointExpired is returned.
func (m *PushManager) Send(ctx context.Context, userID string, p Payload) error {
	if !m.Supported() {
		return ErrUnsupported
	}
	sub, err := m.ActiveSubscription(ctx, userID)
	if err != nil {
		return err
	}

	err = m.transport.Send(ctx, sub.Endpoint, p)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEndpointExpired) {
		if xerr := m.storage.ExpireSubscription(ctx, userID, sub.Endpoint, m.now()); xerr != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to invalidate expired push endpoint",
				logger.UserID(userID),
				logger.Error(xerr),
			)
		}
		m.logger.LogAttrs(ctx, slog.LevelInfo, "push endpoint expired",
			logger.UserID(userID),
		)
		return err
	}
	return fmt.Errorf("%w: push: %w", ErrChannelTransport, err)
}
