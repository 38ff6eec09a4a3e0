// Package push delivers notifications through Firebase Cloud Messaging.
//
// FCMTransport implements notifications.PushTransport: RegisterEndpoint
// validates a device token with a dry run and Send maps FCM's unregistered
// token errors to notifications.ErrEndpointExpired.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// PlatformFCM is the platform recorded for FCM subscriptions.
const PlatformFCM = "fcm"

// Client is the part of messaging.Client the transport uses.
type Client interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
}

// NewMessagingClient initialises a Firebase app from cfg and returns its
// messaging client. Extra options are appended after the credentials.
func NewMessagingClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*messaging.Client, error) {
	var creds []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		creds = append(creds, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.CredentialsJSON != "":
		creds = append(creds, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case len(opts) == 0:
		return nil, fmt.Errorf("%w: FIREBASE_CREDENTIALS_PATH or FIREBASE_CREDENTIALS_JSON must be set", ErrInvalidConfig)
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, append(creds, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize messaging client: %w", err)
	}
	return client, nil
}

// FCMTransport sends pushes through FCM.
type FCMTransport struct {
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ notifications.PushTransport = (*FCMTransport)(nil)

// Option configures an FCMTransport.
type Option func(*FCMTransport)

// WithTTL sets how long FCM keeps an undelivered message.
func WithTTL(d time.Duration) Option {
	return func(t *FCMTransport) {
		t.ttl = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *FCMTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewFCMTransport creates a transport over client.
func NewFCMTransport(client Client, opts ...Option) *FCMTransport {
	t := &FCMTransport{
		client: client,
		ttl:    24 * time.Hour,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterEndpoint validates token with a dry-run send.
func (t *FCMTransport) RegisterEndpoint(ctx context.Context, userID, token string) (notifications.Registration, error) {
	if token == "" {
		return notifications.Registration{}, errors.Join(notifications.ErrSubscription, ErrInvalidToken)
	}
	_, err := t.client.SendDryRun(ctx, &messaging.Message{
		Token: token,
		Data:  map[string]string{"user_id": userID},
	})
	if err != nil {
		return notifications.Registration{}, errors.Join(notifications.ErrSubscription, ErrInvalidToken, err)
	}
	return notifications.Registration{Endpoint: token, Platform: PlatformFCM}, nil
}

// Send delivers p to the device token endpoint.
func (t *FCMTransport) Send(ctx context.Context, endpoint string, p notifications.Payload) error {
	msg, err := t.message(endpoint, p)
	if err != nil {
		return errors.Join(notifications.ErrPermanentFailure, err)
	}

	id, err := t.client.Send(ctx, msg)
	switch {
	case err == nil:
		t.logger.LogAttrs(ctx, slog.LevelDebug, "push sent",
			logger.NotificationID(p.NotificationID),
			slog.String("message_id", id),
		)
		return nil
	case messaging.IsUnregistered(err), messaging.IsSenderIDMismatch(err):
		return errors.Join(notifications.ErrEndpointExpired, err)
	case messaging.IsInvalidArgument(err):
		return errors.Join(notifications.ErrPermanentFailure, err)
	default:
		return fmt.Errorf("fcm send: %w", err)
	}
}

func (t *FCMTransport) message(token string, p notifications.Payload) (*messaging.Message, error) {
	data := map[string]string{
		"notification_id": p.NotificationID,
		"user_id":         p.UserID,
		"type":            string(p.Type),
		"priority":        string(p.Priority),
	}
	if p.Category != "" {
		data["category"] = p.Category
	}
	if len(p.Actions) > 0 {
		raw, err := json.Marshal(p.Actions)
		if err != nil {
			return nil, fmt.Errorf("encode actions: %w", err)
		}
		data["actions"] = string(raw)
	}

	androidPriority, apnsPriority := "normal", "5"
	if p.Priority.Rank() >= notifications.PriorityHigh.Rank() {
		androidPriority, apnsPriority = "high", "10"
	}
	ttl := t.ttl

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Message,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority:    androidPriority,
			CollapseKey: p.Category,
			TTL:         &ttl,
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert:    &messaging.ApsAlert{Title: p.Title, Body: p.Message},
					Sound:    "default",
					ThreadID: p.Category,
				},
			},
		},
	}, nil
}
