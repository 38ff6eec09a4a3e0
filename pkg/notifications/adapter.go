package notifications

import (
	"context"
	"fmt"
	"time"
)

// Adapter delivers a record over one channel.
type Adapter interface {
	Channel() Channel
	Send(ctx context.Context, rec Record) error
}

// Payload is the transport-neutral body handed to external providers.
type Payload struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Type           Type           `json:"type"`
	Priority       Priority       `json:"priority"`
	Category       string         `json:"category,omitempty"`
	Actions        []Action       `json:"actions,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewPayload builds the payload for rec.
func NewPayload(rec Record) Payload {
	return Payload{
		NotificationID: rec.ID,
		UserID:         rec.UserID,
		Title:          rec.Title,
		Message:        rec.Message,
		Type:           rec.Type,
		Priority:       rec.Priority,
		Category:       rec.Category,
		Actions:        rec.Actions,
		Data:           rec.ContextData,
		CreatedAt:      rec.CreatedAt,
	}
}

// Transport sends a payload to an address: an email, a phone number or a URL.
type Transport interface {
	Send(ctx context.Context, address string, p Payload) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, address string, p Payload) error

func (f TransportFunc) Send(ctx context.Context, address string, p Payload) error {
	return f(ctx, address, p)
}

// AddressBook resolves a user's destination for a channel. PreferenceStore
// implements it from ChannelPreference.Address.
type AddressBook interface {
	Address(ctx context.Context, userID string, ch Channel) (string, error)
}

// InAppAdapter appends records to the user's inbox and notifies connected UIs.
type InAppAdapter struct {
	inbox InboxStorage
	ui    UI
}

// NewInAppAdapter creates the in_app adapter. A nil ui publishes nowhere.
func NewInAppAdapter(inbox InboxStorage, ui UI) *InAppAdapter {
	if ui == nil {
		ui = NopUI{}
	}
	return &InAppAdapter{inbox: inbox, ui: ui}
}

func (a *InAppAdapter) Channel() Channel { return ChannelInApp }

// Send fails only when the inbox write fails. A UI that cannot be reached
// just misses the live copy.
func (a *InAppAdapter) Send(ctx context.Context, rec Record) error {
	if err := a.inbox.AppendInbox(ctx, rec.UserID, rec.ID); err != nil {
		return fmt.Errorf("%w: in_app inbox: %w", ErrChannelTransport, err)
	}

	_ = a.ui.Publish(ctx, Event{Kind: EventAppend, UserID: rec.UserID, Record: &rec})
	if rec.Options.Immediate {
		toast := Event{Kind: EventToast, UserID: rec.UserID, Record: &rec}
		if len(rec.Actions) > 0 {
			first := rec.Actions[0]
			toast.Action = &first
		}
		_ = a.ui.Publish(ctx, toast)
	}
	return nil
}

// PushAdapter delivers through the user's push subscription.
type PushAdapter struct {
	manager *PushManager
}

// NewPushAdapter creates the push adapter.
func NewPushAdapter(manager *PushManager) *PushAdapter {
	return &PushAdapter{manager: manager}
}

func (a *PushAdapter) Channel() Channel { return ChannelPush }

func (a *PushAdapter) Send(ctx context.Context, rec Record) error {
	return a.manager.Send(ctx, rec.UserID, NewPayload(rec))
}

// TransportAdapter delivers over an addressed channel such as email, sms or webhook.
type TransportAdapter struct {
	channel   Channel
	transport Transport
	addresses AddressBook
}

// NewTransportAdapter binds transport to channel, reading destinations from addresses.
func NewTransportAdapter(channel Channel, transport Transport, addresses AddressBook) *TransportAdapter {
	return &TransportAdapter{channel: channel, transport: transport, addresses: addresses}
}

func (a *TransportAdapter) Channel() Channel { return a.channel }

func (a *TransportAdapter) Send(ctx context.Context, rec Record) error {
	addr, err := a.addresses.Address(ctx, rec.UserID, a.channel)
	if err != nil {
		return err
	}
	if err := a.transport.Send(ctx, addr, NewPayload(rec)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrChannelTransport, a.channel, err)
	}
	return nil
}
