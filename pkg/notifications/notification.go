package notifications

import (
	"maps"
	"slices"
	"time"
)

// Type classifies a notification for display purposes.
type Type string

const (
	TypeInfo        Type = "info"
	TypeSuccess     Type = "success"
	TypeWarning     Type = "warning"
	TypeError       Type = "error"
	TypeAchievement Type = "achievement"
	TypeSocial      Type = "social"
	TypeFinancial   Type = "financial"
	TypeSystem      Type = "system"
)

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns a comparable weight; unknown priorities rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp   Channel = "in_app"
	ChannelPush    Channel = "push"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// AllChannels lists every supported channel in canonical order.
var AllChannels = []Channel{ChannelInApp, ChannelPush, ChannelEmail, ChannelSMS, ChannelWebhook}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	return slices.Contains(AllChannels, c)
}

// Status is a record's lifecycle position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusDismissed Status = "dismissed"
	StatusFailed    Status = "failed"
)

// ActionKind styles an action button.
type ActionKind string

const (
	ActionPrimary     ActionKind = "primary"
	ActionSecondary   ActionKind = "secondary"
	ActionDestructive ActionKind = "destructive"
)

// Action is a user-invocable operation attached to a notification.
// Ref is either a navigation target (URL or absolute path) or a handler name.
type Action struct {
	ID     string         `json:"id"`
	Label  string         `json:"label" validate:"required"`
	Kind   ActionKind     `json:"kind,omitempty" validate:"omitempty,oneof=primary secondary destructive"`
	Ref    string         `json:"ref" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// Content is a localized title and message pair.
type Content struct {
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// DeliveryOptions control batching and retry behaviour.
//
// MaxBatchSize 0 and a nil BatchDelayMinutes take the user's batching
// preferences. An explicit BatchDelayMinutes of 0 makes the batch due at the
// next sweep.
type DeliveryOptions struct {
	Immediate         bool      `json:"immediate"`
	Batchable         bool      `json:"batchable"`
	MaxBatchSize      int       `json:"max_batch_size" validate:"gte=0"`
	BatchDelayMinutes *int      `json:"batch_delay_minutes,omitempty" validate:"omitempty,gte=0"`
	RetryAttempts     int       `json:"retry_attempts" validate:"gte=0,lte=10"`
	RetryDelayMinutes int       `json:"retry_delay_minutes" validate:"gte=0"`
	FallbackChannels  []Channel `json:"fallback_channels,omitempty" validate:"omitempty,dive,oneof=in_app push email sms webhook"`
}

// Record is a single notification addressed to one user.
type Record struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Localized map[string]Content `json:"localized,omitempty"`

	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`
	Category string   `json:"category,omitempty"`
	BatchKey string   `json:"batch_key,omitempty"`

	Actionable bool     `json:"actionable"`
	Actions    []Action `json:"actions,omitempty"`

	Channels    []Channel       `json:"channels"`
	Options     DeliveryOptions `json:"options"`
	ContextData map[string]any  `json:"context_data,omitempty"`

	Status           Status          `json:"status"`
	DeliveryAttempts int             `json:"delivery_attempts"`
	BatchID          string          `json:"batch_id,omitempty"`
	// SummaryOf is the id of the batch this record summarizes.
	SummaryOf        string          `json:"summary_of,omitempty"`
	FailureReason    FailureReason   `json:"failure_reason,omitempty"`
	Outcome          []ChannelResult `json:"outcome,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	DismissedAt  *time.Time `json:"dismissed_at,omitempty"`
}

// BatchDelay is how long a batch opened by this record waits before it is due.
func (o DeliveryOptions) BatchDelay() time.Duration {
	if o.BatchDelayMinutes == nil {
		return 0
	}
	return time.Duration(*o.BatchDelayMinutes) * time.Minute
}

// EffectiveBatchKey is BatchKey when set, Category otherwise.
func (r Record) EffectiveBatchKey() string {
	if r.BatchKey != "" {
		return r.BatchKey
	}
	return r.Category
}

// IsExpired reports whether the record's expiry has passed at now.
func (r Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// IsRead reports whether the user has seen the record.
func (r Record) IsRead() bool {
	return r.ReadAt != nil
}

// Action returns the action with the given id.
func (r Record) Action(id string) (Action, bool) {
	for _, a := range r.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (r Record) Clone() Record {
	c := r
	c.Localized = maps.Clone(r.Localized)
	c.Channels = slices.Clone(r.Channels)
	c.Options.FallbackChannels = slices.Clone(r.Options.FallbackChannels)
	if r.Options.BatchDelayMinutes != nil {
		d := *r.Options.BatchDelayMinutes
		c.Options.BatchDelayMinutes = &d
	}
	c.ContextData = maps.Clone(r.ContextData)
	c.Outcome = slices.Clone(r.Outcome)
	if r.Actions != nil {
		c.Actions = make([]Action, len(r.Actions))
		for i, a := range r.Actions {
			a.Params = maps.Clone(a.Params)
			c.Actions[i] = a
		}
	}
	c.ScheduledFor = cloneTime(r.ScheduledFor)
	c.ExpiresAt = cloneTime(r.ExpiresAt)
	c.DeliveredAt = cloneTime(r.DeliveredAt)
	c.ReadAt = cloneTime(r.ReadAt)
	c.DismissedAt = cloneTime(r.DismissedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
