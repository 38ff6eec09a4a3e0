package notifications

import (
	"context"
	"time"
)

// ListOptions pages through a user's records, newest first.
type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// RecordStorage persists notification records.
type RecordStorage interface {
	// SaveRecord inserts or replaces rec.
	SaveRecord(ctx context.Context, rec Record) error

	// GetRecord returns ErrNotFound for unknown ids.
	GetRecord(ctx context.Context, id string) (Record, error)

	ListRecords(ctx context.Context, userID string, opts ListOptions) ([]Record, error)

	// DueRecords returns scheduled records that belong to no batch and whose
	// ScheduledFor is at or before now.
	DueRecords(ctx context.Context, now time.Time) ([]Record, error)
}

// BatchStorage persists batches.
type BatchStorage interface {
	SaveBatch(ctx context.Context, b Batch) error

	// GetBatch returns ErrNotFound for unknown ids.
	GetBatch(ctx context.Context, id string) (Batch, error)

	// PendingBatch returns the pending batch for (userID, key) or ErrNotFound.
	PendingBatch(ctx context.Context, userID, key string) (Batch, error)

	// DueBatches returns pending batches with ScheduledFor at or before now.
	DueBatches(ctx context.Context, now time.Time) ([]Batch, error)
}

// PreferenceStorage persists user preferences.
type PreferenceStorage interface {
	// GetPreferences returns ErrNotFound for never-seen users.
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
	SavePreferences(ctx context.Context, prefs Preferences) error
}

// SubscriptionStorage persists push subscriptions.
type SubscriptionStorage interface {
	// SaveSubscription replaces any existing subscription for the user.
	SaveSubscription(ctx context.Context, sub PushSubscription) error

	// ActiveSubscription returns ErrNotFound when the user has no live subscription.
	ActiveSubscription(ctx context.Context, userID string) (PushSubscription, error)

	// ExpireSubscription marks the user's active subscription expired at the
	// given time. A non-empty endpoint must match the stored one. It is a
	// no-op when nothing matches.
	ExpireSubscription(ctx context.Context, userID, endpoint string, at time.Time) error
}

// InboxStorage holds the in-app feed: record ids per user, newest last.
type InboxStorage interface {
	AppendInbox(ctx context.Context, userID, recordID string) error
	Inbox(ctx context.Context, userID string) ([]string, error)
}

// Storage is everything the engine persists.
type Storage interface {
	RecordStorage
	BatchStorage
	PreferenceStorage
	SubscriptionStorage
	InboxStorage
}
