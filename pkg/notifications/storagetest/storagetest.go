// Package storagetest checks that a notifications.Storage behaves like the
// in-memory reference. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Factory returns a ready storage. It may be shared across subtests; every
// subtest uses fresh user and record ids.
type Factory func(t *testing.T) notifications.Storage

// Run executes the storage contract against the storage built by newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s notifications.Storage)
	}{
		{"Records", testRecords},
		{"ListRecords", testListRecords},
		{"DueRecords", testDueRecords},
		{"PendingBatchPointer", testPendingBatchPointer},
		{"DueBatches", testDueBatches},
		{"Preferences", testPreferences},
		{"Subscriptions", testSubscriptions},
		{"Inbox", testInbox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStorage(t))
		})
	}
}

// base is rounded to the millisecond because some backends keep no more.
var base = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func id() string { return uuid.NewString() }

func testRecords(t *testing.T, s notifications.Storage) {
	ctx := context.Background()

	_, err := s.GetRecord(ctx, id())
	require.ErrorIs(t, err, notifications.ErrNotFound)

	read := base.Add(time.Minute)
	rec := notifications.Record{
		ID:       id(),
		UserID:   id(),
		Title:    "Payment received",
		Message:  "You received 10 USDC",
		Type:     notifications.TypeFinancial,
		Priority: notifications.PriorityHigh,
		Category: "payments",
		Channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelEmail},
		Actions:  []notifications.Action{{ID: "a1", Label: "View", Ref: "/payments/1", Kind: notifications.ActionPrimary}},
		Options: notifications.DeliveryOptions{
			RetryAttempts:    2,
			FallbackChannels: []notifications.Channel{notifications.ChannelSMS},
		},
		Status:           notifications.StatusRead,
		DeliveryAttempts: 3,
		Outcome: []notifications.ChannelResult{
			{Channel: notifications.ChannelInApp, Delivered: true, Attempts: 1},
		},
		CreatedAt: base,
		ReadAt:    &read,
	}
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Channels, got.Channels)
	assert.Equal(t, rec.Actions, got.Actions)
	assert.Equal(t, rec.Options, got.Options)
	assert.Equal(t, rec.Outcome, got.Outcome)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, 3, got.DeliveryAttempts)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.ReadAt)
	assert.True(t, read.Equal(*got.ReadAt))

	rec.Status = notifications.StatusDismissed
	require.NoError(t, s.SaveRecord(ctx, rec))
	got, err = s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDismissed, got.Status, "save replaces")
}

func testListRecords(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()

	var ids []string
	for i := range 5 {
		rec := notifications.Record{
			ID:        id(),
			UserID:    user,
			Title:     "t",
			Status:    notifications.StatusDelivered,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 0 {
			rec.Status = notifications.StatusRead
			rec.ReadAt = &rec.CreatedAt
		}
		require.NoError(t, s.SaveRecord(ctx, rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: id(), UserID: id(), CreatedAt: base}))

	list := func(opts notifications.ListOptions) []string {
		recs, err := s.ListRecords(ctx, user, opts)
		require.NoError(t, err)
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ID
		}
		return out
	}

	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, list(notifications.ListOptions{}))
	assert.Equal(t, []string{ids[4], ids[3]}, list(notifications.ListOptions{Limit: 2}))
	assert.Equal(t, []string{ids[1], ids[0]}, list(notifications.ListOptions{Offset: 3}))
	assert.Empty(t, list(notifications.ListOptions{Offset: 10}))
	assert.Equal(t, []string{ids[3], ids[1]}, list(notifications.ListOptions{UnreadOnly: true}))
	assert.Equal(t, []string{ids[1]}, list(notifications.ListOptions{UnreadOnly: true, Offset: 1, Limit: 5}))
	assert.Empty(t, list(notifications.ListOptions{UnreadOnly: true, Offset: 2}))
}

func testDueRecords(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()
	now := base.Add(24 * time.Hour)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	save := func(status notifications.Status, at *time.Time, batchID string) string {
		rec := notifications.Record{
			ID:           id(),
			UserID:       user,
			Status:       status,
			ScheduledFor: at,
			BatchID:      batchID,
			CreatedAt:    base,
		}
		require.NoError(t, s.SaveRecord(ctx, rec))
		return rec.ID
	}

	due := save(notifications.StatusScheduled, &past, "")
	exact := save(notifications.StatusScheduled, &now, "")
	save(notifications.StatusScheduled, &future, "")
	save(notifications.StatusScheduled, &past, id())
	delivered := save(notifications.StatusScheduled, &past, "")

	rec, err := s.GetRecord(ctx, delivered)
	require.NoError(t, err)
	rec.Status = notifications.StatusDelivered
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.DueRecords(ctx, now)
	require.NoError(t, err)

	var mine []string
	for _, r := range got {
		if r.UserID == user {
			mine = append(mine, r.ID)
		}
	}
	assert.Equal(t, []string{due, exact}, mine)
}

func testPendingBatchPointer(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()

	_, err := s.PendingBatch(ctx, user, "social")
	require.ErrorIs(t, err, notifications.ErrNotFound)
	_, err = s.GetBatch(ctx, id())
	require.ErrorIs(t, err, notifications.ErrNotFound)

	first := notifications.Batch{
		ID:           id(),
		UserID:       user,
		BatchKey:     "social",
		MaxSize:      5,
		ScheduledFor: base.Add(5 * time.Minute),
		Status:       notifications.BatchPending,
		CreatedAt:    base,
		Members: []notifications.Record{
			{ID: id(), UserID: user, Title: "liked", Status: notifications.StatusScheduled, CreatedAt: base},
		},
	}
	require.NoError(t, s.SaveBatch(ctx, first))

	got, err := s.PendingBatch(ctx, user, "social")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.MemberIDs(), got.MemberIDs())
	assert.Equal(t, 5, got.MaxSize)

	_, err = s.PendingBatch(ctx, user, "billing")
	require.ErrorIs(t, err, notifications.ErrNotFound)

	first.Status = notifications.BatchProcessing
	require.NoError(t, s.SaveBatch(ctx, first))
	_, err = s.PendingBatch(ctx, user, "social")
	require.ErrorIs(t, err, notifications.ErrNotFound, "claimed batch is no longer pending")

	second := first
	second.ID = id()
	second.Status = notifications.BatchPending
	second.Members = nil
	require.NoError(t, s.SaveBatch(ctx, second))

	flushed := base.Add(6 * time.Minute)
	first.Status = notifications.BatchSent
	first.FlushedAt = &flushed
	first.SummaryID = id()
	require.NoError(t, s.SaveBatch(ctx, first))

	got, err = s.PendingBatch(ctx, user, "social")
	require.NoError(t, err, "finishing the old batch keeps the new pointer")
	assert.Equal(t, second.ID, got.ID)

	stored, err := s.GetBatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.BatchSent, stored.Status)
	assert.Equal(t, first.SummaryID, stored.SummaryID)
	require.NotNil(t, stored.FlushedAt)
}

func testDueBatches(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()
	now := base.Add(48 * time.Hour)

	save := func(key string, status notifications.BatchStatus, at time.Time) string {
		b := notifications.Batch{
			ID:           id(),
			UserID:       user,
			BatchKey:     key,
			MaxSize:      3,
			ScheduledFor: at,
			Status:       status,
			CreatedAt:    base,
		}
		require.NoError(t, s.SaveBatch(ctx, b))
		return b.ID
	}

	older := save("a", notifications.BatchPending, now.Add(-2*time.Minute))
	newer := save("b", notifications.BatchPending, now)
	save("c", notifications.BatchPending, now.Add(time.Minute))
	save("d", notifications.BatchSent, now.Add(-time.Hour))

	got, err := s.DueBatches(ctx, now)
	require.NoError(t, err)

	var mine []string
	for _, b := range got {
		if b.UserID == user {
			mine = append(mine, b.ID)
		}
	}
	assert.Equal(t, []string{older, newer}, mine)
}

func testPreferences(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()

	_, err := s.GetPreferences(ctx, user)
	require.ErrorIs(t, err, notifications.ErrNotFound)

	prefs := notifications.DefaultPreferences(user, base)
	prefs.Channels[notifications.ChannelPush] = notifications.ChannelPreference{
		Enabled:    true,
		QuietHours: &notifications.QuietHours{Start: "22:00", End: "07:00"},
		Frequency:  notifications.FrequencyHourly,
	}
	prefs.Categories["promo"] = notifications.CategoryPreference{Enabled: false}
	prefs.Locale = "de-DE"
	prefs.Timezone = "Europe/Berlin"
	require.NoError(t, s.SavePreferences(ctx, prefs))

	got, err := s.GetPreferences(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, prefs.Channels, got.Channels)
	assert.Equal(t, prefs.Categories, got.Categories)
	assert.Equal(t, prefs.Batching, got.Batching)
	assert.Equal(t, "de-DE", got.Locale)
	assert.Equal(t, "Europe/Berlin", got.Timezone)
}

func testSubscriptions(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()

	_, err := s.ActiveSubscription(ctx, user)
	require.ErrorIs(t, err, notifications.ErrNotFound)
	require.NoError(t, s.ExpireSubscription(ctx, user, "", base), "expiring nothing is a no-op")

	require.NoError(t, s.SaveSubscription(ctx, notifications.PushSubscription{
		UserID: user, Endpoint: "ep-1", Platform: "fcm", CreatedAt: base,
	}))
	sub, err := s.ActiveSubscription(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "ep-1", sub.Endpoint)

	require.NoError(t, s.SaveSubscription(ctx, notifications.PushSubscription{
		UserID: user, Endpoint: "ep-2", Platform: "fcm", CreatedAt: base,
	}))
	require.NoError(t, s.ExpireSubscription(ctx, user, "ep-1", base))
	sub, err = s.ActiveSubscription(ctx, user)
	require.NoError(t, err, "a stale endpoint does not expire the replacement")
	assert.Equal(t, "ep-2", sub.Endpoint)

	require.NoError(t, s.ExpireSubscription(ctx, user, "", base))
	_, err = s.ActiveSubscription(ctx, user)
	require.ErrorIs(t, err, notifications.ErrNotFound)
}

func testInbox(t *testing.T, s notifications.Storage) {
	ctx := context.Background()
	user := id()

	ids, err := s.Inbox(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, ids)

	first, second := id(), id()
	require.NoError(t, s.AppendInbox(ctx, user, first))
	require.NoError(t, s.AppendInbox(ctx, user, second))

	ids, err = s.Inbox(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ids)
}
