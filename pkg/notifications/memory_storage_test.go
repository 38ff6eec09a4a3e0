package notifications_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/storagetest"
)

func TestMemoryStorage_ListRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := notifications.NewMemoryStorage()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		rec := notifications.Record{
			ID:        fmt.Sprintf("n%d", i),
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 0 {
			rec.ReadAt = &rec.CreatedAt
		}
		require.NoError(t, s.SaveRecord(ctx, rec))
	}
	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: "other", UserID: "u2", CreatedAt: base}))

	ids := func(recs []notifications.Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ID
		}
		return out
	}

	tests := []struct {
		name string
		opts notifications.ListOptions
		want []string
	}{
		{"all newest first", notifications.ListOptions{}, []string{"n4", "n3", "n2", "n1", "n0"}},
		{"limit", notifications.ListOptions{Limit: 2}, []string{"n4", "n3"}},
		{"offset", notifications.ListOptions{Offset: 3}, []string{"n1", "n0"}},
		{"offset past end", notifications.ListOptions{Offset: 10}, []string{}},
		{"unread only", notifications.ListOptions{UnreadOnly: true}, []string{"n3", "n1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.ListRecords(ctx, "u1", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := notifications.NewMemoryStorage()

	rec := notifications.Record{ID: "n1", UserID: "u1", Channels: []notifications.Channel{notifications.ChannelInApp}}
	require.NoError(t, s.SaveRecord(ctx, rec))
	rec.Channels[0] = notifications.ChannelSMS

	got, err := s.GetRecord(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, notifications.ChannelInApp, got.Channels[0])

	got.Channels[0] = notifications.ChannelEmail
	again, err := s.GetRecord(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, notifications.ChannelInApp, again.Channels[0])
}

func TestMemoryStorage_DueItems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := notifications.NewMemoryStorage()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: "due", Status: notifications.StatusScheduled, ScheduledFor: &past}))
	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: "exact", Status: notifications.StatusScheduled, ScheduledFor: &now}))
	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: "later", Status: notifications.StatusScheduled, ScheduledFor: &future}))
	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: "member", Status: notifications.StatusScheduled, ScheduledFor: &past, BatchID: "b1"}))
	require.NoError(t, s.SaveRecord(ctx, notifications.Record{ID: "sent", Status: notifications.StatusDelivered, ScheduledFor: &past}))

	due, err := s.DueRecords(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "due", due[0].ID)
	assert.Equal(t, "exact", due[1].ID)

	require.NoError(t, s.SaveBatch(ctx, notifications.Batch{ID: "b1", Status: notifications.BatchPending, ScheduledFor: past}))
	require.NoError(t, s.SaveBatch(ctx, notifications.Batch{ID: "b2", Status: notifications.BatchPending, ScheduledFor: future}))
	require.NoError(t, s.SaveBatch(ctx, notifications.Batch{ID: "b3", Status: notifications.BatchSent, ScheduledFor: past}))

	batches, err := s.DueBatches(ctx, now)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)
}

func TestMemoryStorage_Subscriptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := notifications.NewMemoryStorage()
	now := time.Now()

	require.NoError(t, s.SaveSubscription(ctx, notifications.PushSubscription{UserID: "u1", Endpoint: "ep-1", CreatedAt: now}))

	require.NoError(t, s.ExpireSubscription(ctx, "u1", "ep-other", now))
	_, err := s.ActiveSubscription(ctx, "u1")
	require.NoError(t, err, "a different endpoint leaves the subscription alone")

	require.NoError(t, s.ExpireSubscription(ctx, "u1", "ep-1", now))
	_, err = s.ActiveSubscription(ctx, "u1")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestMemoryStorage_Contract(t *testing.T) {
	t.Parallel()
	storagetest.Run(t, func(*testing.T) notifications.Storage {
		return notifications.NewMemoryStorage()
	})
}
