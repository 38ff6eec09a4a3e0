package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestQuietHours_Contains(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2025, 1, 1, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		q    notifications.QuietHours
		t    time.Time
		want bool
	}{
		{"inside same-day window", notifications.QuietHours{Start: "09:00", End: "17:00"}, at(12, 0), true},
		{"start is inclusive", notifications.QuietHours{Start: "09:00", End: "17:00"}, at(9, 0), true},
		{"end is exclusive", notifications.QuietHours{Start: "09:00", End: "17:00"}, at(17, 0), false},
		{"before same-day window", notifications.QuietHours{Start: "09:00", End: "17:00"}, at(8, 59), false},
		{"late evening in overnight window", notifications.QuietHours{Start: "22:00", End: "07:00"}, at(23, 30), true},
		{"early morning in overnight window", notifications.QuietHours{Start: "22:00", End: "07:00"}, at(6, 59), true},
		{"midday outside overnight window", notifications.QuietHours{Start: "22:00", End: "07:00"}, at(12, 0), false},
		{"empty window", notifications.QuietHours{Start: "10:00", End: "10:00"}, at(10, 0), false},
		{"malformed", notifications.QuietHours{Start: "late", End: "07:00"}, at(23, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.q.Contains(tt.t))
		})
	}
}

func TestPreferences_ResolveChannels(t *testing.T) {
	t.Parallel()

	night := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	base := func() notifications.Preferences {
		p := notifications.DefaultPreferences("u1", night)
		p.Channels[notifications.ChannelEmail] = notifications.ChannelPreference{Enabled: false}
		p.Channels[notifications.ChannelPush] = notifications.ChannelPreference{
			Enabled:    true,
			QuietHours: &notifications.QuietHours{Start: "22:00", End: "07:00"},
		}
		p.Categories["promo"] = notifications.CategoryPreference{Enabled: false}
		return p
	}

	tests := []struct {
		name     string
		rec      notifications.Record
		timezone string
		want     []notifications.Channel
	}{
		{
			name: "disabled channel dropped",
			rec: notifications.Record{Priority: notifications.PriorityMedium, Channels: []notifications.Channel{
				notifications.ChannelEmail, notifications.ChannelSMS,
			}},
			want: []notifications.Channel{notifications.ChannelSMS},
		},
		{
			name: "quiet hours drop push",
			rec: notifications.Record{Priority: notifications.PriorityHigh, Channels: []notifications.Channel{
				notifications.ChannelPush, notifications.ChannelInApp,
			}},
			want: []notifications.Channel{notifications.ChannelInApp},
		},
		{
			name: "urgent ignores quiet hours",
			rec: notifications.Record{Priority: notifications.PriorityUrgent, Channels: []notifications.Channel{
				notifications.ChannelPush,
			}},
			want: []notifications.Channel{notifications.ChannelPush},
		},
		{
			name: "quiet hours use the user's zone",
			rec: notifications.Record{Priority: notifications.PriorityLow, Channels: []notifications.Channel{
				notifications.ChannelPush,
			}},
			timezone: "Asia/Tokyo",
			want:     []notifications.Channel{notifications.ChannelPush},
		},
		{
			name: "nothing left falls back to in_app",
			rec: notifications.Record{Priority: notifications.PriorityLow, Channels: []notifications.Channel{
				notifications.ChannelEmail,
			}},
			want: []notifications.Channel{notifications.ChannelInApp},
		},
		{
			name: "disabled category keeps in_app only",
			rec: notifications.Record{Category: "promo", Priority: notifications.PriorityLow, Channels: []notifications.Channel{
				notifications.ChannelSMS,
			}},
			want: []notifications.Channel{notifications.ChannelInApp},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := base()
			p.Timezone = tt.timezone
			assert.Equal(t, tt.want, p.ResolveChannels(tt.rec, night))
		})
	}
}

func TestFrequency_WindowMinutes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, notifications.FrequencyImmediate.WindowMinutes())
	assert.Equal(t, 60, notifications.FrequencyHourly.WindowMinutes())
	assert.Equal(t, 1440, notifications.FrequencyDaily.WindowMinutes())
	assert.Equal(t, 10080, notifications.FrequencyWeekly.WindowMinutes())
}

func TestPreferenceStore_LoadCreatesDefaultsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newTestClock()
	storage := notifications.NewMemoryStorage()
	store := notifications.NewPreferenceStore(storage, notifications.WithPreferenceClock(clock.Now))

	first, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Batching.Enabled)
	for _, ch := range notifications.AllChannels {
		assert.Contains(t, first.Channels, ch)
	}

	stored, err := storage.GetPreferences(ctx, "u1")
	require.NoError(t, err, "defaults are persisted")
	assert.Equal(t, first, stored)

	clock.Advance(time.Hour)
	second, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "second load reads stored values")
}

func TestPreferenceStore_Load_RequiresUser(t *testing.T) {
	t.Parallel()

	store := notifications.NewPreferenceStore(notifications.NewMemoryStorage())
	_, err := store.Load(context.Background(), "")
	assert.ErrorIs(t, err, notifications.ErrValidation)
}

func TestPreferenceStore_Save(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifications.NewPreferenceStore(notifications.NewMemoryStorage())

	t.Run("valid preferences are stored with missing channels filled", func(t *testing.T) {
		prefs := notifications.Preferences{
			Channels: map[notifications.Channel]notifications.ChannelPreference{
				notifications.ChannelEmail: {Enabled: true, Address: "ada@example.com", Frequency: notifications.FrequencyDaily},
			},
			Batching: notifications.BatchingPreference{Enabled: false, MaxBatchSize: 3},
			Locale:   "de-DE",
			Timezone: "Europe/Berlin",
		}
		require.NoError(t, store.Save(ctx, "u-save", prefs))

		got, err := store.Load(ctx, "u-save")
		require.NoError(t, err)
		assert.Equal(t, "u-save", got.UserID)
		assert.False(t, got.Batching.Enabled)
		assert.Equal(t, "ada@example.com", got.Channels[notifications.ChannelEmail].Address)
		assert.Len(t, got.Channels, len(notifications.AllChannels))
	})

	t.Run("invalid preferences are rejected", func(t *testing.T) {
		prefs := notifications.Preferences{
			Channels: map[notifications.Channel]notifications.ChannelPreference{
				"pigeon":                  {Enabled: true},
				notifications.ChannelPush: {Enabled: true, QuietHours: &notifications.QuietHours{Start: "25:00", End: "07:00"}},
			},
			Batching: notifications.BatchingPreference{MaxBatchSize: 0},
			Timezone: "Mars/Olympus",
		}
		err := store.Save(ctx, "u-bad", prefs)
		require.ErrorIs(t, err, notifications.ErrValidation)

		var verr notifications.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.True(t, verr.Has("channels"))
		assert.True(t, verr.Has("batching.max_batch_size"))
		assert.True(t, verr.Has("timezone"))
	})
}

func TestPreferenceStore_Address(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifications.NewPreferenceStore(notifications.NewMemoryStorage())

	prefs := notifications.DefaultPreferences("u1", time.Now())
	sms := prefs.Channels[notifications.ChannelSMS]
	sms.Address = "+15550100"
	prefs.Channels[notifications.ChannelSMS] = sms
	require.NoError(t, store.Save(ctx, "u1", prefs))

	addr, err := store.Address(ctx, "u1", notifications.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", addr)

	_, err = store.Address(ctx, "u1", notifications.ChannelWebhook)
	assert.ErrorIs(t, err, notifications.ErrNoAddress)
	assert.False(t, notifications.IsRetryable(err))
}
