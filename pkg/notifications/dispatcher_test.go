package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var errFlaky = errors.New("upstream timeout")

func dispatchRecord(channels []notifications.Channel, opts notifications.DeliveryOptions) notifications.Record {
	return notifications.Record{
		ID:       "n1",
		UserID:   "u1",
		Title:    "hello",
		Message:  "world",
		Channels: channels,
		Options:  opts,
	}
}

func TestDispatcher_AtLeastOneChannelDelivers(t *testing.T) {
	t.Parallel()

	push := newStubAdapter(notifications.ChannelPush, errFlaky)
	email := newStubAdapter(notifications.ChannelEmail)
	d := notifications.NewDispatcher([]notifications.Adapter{push, email}, notifications.WithRetryWait(noWait))

	rec := dispatchRecord(
		[]notifications.Channel{notifications.ChannelPush, notifications.ChannelEmail},
		notifications.DeliveryOptions{RetryAttempts: 2},
	)
	out := d.Deliver(context.Background(), rec)

	assert.True(t, out.Delivered)
	assert.NoError(t, out.Err)
	require.Len(t, out.Channels, 2)
	assert.False(t, out.Channels[0].Delivered)
	assert.Equal(t, 3, out.Channels[0].Attempts)
	assert.Equal(t, notifications.ReasonTransport, out.Channels[0].Reason)
	assert.True(t, out.Channels[1].Delivered)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, 3, push.Calls())
	assert.Equal(t, 1, email.Calls())
}

func TestDispatcher_AllFail(t *testing.T) {
	t.Parallel()

	push := newStubAdapter(notifications.ChannelPush, errFlaky)
	d := notifications.NewDispatcher([]notifications.Adapter{push}, notifications.WithRetryWait(noWait))

	rec := dispatchRecord([]notifications.Channel{notifications.ChannelPush}, notifications.DeliveryOptions{RetryAttempts: 3})
	out := d.Deliver(context.Background(), rec)

	assert.False(t, out.Delivered)
	assert.ErrorIs(t, out.Err, notifications.ErrDeliveryExhausted)
	assert.ErrorIs(t, out.Err, errFlaky)
	assert.Equal(t, 4, push.Calls(), "retryAttempts + 1 sends")
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, notifications.ReasonTransport, out.Reason)
}

func TestDispatcher_RecoversOnRetry(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	wait := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		return nil
	}

	sms := newStubAdapter(notifications.ChannelSMS, errFlaky, errFlaky, nil)
	d := notifications.NewDispatcher([]notifications.Adapter{sms}, notifications.WithRetryWait(wait))

	rec := dispatchRecord([]notifications.Channel{notifications.ChannelSMS},
		notifications.DeliveryOptions{RetryAttempts: 5, RetryDelayMinutes: 2})
	out := d.Deliver(context.Background(), rec)

	assert.True(t, out.Delivered)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Minute, 2 * time.Minute}, delays)
}

func TestDispatcher_NonRetryableErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		reason notifications.FailureReason
	}{
		{"no subscription", notifications.ErrNoSubscription, notifications.ReasonNoSubscription},
		{"endpoint expired", notifications.ErrEndpointExpired, notifications.ReasonEndpointExpired},
		{"no address", notifications.ErrNoAddress, notifications.ReasonNoAddress},
		{"permanent", notifications.ErrPermanentFailure, notifications.ReasonPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			push := newStubAdapter(notifications.ChannelPush, tt.err)
			d := notifications.NewDispatcher([]notifications.Adapter{push}, notifications.WithRetryWait(noWait))

			out := d.Deliver(context.Background(), dispatchRecord(
				[]notifications.Channel{notifications.ChannelPush},
				notifications.DeliveryOptions{RetryAttempts: 3},
			))

			assert.False(t, out.Delivered)
			assert.Equal(t, 1, push.Calls(), "no retries consumed")
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestDispatcher_UnavailableChannel(t *testing.T) {
	t.Parallel()

	d := notifications.NewDispatcher(nil)
	out := d.Deliver(context.Background(), dispatchRecord(
		[]notifications.Channel{notifications.ChannelWebhook},
		notifications.DeliveryOptions{RetryAttempts: 2},
	))

	assert.False(t, out.Delivered)
	assert.Zero(t, out.Attempts)
	assert.ErrorIs(t, out.Err, notifications.ErrChannelUnavailable)
	assert.Equal(t, notifications.ReasonUnavailable, out.Reason)
	assert.False(t, d.Supports(notifications.ChannelWebhook))
}

func TestDispatcher_FallbackChain(t *testing.T) {
	t.Parallel()

	push := newStubAdapter(notifications.ChannelPush, notifications.ErrNoSubscription)
	sms := newStubAdapter(notifications.ChannelSMS, errFlaky)
	email := newStubAdapter(notifications.ChannelEmail)
	webhook := newStubAdapter(notifications.ChannelWebhook)
	d := notifications.NewDispatcher(
		[]notifications.Adapter{push, sms, email, webhook},
		notifications.WithRetryWait(noWait),
	)

	rec := dispatchRecord([]notifications.Channel{notifications.ChannelPush}, notifications.DeliveryOptions{
		FallbackChannels: []notifications.Channel{
			notifications.ChannelPush, notifications.ChannelSMS, notifications.ChannelEmail, notifications.ChannelWebhook,
		},
	})
	out := d.Deliver(context.Background(), rec)

	assert.True(t, out.Delivered)
	require.Len(t, out.Channels, 1)
	assert.False(t, out.Channels[0].Delivered)
	assert.Equal(t, notifications.ChannelEmail, out.Channels[0].DeliveredVia)
	assert.Equal(t, 1, push.Calls(), "the failed channel is not its own fallback")
	assert.Equal(t, 1, sms.Calls())
	assert.Equal(t, 1, email.Calls())
	assert.Zero(t, webhook.Calls(), "chain stops at first success")
	require.Len(t, out.Fallbacks, 2)
	assert.Equal(t, notifications.ChannelSMS, out.Fallbacks[0].Channel)
	assert.Equal(t, notifications.ChannelEmail, out.Fallbacks[1].Channel)
}

func TestDispatcher_SharedFallbackAttemptedOnce(t *testing.T) {
	t.Parallel()

	push := newStubAdapter(notifications.ChannelPush, errFlaky)
	sms := newStubAdapter(notifications.ChannelSMS, errFlaky)
	email := newStubAdapter(notifications.ChannelEmail, errFlaky)
	d := notifications.NewDispatcher([]notifications.Adapter{push, sms, email}, notifications.WithRetryWait(noWait))

	rec := dispatchRecord(
		[]notifications.Channel{notifications.ChannelPush, notifications.ChannelSMS},
		notifications.DeliveryOptions{FallbackChannels: []notifications.Channel{notifications.ChannelEmail}},
	)
	out := d.Deliver(context.Background(), rec)

	assert.False(t, out.Delivered)
	assert.Equal(t, 1, email.Calls())
	assert.Equal(t, 3, out.Attempts)
	assert.ErrorIs(t, out.Err, notifications.ErrDeliveryExhausted)
}

func TestDispatcher_FallbackToRequestedChannelReusesResult(t *testing.T) {
	t.Parallel()

	push := newStubAdapter(notifications.ChannelPush, errFlaky)
	inApp := newStubAdapter(notifications.ChannelInApp)
	d := notifications.NewDispatcher([]notifications.Adapter{push, inApp}, notifications.WithRetryWait(noWait))

	rec := dispatchRecord(
		[]notifications.Channel{notifications.ChannelPush, notifications.ChannelInApp},
		notifications.DeliveryOptions{FallbackChannels: []notifications.Channel{notifications.ChannelInApp}},
	)
	out := d.Deliver(context.Background(), rec)

	assert.True(t, out.Delivered)
	assert.Equal(t, 1, inApp.Calls())
	assert.Equal(t, notifications.ChannelInApp, out.Channels[0].DeliveredVia)
	assert.Empty(t, out.Fallbacks)
}

func TestDispatcher_CancelledWaitStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	wait := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	email := newStubAdapter(notifications.ChannelEmail, errFlaky)
	d := notifications.NewDispatcher([]notifications.Adapter{email}, notifications.WithRetryWait(wait))

	out := d.Deliver(ctx, dispatchRecord(
		[]notifications.Channel{notifications.ChannelEmail},
		notifications.DeliveryOptions{RetryAttempts: 5},
	))

	assert.False(t, out.Delivered)
	assert.Equal(t, 1, email.Calls())
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, notifications.IsRetryable(nil))
	assert.True(t, notifications.IsRetryable(errFlaky))
	assert.True(t, notifications.IsRetryable(notifications.ErrChannelTransport))
	assert.False(t, notifications.IsRetryable(notifications.ErrNoSubscription))
	assert.False(t, notifications.IsRetryable(errors.Join(notifications.ErrChannelTransport, notifications.ErrEndpointExpired)))
	assert.False(t, notifications.IsRetryable(context.Canceled))
}
