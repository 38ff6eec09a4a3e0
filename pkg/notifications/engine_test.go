package notifications_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type engineFixture struct {
	engine  *notifications.Engine
	clock   *testClock
	storage *notifications.MemoryStorage
	ui      *recordingUI
}

func newEngineFixture(t *testing.T, opts ...notifications.EngineOption) *engineFixture {
	t.Helper()

	f := &engineFixture{
		clock:   newTestClock(),
		storage: notifications.NewMemoryStorage(),
		ui:      &recordingUI{},
	}
	base := []notifications.EngineOption{
		notifications.WithClock(f.clock.Now),
		notifications.WithUI(f.ui),
		notifications.WithEngineRetryWait(noWait),
	}
	f.engine = notifications.NewEngine(f.storage, append(base, opts...)...)
	t.Cleanup(func() { _ = f.engine.Close(context.Background()) })
	return f
}

// create stores req and waits for its background routing to finish.
func (f *engineFixture) create(t *testing.T, req notifications.CreateRequest) notifications.Record {
	t.Helper()
	ctx := context.Background()

	id, err := f.engine.Create(ctx, req)
	require.NoError(t, err)
	f.engine.Wait()

	rec, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	return rec
}

func inAppRequest(title string) notifications.CreateRequest {
	return notifications.CreateRequest{
		UserID:   "u1",
		Title:    title,
		Message:  title + " body",
		Channels: []notifications.Channel{notifications.ChannelInApp},
	}
}

func TestEngine_BatchedSocialUpdates(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	ctx := context.Background()

	var memberIDs []string
	for _, who := range []string{"Ada", "Grace", "Linus"} {
		req := inAppRequest(who + " liked your post")
		req.Type = notifications.TypeSocial
		req.Category = "social"
		req.Options = notifications.DeliveryOptions{Batchable: true, MaxBatchSize: 5, BatchDelayMinutes: minutes(5)}

		rec := f.create(t, req)
		assert.Equal(t, notifications.StatusScheduled, rec.Status)
		assert.NotEmpty(t, rec.BatchID)
		memberIDs = append(memberIDs, rec.ID)
	}

	inbox, err := f.storage.Inbox(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, inbox, "nothing delivered before the batch deadline")

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, f.engine.Tick(ctx))
	inbox, err = f.storage.Inbox(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, inbox)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.engine.Tick(ctx))

	inbox, err = f.storage.Inbox(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, inbox, 1, "one summary for the whole batch")

	summary, err := f.engine.Get(ctx, inbox[0])
	require.NoError(t, err)
	assert.Equal(t, "3 new social updates", summary.Title)
	assert.Equal(t, "You have 3 new social updates", summary.Message)
	assert.Equal(t, notifications.StatusDelivered, summary.Status)
	assert.Equal(t, 1, summary.DeliveryAttempts)
	assert.Equal(t, memberIDs, summary.ContextData["member_ids"])

	for _, id := range memberIDs {
		member, err := f.engine.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, notifications.StatusScheduled, member.Status, "members stay scheduled")
	}

	require.NoError(t, f.engine.Tick(ctx))
	inbox, err = f.storage.Inbox(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, inbox, 1, "a flushed batch is not sent twice")
}

func TestEngine_PushWithoutSubscriptionFails(t *testing.T) {
	t.Parallel()
	transport := &MockPushTransport{}
	f := newEngineFixture(t, notifications.WithPushTransport(transport))

	req := inAppRequest("Price alert")
	req.Priority = notifications.PriorityHigh
	req.Channels = []notifications.Channel{notifications.ChannelPush}
	req.Options = notifications.DeliveryOptions{RetryAttempts: 3}

	rec := f.create(t, req)
	assert.Equal(t, notifications.StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.DeliveryAttempts)
	assert.Equal(t, notifications.ReasonNoSubscription, rec.FailureReason)
	require.Len(t, rec.Outcome, 1)
	assert.Equal(t, notifications.ChannelPush, rec.Outcome[0].Channel)
	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_PushDelivery(t *testing.T) {
	t.Parallel()
	transport := &MockPushTransport{}
	f := newEngineFixture(t, notifications.WithPushTransport(transport))
	ctx := context.Background()

	transport.On("RegisterEndpoint", mock.Anything, "u1", "device-token").
		Return(notifications.Registration{Endpoint: "fcm:device-token", Platform: "fcm"}, nil).Once()
	transport.On("Send", mock.Anything, "fcm:device-token", mock.MatchedBy(func(p notifications.Payload) bool {
		return p.Title == "Order shipped"
	})).Return(nil).Once()

	sub, err := f.engine.SubscribeToPush(ctx, "u1", "device-token")
	require.NoError(t, err)
	assert.True(t, sub.Active())

	req := inAppRequest("Order shipped")
	req.Channels = []notifications.Channel{notifications.ChannelPush}
	rec := f.create(t, req)

	assert.Equal(t, notifications.StatusDelivered, rec.Status)
	require.NotNil(t, rec.DeliveredAt)
	transport.AssertExpectations(t)

	require.NoError(t, f.engine.UnsubscribeFromPush(ctx, "u1"))
	rec = f.create(t, req)
	assert.Equal(t, notifications.ReasonNoSubscription, rec.FailureReason)
}

func TestEngine_SubscribeToPushUnsupported(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	_, err := f.engine.SubscribeToPush(context.Background(), "u1", "token")
	assert.ErrorIs(t, err, notifications.ErrUnsupported)
}

func TestEngine_QuietHoursFallBackToInApp(t *testing.T) {
	t.Parallel()
	transport := &MockPushTransport{}
	f := newEngineFixture(t, notifications.WithPushTransport(transport))
	ctx := context.Background()

	prefs, err := f.engine.LoadPreferences(ctx, "u1")
	require.NoError(t, err)
	push := prefs.Channels[notifications.ChannelPush]
	push.QuietHours = &notifications.QuietHours{Start: "11:00", End: "13:00"}
	prefs.Channels[notifications.ChannelPush] = push
	ok, err := f.engine.SavePreferences(ctx, "u1", prefs)
	require.NoError(t, err)
	assert.True(t, ok)

	req := inAppRequest("Weekly report")
	req.Channels = []notifications.Channel{notifications.ChannelPush}
	rec := f.create(t, req)

	assert.Equal(t, notifications.StatusDelivered, rec.Status)
	inbox, err := f.storage.Inbox(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, inbox)
	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_MarkAsRead(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	ctx := context.Background()

	rec := f.create(t, inAppRequest("Welcome"))
	require.Equal(t, notifications.StatusDelivered, rec.Status)

	ok, err := f.engine.MarkAsRead(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	first, err := f.engine.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusRead, first.Status)
	require.NotNil(t, first.ReadAt)

	f.clock.Advance(time.Minute)
	ok, err = f.engine.MarkAsRead(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok, "marking again still succeeds")

	second, err := f.engine.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.ReadAt, *second.ReadAt, "first read time is kept")

	reads := 0
	for _, k := range f.ui.Kinds() {
		if k == notifications.EventMarkRead {
			reads++
		}
	}
	assert.Equal(t, 1, reads)

	_, err = f.engine.MarkAsRead(ctx, "missing")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestEngine_MarkAllAsRead(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		f.create(t, inAppRequest(title))
	}
	other := inAppRequest("not mine")
	other.UserID = "u2"
	f.create(t, other)

	n, err := f.engine.MarkAllAsRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	unread, err := f.engine.List(ctx, "u1", notifications.ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	unread, err = f.engine.List(ctx, "u2", notifications.ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

func TestEngine_Dismiss(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	ctx := context.Background()

	rec := f.create(t, inAppRequest("Storage almost full"))
	require.NoError(t, f.engine.Dismiss(ctx, rec.ID))
	require.NoError(t, f.engine.Dismiss(ctx, rec.ID), "dismiss is idempotent")

	got, err := f.engine.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDismissed, got.Status)
	assert.NotNil(t, got.ReadAt)
	assert.NotNil(t, got.DismissedAt)
	assert.Equal(t, []notifications.EventKind{
		notifications.EventAppend, notifications.EventMarkRead, notifications.EventMarkDismiss,
	}, f.ui.Kinds())
}

func TestEngine_HandleAction(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		dispatched []notifications.ActionDispatch
	)
	handler := notifications.ActionHandlerFunc(func(_ context.Context, d notifications.ActionDispatch) error {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, d)
		return nil
	})
	f := newEngineFixture(t, notifications.WithActionHandler(handler))
	ctx := context.Background()

	req := inAppRequest("Withdrawal request")
	req.Actionable = true
	req.Actions = []notifications.Action{
		{Label: "View", Ref: "/withdrawals/42", Kind: notifications.ActionPrimary},
		{Label: "Approve", Ref: "approve_withdrawal", Params: map[string]any{"id": 42}},
		{Label: "Docs", Ref: "https://example.com/help"},
	}
	rec := f.create(t, req)
	require.Len(t, rec.Actions, 3)

	tests := []struct {
		action notifications.Action
		kind   notifications.DispatchKind
	}{
		{rec.Actions[0], notifications.DispatchNavigate},
		{rec.Actions[1], notifications.DispatchInvoke},
		{rec.Actions[2], notifications.DispatchNavigate},
	}
	for _, tt := range tests {
		d, err := f.engine.HandleAction(ctx, tt.action.ID, rec)
		require.NoError(t, err)
		assert.Equal(t, tt.kind, d.Kind, tt.action.Ref)
		assert.Equal(t, tt.action.Ref, d.Target)
		assert.Equal(t, rec.ID, d.RecordID)
	}
	assert.Equal(t, map[string]any{"id": 42}, dispatched[1].Params)
	assert.Len(t, dispatched, 3)

	got, err := f.engine.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusRead, got.Status, "handling an action reads the record")

	_, err = f.engine.HandleAction(ctx, "nope", rec)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestEngine_Retry(t *testing.T) {
	t.Parallel()

	sms := newStubAdapter(notifications.ChannelSMS, notifications.ErrPermanentFailure, nil)
	f := newEngineFixture(t, notifications.WithAdapter(sms))
	ctx := context.Background()

	req := inAppRequest("Verify your phone")
	req.Channels = []notifications.Channel{notifications.ChannelSMS}
	rec := f.create(t, req)
	require.Equal(t, notifications.StatusFailed, rec.Status)
	assert.Equal(t, notifications.ReasonPermanent, rec.FailureReason)

	require.NoError(t, f.engine.Retry(ctx, rec.ID))
	f.engine.Wait()

	got, err := f.engine.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDelivered, got.Status)
	assert.Empty(t, got.FailureReason)
	assert.Equal(t, 2, got.DeliveryAttempts, "attempts carry over")

	err = f.engine.Retry(ctx, rec.ID)
	assert.ErrorIs(t, err, notifications.ErrInvalidTransition, "only failed records retry")
}

func TestEngine_ScheduledAndExpired(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	ctx := context.Background()

	soon := f.clock.Now().Add(time.Hour)
	later := f.clock.Now().Add(2 * time.Hour)

	onTime := inAppRequest("Meeting in 10 minutes")
	onTime.ScheduledFor = &soon
	scheduled := f.create(t, onTime)
	assert.Equal(t, notifications.StatusScheduled, scheduled.Status)

	stale := inAppRequest("Flash sale")
	stale.ScheduledFor = &later
	stale.ExpiresAt = &soon
	expiring := f.create(t, stale)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.engine.Tick(ctx))
	got, err := f.engine.Get(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDelivered, got.Status)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.engine.Tick(ctx))
	got, err = f.engine.Get(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusFailed, got.Status)
	assert.Equal(t, notifications.ReasonExpired, got.FailureReason)
	assert.Zero(t, got.DeliveryAttempts)
}

func TestEngine_CreateValidation(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	req := inAppRequest("x")
	req.Channels = nil
	_, err := f.engine.Create(context.Background(), req)
	assert.ErrorIs(t, err, notifications.ErrValidation)

	req = inAppRequest("x")
	req.UserID = ""
	_, err = f.engine.Create(context.Background(), req)
	assert.ErrorIs(t, err, notifications.ErrValidation)
}

func TestEngine_SavePreferencesInvalid(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	ok, err := f.engine.SavePreferences(context.Background(), "u1", notifications.Preferences{
		Batching: notifications.BatchingPreference{MaxBatchSize: 0},
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, notifications.ErrValidation)
}

func TestEngine_Close(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t, notifications.WithEngineSweepInterval(time.Hour))
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	f.create(t, inAppRequest("before close"))

	require.NoError(t, f.engine.Close(ctx))
	require.NoError(t, f.engine.Close(ctx), "close is idempotent")

	_, err := f.engine.Create(ctx, inAppRequest("after close"))
	assert.ErrorIs(t, err, notifications.ErrEngineClosed)
	assert.ErrorIs(t, f.engine.Start(ctx), notifications.ErrEngineClosed)
}

func TestEngine_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := notifications.NewMetrics(reg)
	require.NoError(t, err)

	f := newEngineFixture(t, notifications.WithMetrics(metrics))
	f.create(t, inAppRequest("counted"))

	expected := `
# HELP notifykit_notifications_created_total Notifications accepted by the engine.
# TYPE notifykit_notifications_created_total counter
notifykit_notifications_created_total{type="info"} 1
# HELP notifykit_deliveries_total Completed deliveries by final status.
# TYPE notifykit_deliveries_total counter
notifykit_deliveries_total{status="delivered"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"notifykit_notifications_created_total", "notifykit_deliveries_total"))

	_, err = notifications.NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

// blockingWait signals entered on the first retry pause and holds it until
// ctx ends.
func blockingWait(entered chan struct{}) func(context.Context, time.Duration) error {
	var once sync.Once
	return func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return ctx.Err()
	}
}

func awaitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery to start")
	}
}

func TestEngine_FlushIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	ctx := context.Background()

	req := inAppRequest("Ada liked your post")
	req.Category = "social"
	req.Options = notifications.DeliveryOptions{Batchable: true, MaxBatchSize: 5, BatchDelayMinutes: minutes(5)}
	rec := f.create(t, req)
	require.NotEmpty(t, rec.BatchID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	flushed, err := f.engine.Flush(cancelled, rec.BatchID)
	require.NoError(t, err)
	assert.True(t, flushed)

	batch, err := f.storage.GetBatch(ctx, rec.BatchID)
	require.NoError(t, err)
	assert.Equal(t, notifications.BatchSent, batch.Status)

	inbox, err := f.storage.Inbox(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{batch.SummaryID}, inbox)
}

func TestEngine_CloseDuringSweepKeepsBatchPending(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	sms := newStubAdapter(notifications.ChannelSMS, notifications.ErrChannelTransport)
	f := newEngineFixture(t,
		notifications.WithAdapter(sms),
		notifications.WithEngineRetryWait(blockingWait(entered)),
		notifications.WithEngineSweepInterval(time.Hour),
	)
	ctx := context.Background()

	req := inAppRequest("Your order shipped")
	req.Channels = []notifications.Channel{notifications.ChannelSMS}
	req.Options = notifications.DeliveryOptions{
		Batchable:         true,
		MaxBatchSize:      5,
		BatchDelayMinutes: minutes(0),
		RetryAttempts:     2,
	}
	rec := f.create(t, req)
	require.NotEmpty(t, rec.BatchID)

	require.NoError(t, f.engine.Start(ctx))
	awaitSignal(t, entered)

	closeCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.engine.Close(closeCtx), context.DeadlineExceeded)

	batch, err := f.storage.GetBatch(ctx, rec.BatchID)
	require.NoError(t, err)
	assert.Equal(t, notifications.BatchPending, batch.Status, "an interrupted flush is retried later")
	require.NotEmpty(t, batch.SummaryID)

	summary, err := f.storage.GetRecord(ctx, batch.SummaryID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, summary.Status)
	assert.Equal(t, notifications.ReasonCancelled, summary.FailureReason)
	assert.Equal(t, 1, summary.DeliveryAttempts)
	assert.Equal(t, batch.ID, summary.SummaryOf)
}

func TestEngine_CloseInterruptsStandaloneDelivery(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	f := newEngineFixture(t,
		notifications.WithAdapter(newStubAdapter(notifications.ChannelSMS, notifications.ErrChannelTransport)),
		notifications.WithEngineRetryWait(blockingWait(entered)),
	)
	ctx := context.Background()

	req := inAppRequest("Your code is 1234")
	req.Channels = []notifications.Channel{notifications.ChannelSMS}
	req.Options = notifications.DeliveryOptions{RetryAttempts: 2}
	id, err := f.engine.Create(ctx, req)
	require.NoError(t, err)
	awaitSignal(t, entered)

	closeCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.engine.Close(closeCtx), context.DeadlineExceeded)

	got, err := f.storage.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusScheduled, got.Status)
	assert.Equal(t, notifications.ReasonCancelled, got.FailureReason)
	assert.Equal(t, 1, got.DeliveryAttempts)
	require.NotNil(t, got.ScheduledFor)

	restarted := notifications.NewEngine(f.storage,
		notifications.WithClock(f.clock.Now),
		notifications.WithAdapter(newStubAdapter(notifications.ChannelSMS)),
		notifications.WithEngineRetryWait(noWait),
	)
	t.Cleanup(func() { _ = restarted.Close(context.Background()) })
	require.NoError(t, restarted.Tick(ctx))

	got, err = f.storage.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDelivered, got.Status)
	assert.Empty(t, got.FailureReason)
	assert.Equal(t, 2, got.DeliveryAttempts, "attempts carry over")
}

func TestEngine_RetryFailedSummarySettlesBatch(t *testing.T) {
	t.Parallel()

	sms := newStubAdapter(notifications.ChannelSMS, notifications.ErrPermanentFailure, nil)
	f := newEngineFixture(t, notifications.WithAdapter(sms))
	ctx := context.Background()

	req := inAppRequest("Your order shipped")
	req.Channels = []notifications.Channel{notifications.ChannelSMS}
	req.Options = notifications.DeliveryOptions{Batchable: true, MaxBatchSize: 5, BatchDelayMinutes: minutes(5)}
	rec := f.create(t, req)

	_, err := f.engine.Flush(ctx, rec.BatchID)
	require.NoError(t, err)

	batch, err := f.storage.GetBatch(ctx, rec.BatchID)
	require.NoError(t, err)
	require.Equal(t, notifications.BatchFailed, batch.Status)
	failedSummary := batch.SummaryID

	require.NoError(t, f.engine.Retry(ctx, failedSummary))
	f.engine.Wait()

	batch, err = f.storage.GetBatch(ctx, rec.BatchID)
	require.NoError(t, err)
	assert.Equal(t, notifications.BatchSent, batch.Status)
	assert.Equal(t, failedSummary, batch.SummaryID)

	summary, err := f.engine.Get(ctx, failedSummary)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDelivered, summary.Status)
}
