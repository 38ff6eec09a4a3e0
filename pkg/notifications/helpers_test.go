package notifications_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func minutes(n int) *int { return &n }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubAdapter returns errs[i] on the i-th call and the last entry afterwards.
// With no errs every call succeeds.
type stubAdapter struct {
	channel notifications.Channel
	errs    []error

	mu      sync.Mutex
	calls   int
	records []notifications.Record
}

func newStubAdapter(ch notifications.Channel, errs ...error) *stubAdapter {
	return &stubAdapter{channel: ch, errs: errs}
}

func (a *stubAdapter) Channel() notifications.Channel { return a.channel }

func (a *stubAdapter) Send(_ context.Context, rec notifications.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	a.calls++
	a.records = append(a.records, rec)
	if len(a.errs) == 0 {
		return nil
	}
	if i < len(a.errs) {
		return a.errs[i]
	}
	return a.errs[len(a.errs)-1]
}

func (a *stubAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *stubAdapter) Records() []notifications.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]notifications.Record(nil), a.records...)
}

func noWait(context.Context, time.Duration) error { return nil }

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, rec notifications.Record) (notifications.Record, error) {
	args := m.Called(ctx, rec)
	if fn, ok := args.Get(0).(func(notifications.Record) notifications.Record); ok {
		return fn(rec), args.Error(1)
	}
	return args.Get(0).(notifications.Record), args.Error(1)
}

func markDelivered(rec notifications.Record) notifications.Record {
	rec.Status = notifications.StatusDelivered
	return rec
}

func markFailed(rec notifications.Record) notifications.Record {
	rec.Status = notifications.StatusFailed
	return rec
}

type MockPushTransport struct {
	mock.Mock
}

func (m *MockPushTransport) RegisterEndpoint(ctx context.Context, userID, token string) (notifications.Registration, error) {
	args := m.Called(ctx, userID, token)
	return args.Get(0).(notifications.Registration), args.Error(1)
}

func (m *MockPushTransport) Send(ctx context.Context, endpoint string, p notifications.Payload) error {
	args := m.Called(ctx, endpoint, p)
	return args.Error(0)
}

// recordingUI collects published events.
type recordingUI struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (u *recordingUI) Publish(_ context.Context, e notifications.Event) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, e)
	return nil
}

func (u *recordingUI) Kinds() []notifications.EventKind {
	u.mu.Lock()
	defer u.mu.Unlock()
	kinds := make([]notifications.EventKind, len(u.events))
	for i, e := range u.events {
		kinds[i] = e.Kind
	}
	return kinds
}
