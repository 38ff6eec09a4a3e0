package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Engine is the entry point: it creates notifications, routes them through
// batching and delivery, and serves read, action, push and preference calls.
type Engine struct {
	storage   Storage
	prefs     *PreferenceStore
	factory   *Factory
	push      *PushManager
	batches   *BatchManager
	scheduler *Scheduler
	ui        UI
	actions   ActionHandler
	locks     *recordLocks
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

type engineOptions struct {
	logger        *slog.Logger
	metrics       *Metrics
	ui            UI
	actions       ActionHandler
	pushTransport PushTransport
	transports    map[Channel]Transport
	adapters      []Adapter
	now           func() time.Time
	newID         func() string
	retryWait     func(ctx context.Context, d time.Duration) error
	sweepInterval time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

// WithEngineLogger sets the logger shared by every engine component.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// WithUI sets where in-app, read and dismiss events are published.
func WithUI(ui UI) EngineOption {
	return func(o *engineOptions) {
		if ui != nil {
			o.ui = ui
		}
	}
}

// WithActionHandler receives every dispatched action.
func WithActionHandler(h ActionHandler) EngineOption {
	return func(o *engineOptions) {
		o.actions = h
	}
}

// WithPushTransport enables the push channel.
func WithPushTransport(t PushTransport) EngineOption {
	return func(o *engineOptions) {
		o.pushTransport = t
	}
}

// WithTransport enables an addressed channel (email, sms, webhook).
func WithTransport(ch Channel, t Transport) EngineOption {
	return func(o *engineOptions) {
		if t != nil {
			o.transports[ch] = t
		}
	}
}

// WithAdapter registers a custom adapter, replacing the built-in one for its channel.
func WithAdapter(a Adapter) EngineOption {
	return func(o *engineOptions) {
		if a != nil {
			o.adapters = append(o.adapters, a)
		}
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEngineIDGenerator overrides record ids.
func WithEngineIDGenerator(newID func() string) EngineOption {
	return func(o *engineOptions) {
		o.newID = newID
	}
}

// WithEngineRetryWait replaces the pause between channel retries.
func WithEngineRetryWait(wait func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(o *engineOptions) {
		o.retryWait = wait
	}
}

// WithEngineSweepInterval sets the scheduler period.
func WithEngineSweepInterval(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// NewEngine wires every component over storage. The scheduler is not
// started; call Start.
func NewEngine(storage Storage, opts ...EngineOption) *Engine {
	o := &engineOptions{
		logger:        slog.Default(),
		ui:            NopUI{},
		transports:    make(map[Channel]Transport),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger.With(logger.Component("notifications"))
	locks := &recordLocks{}

	prefs := NewPreferenceStore(storage,
		WithPreferenceLogger(log),
		WithPreferenceClock(o.now),
	)
	push := NewPushManager(storage, o.pushTransport,
		WithPushLogger(log),
		WithPushClock(o.now),
	)

	adapters := []Adapter{
		NewInAppAdapter(storage, o.ui),
		NewPushAdapter(push),
	}
	for _, ch := range AllChannels {
		if t, ok := o.transports[ch]; ok {
			adapters = append(adapters, NewTransportAdapter(ch, t, prefs))
		}
	}
	adapters = append(adapters, o.adapters...)

	dispatcher := NewDispatcher(adapters,
		WithDispatcherLogger(log),
		WithDispatcherMetrics(o.metrics),
		WithRetryWait(o.retryWait),
	)
	deliverer := newRecordDeliverer(storage, prefs, dispatcher, locks, o.now, log, o.metrics)
	batches := NewBatchManager(storage, prefs, deliverer,
		WithBatchLogger(log),
		WithBatchClock(o.now),
		WithBatchMetrics(o.metrics),
	)
	factoryOpts := []FactoryOption{WithFactoryClock(o.now)}
	if o.newID != nil {
		factoryOpts = append(factoryOpts, WithIDGenerator(o.newID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler(batches,
		WithSweepInterval(o.sweepInterval),
		WithSweepContext(ctx),
		WithSchedulerLogger(log),
	)

	return &Engine{
		storage:   storage,
		prefs:     prefs,
		factory:   NewFactory(factoryOpts...),
		push:      push,
		batches:   batches,
		scheduler: scheduler,
		ui:        o.ui,
		actions:   o.actions,
		locks:     locks,
		now:       o.now,
		logger:    log,
		metrics:   o.metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the batch scheduler until Close.
func (e *Engine) Start(ctx context.Context) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	return e.scheduler.Start(ctx)
}

// Tick runs one scheduler sweep synchronously.
func (e *Engine) Tick(ctx context.Context) error {
	return e.scheduler.Tick(ctx)
}

// Flush sends a pending batch's summary now. The delivery does not end with
// ctx; only Close interrupts it, which returns the batch to pending.
func (e *Engine) Flush(ctx context.Context, batchID string) (bool, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false, ErrEngineClosed
	}
	e.inflight.Add(1)
	e.mu.RUnlock()
	defer e.inflight.Done()

	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	return e.batches.Flush(fctx, batchID)
}

// Wait blocks until deliveries started by Create and Retry have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Close stops the scheduler and waits for the current sweep and in-flight
// deliveries. When ctx ends first the work is cancelled and left retryable,
// and Close returns ctx.Err().
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.scheduler.Stop()
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

// Create validates req, stores the record and hands it to batching and
// delivery in the background. It returns the record id once stored.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (string, error) {
	if e.isClosed() {
		return "", ErrEngineClosed
	}

	var prefs Preferences
	if req.UserID != "" {
		p, err := e.prefs.Load(ctx, req.UserID)
		if err != nil {
			return "", err
		}
		prefs = p
	}

	rec, err := e.factory.Build(req, prefs)
	if err != nil {
		return "", err
	}
	if err := e.storage.SaveRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to store notification: %w", err)
	}
	e.metrics.notificationCreated(rec.Type)

	e.logger.LogAttrs(ctx, slog.LevelDebug, "notification created",
		logger.NotificationID(rec.ID),
		logger.UserID(rec.UserID),
		slog.String("priority", string(rec.Priority)),
	)

	if err := e.route(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// route runs the batch manager on a tracked goroutine detached from the
// caller's context.
func (e *Engine) route(rec Record) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if err := e.batches.Route(e.ctx, rec); err != nil {
			e.logger.LogAttrs(e.ctx, slog.LevelError, "failed to route notification",
				logger.NotificationID(rec.ID),
				logger.UserID(rec.UserID),
				logger.Error(err),
			)
		}
	}()
	return nil
}

// Get returns a record by id.
func (e *Engine) Get(ctx context.Context, id string) (Record, error) {
	return e.storage.GetRecord(ctx, id)
}

// List returns the user's records, newest first.
func (e *Engine) List(ctx context.Context, userID string, opts ListOptions) ([]Record, error) {
	return e.storage.ListRecords(ctx, userID, opts)
}

// MarkAsRead marks a delivered record read. Calling it again is a no-op that
// still reports true and keeps the first ReadAt.
func (e *Engine) MarkAsRead(ctx context.Context, id string) (bool, error) {
	changed := false
	rec, err := e.locks.update(ctx, e.storage, id, func(rec *Record) error {
		if rec.ReadAt != nil {
			return errUnchanged
		}
		if err := transition(ctx, rec, EventRead); err != nil {
			return err
		}
		rec.ReadAt = timePtr(e.now())
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		e.publish(ctx, Event{Kind: EventMarkRead, UserID: rec.UserID, RecordID: rec.ID})
	}
	return true, nil
}

// MarkAllAsRead marks every unread delivered record of the user read and
// returns how many changed.
func (e *Engine) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	unread, err := e.storage.ListRecords(ctx, userID, ListOptions{UnreadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list unread notifications: %w", err)
	}

	count := 0
	var errs []error
	for _, rec := range unread {
		if !CanTransition(ctx, rec.Status, EventRead) {
			continue
		}
		if _, err := e.MarkAsRead(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

// Dismiss removes a record from the user's view, reading it first if needed.
func (e *Engine) Dismiss(ctx context.Context, id string) error {
	if _, err := e.MarkAsRead(ctx, id); err != nil {
		return err
	}

	changed := false
	rec, err := e.locks.update(ctx, e.storage, id, func(rec *Record) error {
		if rec.Status == StatusDismissed {
			return errUnchanged
		}
		if err := transition(ctx, rec, EventDismiss); err != nil {
			return err
		}
		rec.DismissedAt = timePtr(e.now())
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		e.publish(ctx, Event{Kind: EventMarkDismiss, UserID: rec.UserID, RecordID: rec.ID})
	}
	return nil
}

// Retry moves a failed record back to pending and routes it again.
// Delivery attempts carry over.
func (e *Engine) Retry(ctx context.Context, id string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	rec, err := e.locks.update(ctx, e.storage, id, func(rec *Record) error {
		if err := transition(ctx, rec, EventRetry); err != nil {
			return err
		}
		rec.FailureReason = ""
		rec.BatchID = ""
		return nil
	})
	if err != nil {
		return err
	}
	return e.route(rec)
}

// HandleAction marks rec read, resolves the action and passes it to the
// registered ActionHandler.
func (e *Engine) HandleAction(ctx context.Context, actionID string, rec Record) (ActionDispatch, error) {
	action, ok := rec.Action(actionID)
	if !ok {
		return ActionDispatch{}, fmt.Errorf("action %q: %w", actionID, ErrNotFound)
	}
	if _, err := e.MarkAsRead(ctx, rec.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return ActionDispatch{}, err
	}

	d := resolveAction(rec, action)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification action handled",
		logger.NotificationID(rec.ID),
		logger.UserID(rec.UserID),
		slog.String("action_id", actionID),
		slog.String("dispatch", string(d.Kind)),
	)
	if e.actions != nil {
		if err := e.actions.HandleAction(ctx, d); err != nil {
			return d, fmt.Errorf("action handler: %w", err)
		}
	}
	return d, nil
}

// SubscribeToPush registers a device token for the user.
func (e *Engine) SubscribeToPush(ctx context.Context, userID, deviceToken string) (PushSubscription, error) {
	return e.push.Subscribe(ctx, userID, deviceToken)
}

// UnsubscribeFromPush invalidates the user's push subscription.
func (e *Engine) UnsubscribeFromPush(ctx context.Context, userID string) error {
	return e.push.Unsubscribe(ctx, userID)
}

// LoadPreferences returns the user's preferences, creating defaults on first call.
func (e *Engine) LoadPreferences(ctx context.Context, userID string) (Preferences, error) {
	return e.prefs.Load(ctx, userID)
}

// SavePreferences replaces the user's preferences.
func (e *Engine) SavePreferences(ctx context.Context, userID string, prefs Preferences) (bool, error) {
	if err := e.prefs.Save(ctx, userID, prefs); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if err := e.ui.Publish(ctx, ev); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to publish ui event",
			logger.UserID(ev.UserID),
			logger.Event(string(ev.Kind)),
			logger.Error(err),
		)
	}
}
