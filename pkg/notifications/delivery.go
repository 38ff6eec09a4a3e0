package notifications

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// RecordDeliverer resolves a record's channels against the owner's
// preferences, dispatches it and persists the result.
type RecordDeliverer struct {
	storage    RecordStorage
	prefs      *PreferenceStore
	dispatcher *Dispatcher
	locks      *recordLocks
	now        func() time.Time
	logger     *slog.Logger
	metrics    *Metrics
}

func newRecordDeliverer(storage RecordStorage, prefs *PreferenceStore, dispatcher *Dispatcher, locks *recordLocks, now func() time.Time, l *slog.Logger, m *Metrics) *RecordDeliverer {
	return &RecordDeliverer{
		storage:    storage,
		prefs:      prefs,
		dispatcher: dispatcher,
		locks:      locks,
		now:        now,
		logger:     l,
		metrics:    m,
	}
}

// Deliver sends rec and returns it in its final delivered or failed state.
// The error reports persistence problems only; delivery failures live on
// the record. A delivery cut short by ctx leaves the record retryable: a
// standalone record is scheduled for the next sweep and a batch summary
// stays pending for its batch.
func (d *RecordDeliverer) Deliver(ctx context.Context, rec Record) (Record, error) {
	now := d.now()
	if rec.IsExpired(now) {
		return d.complete(ctx, rec.ID, Outcome{Reason: ReasonExpired, Err: ErrRecordExpired})
	}

	prefs, err := d.prefs.Load(ctx, rec.UserID)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "using default preferences for delivery",
			logger.UserID(rec.UserID),
			logger.Error(err),
		)
		prefs = DefaultPreferences(rec.UserID, now)
	}

	plan := rec.Clone()
	plan.Channels = prefs.ResolveChannels(rec, now)
	plan.Options.FallbackChannels = d.allowedFallbacks(prefs, rec, now)

	outcome := d.dispatcher.Deliver(ctx, plan)
	if interrupted(ctx, outcome) {
		return d.park(ctx, rec.ID, outcome)
	}
	return d.complete(ctx, rec.ID, outcome)
}

func interrupted(ctx context.Context, outcome Outcome) bool {
	if outcome.Delivered {
		return false
	}
	return ctx.Err() != nil || outcome.Reason == ReasonCancelled
}

func (d *RecordDeliverer) allowedFallbacks(prefs Preferences, rec Record, now time.Time) []Channel {
	local := now.In(prefs.Location())
	var out []Channel
	for _, ch := range rec.Options.FallbackChannels {
		if prefs.allows(ch, rec.Priority, local) {
			out = append(out, ch)
		}
	}
	return out
}

// complete writes outcome onto the stored record under its lock so
// concurrent reads and dismissals are not lost.
func (d *RecordDeliverer) complete(ctx context.Context, id string, outcome Outcome) (Record, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := d.locks.lock(id)
	defer unlock()

	rec, err := d.storage.GetRecord(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("failed to reload record: %w", err)
	}

	now := d.now()
	rec.DeliveryAttempts += outcome.Attempts
	rec.Outcome = append(append([]ChannelResult(nil), outcome.Channels...), outcome.Fallbacks...)
	event := EventDeliver
	if outcome.Delivered {
		rec.FailureReason = ""
		rec.DeliveredAt = &now
	} else {
		event = EventFail
		rec.FailureReason = outcome.Reason
	}
	if err := transition(ctx, &rec, event); err != nil {
		return rec, err
	}
	if err := d.storage.SaveRecord(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to save delivery result: %w", err)
	}
	d.metrics.delivery(rec.Status)

	if outcome.Delivered {
		d.logger.LogAttrs(ctx, slog.LevelInfo, "notification delivered",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.UserID),
			logger.Attempt(rec.DeliveryAttempts),
		)
	} else {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "notification delivery failed",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.UserID),
			slog.String("reason", string(rec.FailureReason)),
			logger.Error(outcome.Err),
		)
	}
	return rec, nil
}

// park stores the attempts of an interrupted delivery without failing the
// record.
func (d *RecordDeliverer) park(ctx context.Context, id string, outcome Outcome) (Record, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := d.locks.lock(id)
	defer unlock()

	rec, err := d.storage.GetRecord(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("failed to reload record: %w", err)
	}

	rec.DeliveryAttempts += outcome.Attempts
	rec.Outcome = append(append([]ChannelResult(nil), outcome.Channels...), outcome.Fallbacks...)
	rec.FailureReason = ReasonCancelled
	if rec.Status == StatusPending && rec.SummaryOf == "" && rec.BatchID == "" {
		now := d.now()
		rec.ScheduledFor = &now
		if err := transition(ctx, &rec, EventSchedule); err != nil {
			return rec, err
		}
	}
	if err := d.storage.SaveRecord(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to save interrupted delivery: %w", err)
	}

	d.logger.LogAttrs(ctx, slog.LevelWarn, "notification delivery interrupted",
		logger.NotificationID(rec.ID),
		logger.UserID(rec.UserID),
		logger.Status(string(rec.Status)),
		logger.Attempt(rec.DeliveryAttempts),
		logger.Error(outcome.Err),
	)
	return rec, nil
}

// recordLocks serializes read-modify-write cycles per record id.
type recordLocks struct {
	stripes [64]sync.Mutex
}

func (l *recordLocks) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}

// update loads the record, applies fn and saves it, all under the record lock.
// fn returning errUnchanged skips the save.
func (l *recordLocks) update(ctx context.Context, storage RecordStorage, id string, fn func(*Record) error) (Record, error) {
	unlock := l.lock(id)
	defer unlock()

	rec, err := storage.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := fn(&rec); err != nil {
		if errors.Is(err, errUnchanged) {
			return rec, nil
		}
		return rec, err
	}
	if err := storage.SaveRecord(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to save record: %w", err)
	}
	return rec, nil
}

var errUnchanged = errors.New("record unchanged")
