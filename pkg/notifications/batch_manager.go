package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Deliverer delivers one record and persists the result on it.
type Deliverer interface {
	Deliver(ctx context.Context, rec Record) (Record, error)
}

// batchStorage is the subset of Storage the BatchManager touches.
type batchStorage interface {
	RecordStorage
	BatchStorage
}

// BatchManager groups batchable records per (user, key) and flushes each
// group as one summary notification.
type BatchManager struct {
	mu        sync.Mutex
	storage   batchStorage
	prefs     *PreferenceStore
	deliverer Deliverer
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
	metrics   *Metrics
}

// BatchManagerOption configures a BatchManager.
type BatchManagerOption func(*BatchManager)

// WithBatchLogger sets the logger for the BatchManager.
func WithBatchLogger(l *slog.Logger) BatchManagerOption {
	return func(m *BatchManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBatchClock overrides the time source.
func WithBatchClock(now func() time.Time) BatchManagerOption {
	return func(m *BatchManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBatchMetrics records flush results.
func WithBatchMetrics(metrics *Metrics) BatchManagerOption {
	return func(m *BatchManager) {
		m.metrics = metrics
	}
}

// NewBatchManager creates a BatchManager.
func NewBatchManager(storage batchStorage, prefs *PreferenceStore, deliverer Deliverer, opts ...BatchManagerOption) *BatchManager {
	m := &BatchManager{
		storage:   storage,
		prefs:     prefs,
		deliverer: deliverer,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Route decides what happens to a freshly created record. Records that are
// not batchable, urgent ones and those of users with batching off are
// delivered at once, unless ScheduledFor lies ahead, in which case they wait
// for the scheduler. Everything else joins the pending batch for its key.
// A record that cannot be batched because of a storage error is delivered
// directly instead.
func (m *BatchManager) Route(ctx context.Context, rec Record) error {
	batching := true
	if rec.Options.Batchable && rec.Priority != PriorityUrgent {
		prefs, err := m.prefs.Load(ctx, rec.UserID)
		if err != nil {
			return fmt.Errorf("failed to load preferences: %w", err)
		}
		batching = prefs.Batching.Enabled
	}

	if !rec.Options.Batchable || rec.Priority == PriorityUrgent || !batching {
		if rec.ScheduledFor != nil && rec.ScheduledFor.After(m.now()) {
			return m.schedule(ctx, rec)
		}
		return m.deliver(ctx, rec)
	}

	if err := m.enqueue(ctx, rec); err != nil {
		if errors.Is(err, errBatchFlush) {
			return err
		}
		m.logger.LogAttrs(ctx, slog.LevelWarn, "batching failed, delivering directly",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.UserID),
			logger.Error(err),
		)
		return m.deliver(ctx, rec)
	}
	return nil
}

// deliver sends rec on its own. A retried batch summary settles its batch.
func (m *BatchManager) deliver(ctx context.Context, rec Record) error {
	delivered, err := m.deliverer.Deliver(ctx, rec)
	if err != nil || rec.SummaryOf == "" {
		return err
	}
	return m.settleSummary(context.WithoutCancel(ctx), delivered)
}

func (m *BatchManager) schedule(ctx context.Context, rec Record) error {
	if err := transition(ctx, &rec, EventSchedule); err != nil {
		return err
	}
	if err := m.storage.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save scheduled record: %w", err)
	}
	m.logger.LogAttrs(ctx, slog.LevelDebug, "notification scheduled",
		logger.NotificationID(rec.ID),
		logger.UserID(rec.UserID),
		slog.Time("scheduled_for", *rec.ScheduledFor),
	)
	return nil
}

// errBatchFlush marks errors from flushing a full batch, after rec was batched.
var errBatchFlush = errors.New("batch flush failed")

// maxJoinAttempts bounds retries when another writer opens the same batch.
const maxJoinAttempts = 3

// enqueue appends rec to its pending batch, opening one if needed, and
// flushes when the batch reaches its cap. The cap is fixed by the record
// that opened the batch.
//
// The batch is written before the record. A failed record write takes the
// member out of the batch again.
func (m *BatchManager) enqueue(ctx context.Context, rec Record) error {
	key := rec.EffectiveBatchKey()

	m.mu.Lock()
	var (
		batch Batch
		err   error
	)
	for range maxJoinAttempts {
		batch, err = m.join(ctx, rec, key)
		if !errors.Is(err, ErrPendingBatchExists) {
			break
		}
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	member := batch.Members[len(batch.Members)-1]
	if err := m.storage.SaveRecord(ctx, member); err != nil {
		err = fmt.Errorf("failed to save batched record: %w", err)
		m.unjoin(context.WithoutCancel(ctx), batch, rec.ID)
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	m.logger.LogAttrs(ctx, slog.LevelDebug, "notification batched",
		logger.NotificationID(rec.ID),
		logger.BatchID(batch.ID),
		logger.Count(len(batch.Members)),
	)

	if batch.Status == BatchProcessing {
		if err := m.process(ctx, batch); err != nil {
			return errors.Join(errBatchFlush, err)
		}
	}
	return nil
}

// join adds rec to the pending batch for key, or opens one, and saves the
// batch. A full batch is saved as processing. ErrPendingBatchExists means
// another writer opened the batch first; the caller looks it up again.
func (m *BatchManager) join(ctx context.Context, rec Record, key string) (Batch, error) {
	batch, err := m.storage.PendingBatch(ctx, rec.UserID, key)
	switch {
	case errors.Is(err, ErrNotFound):
		now := m.now()
		batch = Batch{
			ID:           m.newID(),
			UserID:       rec.UserID,
			BatchKey:     key,
			MaxSize:      max(rec.Options.MaxBatchSize, 1),
			ScheduledFor: now.Add(rec.Options.BatchDelay()),
			Status:       BatchPending,
			CreatedAt:    now,
		}
	case err != nil:
		return Batch{}, fmt.Errorf("failed to find pending batch: %w", err)
	}

	if err := transition(ctx, &rec, EventSchedule); err != nil {
		return Batch{}, err
	}
	rec.BatchID = batch.ID
	batch.Members = append(batch.Members, rec)
	if batch.Full() {
		batch.Status = BatchProcessing
	}

	if err := m.storage.SaveBatch(ctx, batch); err != nil {
		if errors.Is(err, ErrPendingBatchExists) {
			return Batch{}, err
		}
		return Batch{}, fmt.Errorf("failed to save batch: %w", err)
	}
	return batch, nil
}

// unjoin removes recordID from batch after its record could not be saved.
// A batch left empty is closed as failed.
func (m *BatchManager) unjoin(ctx context.Context, batch Batch, recordID string) {
	batch.Members = slices.DeleteFunc(batch.Members, func(r Record) bool { return r.ID == recordID })
	batch.Status = BatchPending
	if len(batch.Members) == 0 {
		batch.Status = BatchFailed
	}
	if err := m.storage.SaveBatch(ctx, batch); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelError, "failed to remove member from batch",
			logger.BatchID(batch.ID),
			logger.NotificationID(recordID),
			logger.Error(err),
		)
	}
}

// Flush sends the batch's summary now. It reports false without error when
// the batch is no longer pending, so repeated calls deliver one summary.
func (m *BatchManager) Flush(ctx context.Context, batchID string) (bool, error) {
	batch, claimed, err := m.claim(ctx, batchID)
	if err != nil || !claimed {
		return false, err
	}
	if err := m.process(ctx, batch); err != nil {
		return true, err
	}
	return true, nil
}

// claim moves a pending batch to processing in one locked read-modify-write.
func (m *BatchManager) claim(ctx context.Context, batchID string) (Batch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, err := m.storage.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, false, err
	}
	if batch.Status != BatchPending {
		return batch, false, nil
	}
	batch.Status = BatchProcessing
	if err := m.storage.SaveBatch(ctx, batch); err != nil {
		return Batch{}, false, fmt.Errorf("failed to claim batch: %w", err)
	}
	return batch, true, nil
}

// process delivers the summary of a claimed batch and records the result.
// Members keep their scheduled status; the summary stands in for them.
// A delivery cut short by ctx returns the batch to pending for a later sweep.
func (m *BatchManager) process(ctx context.Context, batch Batch) error {
	store := context.WithoutCancel(ctx)
	now := m.now()
	summary := m.summarize(store, batch, now)
	batch.SummaryID = summary.ID
	if err := m.storage.SaveRecord(store, summary); err != nil {
		return m.release(store, batch, fmt.Errorf("failed to save batch summary: %w", err))
	}

	delivered, err := m.deliverer.Deliver(ctx, summary)
	switch {
	case err != nil && ctx.Err() != nil:
		return m.release(store, batch, err)
	case err != nil:
		return m.finish(store, batch, BatchFailed, now, err)
	case delivered.Status == StatusDelivered:
		return m.finish(store, batch, BatchSent, now, nil)
	case delivered.Status == StatusFailed:
		return m.finish(store, batch, BatchFailed, now, nil)
	default:
		return m.release(store, batch, nil)
	}
}

func (m *BatchManager) finish(ctx context.Context, batch Batch, status BatchStatus, at time.Time, cause error) error {
	batch.Status = status
	batch.FlushedAt = &at
	m.metrics.batchFlush(status)

	level := slog.LevelInfo
	if status == BatchFailed {
		level = slog.LevelWarn
	}
	m.logger.LogAttrs(ctx, level, "batch flushed",
		logger.BatchID(batch.ID),
		logger.UserID(batch.UserID),
		logger.Status(string(status)),
		logger.Count(len(batch.Members)),
		logger.Error(cause),
	)

	if err := m.storage.SaveBatch(ctx, batch); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to save flushed batch: %w", err))
	}
	return cause
}

// release hands a claimed batch back to the sweeper. When a newer pending
// batch was opened for the same key in the meantime, the members move into
// it and this batch is closed as merged.
func (m *BatchManager) release(ctx context.Context, batch Batch, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.LogAttrs(ctx, slog.LevelWarn, "batch flush interrupted",
		logger.BatchID(batch.ID),
		logger.UserID(batch.UserID),
		logger.Count(len(batch.Members)),
		logger.Error(cause),
	)

	newer, err := m.storage.PendingBatch(ctx, batch.UserID, batch.BatchKey)
	switch {
	case errors.Is(err, ErrNotFound) || (err == nil && newer.ID == batch.ID):
		batch.Status = BatchPending
		if err := m.storage.SaveBatch(ctx, batch); err != nil {
			return errors.Join(cause, fmt.Errorf("failed to release batch: %w", err))
		}
		return cause
	case err != nil:
		return errors.Join(cause, fmt.Errorf("failed to find pending batch: %w", err))
	}

	if err := m.merge(ctx, batch, newer); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// merge moves the members of from into the pending batch into. Members are
// re-pointed before from is closed, so each always references a live batch.
func (m *BatchManager) merge(ctx context.Context, from, into Batch) error {
	members := make([]Record, 0, len(from.Members)+len(into.Members))
	for _, rec := range from.Members {
		rec.BatchID = into.ID
		if stored, err := m.storage.GetRecord(ctx, rec.ID); err == nil && stored.BatchID == from.ID {
			stored.BatchID = into.ID
			if err := m.storage.SaveRecord(ctx, stored); err != nil {
				return fmt.Errorf("failed to move batched record: %w", err)
			}
		}
		members = append(members, rec)
	}
	into.Members = append(members, into.Members...)
	if from.ScheduledFor.Before(into.ScheduledFor) {
		into.ScheduledFor = from.ScheduledFor
	}
	if into.SummaryID == "" {
		into.SummaryID = from.SummaryID
	}
	if err := m.storage.SaveBatch(ctx, into); err != nil {
		return fmt.Errorf("failed to save merged batch: %w", err)
	}

	from.Status = BatchMerged
	from.MergedInto = into.ID
	if err := m.storage.SaveBatch(ctx, from); err != nil {
		return fmt.Errorf("failed to close merged batch: %w", err)
	}
	return nil
}

// settleSummary records a re-delivered summary on the batch it stands for.
// Only failed batches change; a sent batch keeps its result.
func (m *BatchManager) settleSummary(ctx context.Context, summary Record) error {
	if summary.Status != StatusDelivered {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	batch, err := m.storage.GetBatch(ctx, summary.SummaryOf)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load summarized batch: %w", err)
	}
	if batch.Status != BatchFailed {
		return nil
	}
	batch.SummaryID = summary.ID
	return m.finish(ctx, batch, BatchSent, m.now(), nil)
}

// summarize builds the record that represents batch to the user. A batch
// released after an interrupted flush keeps its summary id and attempts.
func (m *BatchManager) summarize(ctx context.Context, batch Batch, now time.Time) Record {
	first := batch.Members[0]
	n := len(batch.Members)

	title := fmt.Sprintf("%d new %s updates", n, batch.BatchKey)
	message := fmt.Sprintf("You have %d new %s updates", n, batch.BatchKey)
	if n == 1 {
		message = first.Message
	}

	opts := first.Options
	opts.Batchable = false

	rec := Record{
		ID:        m.newID(),
		SummaryOf: batch.ID,
		UserID:    batch.UserID,
		Title:     title,
		Message:   message,
		Type:      first.Type,
		Priority:  batch.highestPriority(),
		Category:  first.Category,
		BatchKey:  batch.BatchKey,
		Channels:  batch.channelUnion(),
		Options:   opts,
		ContextData: map[string]any{
			"batch_id":     batch.ID,
			"member_count": n,
			"member_ids":   batch.MemberIDs(),
		},
		Status:    StatusPending,
		CreatedAt: now,
	}
	if batch.SummaryID != "" {
		rec.ID = batch.SummaryID
		if prev, err := m.storage.GetRecord(ctx, batch.SummaryID); err == nil {
			rec.DeliveryAttempts = prev.DeliveryAttempts
			rec.CreatedAt = prev.CreatedAt
		}
	}
	return rec
}

// FlushDue flushes every pending batch whose deadline has passed and returns
// how many it flushed.
func (m *BatchManager) FlushDue(ctx context.Context) (int, error) {
	due, err := m.storage.DueBatches(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list due batches: %w", err)
	}

	var (
		flushed int
		errs    []error
	)
	for _, b := range due {
		ok, err := m.Flush(ctx, b.ID)
		if ok {
			flushed++
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %s: %w", b.ID, err))
		}
	}
	return flushed, errors.Join(errs...)
}

// DeliverDue delivers standalone scheduled records whose time has come.
func (m *BatchManager) DeliverDue(ctx context.Context) (int, error) {
	due, err := m.storage.DueRecords(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list due records: %w", err)
	}

	var errs []error
	for _, rec := range due {
		if err := m.deliver(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", rec.ID, err))
		}
	}
	return len(due), errors.Join(errs...)
}
