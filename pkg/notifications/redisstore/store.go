// Package redisstore implements notifications.Storage on Redis.
//
// Records, batches, preferences and subscriptions are JSON strings. Sorted
// sets index each user's records by creation time and track due scheduled
// records and pending batches by deadline. A per-(user, key) pointer names
// the current pending batch.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "notifykit:"

// releasePending deletes the pending pointer only while it still names the batch.
var releasePending = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store is a Redis-backed notifications.Storage.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ notifications.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

func (s *Store) recordKey(id string) string       { return s.key("record", id) }
func (s *Store) userRecordsKey(uid string) string { return s.key("user", uid, "records") }
func (s *Store) dueRecordsKey() string            { return s.key("due", "records") }
func (s *Store) batchKey(id string) string        { return s.key("batch", id) }
func (s *Store) dueBatchesKey() string            { return s.key("due", "batches") }
func (s *Store) preferencesKey(uid string) string { return s.key("prefs", uid) }
func (s *Store) pushKey(uid string) string        { return s.key("push", uid) }
func (s *Store) inboxKey(uid string) string       { return s.key("inbox", uid) }

func (s *Store) pendingKey(uid, batchKey string) string {
	return s.key("pending", uid, batchKey)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *Store) SaveRecord(ctx context.Context, rec notifications.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recordKey(rec.ID), data, 0)
		p.ZAdd(ctx, s.userRecordsKey(rec.UserID), redis.Z{Score: score(rec.CreatedAt), Member: rec.ID})
		if isDue(rec) {
			p.ZAdd(ctx, s.dueRecordsKey(), redis.Z{Score: score(*rec.ScheduledFor), Member: rec.ID})
		} else {
			p.ZRem(ctx, s.dueRecordsKey(), rec.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// isDue reports whether rec waits for the scheduler on its own.
func isDue(rec notifications.Record) bool {
	return rec.Status == notifications.StatusScheduled && rec.BatchID == "" && rec.ScheduledFor != nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (notifications.Record, error) {
	var rec notifications.Record
	if err := s.getJSON(ctx, s.recordKey(id), &rec); err != nil {
		return notifications.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Record, error) {
	start, stop := int64(0), int64(-1)
	if !opts.UnreadOnly {
		start = int64(max(opts.Offset, 0))
		if opts.Limit > 0 {
			stop = start + int64(opts.Limit) - 1
		}
	}

	ids, err := s.client.ZRevRange(ctx, s.userRecordsKey(userID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	recs, err := s.records(ctx, ids)
	if err != nil {
		return nil, err
	}
	if !opts.UnreadOnly {
		return recs, nil
	}

	unread := recs[:0]
	for _, rec := range recs {
		if !rec.IsRead() {
			unread = append(unread, rec)
		}
	}
	return paginate(unread, opts.Offset, opts.Limit), nil
}

func (s *Store) DueRecords(ctx context.Context, now time.Time) ([]notifications.Record, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.dueRecordsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due records: %w", err)
	}
	recs, err := s.records(ctx, ids)
	if err != nil {
		return nil, err
	}

	due := recs[:0]
	for _, rec := range recs {
		if isDue(rec) && !rec.ScheduledFor.After(now) {
			due = append(due, rec)
		}
	}
	return due, nil
}

// records loads ids in order, skipping ids whose record has vanished.
func (s *Store) records(ctx context.Context, ids []string) ([]notifications.Record, error) {
	if len(ids) == 0 {
		return []notifications.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make([]notifications.Record, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec notifications.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) SaveBatch(ctx context.Context, b notifications.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	pending := s.pendingKey(b.UserID, b.BatchKey)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.batchKey(b.ID), data, 0)
		if b.Status == notifications.BatchPending {
			p.Set(ctx, pending, b.ID, 0)
			p.ZAdd(ctx, s.dueBatchesKey(), redis.Z{Score: score(b.ScheduledFor), Member: b.ID})
			return nil
		}
		p.ZRem(ctx, s.dueBatchesKey(), b.ID)
		releasePending.Eval(ctx, p, []string{pending}, b.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (notifications.Batch, error) {
	var b notifications.Batch
	if err := s.getJSON(ctx, s.batchKey(id), &b); err != nil {
		return notifications.Batch{}, err
	}
	return b, nil
}

func (s *Store) PendingBatch(ctx context.Context, userID, key string) (notifications.Batch, error) {
	id, err := s.client.Get(ctx, s.pendingKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return notifications.Batch{}, notifications.ErrNotFound
	}
	if err != nil {
		return notifications.Batch{}, fmt.Errorf("failed to find pending batch: %w", err)
	}

	b, err := s.GetBatch(ctx, id)
	if err != nil {
		return notifications.Batch{}, err
	}
	if b.Status != notifications.BatchPending {
		return notifications.Batch{}, notifications.ErrNotFound
	}
	return b, nil
}

func (s *Store) DueBatches(ctx context.Context, now time.Time) ([]notifications.Batch, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.dueBatchesKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due batches: %w", err)
	}

	out := make([]notifications.Batch, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBatch(ctx, id)
		if errors.Is(err, notifications.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if b.Status == notifications.BatchPending && !b.ScheduledFor.After(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (notifications.Preferences, error) {
	var p notifications.Preferences
	if err := s.getJSON(ctx, s.preferencesKey(userID), &p); err != nil {
		return notifications.Preferences{}, err
	}
	return p, nil
}

func (s *Store) SavePreferences(ctx context.Context, prefs notifications.Preferences) error {
	return s.setJSON(ctx, s.preferencesKey(prefs.UserID), prefs)
}

func (s *Store) SaveSubscription(ctx context.Context, sub notifications.PushSubscription) error {
	return s.setJSON(ctx, s.pushKey(sub.UserID), sub)
}

func (s *Store) ActiveSubscription(ctx context.Context, userID string) (notifications.PushSubscription, error) {
	var sub notifications.PushSubscription
	if err := s.getJSON(ctx, s.pushKey(userID), &sub); err != nil {
		return notifications.PushSubscription{}, err
	}
	if !sub.Active() {
		return notifications.PushSubscription{}, notifications.ErrNotFound
	}
	return sub, nil
}

// ExpireSubscription runs as an optimistic transaction on the user's key so
// a concurrent re-subscribe is never overwritten.
func (s *Store) ExpireSubscription(ctx context.Context, userID, endpoint string, at time.Time) error {
	key := s.pushKey(userID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var sub notifications.PushSubscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}
		if !sub.Active() || (endpoint != "" && sub.Endpoint != endpoint) {
			return nil
		}

		sub.ExpiredAt = &at
		data, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("failed to encode subscription: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to expire subscription: %w", err)
	}
	return nil
}

func (s *Store) AppendInbox(ctx context.Context, userID, recordID string) error {
	if err := s.client.RPush(ctx, s.inboxKey(userID), recordID).Err(); err != nil {
		return fmt.Errorf("failed to append inbox: %w", err)
	}
	return nil
}

func (s *Store) Inbox(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.inboxKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	return ids, nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return notifications.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
