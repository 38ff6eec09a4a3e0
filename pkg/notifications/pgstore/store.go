// Package pgstore implements notifications.Storage on PostgreSQL with pgx.
//
// Each entity is stored as JSONB next to the columns the queries filter on.
// A partial unique index keeps one pending batch per user and key. Apply the
// embedded schema with pg.Migrate(ctx, pool, pgstore.Migrations,
// pgstore.MigrationsDir, cfg, log) before use.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// Migrations holds the goose schema for this store.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// ErrPendingBatchExists is returned when a second pending batch is saved for
// the same user and key.
var ErrPendingBatchExists = notifications.ErrPendingBatchExists

// DB is the subset of pgxpool.Pool and pgx.Tx the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed notifications.Storage.
type Store struct {
	db DB
}

var _ notifications.Storage = (*Store)(nil)

// New creates a Store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

const upsertRecord = `
INSERT INTO notification_records (id, user_id, status, batch_id, scheduled_for, read_at, created_at, data)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    user_id       = EXCLUDED.user_id,
    status        = EXCLUDED.status,
    batch_id      = EXCLUDED.batch_id,
    scheduled_for = EXCLUDED.scheduled_for,
    read_at       = EXCLUDED.read_at,
    created_at    = EXCLUDED.created_at,
    data          = EXCLUDED.data`

func (s *Store) SaveRecord(ctx context.Context, rec notifications.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertRecord,
		rec.ID, rec.UserID, string(rec.Status), rec.BatchID,
		rec.ScheduledFor, rec.ReadAt, rec.CreatedAt, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (notifications.Record, error) {
	return queryOne[notifications.Record](ctx, s.db,
		`SELECT data FROM notification_records WHERE id = $1`, id)
}

func (s *Store) ListRecords(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Record, error) {
	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}
	return queryAll[notifications.Record](ctx, s.db, `
SELECT data FROM notification_records
WHERE user_id = $1 AND (NOT $2::bool OR read_at IS NULL)
ORDER BY created_at DESC, id DESC
OFFSET $3 LIMIT $4`,
		userID, opts.UnreadOnly, max(opts.Offset, 0), limit)
}

func (s *Store) DueRecords(ctx context.Context, now time.Time) ([]notifications.Record, error) {
	return queryAll[notifications.Record](ctx, s.db, `
SELECT data FROM notification_records
WHERE status = 'scheduled' AND batch_id IS NULL AND scheduled_for <= $1
ORDER BY scheduled_for, id`, now)
}

const upsertBatch = `
INSERT INTO notification_batches (id, user_id, batch_key, status, scheduled_for, data)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    status        = EXCLUDED.status,
    scheduled_for = EXCLUDED.scheduled_for,
    data          = EXCLUDED.data`

func (s *Store) SaveBatch(ctx context.Context, b notifications.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertBatch,
		b.ID, b.UserID, b.BatchKey, string(b.Status), b.ScheduledFor, data,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(ErrPendingBatchExists, err)
	}
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (notifications.Batch, error) {
	return queryOne[notifications.Batch](ctx, s.db,
		`SELECT data FROM notification_batches WHERE id = $1`, id)
}

func (s *Store) PendingBatch(ctx context.Context, userID, key string) (notifications.Batch, error) {
	return queryOne[notifications.Batch](ctx, s.db, `
SELECT data FROM notification_batches
WHERE user_id = $1 AND batch_key = $2 AND status = 'pending'`, userID, key)
}

func (s *Store) DueBatches(ctx context.Context, now time.Time) ([]notifications.Batch, error) {
	return queryAll[notifications.Batch](ctx, s.db, `
SELECT data FROM notification_batches
WHERE status = 'pending' AND scheduled_for <= $1
ORDER BY scheduled_for, id`, now)
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (notifications.Preferences, error) {
	return queryOne[notifications.Preferences](ctx, s.db,
		`SELECT data FROM notification_preferences WHERE user_id = $1`, userID)
}

func (s *Store) SavePreferences(ctx context.Context, prefs notifications.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO notification_preferences (user_id, data, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		prefs.UserID, data, prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub notifications.PushSubscription) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO push_subscriptions (user_id, endpoint, platform, created_at, expired_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET
    endpoint   = EXCLUDED.endpoint,
    platform   = EXCLUDED.platform,
    created_at = EXCLUDED.created_at,
    expired_at = EXCLUDED.expired_at`,
		sub.UserID, sub.Endpoint, sub.Platform, sub.CreatedAt, sub.ExpiredAt)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *Store) ActiveSubscription(ctx context.Context, userID string) (notifications.PushSubscription, error) {
	var sub notifications.PushSubscription
	err := s.db.QueryRow(ctx, `
SELECT user_id, endpoint, platform, created_at, expired_at
FROM push_subscriptions
WHERE user_id = $1 AND expired_at IS NULL`, userID).
		Scan(&sub.UserID, &sub.Endpoint, &sub.Platform, &sub.CreatedAt, &sub.ExpiredAt)
	if pg.IsNotFoundError(err) {
		return notifications.PushSubscription{}, notifications.ErrNotFound
	}
	if err != nil {
		return notifications.PushSubscription{}, fmt.Errorf("failed to load subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) ExpireSubscription(ctx context.Context, userID, endpoint string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE push_subscriptions SET expired_at = $2
WHERE user_id = $1 AND expired_at IS NULL AND ($3::text = '' OR endpoint = $3)`,
		userID, at, endpoint)
	if err != nil {
		return fmt.Errorf("failed to expire subscription: %w", err)
	}
	return nil
}

func (s *Store) AppendInbox(ctx context.Context, userID, recordID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO notification_inbox (user_id, record_id) VALUES ($1, $2)`, userID, recordID)
	if err != nil {
		return fmt.Errorf("failed to append inbox: %w", err)
	}
	return nil
}

func (s *Store) Inbox(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record_id FROM notification_inbox WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	return ids, nil
}

// queryOne scans a single JSONB column into T, mapping no rows to ErrNotFound.
func queryOne[T any](ctx context.Context, db DB, sql string, args ...any) (T, error) {
	var v T
	err := db.QueryRow(ctx, sql, args...).Scan(&v)
	if pg.IsNotFoundError(err) {
		return v, notifications.ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("query failed: %w", err)
	}
	return v, nil
}

// queryAll scans every row's JSONB column into T.
func queryAll[T any](ctx context.Context, db DB, sql string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[T])
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return out, nil
}
