package notifications

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage for tests and single-process use.
type MemoryStorage struct {
	mu            sync.RWMutex
	records       map[string]Record
	batches       map[string]Batch
	preferences   map[string]Preferences
	subscriptions map[string]PushSubscription
	inbox         map[string][]string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:       make(map[string]Record),
		batches:       make(map[string]Batch),
		preferences:   make(map[string]Preferences),
		subscriptions: make(map[string]PushSubscription),
		inbox:         make(map[string][]string),
	}
}

func (s *MemoryStorage) SaveRecord(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStorage) GetRecord(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStorage) ListRecords(_ context.Context, userID string, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	var out []Record
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if opts.UnreadOnly && rec.IsRead() {
			continue
		}
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return page(out, opts.Offset, opts.Limit), nil
}

func (s *MemoryStorage) DueRecords(_ context.Context, now time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Status == StatusScheduled && rec.BatchID == "" &&
			rec.ScheduledFor != nil && !rec.ScheduledFor.After(now) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return a.ScheduledFor.Compare(*b.ScheduledFor) })
	return out, nil
}

func (s *MemoryStorage) SaveBatch(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStorage) GetBatch(_ context.Context, id string) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStorage) PendingBatch(_ context.Context, userID, key string) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.batches {
		if b.Status == BatchPending && b.UserID == userID && b.BatchKey == key {
			return b.Clone(), nil
		}
	}
	return Batch{}, ErrNotFound
}

func (s *MemoryStorage) DueBatches(_ context.Context, now time.Time) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Batch
	for _, b := range s.batches {
		if b.Status == BatchPending && !b.ScheduledFor.After(now) {
			out = append(out, b.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Batch) int { return a.ScheduledFor.Compare(b.ScheduledFor) })
	return out, nil
}

func (s *MemoryStorage) GetPreferences(_ context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStorage) SavePreferences(_ context.Context, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[prefs.UserID] = prefs.Clone()
	return nil
}

func (s *MemoryStorage) SaveSubscription(_ context.Context, sub PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = sub
	return nil
}

func (s *MemoryStorage) ActiveSubscription(_ context.Context, userID string) (PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	if !ok || !sub.Active() {
		return PushSubscription{}, ErrNotFound
	}
	return sub, nil
}

func (s *MemoryStorage) ExpireSubscription(_ context.Context, userID, endpoint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[userID]
	if !ok || !sub.Active() || (endpoint != "" && sub.Endpoint != endpoint) {
		return nil
	}
	sub.ExpiredAt = &at
	s.subscriptions[userID] = sub
	return nil
}

func (s *MemoryStorage) AppendInbox(_ context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox[userID] = append(s.inbox[userID], recordID)
	return nil
}

func (s *MemoryStorage) Inbox(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.inbox[userID]), nil
}

// page applies offset and limit; a non-positive limit returns everything after offset.
func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
