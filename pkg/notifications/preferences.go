package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"
	_ "time/tzdata"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Frequency limits how often a channel may be used.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// WindowMinutes is the minimum batching delay the frequency implies.
func (f Frequency) WindowMinutes() int {
	switch f {
	case FrequencyHourly:
		return 60
	case FrequencyDaily:
		return 24 * 60
	case FrequencyWeekly:
		return 7 * 24 * 60
	default:
		return 0
	}
}

// QuietHours is a daily window in "HH:MM" local time. End before Start wraps
// past midnight.
type QuietHours struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

// Contains reports whether t, already in the user's zone, falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	start, err := clockMinutes(q.Start)
	if err != nil {
		return false
	}
	end, err := clockMinutes(q.End)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	switch {
	case start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ChannelPreference configures one channel for a user.
type ChannelPreference struct {
	Enabled    bool        `json:"enabled"`
	QuietHours *QuietHours `json:"quiet_hours,omitempty" validate:"omitempty"`
	Frequency  Frequency   `json:"frequency" validate:"omitempty,oneof=immediate hourly daily weekly"`
	// Address is the destination for email, sms and webhook.
	Address string `json:"address,omitempty"`
}

// CategoryPreference overrides defaults for one notification category.
type CategoryPreference struct {
	Enabled          bool     `json:"enabled"`
	PreferredChannel Channel  `json:"preferred_channel,omitempty" validate:"omitempty,oneof=in_app push email sms webhook"`
	Priority         Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
}

// BatchingPreference configures digesting.
type BatchingPreference struct {
	Enabled           bool `json:"enabled"`
	MaxBatchSize      int  `json:"max_batch_size" validate:"gte=1"`
	BatchDelayMinutes int  `json:"batch_delay_minutes" validate:"gte=0"`
}

// Preferences holds one user's notification settings.
type Preferences struct {
	UserID     string                        `json:"user_id"`
	Channels   map[Channel]ChannelPreference `json:"channels" validate:"dive"`
	Categories map[string]CategoryPreference `json:"categories" validate:"dive"`
	Batching   BatchingPreference            `json:"batching"`
	Locale     string                        `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
	Timezone   string                        `json:"timezone,omitempty" validate:"omitempty,timezone"`
	UpdatedAt  time.Time                     `json:"updated_at"`
}

const (
	DefaultMaxBatchSize      = 10
	DefaultBatchDelayMinutes = 5
)

// DefaultPreferences returns the settings a never-seen user starts with:
// every channel enabled and batching on.
func DefaultPreferences(userID string, now time.Time) Preferences {
	channels := make(map[Channel]ChannelPreference, len(AllChannels))
	for _, ch := range AllChannels {
		channels[ch] = ChannelPreference{Enabled: true, Frequency: FrequencyImmediate}
	}
	return Preferences{
		UserID:     userID,
		Channels:   channels,
		Categories: map[string]CategoryPreference{},
		Batching: BatchingPreference{
			Enabled:           true,
			MaxBatchSize:      DefaultMaxBatchSize,
			BatchDelayMinutes: DefaultBatchDelayMinutes,
		},
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no maps with p.
func (p Preferences) Clone() Preferences {
	c := p
	c.Channels = make(map[Channel]ChannelPreference, len(p.Channels))
	for ch, cp := range p.Channels {
		if cp.QuietHours != nil {
			q := *cp.QuietHours
			cp.QuietHours = &q
		}
		c.Channels[ch] = cp
	}
	c.Categories = maps.Clone(p.Categories)
	if c.Categories == nil {
		c.Categories = map[string]CategoryPreference{}
	}
	return c
}

// Location returns the user's time zone, UTC when unset or unknown.
func (p Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveChannels filters rec's channels against the preferences at now.
// Disabled channels are dropped and so are channels in quiet hours, unless
// the record is urgent. A disabled category keeps only in_app. When nothing
// is left the record goes to in_app.
func (p Preferences) ResolveChannels(rec Record, now time.Time) []Channel {
	if cat, ok := p.Categories[rec.Category]; ok && !cat.Enabled {
		return []Channel{ChannelInApp}
	}

	local := now.In(p.Location())
	out := make([]Channel, 0, len(rec.Channels))
	for _, ch := range rec.Channels {
		if p.allows(ch, rec.Priority, local) {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return []Channel{ChannelInApp}
	}
	return out
}

// allows reports whether ch is enabled and outside quiet hours (or urgent).
func (p Preferences) allows(ch Channel, priority Priority, local time.Time) bool {
	cp, ok := p.Channels[ch]
	if !ok || !cp.Enabled {
		return false
	}
	if priority != PriorityUrgent && cp.QuietHours != nil && cp.QuietHours.Contains(local) {
		return false
	}
	return true
}

// PreferenceStore serves per-user preferences, creating defaults lazily.
type PreferenceStore struct {
	storage PreferenceStorage
	now     func() time.Time
	logger  *slog.Logger
}

// PreferenceStoreOption configures a PreferenceStore.
type PreferenceStoreOption func(*PreferenceStore)

// WithPreferenceLogger sets the logger for the PreferenceStore.
func WithPreferenceLogger(l *slog.Logger) PreferenceStoreOption {
	return func(s *PreferenceStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPreferenceClock overrides the time source.
func WithPreferenceClock(now func() time.Time) PreferenceStoreOption {
	return func(s *PreferenceStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPreferenceStore creates a PreferenceStore over storage.
func NewPreferenceStore(storage PreferenceStorage, opts ...PreferenceStoreOption) *PreferenceStore {
	s := &PreferenceStore{
		storage: storage,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the user's preferences. Defaults are persisted on first access
// so later loads read the stored values.
func (s *PreferenceStore) Load(ctx context.Context, userID string) (Preferences, error) {
	if userID == "" {
		v := NewValidationError()
		v.Add("user_id", "is required")
		return Preferences{}, v
	}

	prefs, err := s.storage.GetPreferences(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}

	prefs = DefaultPreferences(userID, s.now())
	if err := s.storage.SavePreferences(ctx, prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to persist default preferences: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "created default notification preferences",
		logger.UserID(userID),
	)
	return prefs, nil
}

// Save validates and stores prefs for userID.
func (s *PreferenceStore) Save(ctx context.Context, userID string, prefs Preferences) error {
	prefs = prefs.Clone()
	prefs.UserID = userID
	if err := validatePreferences(prefs); err != nil {
		return err
	}
	for _, ch := range AllChannels {
		if _, ok := prefs.Channels[ch]; !ok {
			prefs.Channels[ch] = ChannelPreference{Frequency: FrequencyImmediate}
		}
	}
	prefs.UpdatedAt = s.now()

	if err := s.storage.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// Address returns the destination for ch from the user's channel preference.
func (s *PreferenceStore) Address(ctx context.Context, userID string, ch Channel) (string, error) {
	prefs, err := s.Load(ctx, userID)
	if err != nil {
		return "", err
	}
	addr := prefs.Channels[ch].Address
	if addr == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, ch)
	}
	return addr, nil
}
