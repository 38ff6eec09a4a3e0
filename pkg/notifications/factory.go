package notifications

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// CreateRequest is the raw input for a new notification.
type CreateRequest struct {
	UserID    string             `json:"user_id" validate:"required"`
	Title     string             `json:"title" validate:"required,max=200"`
	Message   string             `json:"message" validate:"required,max=2000"`
	Localized map[string]Content `json:"localized,omitempty" validate:"omitempty,dive,keys,bcp47_language_tag,endkeys"`

	Type     Type     `json:"type,omitempty" validate:"omitempty,oneof=info success warning error achievement social financial system"`
	Priority Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Category string   `json:"category,omitempty" validate:"max=100"`
	BatchKey string   `json:"batch_key,omitempty" validate:"max=100"`

	Actionable bool     `json:"actionable,omitempty"`
	Actions    []Action `json:"actions,omitempty" validate:"omitempty,dive"`

	Channels    []Channel       `json:"channels" validate:"required,min=1,dive,oneof=in_app push email sms webhook"`
	Options     DeliveryOptions `json:"options"`
	ContextData map[string]any  `json:"context_data,omitempty"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Factory turns requests into canonical records.
type Factory struct {
	now   func() time.Time
	newID func() string
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithFactoryClock overrides the time source.
func WithFactoryClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		if now != nil {
			f.now = now
		}
	}
}

// WithIDGenerator overrides uuid-based ids.
func WithIDGenerator(newID func() string) FactoryOption {
	return func(f *Factory) {
		if newID != nil {
			f.newID = newID
		}
	}
}

// NewFactory creates a Factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build validates req and fills defaults from prefs: priority from the
// category, batching limits from the user's batching config and the primary
// channel's frequency, and the localized content matching the user's locale.
func (f *Factory) Build(req CreateRequest, prefs Preferences) (Record, error) {
	now := f.now()

	verr := NewValidationError()
	if err := validateStruct(req); err != nil {
		ve, ok := err.(ValidationError)
		if !ok {
			return Record{}, err
		}
		verr = ve
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		verr.Add("expires_at", "must be in the future")
	}
	if req.Options.Batchable && req.BatchKey == "" && req.Category == "" {
		verr.Add("batch_key", "is required for batchable notifications without a category")
	}
	if !verr.Empty() {
		return Record{}, verr
	}

	cat := prefs.Categories[req.Category]

	rec := Record{
		ID:          f.newID(),
		UserID:      req.UserID,
		Title:       req.Title,
		Message:     req.Message,
		Localized:   req.Localized,
		Type:        req.Type,
		Priority:    req.Priority,
		Category:    req.Category,
		BatchKey:    req.BatchKey,
		Actions:     make([]Action, 0, len(req.Actions)),
		Channels:    orderChannels(req.Channels, cat.PreferredChannel),
		Options:     req.Options,
		ContextData: req.ContextData,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   cloneTime(req.ExpiresAt),
	}
	if rec.Type == "" {
		rec.Type = TypeInfo
	}
	if rec.Priority == "" {
		rec.Priority = cat.Priority
	}
	if rec.Priority == "" {
		rec.Priority = PriorityMedium
	}
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		rec.ScheduledFor = cloneTime(req.ScheduledFor)
	}

	for _, a := range req.Actions {
		if a.ID == "" {
			a.ID = f.newID()
		}
		if a.Kind == "" {
			a.Kind = ActionSecondary
		}
		rec.Actions = append(rec.Actions, a)
	}
	rec.Actionable = req.Actionable || len(rec.Actions) > 0
	if len(rec.Actions) == 0 {
		rec.Actions = nil
	}

	if rec.Options.MaxBatchSize == 0 {
		rec.Options.MaxBatchSize = prefs.Batching.MaxBatchSize
	}
	if rec.Options.MaxBatchSize < 1 {
		verr.Add("options.max_batch_size", "must be at least 1")
		return Record{}, verr
	}
	delay := prefs.Batching.BatchDelayMinutes
	if rec.Options.BatchDelayMinutes != nil {
		delay = *rec.Options.BatchDelayMinutes
	}
	if window := prefs.Channels[rec.Channels[0]].Frequency.WindowMinutes(); delay < window {
		delay = window
	}
	rec.Options.BatchDelayMinutes = &delay
	rec.Options.FallbackChannels = dedupeChannels(rec.Options.FallbackChannels)

	if content, ok := localize(req.Localized, prefs.Locale); ok {
		rec.Title = content.Title
		rec.Message = content.Message
	}
	return rec, nil
}

// orderChannels drops duplicates and moves preferred to the front when present.
func orderChannels(channels []Channel, preferred Channel) []Channel {
	out := dedupeChannels(channels)
	if i := slices.Index(out, preferred); i > 0 {
		out = slices.Delete(out, i, i+1)
		out = slices.Insert(out, 0, preferred)
	}
	return out
}

func dedupeChannels(channels []Channel) []Channel {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// localize picks the variant that best matches locale. The request's own
// content counts as the fallback, so a weak match keeps it.
func localize(variants map[string]Content, locale string) (Content, bool) {
	if len(variants) == 0 || locale == "" {
		return Content{}, false
	}
	want, err := language.Parse(locale)
	if err != nil {
		return Content{}, false
	}

	keys := make([]string, 0, len(variants))
	for k := range variants {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	supported := []language.Tag{language.Und}
	index := []string{""}
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		supported = append(supported, tag)
		index = append(index, k)
	}

	_, i, conf := language.NewMatcher(supported).Match(want)
	if i == 0 || conf == language.No {
		return Content{}, false
	}
	return variants[index[i]], true
}
