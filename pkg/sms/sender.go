// Package sms sends text messages through Twilio.
//
// Wrap a Sender with NewTransport to use it as the sms channel of a
// notifications engine. Phone numbers must be in E.164 form.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Sender delivers a single text message.
type Sender interface {
	SendSMS(ctx context.Context, msg Message) error
}

// Message is an outgoing text message.
type Message struct {
	To   string
	Body string
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Validate checks the number format and that the body is not blank.
func (m Message) Validate() error {
	if !e164.MatchString(m.To) {
		return fmt.Errorf("%w: To must be an E.164 phone number", ErrInvalidParams)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: Body is required", ErrInvalidParams)
	}
	return nil
}

// New builds the sender named by cfg.Provider.
func New(cfg Config, log *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case ProviderTwilio, "":
		return NewTwilioSender(cfg)
	case ProviderLog:
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// LogSender logs messages instead of sending them.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger means slog.Default().
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) SendSMS(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "sms message",
		logger.Component("sms"),
		slog.String("to", msg.To),
		slog.String("body", msg.Body),
	)
	return nil
}
