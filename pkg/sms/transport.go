package sms

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const defaultMaxLength = 320

// Transport sends notification payloads as text messages.
type Transport struct {
	sender    Sender
	maxLength int
}

var _ notifications.Transport = (*Transport)(nil)

// NewTransport wraps sender. Bodies longer than maxLength runes are cut with
// an ellipsis; zero or less means 320.
func NewTransport(sender Sender, maxLength int) *Transport {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	return &Transport{sender: sender, maxLength: maxLength}
}

func (t *Transport) Send(ctx context.Context, address string, p notifications.Payload) error {
	err := t.sender.SendSMS(ctx, Message{To: address, Body: t.body(p)})
	if errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrRejected) {
		return errors.Join(notifications.ErrPermanentFailure, err)
	}
	return err
}

// body renders "Title: Message", dropping the title when the message already
// starts with it.
func (t *Transport) body(p notifications.Payload) string {
	text := p.Message
	if p.Title != "" && !strings.HasPrefix(p.Message, p.Title) {
		text = p.Title + ": " + p.Message
	}
	if utf8.RuneCountInString(text) <= t.maxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:t.maxLength-1]) + "…"
}
