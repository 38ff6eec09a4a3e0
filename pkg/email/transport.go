package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/email/templates"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Transport renders notification payloads and sends them with an EmailSender.
type Transport struct {
	sender  EmailSender
	baseURL *url.URL
	footer  string
}

var _ notifications.Transport = (*Transport)(nil)

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithLinkBaseURL resolves relative action refs against base. Refs that stay
// relative are left out of the email.
func WithLinkBaseURL(base string) TransportOption {
	return func(t *Transport) {
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			t.baseURL = u
		}
	}
}

// WithFooter sets the line printed under every email.
func WithFooter(footer string) TransportOption {
	return func(t *Transport) {
		t.footer = footer
	}
}

// NewTransport wraps sender as a notifications.Transport.
func NewTransport(sender EmailSender, opts ...TransportOption) *Transport {
	t := &Transport{sender: sender}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send emails p to address. Invalid addresses and provider rejections are
// marked with notifications.ErrPermanentFailure.
func (t *Transport) Send(ctx context.Context, address string, p notifications.Payload) error {
	msg := templates.Message{
		Title:   p.Title,
		Body:    p.Message,
		Links:   t.links(p.Actions),
		Footer:  t.footer,
		Preview: p.Message,
	}
	html, err := templates.Render(ctx, templates.Notification(msg))
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	tag := p.Category
	if tag == "" {
		tag = string(p.Type)
	}

	err = t.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   address,
		Subject:  p.Title,
		BodyHTML: html,
		BodyText: templates.PlainText(msg),
		Tag:      tag,
	})
	if errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrRejected) {
		return errors.Join(notifications.ErrPermanentFailure, err)
	}
	return err
}

// links keeps the actions whose ref is, or resolves to, an absolute web URL.
func (t *Transport) links(actions []notifications.Action) []templates.Link {
	var out []templates.Link
	for _, a := range actions {
		u, err := url.Parse(a.Ref)
		if err != nil {
			continue
		}
		if !u.IsAbs() {
			if t.baseURL == nil || !strings.HasPrefix(a.Ref, "/") {
				continue
			}
			u = t.baseURL.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		out = append(out, templates.Link{Label: a.Label, URL: u.String()})
	}
	return out
}
