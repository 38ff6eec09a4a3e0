package webhook

import (
	"context"
	"errors"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Transport posts notification payloads to the user's webhook URL.
type Transport struct {
	sender *Sender
}

var _ notifications.Transport = (*Transport)(nil)

// NewTransport wraps sender as a notifications.Transport.
func NewTransport(sender *Sender) *Transport {
	return &Transport{sender: sender}
}

// Send delivers p to address. Failures that a retry cannot fix are marked
// with notifications.ErrPermanentFailure.
func (t *Transport) Send(ctx context.Context, address string, p notifications.Payload) error {
	err := t.sender.Send(ctx, address, p)
	if err != nil && IsPermanent(err) {
		return errors.Join(notifications.ErrPermanentFailure, err)
	}
	return err
}
