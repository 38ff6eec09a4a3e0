package email_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func withdrawalPayload() notifications.Payload {
	return notifications.Payload{
		NotificationID: "n1",
		UserID:         "u1",
		Title:          "Withdrawal approved",
		Message:        "Your withdrawal of $120 is on the way.",
		Type:           notifications.TypeFinancial,
		Actions: []notifications.Action{
			{ID: "a1", Label: "View withdrawal", Ref: "/withdrawals/42"},
			{ID: "a2", Label: "Help", Ref: "https://help.example.com/withdrawals"},
			{ID: "a3", Label: "Approve", Ref: "approve_withdrawal"},
		},
	}
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	sender := &MockEmailSender{}
	sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "user@example.com" &&
			p.Subject == "Withdrawal approved" &&
			p.Tag == "financial"
	})).Run(func(args mock.Arguments) {
		p := args.Get(1).(email.SendEmailParams)
		assert.Contains(t, p.BodyHTML, `href="https://app.example.com/withdrawals/42"`)
		assert.Contains(t, p.BodyHTML, `href="https://help.example.com/withdrawals"`)
		assert.NotContains(t, p.BodyHTML, "approve_withdrawal")
		assert.Contains(t, p.BodyText, "View withdrawal: https://app.example.com/withdrawals/42")
		assert.Contains(t, p.BodyText, "Manage your notification settings")
	}).Return(nil).Once()

	tr := email.NewTransport(sender,
		email.WithLinkBaseURL("https://app.example.com"),
		email.WithFooter("Manage your notification settings in your account."),
	)
	require.NoError(t, tr.Send(context.Background(), "user@example.com", withdrawalPayload()))
	sender.AssertExpectations(t)
}

func TestTransport_RelativeLinksWithoutBase(t *testing.T) {
	t.Parallel()

	sender := &MockEmailSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		p := args.Get(1).(email.SendEmailParams)
		assert.NotContains(t, p.BodyHTML, "/withdrawals/42")
		assert.Contains(t, p.BodyHTML, "https://help.example.com/withdrawals")
	}).Return(nil).Once()

	require.NoError(t, email.NewTransport(sender).Send(context.Background(), "user@example.com", withdrawalPayload()))
	sender.AssertExpectations(t)
}

func TestTransport_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		sendErr       error
		wantPermanent bool
	}{
		{"invalid params", errors.Join(email.ErrInvalidParams, errors.New("SendTo must be a valid email address")), true},
		{"rejected", errors.Join(email.ErrRejected, errors.New("inactive recipient")), true},
		{"provider outage", errors.Join(email.ErrFailedToSendEmail, errors.New("502")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sender := &MockEmailSender{}
			sender.On("SendEmail", mock.Anything, mock.Anything).Return(tt.sendErr)

			err := email.NewTransport(sender).Send(context.Background(), "user@example.com", withdrawalPayload())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sendErr)
			assert.Equal(t, tt.wantPermanent, errors.Is(err, notifications.ErrPermanentFailure))
			assert.Equal(t, !tt.wantPermanent, notifications.IsRetryable(err))
		})
	}
}
