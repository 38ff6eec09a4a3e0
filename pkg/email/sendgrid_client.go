package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridSendEndpoint = "/v3/mail/send"

type sendGridClient struct {
	apiKey string
	host   string
	config Config
}

// SendGridOption configures the SendGrid sender.
type SendGridOption func(*sendGridClient)

// WithSendGridHost points the client at another API host.
func WithSendGridHost(host string) SendGridOption {
	return func(c *sendGridClient) {
		c.host = host
	}
}

// NewSendGridClient creates a SendGrid-backed email sender.
func NewSendGridClient(cfg Config, opts ...SendGridOption) (EmailSender, error) {
	if cfg.SendGridAPIKey == "" {
		return nil, fmt.Errorf("%w: SendGridAPIKey is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}

	c := &sendGridClient{apiKey: cfg.SendGridAPIKey, config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendEmail posts to the v3 mail send API. A fresh request is built per call
// because sendgrid.Client mutates its body on send.
func (c *sendGridClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	from := mail.NewEmail(c.config.SenderName, c.config.SenderEmail)
	to := mail.NewEmail("", params.SendTo)
	msg := mail.NewSingleEmail(from, params.Subject, to, params.BodyText, params.BodyHTML)
	msg.SetReplyTo(mail.NewEmail("", c.config.SupportEmail))
	if params.Tag != "" {
		msg.AddCategories(params.Tag)
	}

	req := sendgrid.GetRequest(c.apiKey, sendGridSendEndpoint, c.host)
	req.Method = http.MethodPost
	req.Body = mail.GetRequestBody(msg)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return errors.Join(ErrFailedToSendEmail, fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body))
	default:
		return errors.Join(ErrRejected, fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body))
	}
}
