package email

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mrz1836/postmark"
)

// Postmark error codes that will not change on retry.
// https://postmarkapp.com/developer/api/overview#error-codes
var postmarkPermanentCodes = []int64{
	300, // invalid email request
	406, // inactive recipient
}

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// PostmarkOption configures the Postmark sender.
type PostmarkOption func(*postmark.Client)

// WithPostmarkBaseURL points the client at another API host.
func WithPostmarkBaseURL(u string) PostmarkOption {
	return func(c *postmark.Client) {
		c.BaseURL = u
	}
}

// NewPostmarkClient creates a Postmark-backed email sender.
func NewPostmarkClient(cfg Config, opts ...PostmarkOption) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}

	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	for _, opt := range opts {
		opt(client)
	}
	return &postmarkClient{client: client, config: cfg}, nil
}

// SendEmail sends through Postmark's transactional API with open and HTML
// link tracking. Replies go to the support address.
func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	from := c.config.SenderEmail
	if c.config.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", c.config.SenderName, c.config.SenderEmail)
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       from,
		ReplyTo:    c.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		cause := fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
		if slices.Contains(postmarkPermanentCodes, resp.ErrorCode) {
			return errors.Join(ErrRejected, cause)
		}
		return errors.Join(ErrFailedToSendEmail, cause)
	}
	return nil
}
