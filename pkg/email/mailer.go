package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// EmailSender represents an interface for sending emails.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate checks the recipient, subject and HTML body.
func (p SendEmailParams) Validate() error {
	switch {
	case strings.TrimSpace(p.SendTo) == "":
		return fmt.Errorf("%w: SendTo is required", ErrInvalidParams)
	case !emailRegex.MatchString(p.SendTo):
		return fmt.Errorf("%w: SendTo must be a valid email address", ErrInvalidParams)
	case strings.TrimSpace(p.Subject) == "":
		return fmt.Errorf("%w: Subject is required", ErrInvalidParams)
	case strings.TrimSpace(p.BodyHTML) == "":
		return fmt.Errorf("%w: BodyHTML is required", ErrInvalidParams)
	}
	return nil
}

// New builds the sender named by cfg.Provider.
func New(cfg Config) (EmailSender, error) {
	switch cfg.Provider {
	case ProviderPostmark, "":
		return NewPostmarkClient(cfg)
	case ProviderSendGrid:
		return NewSendGridClient(cfg)
	case ProviderDev:
		return NewDevSender(cfg.DevOutputDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func validateSender(cfg Config) error {
	if cfg.SenderEmail == "" {
		return fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail == "" {
		return fmt.Errorf("%w: SupportEmail is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SupportEmail) {
		return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}
