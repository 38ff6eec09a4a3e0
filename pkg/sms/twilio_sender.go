package sms

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is the part of the Twilio API the sender needs.
// *twilioApi.ApiService implements it.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends messages with the Twilio Messages API.
type TwilioSender struct {
	api      MessageCreator
	from     string
	callback string
}

// NewTwilioSender creates a sender from account credentials.
func NewTwilioSender(cfg Config) (*TwilioSender, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		return nil, fmt.Errorf("%w: TwilioAccountSID and TwilioAuthToken are required", ErrInvalidConfig)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return NewTwilioSenderWithAPI(client.Api, cfg)
}

// NewTwilioSenderWithAPI creates a sender over an existing API client.
func NewTwilioSenderWithAPI(api MessageCreator, cfg Config) (*TwilioSender, error) {
	if !e164.MatchString(cfg.FromNumber) {
		return nil, fmt.Errorf("%w: FromNumber must be an E.164 phone number", ErrInvalidConfig)
	}
	return &TwilioSender{api: api, from: cfg.FromNumber, callback: cfg.StatusCallbackURL}, nil
}

// SendSMS creates the message. The Twilio client takes no context, so ctx is
// only checked before the call.
func (s *TwilioSender) SendSMS(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Body)
	if s.callback != "" {
		params.SetStatusCallback(s.callback)
	}

	if _, err := s.api.CreateMessage(params); err != nil {
		return classifyTwilioError(err)
	}
	return nil
}

// classifyTwilioError treats 4xx responses other than 429 as rejections.
func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) &&
		restErr.Status >= http.StatusBadRequest &&
		restErr.Status < http.StatusInternalServerError &&
		restErr.Status != http.StatusTooManyRequests {
		return errors.Join(ErrRejected, err)
	}
	return errors.Join(ErrFailedToSend, err)
}
