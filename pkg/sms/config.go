package sms

// Config selects and configures the SMS provider. Provider is "twilio" or
// "log"; the log provider writes messages to the application logger.
type Config struct {
	Provider          string `env:"SMS_PROVIDER" envDefault:"twilio"`
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	FromNumber        string `env:"TWILIO_PHONE_NUMBER"`
	StatusCallbackURL string `env:"TWILIO_STATUS_CALLBACK_URL"`
	MaxLength         int    `env:"SMS_MAX_LENGTH" envDefault:"320"`
}

const (
	ProviderTwilio = "twilio"
	ProviderLog    = "log"
)
