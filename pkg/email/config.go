package email

// Config selects and configures the email provider.
// Provider is one of "postmark", "sendgrid" or "dev". Only the credentials of
// the selected provider are checked.
type Config struct {
	Provider             string `env:"EMAIL_PROVIDER" envDefault:"postmark"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SendGridAPIKey       string `env:"SENDGRID_API_KEY"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SenderName           string `env:"SENDER_NAME" envDefault:"Notifykit"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevOutputDir         string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`

	// LinkBaseURL turns relative action refs such as "/withdrawals/42" into
	// absolute links in rendered emails.
	LinkBaseURL string `env:"EMAIL_LINK_BASE_URL"`
}

const (
	ProviderPostmark = "postmark"
	ProviderSendGrid = "sendgrid"
	ProviderDev      = "dev"
)
