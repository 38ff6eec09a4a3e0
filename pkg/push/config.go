package push

// Config holds Firebase credentials. Push is disabled when neither
// credentials source is set.
type Config struct {
	CredentialsFile string `env:"FIREBASE_CREDENTIALS_PATH"`
	CredentialsJSON string `env:"FIREBASE_CREDENTIALS_JSON"`
	ProjectID       string `env:"FIREBASE_PROJECT_ID"`
}

// Enabled reports whether credentials were provided.
func (c Config) Enabled() bool {
	return c.CredentialsFile != "" || c.CredentialsJSON != ""
}
