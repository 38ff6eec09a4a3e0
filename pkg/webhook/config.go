package webhook

import "time"

// Config holds environment configuration for a Sender.
type Config struct {
	Secret           string        `env:"WEBHOOK_SIGNING_SECRET"`
	Timeout          time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	FailureThreshold int           `env:"WEBHOOK_CIRCUIT_FAILURES" envDefault:"5"`
	RecoveryTimeout  time.Duration `env:"WEBHOOK_CIRCUIT_RECOVERY" envDefault:"30s"`
}

// Options converts the configuration into sender options.
func (c Config) Options() []Option {
	opts := []Option{
		WithTimeout(c.Timeout),
		WithCircuitBreaker(c.FailureThreshold, 2, c.RecoveryTimeout),
	}
	if c.Secret != "" {
		opts = append(opts, WithSignature(c.Secret))
	}
	return opts
}
