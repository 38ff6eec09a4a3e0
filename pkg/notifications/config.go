package notifications

import "time"

// Config holds engine settings loaded from the environment.
type Config struct {
	SweepInterval   time.Duration `env:"NOTIFICATIONS_SWEEP_INTERVAL" envDefault:"1m"`
	HubBufferSize   int           `env:"NOTIFICATIONS_HUB_BUFFER_SIZE" envDefault:"32"`
	HubMaxUsers     int           `env:"NOTIFICATIONS_HUB_MAX_USERS" envDefault:"10000"`
	ShutdownTimeout time.Duration `env:"NOTIFICATIONS_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// EngineOptions converts the config into engine options.
func (c Config) EngineOptions() []EngineOption {
	return []EngineOption{
		WithEngineSweepInterval(c.SweepInterval),
	}
}

// NewHub builds a UI hub sized by the config.
func (c Config) NewHub(opts ...HubOption) *Hub {
	return NewHub(c.HubBufferSize, append([]HubOption{WithHubMaxUsers(c.HubMaxUsers)}, opts...)...)
}
