package main

import (
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	storageMemory   = "memory"
	storageRedis    = "redis"
	storagePostgres = "postgres"
)

type appConfig struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyd"`
	LogLevel    string `env:"LOG_LEVEL"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`

	EmailEnabled   bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	EmailFooter    string `env:"EMAIL_FOOTER"`
	SMSEnabled     bool   `env:"SMS_ENABLED" envDefault:"false"`
	WebhookEnabled bool   `env:"WEBHOOK_ENABLED" envDefault:"false"`

	StreamAllowedOrigins []string `env:"STREAM_ALLOWED_ORIGINS" envSeparator:","`
}

type configs struct {
	app           appConfig
	http          httpserver.Config
	notifications notifications.Config
}

func loadConfigs() (configs, error) {
	var c configs
	if err := config.Load(&c.app); err != nil {
		return c, fmt.Errorf("app config: %w", err)
	}
	if err := config.Load(&c.http); err != nil {
		return c, fmt.Errorf("http config: %w", err)
	}
	if err := config.Load(&c.notifications); err != nil {
		return c, fmt.Errorf("notifications config: %w", err)
	}
	switch c.app.StorageDriver {
	case storageMemory, storageRedis, storagePostgres:
	default:
		return c, fmt.Errorf("unknown STORAGE_DRIVER %q", c.app.StorageDriver)
	}
	return c, nil
}
