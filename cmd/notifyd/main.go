// Command notifyd serves the notification engine over HTTP.
//
// Configuration comes from the environment (and a local .env file). See
// appConfig and the Config types of the packages it wires for the variables.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/notifykit/modules/notifyapi"
	"github.com/dmitrymomot/notifykit/pkg/environment"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/requestid"
)

func main() {
	cfg, err := loadConfigs()
	if err != nil {
		slog.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	log := newLogger(cfg.app)
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("notifyd stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func newLogger(app appConfig) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(app.AppEnv, app.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	}
	if app.LogLevel != "" {
		opts = append(opts, logger.WithLevel(logger.ParseLevel(app.LogLevel)))
	}
	return logger.New(opts...)
}

func run(ctx context.Context, cfg configs, log *slog.Logger) error {
	store, err := openStorage(ctx, cfg.app.StorageDriver, log)
	if err != nil {
		return err
	}
	defer store.close()

	channels, err := channelOptions(ctx, cfg.app, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := notifications.NewMetrics(reg)
	if err != nil {
		return err
	}

	hub := cfg.notifications.NewHub(notifications.WithHubLogger(log))
	engine := notifications.NewEngine(store.storage, append(append(
		cfg.notifications.EngineOptions(),
		notifications.WithEngineLogger(log),
		notifications.WithMetrics(metrics),
		notifications.WithUI(hub),
	), channels...)...)

	if err := engine.Start(ctx); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(environment.Middleware(environment.Parse(cfg.app.AppEnv)))
	r.Mount("/", notifyapi.Router(notifyapi.Options{
		Engine:  engine,
		Stream:  hub,
		Logger:  log,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:  store.checks,
		StreamConfig: notifyapi.StreamConfig{
			AllowedOrigins: cfg.app.StreamAllowedOrigins,
		},
	}))

	srv := httpserver.NewFromConfig(cfg.http,
		httpserver.WithLogger(log),
		httpserver.WithDrain("engine", func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.notifications.ShutdownTimeout)
			defer cancel()
			return engine.Close(ctx)
		}),
		httpserver.WithDrain("hub", func(context.Context) error { return hub.Close() }),
	)
	return srv.Run(ctx, r)
}
