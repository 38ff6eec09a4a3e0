// Package notifyapi exposes the notification engine over HTTP.
//
//	r := chi.NewRouter()
//	r.Mount("/", notifyapi.Router(notifyapi.Options{
//	    Engine:  engine,
//	    Stream:  hub,
//	    Logger:  log,
//	    Metrics: promhttp.Handler(),
//	    Health:  map[string]httpserver.Check{"redis": redis.Healthcheck(client)},
//	}))
package notifyapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/handler"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/requestid"
)

// Engine is the part of notifications.Engine the API serves.
type Engine interface {
	Create(ctx context.Context, req notifications.CreateRequest) (string, error)
	Get(ctx context.Context, id string) (notifications.Record, error)
	List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Record, error)
	MarkAsRead(ctx context.Context, id string) (bool, error)
	MarkAllAsRead(ctx context.Context, userID string) (int, error)
	Dismiss(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) error
	Flush(ctx context.Context, batchID string) (bool, error)
	HandleAction(ctx context.Context, actionID string, rec notifications.Record) (notifications.ActionDispatch, error)
	SubscribeToPush(ctx context.Context, userID, deviceToken string) (notifications.PushSubscription, error)
	UnsubscribeFromPush(ctx context.Context, userID string) error
	LoadPreferences(ctx context.Context, userID string) (notifications.Preferences, error)
	SavePreferences(ctx context.Context, userID string, prefs notifications.Preferences) (bool, error)
}

// Streamer opens a user's real-time event stream.
type Streamer interface {
	Subscribe(ctx context.Context, userID string) broadcast.Subscriber[notifications.Event]
}

var (
	_ Engine   = (*notifications.Engine)(nil)
	_ Streamer = (*notifications.Hub)(nil)
)

// Options configures Router. Engine is required; the rest are mounted
// only when set.
type Options struct {
	Engine Engine
	Stream Streamer
	Logger *slog.Logger

	// Metrics serves GET /metrics, usually promhttp.Handler().
	Metrics http.Handler
	// Health backs GET /health/ready. GET /health always answers.
	Health map[string]httpserver.Check
	// Stream settings for GET /users/{userID}/stream.
	StreamConfig StreamConfig
}

// Router builds the HTTP API.
func Router(opts Options) chi.Router {
	if opts.Engine == nil {
		panic("notifyapi: Engine is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", httpserver.HealthHandler(log, nil))
	r.Get("/health/ready", httpserver.HealthHandler(log, opts.Health))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	h := &handlers{engine: opts.Engine, errs: handler.JSONErrorHandler(log, classify)}

	r.Post("/notifications", wrap(h, h.create, jsonBody))
	r.Post("/batches/{id}/flush", wrap(h, h.flush, pathOnly))
	r.Route("/notifications/{id}", func(r chi.Router) {
		r.Get("/", wrap(h, h.get, pathOnly))
		r.Post("/read", wrap(h, h.markAsRead, pathOnly))
		r.Post("/dismiss", wrap(h, h.dismiss, pathOnly))
		r.Post("/retry", wrap(h, h.retry, pathOnly))
		r.Post("/actions/{actionID}", wrap(h, h.handleAction, pathOnly))
	})
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/notifications", wrap(h, h.list, pathAndQuery))
		r.Post("/notifications/read", wrap(h, h.markAllAsRead, pathOnly))
		r.Get("/preferences", wrap(h, h.loadPreferences, pathOnly))
		r.Put("/preferences", wrap(h, h.savePreferences, jsonAndPath))
		r.Post("/push", wrap(h, h.subscribePush, jsonAndPath))
		r.Delete("/push", wrap(h, h.unsubscribePush, pathOnly))
		if opts.Stream != nil {
			r.Get("/stream", newStreamHandler(opts.Stream, opts.StreamConfig, log).ServeHTTP)
		}
	})

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAttrs(r.Context(), slog.LevelDebug, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
