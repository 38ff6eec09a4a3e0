package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// JSONErrorHandler returns an ErrorHandler that maps err with classify,
// logs it and renders the JSON error envelope. Client errors log at warn,
// server errors at error. A nil classify leaves errors unchanged. The
// request id is added by the logger's context extractor.
func JSONErrorHandler(log *slog.Logger, classify func(error) error) ErrorHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(ctx Context, err error) {
		if classify != nil {
			err = classify(err)
		}

		r := ctx.Request()
		resp := JSONError(err).(*jsonResponse)
		level := slog.LevelError
		if resp.status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.Component("http"),
			logger.Error(err),
			slog.Int("status_code", resp.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "failed to render error response",
				logger.Component("http"),
				logger.Error(renderErr),
			)
		}
	}
}
