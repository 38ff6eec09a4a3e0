// Package logger builds log/slog loggers for notifykit services and provides
// the attribute helpers used across the notification engine.
//
// Create a logger from configuration:
//
//	log := logger.New(
//		logger.WithEnvironment("production", "notifyd"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	logger.SetAsDefault(log)
//
// Attribute helpers keep keys consistent between components:
//
//	log.LogAttrs(ctx, slog.LevelWarn, "channel attempt failed",
//		logger.NotificationID(rec.ID),
//		logger.Channel("push"),
//		logger.Attempt(2),
//		logger.Error(err),
//	)
//
// Helpers that receive an empty identifier or a nil error return an empty
// slog.Attr, which handlers ignore.
package logger
