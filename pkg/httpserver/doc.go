// Package httpserver runs an http.Server with graceful shutdown.
//
// Run binds the listener, serves until the context ends or the process gets
// SIGINT or SIGTERM, then calls Shutdown. Shutdown cancels request contexts,
// waits for in-flight requests within the shutdown timeout and runs the
// drains registered with WithDrain in order:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//	    httpserver.WithLogger(log),
//	    httpserver.WithDrain("engine", engine.Close),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server stopped", logger.Error(err))
//	}
//
// HealthHandler serves liveness and readiness checks as JSON.
package httpserver
