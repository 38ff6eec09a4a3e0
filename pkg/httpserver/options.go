package httpserver

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Option configures the HTTP server.
type Option func(*config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("WithAddr: addr cannot be empty")
	}
	return func(c *config) { c.addr = addr }
}

func WithReadHeaderTimeout(d time.Duration) Option {
	return func(c *config) { c.readHeaderTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *config) { c.readTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) { c.writeTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) { c.idleTimeout = d }
}

// WithShutdownTimeout bounds Shutdown, including every drain func.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithShutdownTimeout: duration must be > 0")
	}
	return func(c *config) { c.shutdownTimeout = d }
}

// WithLogger sets the logger. Nil discards logs.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStartHook registers a callback that runs once the listener is bound.
func WithStartHook(h func(addr net.Addr)) Option {
	if h == nil {
		panic("WithStartHook: nil hook")
	}
	return func(c *config) { c.startHooks = append(c.startHooks, h) }
}

// WithDrain registers work to finish after the listener stops accepting
// requests, such as closing the notification engine. Drains run in
// registration order and share the shutdown deadline.
func WithDrain(name string, fn func(context.Context) error) Option {
	if fn == nil {
		panic("WithDrain: nil func")
	}
	return func(c *config) { c.drains = append(c.drains, drain{name: name, fn: fn}) }
}
