// Package environment names the deployment environments a notifykit service
// can run in and carries the current one through request contexts.
package environment

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Environment represents application environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse maps a configuration value, including the short forms "dev",
// "stage" and "prod", to an Environment. Unknown values map to Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Production), "prod":
		return Production
	case string(Staging), "stage":
		return Staging
	default:
		return Development
	}
}

type contextKey struct{}

// WithContext stores env in ctx.
func WithContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// FromContext returns the environment stored in ctx, or an empty value.
func FromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(contextKey{}).(Environment)
	return env
}

// IsProduction reports whether ctx carries the production environment.
func IsProduction(ctx context.Context) bool {
	return FromContext(ctx) == Production
}

// LoggerExtractor returns a logger context extractor that adds the "env" attribute.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if env := FromContext(ctx); env != "" {
			return slog.String("env", string(env)), true
		}
		return slog.Attr{}, false
	}
}

// Middleware attaches env to every request context.
func Middleware(env Environment) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), env)))
		})
	}
}
