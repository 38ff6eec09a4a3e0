package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check tests one dependency.
type Check func(ctx context.Context) error

const checkTimeout = 3 * time.Second

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves liveness when checks is empty and readiness otherwise.
// Checks run concurrently, each bounded by a short timeout. Any failure
// answers 503 with the failing check's error in the report.
func HealthHandler(log *slog.Logger, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok"}
		if len(checks) > 0 {
			report.Checks = make(map[string]string, len(checks))
		}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for name, check := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
				defer cancel()

				result := "ok"
				if err := check(ctx); err != nil {
					log.LogAttrs(ctx, slog.LevelError, "readiness check failed",
						logger.Component("health"),
						slog.String("check", name),
						logger.Error(err),
					)
					result = err.Error()
				}

				mu.Lock()
				report.Checks[name] = result
				if result != "ok" {
					report.Status = "unavailable"
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
