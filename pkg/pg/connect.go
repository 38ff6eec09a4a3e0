package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
)

// Connect opens a pgx pool and pings it, retrying up to cfg.RetryAttempts
// times with linearly growing waits. It gives up early when ctx ends.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MinConns = cfg.MaxIdleConns
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	strategy := backoff.Linear{Interval: cfg.RetryInterval, MaxInterval: 10 * cfg.RetryInterval}

	var lastErr error
	for attempt := range max(cfg.RetryAttempts, 1) {
		if err := backoff.Wait(ctx, strategy.NextInterval(attempt)); err != nil {
			return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr, err)
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			lastErr = err
			continue
		}
		return pool, nil
	}

	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}
