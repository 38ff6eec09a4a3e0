package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
)

// Connect parses cfg.ConnectionURL and pings the server until it answers,
// up to cfg.RetryAttempts times within cfg.ConnectTimeout.
//
// It returns ErrEmptyConnectionURL or ErrFailedToParseRedisConnString for a
// bad URL and ErrRedisNotReady when every attempt fails.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	retry := backoff.Fixed{Interval: cfg.RetryInterval}
	var lastErr error
	for attempt := range max(cfg.RetryAttempts, 1) {
		if err := backoff.Wait(ctx, retry.NextInterval(attempt)); err != nil {
			return nil, errors.Join(ErrRedisNotReady, lastErr, err)
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			lastErr = err
			continue
		}
		return client, nil
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
