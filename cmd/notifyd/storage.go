package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/notifications/redisstore"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	redisconn "github.com/dmitrymomot/notifykit/pkg/redis"
)

type storageHandle struct {
	storage notifications.Storage
	checks  map[string]httpserver.Check
	close   func()
}

// openStorage connects the backend named by driver. Postgres migrations are
// applied before the store is returned.
func openStorage(ctx context.Context, driver string, log *slog.Logger) (storageHandle, error) {
	switch driver {
	case storageMemory:
		return storageHandle{
			storage: notifications.NewMemoryStorage(),
			checks:  map[string]httpserver.Check{},
			close:   func() {},
		}, nil

	case storageRedis:
		var cfg redisconn.Config
		if err := config.Load(&cfg); err != nil {
			return storageHandle{}, fmt.Errorf("redis config: %w", err)
		}
		client, err := redisconn.Connect(ctx, cfg)
		if err != nil {
			return storageHandle{}, err
		}
		return storageHandle{
			storage: redisstore.New(client),
			checks:  map[string]httpserver.Check{"redis": redisconn.Healthcheck(client)},
			close:   func() { _ = client.Close() },
		}, nil

	case storagePostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return storageHandle{}, fmt.Errorf("postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return storageHandle{}, err
		}
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
			pool.Close()
			return storageHandle{}, err
		}
		return storageHandle{
			storage: pgstore.New(pool),
			checks:  map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)},
			close:   pool.Close,
		}, nil
	}
	return storageHandle{}, fmt.Errorf("unknown storage driver %q", driver)
}
