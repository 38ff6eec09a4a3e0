// Package pg connects to PostgreSQL through pgx/v5 and applies goose
// migrations from an embedded filesystem.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// Healthcheck adapts the pool to a func(context.Context) error check, and the
// Is* helpers classify pgx errors without importing pgconn at call sites.
package pg
