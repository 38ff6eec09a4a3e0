package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// goose keeps its settings in package globals.
var migrateMu sync.Mutex

// Migrate applies the goose migrations found in dir of fsys, typically an
// embed.FS shipped with the store package.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, cfg Config, log *slog.Logger) error {
	if fsys == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsNotProvided)
	}
	if log == nil {
		log = slog.Default()
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.LogAttrs(ctx, slog.LevelError, "failed to close migration connection", logger.Error(err))
		}
	}()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// gooseLogger routes goose's printf output into slog.
type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...), logger.Component("migrations"))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...), logger.Component("migrations"))
}
