package bootstrap

import (
	"context"
	"fmt"

	"bakerypos/internal/config"
	"bakerypos/internal/logger"
	"bakerypos/internal/store"
	"bakerypos/internal/store/memory"
	"bakerypos/internal/store/sqlstore"
)

// OpenRepository opens and migrates the configured store. The returned close
// func is never nil.
func OpenRepository(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Repository, func() error, error) {
	noop := func() error { return nil }

	var dialect sqlstore.Dialect
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Info(ctx, "repository: in-memory (seeded)")
		return memory.NewSeeded(), noop, nil
	case config.DriverSQLite:
		dialect = sqlstore.DialectSQLite
	case config.DriverPostgres:
		dialect = sqlstore.DialectPostgres
	default:
		return nil, noop, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}

	db, err := sqlstore.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return nil, noop, fmt.Errorf("open %s store: %w", dialect, err)
	}
	if err := db.Migrate(ctx, log); err != nil {
		_ = db.Close()
		return nil, noop, fmt.Errorf("migrate %s store: %w", dialect, err)
	}
	log.Info(log.WithField(ctx, "dialect", string(dialect)), "repository ready")
	return db, db.Close, nil
}
