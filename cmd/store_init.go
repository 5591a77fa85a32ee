package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-bills/internal/db"
	"github.com/sells-group/utility-bills/internal/store"
)

const defaultSQLitePath = "utility-bills.db"

// initStore opens the configured store. Callers must Close it.
func initStore(ctx context.Context) (store.Store, error) {
	dialect, err := db.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, err
	}
	switch dialect {
	case db.SQLite:
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return store.NewSQLite(dsn)
	case db.MySQL:
		return store.NewMySQL(ctx, cfg.Store.DatabaseURL)
	case db.Postgres:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
