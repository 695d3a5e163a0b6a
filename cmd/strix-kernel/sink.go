package main

import (
	"context"
	"fmt"

	"github.com/davidahmann/strix/internal/config"
	"github.com/davidahmann/strix/internal/decisionlog"
	"github.com/davidahmann/strix/internal/decisionlog/pgstore"
	"github.com/davidahmann/strix/internal/decisionlog/sqlstore"
)

// openSink returns a nil Sink when the decision log is disabled.
func openSink(ctx context.Context, cfg config.DecisionLogConfig) (decisionlog.Sink, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return decisionlog.NewMemorySink(), nil
	case "file":
		return decisionlog.NewFileSink(cfg.Dir)
	case "sqlite":
		store, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
