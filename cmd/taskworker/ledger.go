package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/orders"
	"github.com/zircuit-labs/zkr-taskworker/retry"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

type dbConfig struct {
	DSN             string
	Migrate         bool
	ConnectAttempts int `koanf:"connectattempts"`
}

// openLedger connects to Postgres, waiting for it to come up, and applies the
// ledger migrations. It returns a nil ledger when no dsn is configured.
func openLedger(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (*orders.Ledger, *bun.DB, error) {
	dbCfg := dbConfig{
		Migrate:         true,
		ConnectAttempts: 10,
	}
	if err := cfg.Unmarshal("db", &dbCfg); err != nil {
		return nil, nil, stacktrace.Wrap(err)
	}
	if dbCfg.DSN == "" {
		logger.Info("no database configured, processed orders are not recorded")
		return nil, nil, nil
	}

	sqldb, err := sql.Open("pgx", dbCfg.DSN)
	if err != nil {
		return nil, nil, errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
	}

	r := retry.NewRetrier(
		retry.WithBackoff(time.Second, 10*time.Second),
		retry.WithMaxAttempts(dbCfg.ConnectAttempts),
	)
	err = r.Try(ctx, func() error {
		if err := sqldb.PingContext(ctx); err != nil {
			logger.Warn("database is not reachable yet", log.ErrAttr(err))
			return errclass.WrapAs(stacktrace.Wrap(err), errclass.Transient)
		}
		return nil
	})
	if err != nil {
		_ = sqldb.Close()
		return nil, nil, err
	}

	if dbCfg.Migrate {
		if err := orders.Migrate(ctx, sqldb, logger); err != nil {
			_ = sqldb.Close()
			return nil, nil, err
		}
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	return orders.NewLedger(db), db, nil
}
