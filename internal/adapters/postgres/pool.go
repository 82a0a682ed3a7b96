package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elevenpay/axis-payout-service/internal/domain"
)

// NewPool builds a pgx connection pool from a DSN and verifies connectivity
// before returning it. Pool sizing comes from the DSN (pool_max_conns etc).
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse database config", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "create connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "database unreachable", err)
	}
	return pool, nil
}
