package database

import (
	"context"
	"fmt"
	"time"

	"epic-engine/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	maxConnectAttempts = 50
	connectRetryDelay  = 3 * time.Second
)

// NewPostgresPool connects to PostgreSQL with retries, waiting out slow
// database startup in containerized deployments.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				logger.Info("Successfully connected to PostgreSQL")
				return pool, nil
			} else {
				pool.Close()
				err = pingErr
			}
		}

		logger.Warn("Failed to connect to PostgreSQL, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxConnectAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxConnectAttempts, err)
}

type txManager struct {
	pool *pgxpool.Pool
}

// NewTxManager wraps the pool for transactional units of work.
func NewTxManager(pool *pgxpool.Pool) interfaces.TxManager {
	return &txManager{pool: pool}
}

func (t *txManager) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}
