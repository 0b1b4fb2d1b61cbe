package database

import (
	"context"
	"fmt"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	pgPingTimeout      = 5 * time.Second
	pgHealthCheck      = 30 * time.Second
	pgMaxConnIdleTime  = 5 * time.Minute
	pgMaxConnLifetime  = time.Hour
	pgStatementTimeout = "15s"
)

// NewPostgresPool creates and validates a PostgreSQL connection pool.
// Every connection runs in UTC so attempt deadlines compare against the
// same clock as the application.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns
	poolCfg.MinConns = min(cfg.MinDBConns, cfg.MaxDBConns)
	poolCfg.HealthCheckPeriod = pgHealthCheck
	poolCfg.MaxConnIdleTime = pgMaxConnIdleTime
	poolCfg.MaxConnLifetime = pgMaxConnLifetime

	rp := poolCfg.ConnConfig.RuntimeParams
	rp["timezone"] = "UTC"
	if _, ok := rp["statement_timeout"]; !ok {
		rp["statement_timeout"] = pgStatementTimeout
	}
	if _, ok := rp["application_name"]; !ok {
		rp["application_name"] = "examprep-backend"
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Int32("min_conns", poolCfg.MinConns).
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Msg("PostgreSQL connected")

	return pool, nil
}
