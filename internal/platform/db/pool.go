package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Application names reported to pg_stat_activity.
const (
	AppName      = "records-server"
	AuditAppName = "records-server-audit"
)

// PoolConfig sizes one connection pool. The shards live in separate schemas
// of the same engine, so one business pool serves all of them; audit writes
// get a second, smaller pool so they never wait on a connection held by a
// business transaction.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	AppName  string

	// MaxConnIdleTime closes idle connections after this long; zero keeps
	// the pgx default.
	MaxConnIdleTime time.Duration
}

func (pc PoolConfig) parse() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	cfg.MinConns = min(pc.MinConns, cfg.MaxConns)
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	name := pc.AppName
	if name == "" {
		name = AppName
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = name
	return cfg, nil
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pc.parse()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", cfg.ConnConfig.RuntimeParams["application_name"], err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
