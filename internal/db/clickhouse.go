package db

import (
	"context"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the reporting store used for engagement
// event listings.
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	conn, err := sqlx.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, err
	}
	applyPool(conn, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout(cfg))
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func applyPool(conn *sqlx.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func pingTimeout(cfg config.DatabaseConfig) time.Duration {
	if cfg.PingTimeout > 0 {
		return cfg.PingTimeout
	}
	return 5 * time.Second
}
