package db

import (
	"context"
	"fmt"

	"github.com/blossomhq/campaign-engine/internal/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens a *sqlx.DB against the queue store with pool limits
// from config and verifies connectivity with a bounded ping.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	conn, err := sqlx.Open("mysql", cfg.DSN)
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
