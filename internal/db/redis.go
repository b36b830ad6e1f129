package db

import (
	"context"
	"time"

	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the rate-limit store.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
