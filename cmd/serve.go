package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/blossomhq/campaign-engine/internal/db"
	httpSrv "github.com/blossomhq/campaign-engine/internal/http"
	"github.com/blossomhq/campaign-engine/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		zl := logger.L()
		defer func() { _ = zl.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() {
			_ = chDB.Close()
		}()

		server := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, zl)

		errCh := make(chan error, 1)
		go func() {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("http server exited: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
