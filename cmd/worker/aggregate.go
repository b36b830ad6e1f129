package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/blossomhq/campaign-engine/internal/db"
	"github.com/blossomhq/campaign-engine/internal/logger"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"github.com/blossomhq/campaign-engine/internal/service/aggregate"
	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run the result aggregation worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		zl := logger.L()
		defer func() { _ = zl.Sync() }()

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		svc := aggregate.New(
			repository.NewCampaignRepository(dbx),
			repository.NewQueueRepository(dbx),
			repository.NewDeliveryLogRepository(dbx),
			repository.NewResultRepository(dbx),
			repository.NewAuditLogRepository(dbx),
			zl,
		)
		if cfg.Aggregate.SettledWindow > 0 {
			svc.SettledWindow = cfg.Aggregate.SettledWindow
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> aggregate worker started interval=%s", cfg.Aggregate.Interval)

		return svc.Run(ctx, cfg.Aggregate.Interval)
	},
}
