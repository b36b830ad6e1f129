package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/blossomhq/campaign-engine/internal/adapter"
	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/blossomhq/campaign-engine/internal/db"
	"github.com/blossomhq/campaign-engine/internal/logger"
	"github.com/blossomhq/campaign-engine/internal/metrics"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"github.com/blossomhq/campaign-engine/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the queue dispatch worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		zl := logger.L()
		defer func() { _ = zl.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// repositories (MySQL)
		queueRepo := repository.NewQueueRepository(dbx)
		campaignsRepo := repository.NewCampaignRepository(dbx)
		messagesRepo := repository.NewMessageRepository(dbx)
		deliveryRepo := repository.NewDeliveryLogRepository(dbx)
		errorLogRepo := repository.NewErrorLogRepository(dbx)

		// providers → adapter registry
		var adapters []adapter.Adapter
		for _, pc := range cfg.Providers {
			if !pc.Enabled || strings.TrimSpace(pc.BaseURL) == "" {
				continue
			}
			ch, ok := model.ParseChannel(pc.Channel)
			if !ok {
				return fmt.Errorf("provider %q: unknown channel %q", pc.Name, pc.Channel)
			}
			adapters = append(adapters, adapter.NewHTTPProvider(
				pc.Name,
				ch,
				strings.TrimRight(pc.BaseURL, "/"),
				pc.Path,
				pc.APIKey,
				pc.TimeoutMs,
				pc.Breaker.FailThreshold,
				pc.Breaker.OpenForMs,
			))
		}
		if len(adapters) == 0 {
			return fmt.Errorf("no providers enabled in config")
		}

		d := worker.NewDispatcher(
			queueRepo,
			campaignsRepo,
			messagesRepo,
			deliveryRepo,
			errorLogRepo,
			adapter.NewRegistry(adapters...),
			zl,
		)

		// tune knobs
		if cfg.Dispatch.PollInterval > 0 {
			d.PollInterval = cfg.Dispatch.PollInterval
		}
		if cfg.Dispatch.ClaimBatchSize > 0 {
			d.ClaimBatchSize = cfg.Dispatch.ClaimBatchSize
		}
		if cfg.Dispatch.Concurrency > 0 {
			d.Concurrency = cfg.Dispatch.Concurrency
		}
		if cfg.Dispatch.SendTimeout > 0 {
			d.SendTimeout = cfg.Dispatch.SendTimeout
		}
		if cfg.Dispatch.BackoffBase > 0 {
			d.BackoffBase = cfg.Dispatch.BackoffBase
		}
		if cfg.Dispatch.BackoffCap > 0 {
			d.BackoffCap = cfg.Dispatch.BackoffCap
		}
		if cfg.Dispatch.StaleClaimAfter > 0 {
			d.StaleClaimAfter = cfg.Dispatch.StaleClaimAfter
		}

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> dispatch worker started poll=%s batch=%d concurrency=%d",
			d.PollInterval, d.ClaimBatchSize, d.Concurrency)

		return d.Run(ctx)
	},
}
