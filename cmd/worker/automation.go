package worker

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
	"github.com/blossomhq/campaign-engine/internal/kafka"
	"github.com/blossomhq/campaign-engine/internal/logger"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"github.com/blossomhq/campaign-engine/internal/schedule"
	"github.com/blossomhq/campaign-engine/internal/service/automation"
	"github.com/blossomhq/campaign-engine/internal/service/enqueue"
	"github.com/spf13/cobra"
)

var automationCmd = &cobra.Command{
	Use:   "automation",
	Short: "Run the automation trigger consumer",
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

		campaignsRepo := repository.NewCampaignRepository(dbx)
		messagesRepo := repository.NewMessageRepository(dbx)
		schedulesRepo := repository.NewScheduleRepository(dbx)
		queueRepo := repository.NewQueueRepository(dbx)
		errorLogRepo := repository.NewErrorLogRepository(dbx)
		auditRepo := repository.NewAuditLogRepository(dbx)
		automationsRepo := repository.NewAutomationRepository(dbx)

		enqueueSvc := enqueue.New(campaignsRepo, schedulesRepo, messagesRepo, queueRepo,
			errorLogRepo, auditRepo, schedule.NewPolicy(), zl)

		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "campeng-automation"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		svc := automation.New(consumer, automationsRepo, messagesRepo, enqueueSvc, zl)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> automation consumer started topic=%s group=%s", cfg.Kafka.Topic, groupID)

		return svc.Run(ctx)
	},
}
