package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/blossomhq/campaign-engine/internal/http/middleware"
	"github.com/blossomhq/campaign-engine/internal/metrics"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"github.com/blossomhq/campaign-engine/internal/schedule"
	"github.com/blossomhq/campaign-engine/internal/service/enqueue"
	"github.com/blossomhq/campaign-engine/internal/service/tracker"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, logger *zap.Logger) *Server {
	// repos (MySQL)
	orgsRepo := repository.NewOrganizationRepository(mysqlDB)
	campaignsRepo := repository.NewCampaignRepository(mysqlDB)
	messagesRepo := repository.NewMessageRepository(mysqlDB)
	schedulesRepo := repository.NewScheduleRepository(mysqlDB)
	queueRepo := repository.NewQueueRepository(mysqlDB)
	deliveryRepo := repository.NewDeliveryLogRepository(mysqlDB)
	resultsRepo := repository.NewResultRepository(mysqlDB)
	errorLogRepo := repository.NewErrorLogRepository(mysqlDB)
	auditRepo := repository.NewAuditLogRepository(mysqlDB)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// services
	policy := schedule.NewPolicy()
	enqueueSvc := enqueue.New(campaignsRepo, schedulesRepo, messagesRepo, queueRepo,
		errorLogRepo, auditRepo, policy, logger)
	trackerSvc := tracker.New(queueRepo, deliveryRepo, errorLogRepo, logger)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(orgsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:org:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/campaigns/:id/activate", activateHandler(enqueueSvc, campaignsRepo))
	v1.POST("/campaigns/:id/pause", lifecycleHandler(campaignsRepo, queueRepo, auditRepo,
		[]model.CampaignStatus{model.CampaignActive, model.CampaignScheduled}, model.CampaignPaused, "pause"))
	v1.POST("/campaigns/:id/resume", lifecycleHandler(campaignsRepo, queueRepo, auditRepo,
		[]model.CampaignStatus{model.CampaignPaused}, model.CampaignActive, "resume"))
	v1.POST("/campaigns/:id/cancel", lifecycleHandler(campaignsRepo, queueRepo, auditRepo,
		[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled, model.CampaignActive, model.CampaignPaused},
		model.CampaignCancelled, "cancel"))
	v1.GET("/campaigns/:id/results", resultsHandler(campaignsRepo, resultsRepo))
	v1.GET("/campaigns/:id/events", listEventsHandler(campaignsRepo, chEventsRepo))
	v1.POST("/hooks/delivery", deliveryHookHandler(trackerSvc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
