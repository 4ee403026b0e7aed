package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/possync/internal/app"
	"github.com/odyssey-erp/possync/internal/ingest"
	"github.com/odyssey-erp/possync/internal/ingest/store"
	"github.com/odyssey-erp/possync/internal/observability"
	"github.com/odyssey-erp/possync/internal/platform/cache"
	"github.com/odyssey-erp/possync/internal/platform/db"
	"github.com/odyssey-erp/possync/internal/shared"
	"github.com/odyssey-erp/possync/internal/terminals"
	"github.com/odyssey-erp/possync/jobs"
)

func runServe(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx, dbpool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema migrated")
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	tracker := terminals.NewTracker(redisClient, cfg.TerminalWatermarkTTL)

	service := ingest.NewService(ingest.ServiceConfig{
		Repository:       store.NewRepository(dbpool, logger),
		Logger:           logger,
		Metrics:          metrics,
		Terminals:        tracker,
		Audit:            syncAuditEnqueuer{client: jobClient},
		Approvals:        reviewApprovals{recorder: shared.NewApprovalRecorder(dbpool, logger)},
		BatchConcurrency: cfg.SyncBatchConcurrency,
	})

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		SyncHandler: ingest.NewHandler(logger, service, ingest.HandlerConfig{
			BatchMax:     cfg.SyncBatchMax,
			MaxBodyBytes: cfg.SyncMaxBodyBytes,
			RateLimit:    cfg.SyncRateLimit,
		}),
		TerminalsHandler: terminals.NewHandler(logger, tracker),
		JobHandler:       jobs.NewHandler(inspector, logger),
		AdminGate:        shared.NewAdminGate(cfg.AdminPasswordHash, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
