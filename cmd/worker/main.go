package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/possync/internal/app"
	"github.com/odyssey-erp/possync/internal/ingest/store"
	jobmetrics "github.com/odyssey-erp/possync/internal/jobs"
	"github.com/odyssey-erp/possync/internal/platform/cache"
	"github.com/odyssey-erp/possync/internal/platform/db"
	"github.com/odyssey-erp/possync/internal/shared"
	"github.com/odyssey-erp/possync/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	auditJob := jobs.NewSyncAuditJob(shared.NewAuditLogger(pool), logger, metrics)
	backlogJob := jobs.NewReviewBacklogJob(store.NewRepository(pool, logger), logger, metrics, cfg.ReviewBacklogAge)
	backlogJob.Locker = redislock.New(redisClient)

	backlogTask, err := jobs.NewReviewBacklogTask(jobs.ReviewBacklogPayload{})
	if err != nil {
		logger.Error("build backlog task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSyncAudit, Handler: auditJob.Handle},
			{Type: jobs.TaskReviewBacklog, Handler: backlogJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReviewBacklogCron, Task: backlogTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
