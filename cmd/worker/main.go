package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica/internal/app"
	"github.com/fabrica-erp/fabrica/internal/consol"
	"github.com/fabrica-erp/fabrica/internal/integration"
	"github.com/fabrica-erp/fabrica/internal/platform/cache"
	"github.com/fabrica-erp/fabrica/internal/platform/db"
	"github.com/fabrica-erp/fabrica/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, snapshot cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	payrollReader := integration.NewPayrollReader(pool)
	purchasesReader := integration.NewPurchasesReader(pool)
	indirectReader := integration.NewIndirectReader(pool)
	productionReader := integration.NewProductionReader(pool)
	maintenanceReader := integration.NewMaintenanceReader(pool)
	salesReader := integration.NewSalesReader(pool)

	consolRepo := consol.NewRepository(pool)
	consolService := consol.NewService(
		consolRepo,
		integration.CostSources(payrollReader, purchasesReader, indirectReader, productionReader, maintenanceReader),
		salesReader,
		logger,
	)
	if redisClient != nil {
		consolService.WithCache(consol.NewCache(redisClient, cfg.SnapshotCacheTTL))
	}

	refreshJob := jobs.NewConsolidateRefreshJob(consolService, consolRepo, logger, nil)

	refreshTask, err := jobs.NewConsolidateRefreshTask(0, "")
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidateRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RefreshSchedule, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
