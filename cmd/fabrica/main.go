package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica/cmd/fabrica/cli"
	"github.com/fabrica-erp/fabrica/internal/app"
	"github.com/fabrica-erp/fabrica/internal/consol"
	consolhttp "github.com/fabrica-erp/fabrica/internal/consol/http"
	"github.com/fabrica-erp/fabrica/internal/integration"
	"github.com/fabrica-erp/fabrica/internal/margins"
	marginshttp "github.com/fabrica-erp/fabrica/internal/margins/http"
	"github.com/fabrica-erp/fabrica/internal/observability"
	"github.com/fabrica-erp/fabrica/internal/periods"
	"github.com/fabrica-erp/fabrica/internal/platform/cache"
	"github.com/fabrica-erp/fabrica/internal/platform/db"
	"github.com/fabrica-erp/fabrica/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 {
		os.Exit(runCommand(os.Args[1], os.Args[2:]))
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The snapshot cache degrades to direct DB reads, so a missing Redis is
	// a warning rather than a startup failure.
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

	metrics := observability.NewMetrics()

	payrollReader := integration.NewPayrollReader(pool)
	purchasesReader := integration.NewPurchasesReader(pool)
	indirectReader := integration.NewIndirectReader(pool)
	productionReader := integration.NewProductionReader(pool)
	maintenanceReader := integration.NewMaintenanceReader(pool)
	salesReader := integration.NewSalesReader(pool)

	var snapshotCache *consol.Cache
	if redisClient != nil {
		snapshotCache = consol.NewCache(redisClient, cfg.SnapshotCacheTTL)
	}

	consolRepo := consol.NewRepository(pool)
	consolService := consol.NewService(
		consolRepo,
		integration.CostSources(payrollReader, purchasesReader, indirectReader, productionReader, maintenanceReader),
		salesReader,
		logger,
	)
	consolService.WithCache(snapshotCache)
	consolService.WithMetrics(metrics)

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, logger)
	periodsService.WithCache(snapshotCache)

	marginsRepo := margins.NewRepository(pool)
	marginsService := margins.NewService(productionReader, indirectReader, salesReader, marginsRepo, logger)

	consolHandler := consolhttp.NewHandler(logger, consolService, periodsService)
	marginHandler := marginshttp.NewHandler(logger, marginsService, marginsRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ConsolHandler: consolHandler,
		MarginHandler: marginHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
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
}

// runCommand dispatches the operational subcommands (refresh, queue) and
// returns the process exit code.
func runCommand(name string, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	client, inspector := cli.Dial(cfg.RedisAddr)
	defer func() {
		_ = client.Close()
		_ = inspector.Close()
	}()
	ops := cli.NewConsolOpsCLI(client, inspector)
	ctx := context.Background()

	switch name {
	case "refresh":
		fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
		tenant := fs.Int64("tenant", 0, "tenant id (0 = all active tenants)")
		month := fs.String("month", "", "month key YYYY-MM (empty = current month)")
		jsonOut := fs.Bool("json", false, "emit a JSON summary")
		if err := fs.Parse(args); err != nil {
			return 1
		}
		return ops.RefreshCommand(ctx, cli.RefreshOptions{
			TenantID:   *tenant,
			Month:      *month,
			JSONOutput: *jsonOut,
			Stdout:     os.Stdout,
			Stderr:     os.Stderr,
		})
	case "queue":
		fs := flag.NewFlagSet("queue", flag.ContinueOnError)
		jsonOut := fs.Bool("json", false, "emit a JSON summary")
		if err := fs.Parse(args); err != nil {
			return 1
		}
		return ops.QueueCommand(ctx, cli.QueueOptions{
			JSONOutput: *jsonOut,
			Stdout:     os.Stdout,
			Stderr:     os.Stderr,
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected refresh or queue)\n", name)
		return 1
	}
}
