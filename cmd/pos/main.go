package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/adjustment"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/app"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/credit"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/inventory"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/observability"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/cache"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/platform/db"
	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
	"github.com/rodniegwapo/techiko-pos-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without queue endpoints", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	inventoryRepo := inventory.NewRepository(pool)
	ledger := inventory.NewLedger(inventoryRepo, auditLogger, idempotencyStore, metrics)
	checker := inventory.NewChecker(inventoryRepo, metrics)
	inventoryHandler := inventory.NewHandler(logger, ledger, checker)

	adjustmentRepo := adjustment.NewRepository(pool)
	adjustmentService := adjustment.NewService(logger, adjustmentRepo, ledger, approvalRecorder, auditLogger, metrics)
	adjustmentHandler := adjustment.NewHandler(logger, adjustmentService)

	creditRepo := credit.NewRepository(pool)
	creditLedger := credit.NewLedger(creditRepo, auditLogger)
	creditHandler := credit.NewHandler(logger, creditLedger)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		InventoryHandler:  inventoryHandler,
		AdjustmentHandler: adjustmentHandler,
		CreditHandler:     creditHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
