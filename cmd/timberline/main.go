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
	"golang.org/x/sync/errgroup"

	"github.com/timberline-erp/timberline/internal/app"
	"github.com/timberline-erp/timberline/internal/drying"
	"github.com/timberline-erp/timberline/internal/masterdata/warehouses"
	"github.com/timberline-erp/timberline/internal/masterdata/woodtypes"
	"github.com/timberline-erp/timberline/internal/observability"
	"github.com/timberline-erp/timberline/internal/platform/cache"
	"github.com/timberline-erp/timberline/internal/platform/db"
	"github.com/timberline-erp/timberline/internal/shared"
	"github.com/timberline-erp/timberline/internal/stock"
	"github.com/timberline-erp/timberline/internal/transfer"
	"github.com/timberline-erp/timberline/jobs"
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
		logger.Warn("redis unavailable, consolidated cache disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	warehousesRepo := warehouses.NewRepository(pool)
	warehousesService := warehouses.NewService(warehousesRepo)
	warehousesHandler := warehouses.NewHandler(logger, warehousesService)

	woodTypesRepo := woodtypes.NewRepository(pool)
	woodTypesService := woodtypes.NewService(woodTypesRepo)
	woodTypesHandler := woodtypes.NewHandler(logger, woodTypesService)

	consolidationCache := stock.NewConsolidationCache(redisClient, cfg.ConsolidatedCacheTTL)
	stockRepo := stock.NewRepository(pool)
	ledger := stock.NewLedger(stockRepo, auditLogger, idempotencyStore, metrics, consolidationCache, logger)
	stockHandler := stock.NewHandler(logger, ledger)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, ledger, approvalRecorder, logger)
	transferHandler := transfer.NewHandler(logger, transferService)

	dryingRepo := drying.NewRepository(pool)
	dryingService := drying.NewService(dryingRepo, ledger, logger)
	dryingHandler := drying.NewHandler(logger, dryingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		WarehousesHandler: warehousesHandler,
		WoodTypesHandler:  woodTypesHandler,
		StockHandler:      stockHandler,
		TransferHandler:   transferHandler,
		DryingHandler:     dryingHandler,
		JobsHandler:       jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
