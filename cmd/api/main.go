package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/ingest-gate/internal/alert"
	"github.com/kursadbilgin/ingest-gate/internal/config"
	"github.com/kursadbilgin/ingest-gate/internal/convert"
	"github.com/kursadbilgin/ingest-gate/internal/handler"
	"github.com/kursadbilgin/ingest-gate/internal/infra/postgresql"
	"github.com/kursadbilgin/ingest-gate/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/ingest-gate/internal/infra/redis"
	"github.com/kursadbilgin/ingest-gate/internal/jobs"
	"github.com/kursadbilgin/ingest-gate/internal/observability"
	"github.com/kursadbilgin/ingest-gate/internal/positional"
	"github.com/kursadbilgin/ingest-gate/internal/queue"
	"github.com/kursadbilgin/ingest-gate/internal/repository"
	"github.com/kursadbilgin/ingest-gate/internal/service"
	"github.com/kursadbilgin/ingest-gate/internal/store"
	"github.com/kursadbilgin/ingest-gate/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.StoreWritesPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	deduper, err := infraredis.NewAlertDeduper(rdb)
	if err != nil {
		logger.Fatal("alert deduper initialization failed", zap.Error(err))
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	artifacts, err := store.NewS3Store(cfg.ArtifactBucket, cfg.ArtifactRegion)
	if err != nil {
		logger.Fatal("artifact store initialization failed", zap.Error(err))
	}

	policy, err := positional.ParsePolicyFromString(cfg.DecodePolicy)
	if err != nil {
		logger.Fatal("invalid decode policy", zap.Error(err))
	}
	converter, err := convert.NewConverter(convert.DefaultSchemas(), policy, logger)
	if err != nil {
		logger.Fatal("converter initialization failed", zap.Error(err))
	}

	jobClient, err := jobs.NewHTTPClient(cfg.JobServiceURL)
	if err != nil {
		logger.Fatal("job client initialization failed", zap.Error(err))
	}

	var sink alert.Sink = alert.NewLogSink(logger)
	if cfg.AlertWebhookURL != "" {
		sink, err = alert.NewWebhookSink(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatal("alert webhook initialization failed", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics()
	batches := repository.NewGormBatchRepo(db)

	tracker, err := service.NewBatchTracker(batches, cfg.ExpectedMemberList(), logger)
	if err != nil {
		logger.Fatal("batch tracker initialization failed", zap.Error(err))
	}

	trigger, err := service.NewTransformTrigger(batches, jobClient, cfg.TransformJobName, logger)
	if err != nil {
		logger.Fatal("transform trigger initialization failed", zap.Error(err))
	}
	trigger.SetMetrics(metrics)

	worker, err := service.NewIngestWorker(
		consumer, artifacts, converter, tracker, trigger, limiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("ingest worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	monitor, err := service.NewDeadlineMonitor(
		batches, jobClient, sink, deduper,
		cfg.DeadlineHourUTC, time.Duration(cfg.DeadlineScanSec)*time.Second, logger)
	if err != nil {
		logger.Fatal("deadline monitor initialization failed", zap.Error(err))
	}
	monitor.SetMetrics(metrics)

	sweeper, err := service.NewRetentionSweeper(batches, cfg.RetentionDays, logger)
	if err != nil {
		logger.Fatal("retention sweeper initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterBatchRoutes(app, tracker, trigger, publisher); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("ingest-gate api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	group.Go(func() error {
		return worker.Start(groupCtx)
	})
	group.Go(func() error {
		return monitor.Start(groupCtx)
	})
	group.Go(func() error {
		return sweeper.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
	logger.Info("ingest-gate stopped")
}
