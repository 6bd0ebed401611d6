package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"craftcv/internal/config"
	"craftcv/internal/database"
	"craftcv/internal/logging"
	"craftcv/internal/metrics"
	"craftcv/internal/parser"
	"craftcv/internal/pdf"
	"craftcv/internal/storage"
	"craftcv/internal/store"
	"craftcv/internal/tasks"
	"craftcv/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.Log, "worker", os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	objects, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	rdb := redis.NewClient(&redis.Options{Addr: redisOpt.Addr, Password: redisOpt.Password, DB: redisOpt.DB})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	printer := pdf.NewPrinter(cfg.Worker.ChromiumPath, cfg.Worker.RenderTimeout)
	defer printer.Close()

	notifier := worker.NewNotifier(rdb)
	cvs := store.NewCVStore(db)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCVParse, worker.NewCVParseHandler(
		cvs, objects, parser.NewClient(cfg.Parser.BaseURL, cfg.Parser.Timeout), notifier, logger,
	))
	mux.Handle(tasks.TypeCVBrand, worker.NewCVBrandHandler(
		cvs, store.NewOrganizationStore(db), store.NewTemplateStore(db), objects, printer.Print, notifier, logger,
	))

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{tasks.QueueDefault: 1},
		Logger:      newAsynqLogger(logger),
	})
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	logger.Info("worker started", slog.Int("concurrency", cfg.Worker.Concurrency))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("worker draining in-flight tasks")
	srv.Shutdown()
	return nil
}
