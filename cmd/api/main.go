package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"craftcv/internal/api"
	"craftcv/internal/auth"
	"craftcv/internal/config"
	"craftcv/internal/database"
	"craftcv/internal/logging"
	"craftcv/internal/storage"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.Log, "api", os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	tokens, err := loadTokenService(cfg.Auth)
	if err != nil {
		return err
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
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Queue:   queue,
		Tokens:  tokens,
		Storage: objects,
		Scanner: api.NewVirusScanner(cfg.Clamd.Addr, logger),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("api stopped")
	return nil
}

func loadTokenService(cfg config.AuthConfig) (*auth.TokenService, error) {
	private, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("jwt private key: %w", err)
	}
	public, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("jwt public key: %w", err)
	}
	return auth.NewTokenService(private, public, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}
