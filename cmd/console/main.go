package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/httpapi"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/ingest"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/registry"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/service/apps"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/service/secrets"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/console/stream"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/migrate"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository/postgres"
	"github.com/xXMohitXx/Dead-Simple-Infra/pkg/config"
	"github.com/xXMohitXx/Dead-Simple-Infra/pkg/logger"
)

func main() {
	cfg := config.LoadConsoleConfig()
	log := logger.New("console", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := stream.NewHub()
	defer hub.Close()
	reg := registry.New(nil, log)
	processor := ingest.New(repo, repo, repo, hub, log)

	secretSvc := secrets.New(repo, repo, cfg.MasterEncryptionKey, log)
	appSvc := apps.New(repo, repo, repo, repo, secretSvc, reg, log)

	limiter := httpapi.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpapi.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpapi.NewRouter(log, appSvc, secretSvc, reg, hub, processor, repo, limiter, pool.Ping, httpapi.Config{
		LogBuffer:    cfg.LogBuffer,
		SSEHeartbeat: cfg.SSEHeartbeat,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("console server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("console server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
