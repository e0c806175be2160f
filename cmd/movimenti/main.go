package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"movimenti/internal/amqp"
	"movimenti/internal/cache"
	"movimenti/internal/config"
	"movimenti/internal/core"
	apphttp "movimenti/internal/http"
	"movimenti/internal/importer"
	"movimenti/internal/services"
	"movimenti/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without a broker, writes still work and events
	// are skipped.
	var publisher services.EventPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, movement events disabled", "error", err)
	} else {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	dashboardCache := cache.NewLRUCache[core.Dashboard](cfg.CacheSize, cfg.CacheTTL)
	movementCache := cache.NewLRUCache[[]core.Movement](cfg.CacheSize*2, cfg.CacheTTL)

	cacheManager := cache.NewManager()
	cacheManager.Register(dashboardCache)
	cacheManager.Register(movementCache)
	cacheManager.StartCleanup(cfg.CacheCleanup)
	defer cacheManager.Stop()

	dashboards := services.NewDashboardService(repo, dashboardCache, movementCache)
	movements := services.NewMovementService(repo, publisher, dashboards)
	budgets := services.NewBudgetService(repo)
	imp := importer.NewImporter(movements)

	srv := apphttp.NewServer(":"+cfg.Port, repo, movements, dashboards, budgets, imp)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting movimenti server", "port", cfg.Port, "db_path", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
