// recurring-worker materializes due recurring movements on a fixed
// interval so scheduled income and expenses land without user action.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"movimenti/internal/amqp"
	"movimenti/internal/config"
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

	logger.Info("Starting recurring-worker")

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

	// Generated movements still publish events so budget checks fire,
	// but the worker keeps running in SQLite-only mode if the broker is down.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - generated movements will publish events")
		}
	} else {
		logger.Info("AMQP disabled - generated movements will not publish events")
	}

	movements := services.NewMovementService(repo, publisher, nil)
	processor := services.NewRecurringProcessor(repo, movements)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := cfg.RecurringInterval
	logger.Info("Recurring movement processor configured",
		"interval", interval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial processing on startup
	logger.Info("Running initial recurring movement processing...")
	if count, err := processor.ProcessDue(ctx, time.Now()); err != nil {
		logger.Error("Initial processing failed", "error", err)
	} else {
		logger.Info("Initial processing complete", "movements_created", count)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				logger.Info("Processing due recurring movements...")
				count, err := processor.ProcessDue(ctx, now)
				if err != nil {
					logger.Error("Periodic processing failed", "error", err)
				} else {
					logger.Info("Periodic processing complete",
						"movements_created", count,
						"next_check", now.Add(interval).Format("15:04:05"))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	logger.Info("recurring-worker stopped")
}
