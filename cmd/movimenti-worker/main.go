// movimenti-worker consumes movement events and logs budget overruns
// as they happen.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"movimenti/internal/amqp"
	"movimenti/internal/config"
	"movimenti/internal/core"
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

	logger.Info("Starting movimenti-worker")

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

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	budgets := services.NewBudgetService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(event *amqp.MovementEvent) error {
		// Only expense changes can move a budget across its limit.
		if event.Kind != core.Expense {
			return nil
		}

		status, err := budgets.CheckOverrun(ctx, event.UserID, event.CategoryID, event.Month)
		if err != nil {
			return err
		}
		if status == nil {
			return nil
		}
		if status.Over {
			slog.WarnContext(ctx, "Budget overrun",
				"user_id", event.UserID,
				"category_id", event.CategoryID,
				"month", event.Month,
				"limit_cents", status.Budget.Limit.Cents,
				"spent_cents", status.Spent.Cents)
		}
		return nil
	}

	go func() {
		if err := amqpClient.ConsumeMovementEvents(ctx, handler); err != nil && err != context.Canceled {
			logger.Error("Event consumption failed", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Worker stopped gracefully")
}
