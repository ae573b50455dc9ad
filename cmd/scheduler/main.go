package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quipubot/quipu/internal/billing"
	billingStore "github.com/quipubot/quipu/internal/billing/store"
	"github.com/quipubot/quipu/internal/config"
	"github.com/quipubot/quipu/internal/database"
	"github.com/quipubot/quipu/internal/messenger/telegram"
	recurringStore "github.com/quipubot/quipu/internal/recurring/store"
	"github.com/quipubot/quipu/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(startCtx, cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger := slog.Default()

	var (
		bills      = billingStore.New(db)
		rules      = recurringStore.New(db)
		notifier   = telegram.New(cfg.Telegram.Token)
		generator  = billing.NewGenerator(rules, bills, logger)
		dispatcher = billing.NewDispatcher(bills, notifier, logger, cfg.Scheduler.DispatchBatch)
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting scheduler", "interval", cfg.Scheduler.Interval)

	runner := scheduler.New(generator, dispatcher, logger, cfg.Scheduler.Interval)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler failed", "error", err)
		os.Exit(1)
	}

	slog.Info("scheduler stopped")
}
