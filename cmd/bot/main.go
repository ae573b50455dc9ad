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

	"github.com/joho/godotenv"

	"github.com/quipubot/quipu/internal/billing"
	billingStore "github.com/quipubot/quipu/internal/billing/store"
	"github.com/quipubot/quipu/internal/classifier/gemini"
	"github.com/quipubot/quipu/internal/config"
	"github.com/quipubot/quipu/internal/conversation"
	conversationStore "github.com/quipubot/quipu/internal/conversation/store"
	"github.com/quipubot/quipu/internal/database"
	"github.com/quipubot/quipu/internal/extractor"
	quipuHttp "github.com/quipubot/quipu/internal/http"
	messageHandler "github.com/quipubot/quipu/internal/http/message"
	"github.com/quipubot/quipu/internal/ledger"
	ledgerStore "github.com/quipubot/quipu/internal/ledger/store"
	"github.com/quipubot/quipu/internal/messenger/telegram"
	"github.com/quipubot/quipu/internal/recurring"
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

	loc, err := time.LoadLocation(cfg.Bot.DefaultTimezone)
	if err != nil {
		slog.Error("failed to load timezone", "timezone", cfg.Bot.DefaultTimezone, "error", err)
		os.Exit(1)
	}

	cls, err := gemini.New(startCtx, cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Classifier.Timeout, cfg.Classifier.CacheTTL)
	if err != nil {
		slog.Error("failed to create classifier", "error", err)
		os.Exit(1)
	}

	logger := slog.Default()

	var (
		bills            = billingStore.New(db)
		rules            = recurringStore.New(db)
		ledgerService    = ledger.NewService(ledgerStore.New(db))
		recurringService = recurring.NewService(rules, cfg.Bot.DefaultTimezone, cfg.Bot.DefaultCurrency)
		billingService   = billing.NewService(bills)
		textExtractor    = extractor.New(cls, cfg.Bot.DefaultCurrency, cfg.Bot.MaxInputChars, loc)
	)

	engine := conversation.NewEngine(
		ledgerService,
		recurringService,
		billingService,
		textExtractor,
		conversationStore.New(db),
		logger,
		conversation.Config{
			ConfirmThreshold: cfg.Bot.ConfirmThreshold,
			PendingTTL:       cfg.Bot.PendingTTL,
			ListLimit:        cfg.Bot.ListLimit,
		},
	)

	router := quipuHttp.New(messageHandler.NewHandler(engine, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The billing loop runs inside the bot too, so a single-binary deployment
	// still generates instances and sends reminders. Every write it makes is
	// idempotent, so running next to a standalone scheduler is harmless.
	var (
		notifier   = telegram.New(cfg.Telegram.Token)
		generator  = billing.NewGenerator(rules, bills, logger)
		dispatcher = billing.NewDispatcher(bills, notifier, logger, cfg.Scheduler.DispatchBatch)
		runner     = scheduler.New(generator, dispatcher, logger, cfg.Scheduler.Interval)
	)

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduler failed", "error", err)
		}
	}()

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting bot server", "port", port, "scheduler_interval", cfg.Scheduler.Interval)

	server := &http.Server{
		Addr:         port,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutting down server", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("bot stopped")
}
