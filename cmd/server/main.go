package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v79"
	handler "github.com/telacare/payment-service/internal/adapter/handler/http"
	"github.com/telacare/payment-service/internal/config"
	"github.com/telacare/payment-service/internal/infrastructure/database"
	httpServer "github.com/telacare/payment-service/internal/infrastructure/http"
	"github.com/telacare/payment-service/internal/logger"
	"github.com/telacare/payment-service/internal/metrics"
	"github.com/telacare/payment-service/internal/usecase"
	"github.com/telacare/payment-service/internal/webhook"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize Stripe
	stripe.Key = cfg.Service.StripeSecretKey

	// Initialize database connection
	db, err := database.Connect(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, zapLogger)

	// Wire the webhook pipeline
	verifier := webhook.NewVerifier(
		cfg.Service.StripeWebhookSecret,
		time.Duration(cfg.Service.SignatureToleranceSeconds)*time.Second,
	)
	dispatcher := webhook.NewDispatcher(zapLogger)
	applyService := usecase.NewApplyService(repos.Order, repos.Subscription, zapLogger)
	applyService.RegisterHandlers(dispatcher)

	m := metrics.New()
	webhookHandler := handler.NewWebhookHandler(zapLogger, verifier, dispatcher, repos.WebhookEvent, m)
	eventsHandler := handler.NewEventsHandler(zapLogger, repos.WebhookEvent)

	srv := httpServer.NewServer(cfg, zapLogger, m, webhookHandler, eventsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Server shut down successfully")
}
