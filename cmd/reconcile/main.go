package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/telacare/payment-service/internal/config"
	"github.com/telacare/payment-service/internal/infrastructure/database"
	"github.com/telacare/payment-service/internal/logger"
	stripeclient "github.com/telacare/payment-service/internal/provider/stripe"
	"github.com/telacare/payment-service/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile local payment records against the processor",
	}

	rootCmd.AddCommand(scopeCmd("payments", "Reconcile recent orders", usecase.ScopePayments))
	rootCmd.AddCommand(scopeCmd("subscriptions", "Reconcile recent subscriptions", usecase.ScopeSubscriptions))
	rootCmd.AddCommand(scopeCmd("all", "Reconcile orders and subscriptions", usecase.ScopeAll))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func scopeCmd(use, short string, scope usecase.ReconcileScope) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runReconcile(cmd.Context(), scope, limit)
		},
	}

	cmd.Flags().IntP("limit", "n", 100, "Maximum records per kind to examine")

	return cmd
}

// runReconcile returns an error only when the store or processor API is
// wholly unreachable. Mismatches are findings reported in the counts.
func runReconcile(ctx context.Context, scope usecase.ReconcileScope, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.Connect(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	repos := database.NewRepositories(db, zapLogger)

	processor := stripeclient.NewClient(
		cfg.Service.StripeSecretKey,
		time.Duration(cfg.Service.ProcessorTimeoutSeconds)*time.Second,
		zapLogger,
	)

	service := usecase.NewReconcileService(repos.Order, repos.Subscription, processor, usecase.ReconcileOptions{
		Concurrency: cfg.Reconcile.Concurrency,
		BatchSize:   cfg.Reconcile.BatchSize,
		BatchPause:  time.Duration(cfg.Reconcile.BatchPauseSeconds) * time.Second,
	}, zapLogger)

	result, err := service.Reconcile(ctx, scope, limit)
	if err != nil {
		return err
	}

	fmt.Printf("Reconciliation completed (scope=%s)\n", scope)
	fmt.Printf("  processed:  %d\n", result.Processed)
	fmt.Printf("  matched:    %d\n", result.Matched)
	fmt.Printf("  mismatched: %d\n", result.Mismatched)
	fmt.Printf("  missing:    %d\n", result.Missing)
	fmt.Printf("  errors:     %d\n", result.Errors)

	return nil
}
