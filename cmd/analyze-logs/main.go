package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/telacare/payment-service/internal/analysis"
	"github.com/telacare/payment-service/internal/config"
	"github.com/telacare/payment-service/internal/messaging"
)

func main() {
	var (
		window        time.Duration
		format        string
		thresholdPath string
		publishAlerts bool
	)

	rootCmd := &cobra.Command{
		Use:   "analyze-logs [file]",
		Short: "Aggregate webhook request logs into a metrics report",
		Long: "Parses JSON request logs from a file or stdin, aggregates them " +
			"into a metrics snapshot and checks alert thresholds.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer file.Close()
				source = file
			}

			snapshot, err := analysis.Analyze(source, window, time.Now())
			if err != nil {
				return err
			}

			thresholds := analysis.Thresholds{}
			if thresholdPath != "" {
				loaded, err := analysis.LoadThresholds(thresholdPath)
				if err != nil {
					return err
				}
				thresholds = *loaded
			}
			alerts := analysis.CheckThresholds(snapshot, thresholds)

			switch format {
			case "exposition":
				if err := analysis.WriteExposition(os.Stdout, snapshot); err != nil {
					return err
				}
			case "text":
				if err := analysis.WriteSummary(os.Stdout, snapshot, alerts); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want text or exposition)", format)
			}

			if publishAlerts && len(alerts) > 0 {
				if err := publish(cmd.Context(), alerts); err != nil {
					return err
				}
			}

			return nil
		},
	}

	rootCmd.Flags().DurationVar(&window, "window", time.Hour, "Time window to analyze (0 for all lines)")
	rootCmd.Flags().StringVar(&format, "format", "text", "Output format: text or exposition")
	rootCmd.Flags().StringVar(&thresholdPath, "thresholds", "", "Path to a yaml thresholds file")
	rootCmd.Flags().BoolVar(&publishAlerts, "publish-alerts", false, "Publish triggered alerts to redis")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// publish pushes alerts onto the configured redis channel.
func publish(ctx context.Context, alerts []analysis.Alert) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis is not configured; set redis.addr to publish alerts")
	}

	channel := cfg.Redis.AlertChannel
	if channel == "" {
		channel = "payment.alerts"
	}

	publisher, err := messaging.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, channel)
	if err != nil {
		return err
	}
	defer publisher.Close()

	return publisher.PublishAlerts(ctx, alerts)
}
