package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/munirpanel"
	"github.com/jpalmerr/munirpanel/config"
	"github.com/jpalmerr/munirpanel/internal/metrics"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newServeCmd starts the control panel server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control panel server",
		Long: `Start the munirpanel control panel server.

The server will:
  - Load configuration from the specified YAML file
  - Poll the adapter of the selected environment
  - Serve the control panel UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  munirpanel serve -c config.yaml
  MUNIRPANEL_ENV=production munirpanel serve --config /etc/munirpanel/config.yaml`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	logger.Info("config loaded",
		"environment", cfg.Environment,
		"adapter", cfg.Adapter().BaseURL,
		"resource", cfg.Resource,
		"subsystem", cfg.Subsystem,
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval.Duration().String(),
	)

	opts := append(config.PanelOptions(cfg), munirpanel.WithLogger(logger))
	panel, err := munirpanel.New(cfg.Adapter().BaseURL, opts...)
	if err != nil {
		return fmt.Errorf("failed to create panel: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- panel.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// contextOrBackground returns the command context, which is nil when a
// command is executed without ExecuteContext.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
