package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/munirpanel/internal/mockadapter"
)

// newMockAdapterCmd runs an in-memory Munir adapter for local development.
func newMockAdapterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-adapter",
		Short: "Run a local mock Munir adapter",
		Long: `Run an in-memory adapter serving the Munir parameter tree.

Starting an acquisition writes simulated frames at --frame-interval until
num_frames x num_batches have been written. With --subsystems the adapter
runs in fp mode with one parameter tree per subsystem.

Example:
  munirpanel mock-adapter --addr :8888
  munirpanel mock-adapter --subsystems hibirds,spare

Then in another terminal:
  munirpanel serve -c config.yaml`,
		RunE: runMockAdapter,
	}

	cmd.Flags().String("addr", ":8888", "listen address")
	cmd.Flags().String("resource", "munir", "resource name")
	cmd.Flags().StringSlice("subsystems", nil, "fp-mode subsystem names")
	cmd.Flags().Duration("frame-interval", 10*time.Millisecond, "time per simulated frame")
	return cmd
}

func runMockAdapter(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	resource, _ := cmd.Flags().GetString("resource")
	subsystems, _ := cmd.Flags().GetStringSlice("subsystems")
	frameInterval, _ := cmd.Flags().GetDuration("frame-interval")

	if frameInterval <= 0 {
		return fmt.Errorf("frame-interval must be positive, got %s", frameInterval)
	}

	opts := []mockadapter.Option{
		mockadapter.WithResource(resource),
		mockadapter.WithFrameInterval(frameInterval),
		mockadapter.WithLogger(logger),
	}
	if len(subsystems) > 0 {
		opts = append(opts, mockadapter.WithSubsystems(subsystems...))
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return mockadapter.New(opts...).Serve(ctx, addr)
}
