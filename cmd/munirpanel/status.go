package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/munirpanel"
	"github.com/jpalmerr/munirpanel/config"
	"github.com/jpalmerr/munirpanel/munir"
)

const defaultWait = 10 * time.Second

// newStatusCmd prints the adapter document once.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the adapter status once",
		Long: `Poll the adapter once and print its parameter tree as indented text.

With --path only that subtree is printed. With --summary the Munir
acquisition state is printed instead.

Example:
  munirpanel status -c config.yaml
  munirpanel status -c config.yaml --path status
  munirpanel status -c config.yaml --summary`,
		RunE: runStatus,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().StringP("path", "p", "", "subtree to print, e.g. args or status")
	cmd.Flags().Bool("summary", false, "print the acquisition summary")
	cmd.Flags().Duration("wait", defaultWait, "how long to wait for the adapter")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	configFile, _ := cmd.Flags().GetString("config")
	path, _ := cmd.Flags().GetString("path")
	summary, _ := cmd.Flags().GetBool("summary")
	wait, _ := cmd.Flags().GetDuration("wait")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(contextOrBackground(cmd), wait)
	defer cancel()

	sess, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := firstSnapshot(ctx, sess)
	if err != nil {
		return err
	}
	if !snap.OK() {
		return fmt.Errorf("adapter poll failed: %s", snap.Err)
	}

	out := cmd.OutOrStdout()
	if summary {
		st, err := controllerFor(sess, cfg).Status()
		if err != nil {
			return err
		}
		state := "idle"
		if st.Executing {
			state = "executing"
		}
		fmt.Fprintf(out, "File:     %s%s\n", st.Args.FilePath, st.Args.FileName)
		fmt.Fprintf(out, "Frames:   %d x %d batches\n", st.Args.NumFrames, st.Args.NumBatches)
		fmt.Fprintf(out, "State:    %s\n", state)
		fmt.Fprintf(out, "Written:  %d (%.0f%%)\n", st.FramesWritten, st.Progress()*100)
		writing := 0
		for _, fp := range st.FrameProcs {
			if fp.Writing {
				writing++
			}
		}
		fmt.Fprintf(out, "Writers:  %d/%d writing\n", writing, len(st.FrameProcs))
		return nil
	}

	if _, ok := snap.Lookup(path); !ok {
		return fmt.Errorf("path %q not found", path)
	}
	fmt.Fprint(out, snap.Text(path))
	return nil
}

// connect opens a session to the configured adapter.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*munirpanel.Session, error) {
	opts := append(config.SessionOptions(cfg), munirpanel.WithSessionLogger(logger))
	sess, err := munirpanel.Connect(ctx, cfg.Resource, cfg.Adapter().BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return sess, nil
}

// controllerFor wraps a session in a Munir controller for the configured
// subsystem.
func controllerFor(sess *munirpanel.Session, cfg *config.Config) *munir.Controller {
	var opts []munir.Option
	if cfg.Subsystem != "" {
		opts = append(opts, munir.WithSubsystem(cfg.Subsystem))
	}
	return munir.NewController(sess, opts...)
}

// firstSnapshot waits for the first poll to complete.
func firstSnapshot(ctx context.Context, sess *munirpanel.Session) (munirpanel.Snapshot, error) {
	updates, cancel := sess.Subscribe()
	defer cancel()

	snap := sess.Snapshot()
	for snap.Polls == 0 {
		select {
		case next, ok := <-updates:
			if !ok {
				return snap, munirpanel.ErrSessionClosed
			}
			snap = next
		case <-ctx.Done():
			return snap, errors.New("timed out waiting for the adapter")
		}
	}
	return snap, nil
}
