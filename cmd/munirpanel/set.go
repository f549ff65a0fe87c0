package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/munirpanel/config"
	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// newSetCmd writes one partial document to the adapter.
func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <path> <json>",
		Short: "Write a parameter on the adapter",
		Long: `Send one partial update to the adapter and wait for the result.

The path is resolved under the configured subsystem, if any. The value is
JSON: strings need quotes.

Example:
  munirpanel set -c config.yaml args/file_name '{"file_name": "run1.h5"}'
  munirpanel set -c config.yaml args '{"num_frames": 500, "num_batches": 2}'
  munirpanel set -c config.yaml timeout 2.5`,
		Args: cobra.ExactArgs(2),
		RunE: runSet,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().Duration("wait", defaultWait, "how long to wait for the adapter")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSet(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	configFile, _ := cmd.Flags().GetString("config")
	wait, _ := cmd.Flags().GetDuration("wait")

	value, err := jsonvalue.Parse([]byte(args[1]))
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

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

	path := controllerFor(sess, cfg).Path(jsonvalue.JoinPath(args[0]))
	if err := <-sess.Put(ctx, path, value); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", path, jsonvalue.Literal(value))
	return nil
}
