package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/munirpanel/config"
)

// newValidateCmd validates a config file without starting the server.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a munirpanel configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  munirpanel validate -c config.yaml
  MUNIRPANEL_ENV=production munirpanel validate -c config.yaml`,
		RunE: runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	envs := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		envs = append(envs, name)
	}
	sort.Strings(envs)

	subsystem := cfg.Subsystem
	if subsystem == "" {
		subsystem = "(flat)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Environment:   %s (of %v)\n", cfg.Environment, envs)
	fmt.Fprintf(out, "  Adapter:       %s/%s\n", cfg.Adapter().BaseURL, cfg.Resource)
	fmt.Fprintf(out, "  Subsystem:     %s\n", subsystem)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Quiet period:  %s\n", cfg.QuietPeriod.Duration())

	return nil
}
