// Package main is the entry point for the munirpanel CLI.
//
// munirpanel can be used as a library (SDK) or as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	munirpanel serve -c config.yaml            # Start the control panel
//	munirpanel validate -c config.yaml         # Validate configuration
//	munirpanel status -c config.yaml           # Print the adapter status once
//	munirpanel set -c config.yaml <path> <json> # Write one parameter
//	munirpanel mock-adapter --addr :8888       # Run a local mock adapter
//	munirpanel version                         # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. A fresh tree per invocation keeps
// flag state from leaking between test runs.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "munirpanel",
		Short: "Control panel for the Munir acquisition adapter",
		Long: `munirpanel is a control panel for the Munir data-acquisition adapter.

It polls the adapter's parameter tree, shows live status in a web UI, and
writes file settings and acquisition commands back to the adapter.

Quick start:
  1. Create a config file (munirpanel.yaml)
  2. Run: munirpanel serve -c munirpanel.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  environments:
    development:
      base_url: http://localhost:8888/api/0.1`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newStatusCmd(),
		newSetCmd(),
		newMockAdapterCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already prints the error
		os.Exit(1)
	}
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this munirpanel binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "munirpanel %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// loggerFor builds the logger selected by the persistent flags. Logs go to
// stderr so command output on stdout stays clean.
func loggerFor(cmd *cobra.Command) (*slog.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("log-format")
	return newLogger(cmd.ErrOrStderr(), format, verbose)
}

func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	switch format {
	case "text", "":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if s, ok := a.Value.Any().(string); ok && s == "" {
					return slog.Attr{}
				}
				return a
			},
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
}
