// Package main is the entry point for the conflux CLI.
//
// Conflux can be embedded as a library or run as a standalone server with
// YAML configuration. This CLI provides the standalone server.
//
// Usage:
//
//	conflux serve -c config.yaml                  # Start the API server
//	conflux serve -c config.yaml --env-file .env  # Load secrets from .env first
//	conflux validate -c config.yaml               # Validate configuration
//	conflux version                               # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "conflux",
	Short: "Notification aggregation and health check server",
	Long: `Conflux collects events from external systems and from its own HTTP
health checks into one deduplicated list of notifications.

Repeats of the same (source, title, message) are folded into a single
notification whose count goes up and which becomes unread again.

Quick start:
  1. Create a config file (conflux.yaml)
  2. Run: conflux serve -c conflux.yaml
  3. Register a check:
       curl -X POST localhost:8080/api/healthcheck/register \
         -d '{"name":"API","url":"https://api.example.com/health","intervalSeconds":30}'

Example config:
  port: 8080
  storage:
    driver: sqlite
    dsn: conflux.db
  health_checks:
    - name: API
      url: https://api.example.com/health
      interval: 30s`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this conflux binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "conflux %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
