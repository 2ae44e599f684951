package main

import (
	"fmt"

	"github.com/jpalmerr/conflux/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a conflux configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It does not connect to storage or Redis.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  conflux validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	redis := "disabled"
	if cfg.Redis.Enabled() {
		redis = cfg.Redis.Addr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Probe timeout: %s\n", cfg.ProbeTimeout.Duration())
	fmt.Fprintf(out, "  Storage:       %s\n", cfg.Storage.Driver)
	fmt.Fprintf(out, "  Redis:         %s\n", redis)
	fmt.Fprintf(out, "  Health checks: %d\n", len(cfg.HealthChecks))

	return nil
}
