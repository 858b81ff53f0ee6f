package main

import (
	"fmt"
	"os"

	"github.com/raaihank/pii-shield/internal/config"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for PII Shield.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pii-shield",
		Short: "PII redaction for identity documents",
		Long: `PII Shield detects and masks personally identifiable information in
images of identity documents. OCR and PII detection run on a separate
backend service; this program serves the browser front end and offers
the same operations on the command line.

The backend origin is taken from backend.base_url in the configuration
file, PIISHIELD_BACKEND_BASE_URL, or --backend.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().String("backend", "", "Backend base URL (overrides configuration)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewMaskCmd())
	cmd.AddCommand(NewHealthCheckCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies global flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend.BaseURL = backend
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg. Commands that print results
// pass quiet so only errors reach the terminal unless --verbose is set.
func newLogger(cmd *cobra.Command, cfg *config.Config, quiet bool) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	switch {
	case verbose:
		loggerConfig.Level = "debug"
	case quiet:
		loggerConfig.Level = "error"
		loggerConfig.Format = "console"
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
