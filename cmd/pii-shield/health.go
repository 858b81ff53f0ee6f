package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// NewHealthCheckCmd creates the health-check command.
func NewHealthCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health-check",
		Short: "Check a running PII Shield server",
		Long: `Query the /health endpoint of a running server. The check fails when
the server is down or cannot reach its backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, _ := cmd.Flags().GetString("url")
			if target == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				target = fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)
			}
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return performHealthCheck(cmd, target, timeout)
		},
	}
	cmd.Flags().String("url", "", "Health endpoint (default: localhost on the configured port)")
	cmd.Flags().Duration("timeout", 5*time.Second, "Request timeout")
	return cmd
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(cmd *cobra.Command, target string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
	return nil
}
