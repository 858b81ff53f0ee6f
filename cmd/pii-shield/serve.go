package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/pii-shield/internal/blob"
	"github.com/raaihank/pii-shield/internal/config"
	"github.com/raaihank/pii-shield/internal/intake"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/notify"
	"github.com/raaihank/pii-shield/internal/page"
	"github.com/raaihank/pii-shield/internal/piiclient"
	"github.com/raaihank/pii-shield/internal/server"
	"github.com/raaihank/pii-shield/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long outstanding requests may take on exit
const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the PII Shield web page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd, cfg)
		},
	}
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides configuration)")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	log, err := newLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting PII Shield",
		zap.String("version", getVersion()),
		zap.String("commit", getCommit()),
		zap.String("build_date", getDate()),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, sweeper, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer blobs.Close()

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	var (
		hub      *notify.Hub
		listener page.Listener
	)
	if cfg.WebSocket.Enabled {
		hub = notify.NewHub(notify.Config{
			PingInterval:   cfg.WebSocket.PingInterval,
			PongTimeout:    cfg.WebSocket.PongTimeout,
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		}, log.WithComponent("notify"))
		listener = hub
	}

	policy := intake.NewPolicy(cfg.Intake.AllowedExtensions)
	sessions := session.NewManager(session.Config{
		TTL:           cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
	}, func(id string) *page.Controller {
		return page.New(page.Config{
			SessionID: id,
			Service:   client,
			Blobs:     blobs,
			Policy:    policy,
			Listener:  listener,
			Logger:    log,
		})
	}, log)

	srv, err := server.New(cfg, server.Deps{
		Sessions: sessions,
		Blobs:    blobs,
		Backend:  client,
		Hub:      hub,
		Version:  getVersion(),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := config.Watch(func(newConfig *config.Config) {
		if err := log.SetLevel(newConfig.Logging.Level); err != nil {
			log.Warn("Ignoring invalid log level", zap.Error(err))
		}
		srv.RateLimiter().Update(newConfig.RateLimit)
		log.Info("Configuration reloaded",
			zap.String("log_level", newConfig.Logging.Level),
			zap.Bool("rate_limit", newConfig.RateLimit.Enabled),
		)
	}); err != nil {
		log.Warn("Configuration hot reload disabled", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
		return nil
	})

	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error { return srv.RateLimiter().Run(gctx) })
	if hub != nil {
		g.Go(func() error { return hub.Run(gctx) })
	}
	if sweeper != nil {
		g.Go(func() error { return sweeper(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	log.Info("Server shutdown complete")
	return nil
}

// openBlobStore opens the configured store. For the memory store it also
// returns a loop that drops expired images.
//
// Every request renews the image with its session, and the image outlives
// the session by one sweep interval so the janitor closes the session
// before the image can expire under it.
func openBlobStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (blob.Store, func(context.Context) error, error) {
	ttl := blobTTL(cfg.Session)
	switch cfg.Blob.Backend {
	case "redis":
		store, err := blob.NewRedisStore(ctx, blob.RedisConfig{
			URL:       cfg.Blob.RedisURL,
			PoolSize:  cfg.Blob.PoolSize,
			KeyPrefix: cfg.Blob.KeyPrefix,
			TTL:       ttl,
		}, log.WithComponent("blob").Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open blob store: %w", err)
		}
		return store, nil, nil

	default:
		store := blob.NewMemoryStore(ttl)
		sweep := func(ctx context.Context) error {
			ticker := time.NewTicker(cfg.Session.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if n := store.Sweep(); n > 0 {
						log.Debug("Dropped expired masked images", zap.Int("count", n))
					}
				}
			}
		}
		return store, sweep, nil
	}
}

func blobTTL(cfg config.SessionConfig) time.Duration {
	return cfg.TTL + cfg.SweepInterval
}

func newClient(cfg *config.Config, log *logger.Logger) (*piiclient.Client, error) {
	client, err := piiclient.New(piiclient.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		UserAgent: cfg.Backend.UserAgent,
	}, piiclient.WithLogger(log.WithComponent("piiclient")))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}
