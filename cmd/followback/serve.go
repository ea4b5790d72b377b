package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"followback/internal/web"
	"followback/pkg/analyzer"
	"followback/pkg/config"
	"followback/pkg/instagram"
	"followback/pkg/logger"
	"followback/pkg/metrics"
	"followback/pkg/ratelimit"
	"followback/pkg/ui"
)

var (
	serveAddr    string
	serveBackend string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front end",
	Long: `Run the followback web application.

Every analyze request is admitted by a per-address rate limiter (3 requests
per 5 minutes by default). The limiter keeps its windows in memory, or in
Redis when several instances share one limit.

Set SECRET_KEY so form tokens survive restarts.`,
	Example: `  # Listen on the default address
  followback serve

  # Listen on port 3000 with a shared Redis limiter
  FOLLOWBACK_REDIS_ADDRESS=redis:6379 followback serve --addr :3000 --rate-limit-backend redis`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	serveCmd.Flags().StringVar(&serveBackend, "rate-limit-backend", "", "rate limit store: memory or redis")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(map[string]interface{}{
		"address":            serveAddr,
		"rate-limit-backend": serveBackend,
	})
	log := logger.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	limiter, closeStore, err := buildLimiter(ctx, cfg, log, m)
	if err != nil {
		ui.PrintError("Failed to create rate limiter", err.Error())
		os.Exit(1)
	}
	defer closeStore()

	a, err := analyzer.New(analyzer.Options{
		Limiter:         limiter,
		Provider:        instagram.NewClientFromConfig(&cfg.Instagram, log),
		ProviderTimeout: cfg.Analyzer.ProviderTimeout,
		Logger:          log,
		Metrics:         m,
	})
	if err != nil {
		ui.PrintError("Failed to create analyzer", err.Error())
		os.Exit(1)
	}

	srv, err := web.NewServer(web.Options{
		Analyzer:          a,
		Metrics:           m,
		Logger:            log,
		SecretKey:         cfg.Server.SecretKey,
		FormTokenTTL:      cfg.Server.FormTokenTTL,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
		Version:           version,
	})
	if err != nil {
		ui.PrintError("Failed to create server", err.Error())
		os.Exit(1)
	}

	logger.LogComponentStart("web", map[string]interface{}{
		"address":      cfg.Server.Address,
		"backend":      cfg.RateLimit.Backend,
		"max_requests": cfg.RateLimit.MaxRequests,
		"window":       cfg.RateLimit.Window.String(),
	})
	if err := srv.Run(ctx, cfg.Server.Address, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
		log.WithError(err).Error("server stopped")
		ui.PrintError("Server failed", err.Error())
		os.Exit(1)
	}
	logger.LogComponentStop("web", "shutdown")
}

// buildLimiter creates the analyze limiter over the configured store. The
// memory store is swept in the background until ctx is done. The returned
// func releases the store.
func buildLimiter(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*ratelimit.Limiter, func(), error) {
	var (
		store   ratelimit.Store
		release = func() {}
	)

	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		client := ratelimit.NewRedisClient(cfg.RateLimit.RedisAddress, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		redisStore := ratelimit.NewRedisStore(client, ratelimit.RedisOptions{Window: cfg.RateLimit.Window})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis at %s unreachable: %w", cfg.RateLimit.RedisAddress, err)
		}
		store = redisStore
		release = func() { _ = client.Close() }

	default:
		memStore, err := ratelimit.NewMemoryStore(cfg.RateLimit.MaxAddresses, cfg.RateLimit.Window)
		if err != nil {
			return nil, nil, err
		}
		go ratelimit.RunSweeper(ctx, memStore, cfg.RateLimit.SweepInterval, time.Now, log)
		store = memStore
	}

	limiter, err := ratelimit.New(ratelimit.Options{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
		Store:       store,
		Logger:      log,
		Metrics:     m,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return limiter, release, nil
}
