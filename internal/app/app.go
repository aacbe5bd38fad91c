// Package app wires the domain packages into a runnable process: it loads
// configuration, builds the keystore/engine/oplog/embedder registry, and
// starts the HTTP server and replication shipper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flapjack/flapjack/internal/config"
	"github.com/flapjack/flapjack/internal/engine"
	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/internal/ratelimit"
	"github.com/flapjack/flapjack/internal/telemetry"
	"github.com/flapjack/flapjack/pkg/embedder"
	"github.com/flapjack/flapjack/pkg/flapjackapi"
	"github.com/flapjack/flapjack/pkg/keystore"
	"github.com/flapjack/flapjack/pkg/oplog"
	"github.com/flapjack/flapjack/pkg/pauseregistry"
)

// Run is the process entry point: it reads config, wires the engine/keystore/
// oplog/embedder stack into an *flapjackapi.App, and serves it until ctx is
// canceled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting flapjack", "environment", cfg.Environment, "listen", cfg.ListenAddr())

	adminKey := cfg.AdminKey
	if adminKey == "" {
		adminKey, err = keystore.LoadOrInitAdminKey(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("initializing admin key: %w", err)
		}
		logger.Warn("FLAPJACK_ADMIN_KEY not set, using the generated key in .admin_key")
	}

	keys := keystore.LoadOrCreate(cfg.DataDir, adminKey, logger)
	paused := pauseregistry.New()
	oplogs := oplog.NewManager()
	eng := engine.New()
	embedders := embedder.NewRegistry()

	replicationGrace, err := time.ParseDuration(cfg.ReplicationGraceDelay)
	if err != nil {
		return fmt.Errorf("parsing FLAPJACK_REPLICATION_GRACE_DELAY %q: %w", cfg.ReplicationGraceDelay, err)
	}

	shipper := oplog.NewShipper(oplogs, cfg.ReplicationPeers, nil, logger, telemetry.ReplicationCollector{})
	shipper.Start(ctx)
	defer shipper.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing FLAPJACK_REDIS_URL %q: %w", cfg.RedisURL, err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	flapApp := &flapjackapi.App{
		Keys:               keys,
		Paused:             paused,
		Oplogs:             oplogs,
		Shipper:            shipper,
		Engine:             eng,
		Embedders:          embedders,
		RateLimit:          ratelimit.New(rdb),
		Metrics:            telemetry.WriteCollector{},
		Logger:             logger,
		MaxBatchSize:       cfg.MaxBatchSize,
		ReplicationGraceMs: replicationGrace.Milliseconds(),
		NoAuth:             cfg.NoAuth,
		AnalyticsDataDir:   cfg.DataDir,
	}

	metricsReg := telemetry.NewMetricsRegistry()
	srv := httpserver.NewServer(flapApp, logger, metricsReg, cfg.CORSAllowedOrigins)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
