// Command edmserver runs the EDM prediction engine as an HTTP service.
//
// Clients POST a self-describing run document (the dump format, plus a run
// name) to /run; the server embeds the series, executes the prediction run
// under a bounded worker pool, stores the outcome, and returns it. The
// latest outcome per name can be fetched again at /run/latest.
//
// Endpoints:
//   - POST /run - Execute a prediction run
//   - GET /run/latest?name=<name> - Retrieve the latest run record
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Environment variables (flags take precedence):
//
//	LISTEN         - HTTP listen address (default :8081)
//	STORAGE        - memory or redis (default memory)
//	REDIS_ADDR     - Redis address for the redis backend
//	RUN_TIMEOUT    - Per-run wall clock bound (default 5m)
//	THREADS        - Default worker count per run (0 = auto)
//	LOG_LEVEL      - debug, info, warn, error (default info)
//	LOG_FORMAT     - text or json (default text)
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EDM-Developers/edm/cmd/edmserver/config"
	"github.com/EDM-Developers/edm/cmd/edmserver/logger"
	"github.com/EDM-Developers/edm/cmd/edmserver/metrics"
	"github.com/EDM-Developers/edm/cmd/edmserver/router"
	"github.com/EDM-Developers/edm/pkg/httpx"
	"github.com/EDM-Developers/edm/pkg/storage"
	edmtls "github.com/EDM-Developers/edm/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting edmserver",
		"version", version,
		"listen", cfg.Listen,
		"storage", cfg.Storage,
	)

	store := newStore(cfg, logger)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	mux := router.SetupRoutes(store, metrics.New(), router.Options{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RunTimeout:     cfg.RunTimeout,
		DefaultThreads: cfg.Threads,
	}, logger)

	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			tlsConfig, err := edmtls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
			if err != nil {
				logger.Error("failed to build TLS config", "error", err)
				os.Exit(1)
			}
			httpServer.SetTLSConfig(tlsConfig)
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// newStore builds the configured storage backend.
func newStore(cfg *config.Config, logger *slog.Logger) storage.Store {
	switch cfg.Storage {
	case "redis":
		store, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		logger.Info("using redis storage", "addr", cfg.RedisAddr)
		return store
	default:
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore()
	}
}
