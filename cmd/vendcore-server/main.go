// Package main provides the entry point for vendcore-server.
//
// vendcore-server is the wallet and card-authentication core for the
// UrbanKetl tea vending fleet: it runs the DESFire handshake sessions,
// the wallet ledger, the card key store, and the audit trail.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/urbanketl/vendcore/internal/audit"
	"github.com/urbanketl/vendcore/internal/core/service"
	"github.com/urbanketl/vendcore/internal/infra/buildinfo"
	"github.com/urbanketl/vendcore/internal/infra/confloader"
	"github.com/urbanketl/vendcore/internal/infra/shutdown"
	"github.com/urbanketl/vendcore/internal/server/config"
	"github.com/urbanketl/vendcore/internal/server/localserver"
	"github.com/urbanketl/vendcore/internal/storage/keystore"
	"github.com/urbanketl/vendcore/internal/storage/ledger"
	"github.com/urbanketl/vendcore/internal/storage/memory"
	"github.com/urbanketl/vendcore/internal/telemetry/logger"
	"github.com/urbanketl/vendcore/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Get())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting vendcore-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)

	// Metrics registry first, so every component can hook into it.
	metrics := metric.NewRegistry()

	// Storage: ledger, key store, audit trail.
	ledgerStore, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	masterKey, err := hex.DecodeString(cfg.Keystore.MasterKey)
	if err != nil {
		return fmt.Errorf("decode master key: %w", err)
	}
	keyStore, err := keystore.Open(cfg.Keystore.Path, masterKey)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}

	auditSink, err := audit.Open(cfg.Audit.Dir,
		audit.WithLogger(slogLogger),
		audit.WithRetention(cfg.Audit.Retention))
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}

	// In-memory session store with background expiry.
	sessions := memory.New(memory.WithTTL(cfg.Session.TTL))
	metrics.MustRegister(metric.NewSessionCollector(sessions.Stats))

	sweeper := memory.NewSweeper(sessions,
		memory.WithInterval(cfg.Session.SweepInterval),
		memory.WithLogger(slogLogger),
		memory.WithOnSweep(metrics.ObserveSweep))
	sweeper.Start()

	// Domain services.
	authSvc := service.NewAuthService(sessions, keyStore,
		service.WithAuthLogger(slogLogger),
		service.WithAuditSink(auditSink),
		service.WithGraceDelete(cfg.Session.GraceDelete),
		service.WithRateLimit(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst),
		service.WithStartHook(metrics.AuthStarted.Inc),
		service.WithThrottleHook(metrics.RateLimitDrops.Inc),
		service.WithOutcomeHook(metrics.ObserveOutcome))

	dispenseSvc := service.NewDispenseService(ledgerStore,
		service.WithDispenseLogger(slogLogger),
		service.WithStatementTimeout(cfg.Ledger.StatementTimeout),
		service.WithDispenseHook(metrics.ObserveDispense))

	log.Info("services initialized",
		"auth_service", "ready",
		"dispense_service", "ready")

	// Unix socket endpoint for same-host machine gateways.
	localHandler := localserver.NewHandler(authSvc, dispenseSvc, slogLogger)
	localServer := localserver.New(cfg.Local.SocketPath, localHandler,
		localserver.WithServerLogger(slogLogger))
	go func() {
		log.Info("local endpoint listening", "socket", cfg.Local.SocketPath)
		if err := localServer.ListenAndServe(); err != nil {
			log.Error("local server error", "error", err)
		}
	}()

	// Metrics endpoint.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	// Hot-reload of the log level on config file changes.
	var watcher *confloader.Watcher
	if *configFile != "" {
		watcher, err = confloader.NewWatcher(confloader.WithWatcherLogger(slogLogger))
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		watcher.OnChange(func(path string) {
			reloaded, err := loadConfig(*configFile)
			if err != nil {
				log.Warn("config reload failed", "path", path, "error", err)
				return
			}
			logger.SetLevel(reloaded.Log.Level)
			log.Info("log level reloaded", "level", reloaded.Log.Level)
		})
		if err := watcher.Watch(*configFile); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		watcher.StartAsync()
	}

	// Shutdown hooks run in reverse registration order.
	shutdownHandler := shutdown.NewHandler(shutdown.DefaultTimeout)

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing ledger")
		return ledgerStore.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing keystore")
		return keyStore.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing audit sink")
		return auditSink.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("stopping session sweeper")
		sweeper.Stop()
		return nil
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down local endpoint")
		return localServer.Shutdown(ctx)
	})
	if watcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}
	if metricsServer != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down metrics endpoint")
			return metricsServer.Shutdown(ctx)
		})
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger and installs it as the
// process default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}
