// Package main runs the replay server: it loads backtest result files, drives
// playback and serves frames and state over HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/api"
	"github.com/atlas-desktop/portfolio-replay/internal/config"
	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/internal/events"
	"github.com/atlas-desktop/portfolio-replay/internal/session"
	"github.com/atlas-desktop/portfolio-replay/internal/telemetry"
	"github.com/atlas-desktop/portfolio-replay/internal/workers"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (yaml, json or toml)")
	host := flag.String("host", "", "Server host")
	port := flag.Int("port", 0, "Server port")
	dataDir := flag.String("data", "", "Result file directory")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *host, *port, *dataDir, *logLevel)

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting portfolio replay server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("dataDir", cfg.Data.DataDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := data.NewStore(logger.Named("store"), cfg.Data.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize result store", zap.Error(err))
	}

	var pool *workers.Pool
	if cfg.Data.ParseWorkers > 0 {
		poolConfig := workers.DefaultPoolConfig("parse")
		poolConfig.NumWorkers = cfg.Data.ParseWorkers
		pool = workers.NewPool(logger.Named("workers"), poolConfig)
		pool.Start()
	}

	bus := events.NewEventBus(logger.Named("events"), events.DefaultEventBusConfig())
	metricsSub := telemetry.Subscribe(bus)

	sess, err := session.New(logger.Named("session"), session.Options{
		Viewer: cfg.Viewer,
		Pool:   pool,
		Store:  store,
		Bus:    bus,
	})
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}

	hub := api.NewHub(logger.Named("ws"), api.NewCommands(sess))
	go hub.Run()
	stateSub := hub.AttachBus(bus, func() interface{} { return sess.State() })

	server := api.NewServer(logger.Named("api"), &cfg.Server, sess, store, hub)

	loadDefaults(ctx, logger, cfg.Data, sess)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
	)

	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()
	sess.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	bus.Unsubscribe(stateSub)
	bus.Unsubscribe(metricsSub)
	bus.Stop()

	if pool != nil {
		if err := pool.Stop(); err != nil {
			logger.Error("Error stopping worker pool", zap.Error(err))
		}
	}

	logger.Info("Server stopped")
}

// applyFlags lets explicit command line flags win over file and environment
func applyFlags(cfg *types.AppConfig, host string, port int, dataDir, logLevel string) {
	if host != "" {
		cfg.Server.Host = host
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if dataDir != "" {
		cfg.Data.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

// loadDefaults attempts the configured startup dataset. Failures leave the
// session empty and are only logged.
func loadDefaults(ctx context.Context, logger *zap.Logger, cfg types.DataConfig, sess *session.Session) {
	if cfg.DefaultFile != "" {
		if ds, err := sess.LoadFromStore(ctx, cfg.DefaultFile); err != nil {
			logger.Debug("Default result file not loaded", zap.String("name", cfg.DefaultFile), zap.Error(err))
		} else {
			logger.Info("Loaded default result file", zap.String("id", ds.ID))
		}
	}

	if cfg.DefaultURL != "" {
		fetcher := data.NewFetcher(logger.Named("fetch"), cfg.FetchTimeout)
		if ds, err := sess.LoadURL(ctx, fetcher, cfg.DefaultURL); err != nil {
			logger.Debug("Default result URL not loaded", zap.String("url", cfg.DefaultURL), zap.Error(err))
		} else {
			logger.Info("Loaded default result URL", zap.String("id", ds.ID))
		}
	}
}
