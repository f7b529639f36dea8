// Package main wires together the diagnostic capture service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/api"
	"github.com/webdiag-project/webdiag/internal/artifacts"
	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/clock/system"
	"github.com/webdiag-project/webdiag/internal/config"
	"github.com/webdiag-project/webdiag/internal/correlate"
	"github.com/webdiag-project/webdiag/internal/id/uuid"
	"github.com/webdiag-project/webdiag/internal/ingest"
	"github.com/webdiag-project/webdiag/internal/ingest/sinks"
	"github.com/webdiag-project/webdiag/internal/kv"
	kvbolt "github.com/webdiag-project/webdiag/internal/kv/bolt"
	kvmemory "github.com/webdiag-project/webdiag/internal/kv/memory"
	"github.com/webdiag-project/webdiag/internal/logging"
	"github.com/webdiag-project/webdiag/internal/metrics"
	"github.com/webdiag-project/webdiag/internal/orchestrator"
	"github.com/webdiag-project/webdiag/internal/report"
	"github.com/webdiag-project/webdiag/internal/session"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	sessionKey := flag.String("session", "default", "Session key for the monitored tab")
	startURL := flag.String("url", "", "URL to open in the monitored tab")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store kv.Store
	switch cfg.Store.Backend {
	case "bolt":
		boltStore, err := kvbolt.Open(cfg.Store.Path)
		if err != nil {
			logger.Fatal("open session store", zap.Error(err))
		}
		defer func() {
			if closeErr := boltStore.Close(); closeErr != nil {
				logger.Error("close session store", zap.Error(closeErr))
			}
		}()
		store = boltStore
	default:
		store = kvmemory.New()
	}

	console := buffer.NewConsole(store, cfg.Capture.ConsoleMaxEntries, logger.Named("console"))
	network := buffer.NewNetwork(store, cfg.Capture.NetworkMaxEntries, logger.Named("network"))
	correlator := correlate.New(network, logger.Named("correlate"))

	hub := ingest.NewHub(
		ingest.Config{
			BufferSize:     cfg.Ingest.BufferSize,
			MaxBatchEvents: cfg.Ingest.MaxBatchEvents,
			MaxBatchWait:   cfg.BatchWait(),
			Logger:         logger.Named("ingest"),
		},
		sinks.NewBufferSink(console, network, correlator, cfg.Capture.NetworkBodyMaxSize, logger.Named("sink")),
		sinks.NewLogSink(logger.Named("events")),
	)

	clock := system.New()
	idGen := uuid.New()
	reports := report.NewStore()

	var monitor *session.Monitor
	if cfg.Browser.Enabled {
		monitor, err = session.NewMonitor(session.Config{
			Headless:       cfg.Browser.Headless,
			NavTimeout:     time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			BodyFetchRate:  cfg.Browser.BodyFetchRate,
			BodyFetchBurst: cfg.Browser.BodyFetchBurst,
		}, *sessionKey, hub, clock, logger.Named("session"))
		if err != nil {
			logger.Fatal("browser monitor init failed", zap.Error(err))
		}
		if *startURL != "" {
			if err := monitor.Navigate(ctx, *startURL); err != nil {
				logger.Warn("initial navigation failed", zap.String("url", *startURL), zap.Error(err))
			}
		}
	}

	var provider artifacts.Provider
	switch cfg.Artifacts.Backend {
	case "local":
		localStore, err := artifacts.NewLocalStore(cfg.Artifacts.Dir)
		if err != nil {
			logger.Fatal("open artifact store", zap.Error(err))
		}
		provider = localStore
	case "memory":
		provider = artifacts.NewMemoryStore()
	default:
		provider = artifacts.NoOpProvider{}
	}
	exporter := artifacts.NewExporter(provider, logger.Named("export"))

	orchCfg := orchestrator.Config{
		CaptureConsole:     cfg.Capture.Console,
		CaptureNetwork:     cfg.Capture.Network,
		CaptureEnvironment: cfg.Capture.Environment,
		MaxScreenshotBytes: cfg.Capture.MaxScreenshotBytes,
		SourceTimeout:      cfg.SourceTimeout(),
	}
	var shots capture.ScreenshotSource
	var env capture.EnvironmentSource
	if monitor != nil {
		shots = monitor
		env = monitor
	}
	orch := orchestrator.New(console, network, shots, env, store, reports, idGen, clock, orchCfg, logger.Named("orchestrator"))

	apiServer := api.NewServer(orch, reports, exporter, console, network, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if monitor != nil {
		if err := monitor.Close(shutdownCtx); err != nil {
			logger.Error("monitor close error", zap.Error(err))
		}
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("ingest hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
