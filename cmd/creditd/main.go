package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ripe/config"
	"ripe/core/events"
	"ripe/native/mission"
	"ripe/native/teller"
	"ripe/observability"
	"ripe/observability/logging"
	telemetry "ripe/observability/otel"
	"ripe/services/creditd/auth"
	"ripe/services/creditd/journal"
	creditmw "ripe/services/creditd/middleware"
	"ripe/services/creditd/server"
	"ripe/services/creditd/stream"
	"ripe/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "creditd.yaml", "path to creditd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("creditd", cfg.Logging.Env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,

		FullAddresses: cfg.Logging.FullAddresses,
	})
	if err := run(cfg, logger); err != nil {
		logger.Error("creditd: exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	for k, v := range cfg.Telemetry.Headers {
		headers[k] = v
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "creditd",
		Environment: cfg.Logging.Env,
		Namespace:   cfg.Protocol.Namespace,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	params, err := mission.LoadFile(cfg.Protocol.MissionFile)
	if err != nil {
		return err
	}
	prices, err := cfg.Protocol.SeedPrices()
	if err != nil {
		return err
	}
	tl, err := teller.Open(teller.Options{
		DB:          db,
		Mission:     *params,
		Namespace:   cfg.Protocol.Namespace,
		MaxPriceAge: cfg.Protocol.MaxPriceAge,
		Prices:      prices,
	})
	if err != nil {
		return err
	}
	tl.SetLogger(logger)
	tl.SetPauses(cfg.Protocol.PauseSet())

	metrics := observability.CreditMetrics()
	tl.SetMetrics(metrics)

	journalDB, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	sqlDB, err := journalDB.DB()
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer sqlDB.Close()

	hub := stream.NewHub(logger)
	store := journal.New(journalDB, logger)
	tl.SetEmitter(events.Fanout{
		store,
		hub,
		observability.EventSink{Metrics: metrics},
	})

	verifier, err := auth.NewVerifier(auth.Options{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Teller:   tl,
		Journal:  store,
		Hub:      hub,
		Verifier: verifier,
		Limiter: creditmw.NewRateLimiter(creditmw.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}, metrics),
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
		Ready:    sqlDB.PingContext,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Protocol.BlockIntervalSeconds > 0 {
		go produceBlocks(ctx, tl, time.Duration(cfg.Protocol.BlockIntervalSeconds)*time.Second, logger)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("creditd listening",
			"address", cfg.ListenAddress,
			"storage", cfg.Storage.Backend,
			"journal", cfg.Journal.Driver,
			logging.MaskField("dsn", cfg.Journal.DSN),
		)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"))
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return db, nil
	default:
		return storage.NewMemDB(), nil
	}
}

func produceBlocks(ctx context.Context, tl *teller.Teller, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tl.AdvanceBlock(tl.Block() + 1); err != nil {
				logger.Warn("creditd: advance block failed", "error", err)
			}
		}
	}
}
