package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/smartsave/gateway/config"
	httpDelivery "github.com/smartsave/gateway/internal/delivery/http"
	"github.com/smartsave/gateway/internal/domain"
	"github.com/smartsave/gateway/internal/infrastructure/bridge"
	"github.com/smartsave/gateway/internal/infrastructure/cache"
	"github.com/smartsave/gateway/internal/infrastructure/logger"
	"github.com/smartsave/gateway/internal/infrastructure/metrics"
	"github.com/smartsave/gateway/internal/infrastructure/worker"
	"github.com/smartsave/gateway/internal/usecase"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	zapLogger.Info("starting SmartSave gateway",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("region", cfg.Gateway.Region))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gatewayMetrics := metrics.NewGatewayMetrics(registry)

	// Initialize infrastructure dependencies
	supervisor := bridge.NewSupervisor(bridge.SupervisorConfig{
		Interpreter:   cfg.Bridge.Interpreter,
		Host:          cfg.Bridge.Host,
		Port:          cfg.Bridge.Port,
		Region:        cfg.Gateway.Region,
		HealthPath:    cfg.Bridge.HealthPath,
		ShutdownGrace: cfg.Bridge.ShutdownGrace,
	}, zapLogger)

	client := bridge.NewClient(bridge.ClientConfig{
		BaseURL:            supervisor.BaseURL(),
		ConnectTimeout:     cfg.Bridge.ConnectTimeout,
		ReadTimeout:        cfg.Bridge.ReadTimeout,
		MinRequestInterval: cfg.Bridge.MinRequestInterval,
	}, zapLogger)
	zapLogger.Info("bridge configured",
		zap.String("interpreter", cfg.Bridge.Interpreter),
		zap.String("base_url", supervisor.BaseURL()),
		zap.Duration("min_request_interval", cfg.Bridge.MinRequestInterval))

	productCache := cache.NewTimedCache[string, domain.Product](cache.Options[domain.Product]{
		TTL: cfg.Normalizer.CacheTTL,
	})
	normalizer := usecase.NewProductNormalizer(usecase.NormalizerConfig{
		FallbackBrand: cfg.Normalizer.FallbackBrand,
		Source:        cfg.Normalizer.Source,
		SweepInterval: cfg.Normalizer.SweepInterval,
	}, productCache, zapLogger)

	// Initialize usecase layer; blocks until the bridge is healthy or the budget is spent
	gateway, err := usecase.NewQueryGateway(ctx, usecase.GatewayDeps{
		Supervisor: supervisor,
		Source:     client,
		Normalizer: normalizer,
		Metrics:    gatewayMetrics,
		Logger:     zapLogger,
	}, usecase.GatewayConfig{
		Region:              cfg.Gateway.Region,
		SearchLimit:         cfg.Gateway.SearchLimit,
		RecentLimit:         cfg.Gateway.RecentLimit,
		HealthMaxAttempts:   cfg.Bridge.HealthMaxAttempts,
		HealthInterval:      cfg.Bridge.HealthInterval,
		ResultCacheTTL:      cfg.Gateway.ResultCacheTTL,
		ResultCacheCapacity: cfg.Gateway.ResultCacheCapacity,
		SweepInterval:       cfg.Gateway.SweepInterval,
		CoalesceQueries:     cfg.Gateway.CoalesceQueries,
		Pool: worker.Config{
			Workers:      cfg.Gateway.Workers,
			QueueSize:    cfg.Gateway.QueueSize,
			DrainTimeout: cfg.Gateway.DrainTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize query gateway: %w", err)
	}
	zapLogger.Info("query gateway initialized",
		zap.String("state", gateway.State().String()),
		zap.Bool("backend_available", gateway.Available()))

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(gateway)
	router := httpDelivery.SetupRouter(cfg, handler, zapLogger, registry)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		zapLogger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			_ = gateway.Close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("http shutdown: %w", err)
	}
	if err := gateway.Close(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("gateway close: %w", err))
	}
	if shutdownErr == nil {
		zapLogger.Info("server stopped")
	}
	return shutdownErr
}
