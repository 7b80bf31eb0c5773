// Package main provides the API server entry point for the whale scanner service.
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
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whale-scanner/internal/api"
	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/config"
	"github.com/whale-scanner/internal/datasource"
	"github.com/whale-scanner/internal/insight"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/monitor"
	"github.com/whale-scanner/internal/ratelimit"
)

func main() {
	fmt.Println("Whale Scanner API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Build the chain registry from the enabled chain list
	registry, err := chains.DefaultRegistry().Filter(cfg.Chains.Enabled)
	if err != nil {
		logger.WithError(err).Fatal("Invalid chain configuration")
	}
	registry = registry.WithExplorerURLs(cfg.Chains.ExplorerURLs)
	logger.WithField("chains", cfg.Chains.Enabled).Info("Chain registry initialized")

	// Optional shared explorer request budget, coordinated through Redis
	var budget *ratelimit.RequestBudget
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}

		budget, err = ratelimit.NewRequestBudget(&ratelimit.RequestBudgetConfig{Redis: rdb})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create request budget")
		}
		logger.WithFields(map[string]interface{}{
			"addr":  cfg.Redis.Addr(),
			"total": budget.GetTotalBudget(),
		}).Info("Explorer request budget enabled")
	}

	// Resolve the data source backend once for the process lifetime
	factory, err := datasource.NewFactory(datasource.FactoryConfig{
		Mode:              cfg.DataSource.Mode,
		DeployEnv:         cfg.DataSource.DeployEnv,
		EnableFallback:    cfg.DataSource.EnableFallback,
		Registry:          registry,
		ProtocolURL:       cfg.DataSource.ProtocolURL,
		ConnectTimeout:    cfg.DataSource.ConnectTimeout,
		CallTimeout:       cfg.DataSource.CallTimeout,
		ExplorerAPIKey:    cfg.Explorer.APIKey,
		RequestTimeout:    cfg.Explorer.RequestTimeout,
		RequestsPerSecond: cfg.Explorer.RequestsPerSecond,
		Burst:             cfg.Explorer.Burst,
		MaxRetries:        cfg.Explorer.MaxRetries,
		Budget:            budget,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create data source factory")
	}
	logger.WithField("source", string(factory.Source())).Info("Data source resolved")

	// Monitored address roster: configured entries or the built-in set
	var roster *monitor.Roster
	if len(cfg.Scan.MonitoredAddresses) > 0 {
		roster, err = monitor.ParseRoster(cfg.Scan.MonitoredAddresses)
		if err != nil {
			logger.WithError(err).Fatal("Invalid MONITORED_ADDRESSES")
		}
	} else {
		roster = monitor.DefaultRoster()
	}
	logger.WithField("addresses", roster.Len()).Info("Monitored address roster loaded")

	// Initialize services
	whaleMonitor := monitor.NewMonitor(factory, roster, monitor.MonitorConfig{
		MaxPagesPerAddress:   cfg.Scan.MaxPagesPerAddress,
		MaxTransfersPerChain: cfg.Scan.MaxTransfersPerChain,
	})
	aggregator := monitor.NewAggregator(whaleMonitor, registry, monitor.AggregatorConfig{
		MaxConcurrentChains: cfg.Scan.MaxConcurrentChains,
	})
	summarizer := insight.New(cfg.Insight)
	logger.WithField("llm", cfg.Insight.OpenAIAPIKey != "").Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		RequestsPerMinute:  cfg.RateLimit.RequestsPerMinute,
		Burst:              cfg.RateLimit.Burst,
		DefaultMinValueUSD: cfg.Scan.MinValueUSD,
		DefaultTimeRange:   cfg.Scan.DefaultTimeRange,
		ResponsePageSize:   cfg.Scan.ResponsePageSize,
		TopWhales:          cfg.Scan.TopWhales,
	}

	server := api.NewServer(serverConfig, aggregator, summarizer, factory, registry)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
