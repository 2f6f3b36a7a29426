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

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/medrex/medledger/internal/api"
	"github.com/medrex/medledger/internal/fees"
	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/metadata"
	"github.com/medrex/medledger/internal/roles"
	"github.com/medrex/medledger/internal/workflow"
	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
)

const (
	serviceName    = "medledger-gateway"
	serviceVersion = "1.0.0"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Monitoring
	var metrics *monitoring.MetricsCollector
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetricsCollector(serviceName)
	}

	var tracing *monitoring.TracingManager
	if cfg.Monitoring.TracingEnabled {
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
			Environment:    cfg.Monitoring.Environment,
			SamplingRate:   cfg.Monitoring.SamplingRate,
		})
		if err != nil {
			logger.WithError(err).Warn("Tracing disabled")
			tracing = nil
		}
	}

	// Ledger access
	contract, err := ledger.NewContract(cfg.Ledger.ContractAddress)
	if err != nil {
		logger.Fatalf("Invalid contract address: %v", err)
	}
	client := ledger.NewRPCClient(&cfg.Ledger, contract, logger, metrics)
	gateway := ledger.NewReadGateway(client, logger, metrics)

	// Off-chain metadata
	var store interfaces.ContentStore = metadata.NewGatewayStore(&cfg.Metadata)
	var mirror *metadata.MirrorStore
	if cfg.Metadata.MirrorPath != "" {
		mirror, err = metadata.OpenMirrorStore(cfg.Metadata.MirrorPath, store, logger)
		if err != nil {
			logger.Fatalf("Failed to open metadata mirror: %v", err)
		}
		store = mirror
	}
	resolver := metadata.NewResolver(store, &cfg.Metadata, logger, metrics)

	// Domain services
	roleResolver := roles.NewResolver(gateway, logger)
	calculator := fees.NewCalculator(gateway)
	workflows := workflow.NewSet(workflow.Deps{
		Reader:   gateway,
		Roles:    roleResolver,
		Fees:     calculator,
		Contract: contract,
		Receipts: client,
		Config:   &cfg.Transactions,
		Logger:   logger,
		Metrics:  metrics,
	})

	// Health checks
	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("ledger", monitoring.NewLedgerHealthChecker(client, uint64(cfg.Ledger.ChainID)))
	health.RegisterChecker("metadata_gateway", monitoring.NewMetadataGatewayChecker(cfg.Metadata.GatewayURL, cfg.Metadata.FetchTimeoutDuration()))

	limiter := api.NewAccountLimiter(cfg.Server.RatePerSec, cfg.Server.RateBurst)
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	go limiter.Run(limiterCtx)

	server := api.NewServer(api.Options{
		Gateway:       gateway,
		Enricher:      ledger.NewEnricher(resolver),
		Roles:         roleResolver,
		Fees:          calculator,
		Workflows:     workflows,
		Wallets:       ledger.NewNodeWallets(client, cfg.Wallet.Gas),
		Health:        health,
		Metrics:       metrics,
		Logger:        logger,
		Limiter:       limiter,
		AllowedOrigin: cfg.Server.AllowedOrigin,
	})

	router := mux.NewRouter()
	router.Use(monitoring.NewMonitoringMiddleware(metrics, tracing, logger).HTTPMiddleware)
	server.SetupRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("addr", httpServer.Addr).
			WithField("contract", contract.Address()).
			Info("Starting ledger gateway")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start ledger gateway: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down ledger gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}

	// Pending transactions are reported as indeterminate from here on
	workflows.Close()
	stopLimiter()

	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close metadata mirror")
		}
	}
	if tracing != nil {
		if err := tracing.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}

	logger.Info("Ledger gateway stopped")
}
