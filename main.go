package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradewarden/config"
	"tradewarden/internal/adapters/binanceclient"
	"tradewarden/internal/adapters/logger"
	"tradewarden/internal/adapters/sqlite"
	"tradewarden/internal/domain"
	"tradewarden/internal/engine"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize the shared public market-data client (keyless) and the
	// factory building one authenticated client per user from stored keys.
	publicClient, err := binanceclient.New(binanceclient.Config{
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize public Binance client")
		log.Fatalf("FATAL: Failed to initialize public Binance client: %v", err)
	}
	gatewayFactory := func(creds *domain.APICredentials) (ports.ExchangeGateway, error) {
		return binanceclient.New(binanceclient.Config{
			APIKey:            creds.APIKey,
			SecretKey:         creds.SecretKey,
			UseTestnet:        cfg.IsTestnet,
			Logger:            appLogger,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	}
	appLogger.Info(context.Background(), "Binance clients initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize the aggregate ticker stream
	stream, err := binanceclient.NewMiniTickerStream(binanceclient.StreamConfig{
		Logger:         appLogger,
		UseTestnet:     cfg.IsTestnet,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ticker stream")
		log.Fatalf("FATAL: Failed to initialize ticker stream: %v", err)
	}

	// 6. Initialize the strategy registry
	registry, err := strategy.NewRegistry(appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy registry")
		log.Fatalf("FATAL: Failed to initialize strategy registry: %v", err)
	}
	appLogger.Info(context.Background(), "Strategy registry initialized", map[string]interface{}{"strategies": registry.Names()})

	// 7. Expose Prometheus metrics
	if cfg.MetricsListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			appLogger.Info(context.Background(), "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsListenAddr})
			if err := http.ListenAndServe(cfg.MetricsListenAddr, mux); err != nil {
				appLogger.Error(context.Background(), err, "Metrics endpoint stopped")
			}
		}()
	}

	// 8. Initialize the engine
	eng, err := engine.New(engine.Config{
		Trades:        repo,
		Profiles:      repo,
		Credentials:   repo,
		Notifications: repo,
		Journal:       repo,

		PublicGateway:  publicClient,
		GatewayFactory: gatewayFactory,
		Stream:         stream,
		Registry:       registry,
		Logger:         appLogger,

		SyncInterval:       cfg.SyncInterval,
		ScanInterval:       cfg.ScanInterval,
		SupervisorInterval: cfg.SupervisorInterval,
		AdvisorCooldown:    cfg.AdvisorCooldown,
		ClaimStaleAfter:    cfg.ClaimStaleAfter,
		ReviewDelay:        cfg.ReviewDelay,
		SessionTTL:         cfg.SessionTTL,
		ScanConcurrency:    cfg.ScanConcurrency,
		AdvisorConcurrency: cfg.AdvisorConcurrency,
		IncubateDust:       cfg.IncubateDust,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}
	appLogger.Info(context.Background(), "Engine initialized")

	// 9. Start the engine
	// Use context.Background() as the base context for the application run
	if err := eng.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Engine exited with error")
		log.Fatalf("FATAL: Engine exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
