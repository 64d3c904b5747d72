package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradewarden/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance public market data API. Per-user trading keys live in the
	// store, not here.
	IsTestnet         bool
	RequestsPerSecond float64 // REST rate limit for the shared public client

	// Engine intervals
	SyncInterval       time.Duration // cache rebuild cadence
	ScanInterval       time.Duration // entry scan cadence
	SupervisorInterval time.Duration // closure queue drain cadence

	// Engine behaviour
	AdvisorCooldown    time.Duration // minimum gap between advisor visits to one trade
	ClaimStaleAfter    time.Duration // closure claims older than this may be re-won
	ReviewDelay        time.Duration // wait before grading a closed trade
	SessionTTL         time.Duration // lifetime of a cached user exchange session
	ScanConcurrency    int           // users scanned in parallel
	AdvisorConcurrency int           // trades advised in parallel
	IncubateDust       bool          // keep unsellable positions open instead of closing at zero PnL

	// Database
	DBPath string

	// Metrics
	MetricsListenAddr string // empty disables the metrics endpoint

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Stream settings
	ReconnectDelay time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("REQUESTS_PER_SECOND", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}

	// Engine intervals
	cfg.SyncInterval, err = getEnvAsSeconds("SYNC_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ScanInterval, err = getEnvAsSeconds("SCAN_INTERVAL_SECONDS", 300)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.SupervisorInterval, err = getEnvAsSeconds("SUPERVISOR_INTERVAL_SECONDS", 3)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Engine behaviour
	cfg.AdvisorCooldown, err = getEnvAsSeconds("ADVISOR_COOLDOWN_SECONDS", 900)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ClaimStaleAfter, err = getEnvAsSeconds("CLAIM_STALE_SECONDS", 120)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ReviewDelay, err = getEnvAsSeconds("REVIEW_DELAY_SECONDS", 60)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.SessionTTL, err = getEnvAsSeconds("SESSION_TTL_SECONDS", 1800)
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg.ScanConcurrency = getEnvAsInt("SCAN_CONCURRENCY", 4)
	if cfg.ScanConcurrency <= 0 {
		errs = append(errs, "SCAN_CONCURRENCY must be positive")
	}
	cfg.AdvisorConcurrency = getEnvAsInt("ADVISOR_CONCURRENCY", 4)
	if cfg.AdvisorConcurrency <= 0 {
		errs = append(errs, "ADVISOR_CONCURRENCY must be positive")
	}
	cfg.IncubateDust = getEnvAsBool("INCUBATE_DUST", false)

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradewarden.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Metrics
	cfg.MetricsListenAddr = getEnv("METRICS_LISTEN_ADDR", ":9090")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Stream settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultSeconds int) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Duration(defaultSeconds) * time.Second, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(value) * time.Second, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
