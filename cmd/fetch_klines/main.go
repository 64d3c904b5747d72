// Command fetch_klines downloads recent candle history for a symbol and
// saves it as CSV, for offline inspection of what the strategies saw.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"tradewarden/config"
	"tradewarden/internal/adapters/binanceclient"
	"tradewarden/internal/adapters/logger"
	"tradewarden/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "symbol to fetch")
	interval := flag.String("interval", "15m", "kline interval")
	limit := flag.Int("limit", 500, "number of candles")
	out := flag.String("out", "", "output file (defaults to data/<symbol>_<interval>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize the public market-data client (no keys needed)
	client, err := binanceclient.New(binanceclient.Config{
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	klines, err := client.GetKlines(context.Background(), *symbol, *interval, *limit)
	if err != nil {
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched klines", map[string]interface{}{
		"symbol": *symbol, "interval": *interval, "count": len(klines),
	})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s.csv", *symbol, *interval)
	}
	if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved klines", map[string]interface{}{"filename": filename})
}
