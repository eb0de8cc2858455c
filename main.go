package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/api"
	"smc-signal-engine/internal/binance"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/generator"
	"smc-signal-engine/internal/lifecycle"
	"smc-signal-engine/internal/logging"
	"smc-signal-engine/internal/marketdata"
	"smc-signal-engine/internal/notification"
	"smc-signal-engine/internal/scanner"
	"smc-signal-engine/internal/vault"
)

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "config.json"), "path to config.json or config.yaml")
	sample := flag.String("generate-config", "", "write a sample configuration file and exit")
	flag.Parse()

	if *sample != "" {
		if err := config.GenerateSampleConfig(*sample); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		fmt.Printf("Sample configuration written to %s\n", *sample)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infrastructure secrets
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to create vault client", "error", err)
	}
	if err := vaultClient.Apply(ctx, cfg); err != nil {
		logger.Fatal("Failed to load infrastructure secrets", "error", err)
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	setupEventLogging(eventBus, logger)
	logger.Info("Event bus initialized")

	// Signal notifications
	if cfg.NotificationConfig.Enabled {
		notifier := notification.FromConfig(cfg.NotificationConfig)
		if notifier.Enabled() {
			notifier.Subscribe(eventBus)
			logger.Info("Signal notifications enabled", "min_confidence", cfg.NotificationConfig.MinConfidence)
		} else {
			logger.Warn("Notifications enabled but no provider is configured")
		}
	}

	// Initialize database
	store, err := database.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		logger.Fatal("Failed to open signal store", "driver", cfg.DatabaseConfig.Driver, "error", err)
	}
	defer store.Close()

	// Redis is optional; nil means in-process caching only
	var redisCache *cache.CacheService
	if cfg.RedisConfig.Enabled {
		redisCache, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Fatal("Failed to create cache service", "error", err)
		}
		defer redisCache.Close()
	}

	// Market data
	client := binance.NewMarketDataClient(cfg.BinanceConfig)
	priceCache := marketdata.NewPriceCache(cfg.EngineConfig.PriceTTL())
	var prices *marketdata.PriceService
	if redisCache != nil {
		prices = marketdata.NewPriceService(client, priceCache, redisCache)
	} else {
		prices = marketdata.NewPriceService(client, priceCache, nil)
	}
	fetcher := marketdata.NewFetcher(client,
		marketdata.WithCandleLimit(cfg.EngineConfig.CandleLimit),
		marketdata.WithTimeout(cfg.EngineConfig.FetchTimeoutDuration()),
	)

	// Signal engine and generation service
	eng := engine.New(engineConfig(cfg.EngineConfig), logger)
	opts := generator.Options{
		DefaultMinConfidence: cfg.EngineConfig.DefaultMinConfidence,
		UseLivePrice:         cfg.EngineConfig.UseLivePrice,
		Store:                store,
		Bus:                  eventBus,
	}
	if redisCache != nil {
		opts.Cache = redisCache
	}
	gen := generator.NewService(fetcher, prices, eng, opts)

	// Watchlist scanner
	scanCfg := scanner.ConfigFrom(cfg.ScannerConfig)
	signalScanner := scanner.NewScanner(gen, eventBus, scanCfg)
	if err := signalScanner.Start(); err != nil {
		logger.Fatal("Failed to start scanner", "error", err)
	}

	// Live mini-ticker prices for watchlist symbols
	if cfg.BinanceConfig.StreamEnabled && !cfg.BinanceConfig.MockMode {
		startTickerStream(ctx, cfg.BinanceConfig.StreamURL, scanCfg.Watchlist, priceCache, eventBus, logger)
	}

	// Lifecycle monitor
	var monitor *lifecycle.Monitor
	if cfg.LifecycleConfig.Enabled {
		monitor = lifecycle.NewMonitor(store, prices, eventBus,
			time.Duration(cfg.LifecycleConfig.IntervalSec)*time.Second,
			time.Duration(cfg.LifecycleConfig.ExpiryHours)*time.Hour,
			logger.Zerolog())
		go func() {
			if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Lifecycle monitor stopped", "error", err)
			}
		}()
	}

	// HTTP API
	deps := api.Dependencies{
		Generator: gen,
		Store:     store,
		Prices:    prices,
		Scanner:   signalScanner,
		Bus:       eventBus,
		Cache:     redisCache,
	}
	server := api.NewServer(api.ServerConfigFrom(cfg.ServerConfig), deps)

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	logger.Info("Signal engine started",
		"mock_mode", cfg.BinanceConfig.MockMode,
		"database", cfg.DatabaseConfig.Driver,
		"redis", redisCache != nil,
		"scanner", scanCfg.Enabled,
		"lifecycle", monitor != nil,
		"addr", fmt.Sprintf("%s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port))

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownTimeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err)
	}
	signalScanner.Stop()

	logger.Info("Shutdown complete")
}

func engineConfig(c config.EngineConfig) engine.Config {
	cfg := engine.Config{MinRiskReward: c.MinRiskReward}
	// Validate guarantees exactly three ascending multiples
	copy(cfg.TakeProfitMultiples[:], c.TakeProfitMultiples)
	return cfg
}

func startTickerStream(ctx context.Context, url string, watchlist []scanner.Target, priceCache *marketdata.PriceCache, bus *events.EventBus, logger *logging.Logger) {
	seen := make(map[string]bool)
	var symbols []string
	for _, t := range watchlist {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
	}
	if len(symbols) == 0 {
		logger.Warn("Ticker stream enabled but the watchlist is empty")
		return
	}

	stream, err := binance.NewTickerStream(url, symbols, func(symbol string, price float64, at time.Time) {
		priceCache.Observe(symbol, price, at)
		bus.PublishPriceUpdate(symbol, price)
	}, logger.Zerolog())
	if err != nil {
		logger.Error("Failed to create ticker stream", "error", err)
		return
	}

	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Ticker stream stopped", "error", err)
		}
	}()
	logger.Info("Ticker stream started", "symbols", strings.Join(symbols, ","))
}

// setupEventLogging mirrors notable bus events into the structured log
func setupEventLogging(eventBus *events.EventBus, logger *logging.Logger) {
	l := logger.WithComponent("events")

	eventBus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		l.Info("Signal generated", "id", e.Data["signal_id"], "symbol", e.Data["symbol"],
			"direction", e.Data["direction"], "confidence", e.Data["confidence"])
	})
	eventBus.Subscribe(events.EventSignalUpdate, func(e events.Event) {
		l.Info("Signal lifecycle update", "id", e.Data["signal_id"], "update", e.Data["update_type"],
			"pnl_percent", e.Data["pnl_percent"])
	})
	eventBus.Subscribe(events.EventError, func(e events.Event) {
		l.Warn("Component error", "source", e.Data["source"], "message", e.Data["message"], "error", e.Data["error"])
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
