// Command signalgen runs one signal generation and prints the rationale trace.
//
// Exit codes: 0 signal generated, 1 usage or infrastructure error, 2 signal rejected.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/binance"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/generator"
	"smc-signal-engine/internal/logging"
	"smc-signal-engine/internal/marketdata"
)

const (
	exitOK       = 0
	exitError    = 1
	exitRejected = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("signalgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.json", "path to config.json or config.yaml")
	symbol := fs.String("symbol", "BTCUSDT", "instrument symbol")
	timeframe := fs.String("timeframe", "1h", "working timeframe (1m 5m 15m 30m 1h 4h 1D 1W)")
	orderType := fs.String("order-type", "market", "market or limit")
	minConfidence := fs.Int("min-confidence", 0, "confidence gate (unset uses the configured default)")
	methods := fs.String("methods", "", "comma separated advisory method tags")
	asOf := fs.String("as-of", "", "session clock as RFC3339 (default: last candle time)")
	mock := fs.Bool("mock", false, "use simulated market data")
	asJSON := fs.Bool("json", false, "print the signal as JSON instead of the trace")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}
	if *mock {
		cfg.BinanceConfig.MockMode = true
	}
	logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr"}))

	req := engine.Request{
		Symbol:    *symbol,
		Timeframe: analysis.Timeframe(*timeframe),
		OrderType: engine.OrderType(strings.ToLower(*orderType)),
		Methods:   splitMethods(*methods),
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-confidence" {
			req.MinConfidence = engine.MinConfidence(*minConfidence)
		}
	})
	if *asOf != "" {
		t, err := time.Parse(time.RFC3339, *asOf)
		if err != nil {
			fmt.Fprintf(stderr, "Invalid -as-of: %v\n", err)
			return exitError
		}
		req.AsOf = t.UTC()
	}

	client := binance.NewMarketDataClient(cfg.BinanceConfig)
	prices := marketdata.NewPriceService(client, marketdata.NewPriceCache(cfg.EngineConfig.PriceTTL()), nil)
	fetcher := marketdata.NewFetcher(client,
		marketdata.WithCandleLimit(cfg.EngineConfig.CandleLimit),
		marketdata.WithTimeout(cfg.EngineConfig.FetchTimeoutDuration()),
	)
	engCfg := engine.Config{MinRiskReward: cfg.EngineConfig.MinRiskReward}
	copy(engCfg.TakeProfitMultiples[:], cfg.EngineConfig.TakeProfitMultiples)
	eng := engine.New(engCfg, logging.Default())
	gen := generator.NewService(fetcher, prices, eng, generator.Options{
		DefaultMinConfidence: cfg.EngineConfig.DefaultMinConfidence,
		UseLivePrice:         cfg.EngineConfig.UseLivePrice,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.EngineConfig.FetchTimeoutDuration()+5*time.Second)
	defer cancel()

	sig, err := gen.Generate(ctx, req)
	if err != nil {
		if rej, ok := engine.AsRejection(err); ok {
			fmt.Fprintln(stdout, rej.Trace)
			fmt.Fprintf(stdout, "\nREJECTED: %s\n", rej.Error())
			return exitRejected
		}
		fmt.Fprintf(stderr, "Generation failed: %v\n", err)
		return exitError
	}

	if *asJSON {
		out, err := json.MarshalIndent(sig, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "Failed to encode signal: %v\n", err)
			return exitError
		}
		fmt.Fprintln(stdout, string(out))
		return exitOK
	}

	fmt.Fprintln(stdout, sig.Trace)
	dp := int(engine.PriceDecimals(sig.EntryPrice))
	fmt.Fprintf(stdout, "\n%s %s %s | entry %.*f | SL %.*f | TP %.*f / %.*f / %.*f | confidence %d (%s) | R:R %.1f\n",
		strings.ToUpper(string(sig.Direction)), sig.Symbol, sig.Timeframe,
		dp, sig.EntryPrice, dp, sig.StopLoss, dp, sig.TakeProfit1, dp, sig.TakeProfit2, dp, sig.TakeProfit3,
		sig.ConfidenceScore, sig.Quality, sig.RiskRewardRatio)
	if sig.Degraded {
		fmt.Fprintln(stdout, "WARNING: generated on synthetic market data")
	}
	return exitOK
}

func splitMethods(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
