package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json or config.yaml")
	bucketSize := flag.Int("bucket", 10, "confidence bucket width in points")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr"}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := database.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		fmt.Printf("Failed to open signal store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	buckets, err := store.ConfidenceOutcomes(ctx, *bucketSize)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}

	rule := strings.Repeat("=", 80)
	fmt.Println(rule)
	fmt.Println("CONFIDENCE OUTCOME ANALYSIS")
	fmt.Println(rule)

	if len(buckets) == 0 {
		fmt.Println("\nNo closed signals found. Signals are closed by the lifecycle monitor")
		fmt.Println("(stop loss, TP3 or expiry); make sure lifecycle.enabled is set.")
		return
	}

	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	fmt.Printf("\nAnalyzing %d closed signals in %d-point buckets...\n\n", total, *bucketSize)

	fmt.Println("┌─────────────┬─────────┬──────┬────────┬─────────┬──────────┬──────────┐")
	fmt.Println("│ Confidence  │ Signals │ Wins │ Losses │ Expired │ Win Rate │ Avg PnL% │")
	fmt.Println("├─────────────┼─────────┼──────┼────────┼─────────┼──────────┼──────────┤")
	for _, b := range buckets {
		fmt.Printf("│ %3d - %3d   │ %7d │ %4d │ %6d │ %7d │ %7.1f%% │ %+8.2f │\n",
			b.Low, b.High, b.Total, b.Wins, b.Losses, b.Expired, b.WinRate, b.AvgPnL)
	}
	fmt.Println("└─────────────┴─────────┴──────┴────────┴─────────┴──────────┴──────────┘")

	fmt.Println("\n" + rule)
	fmt.Println("THRESHOLD COMPARISON")
	fmt.Println(rule)

	bestThreshold, bestAvoided := engine.DefaultMinConfidence, 0.0
	for _, b := range buckets {
		threshold := b.Low
		in, out := split(buckets, threshold)

		fmt.Printf("\nThreshold: %d\n", threshold)
		fmt.Printf("   ├── INCLUDED (>=%d): %d signals, PnL sum: %+.2f%%, Win Rate: %.1f%%\n",
			threshold, in.count, in.pnl, in.winRate())
		fmt.Printf("   └── EXCLUDED (<%d): %d signals, PnL sum: %+.2f%%, Win Rate: %.1f%%\n",
			threshold, out.count, out.pnl, out.winRate())

		if out.pnl < bestAvoided {
			bestAvoided = out.pnl
			bestThreshold = threshold
		}
	}

	fmt.Println("\n" + rule)
	fmt.Println("RECOMMENDATION")
	fmt.Println(rule)
	if bestAvoided < 0 {
		fmt.Printf("\nOptimal minimum confidence: %d (excludes %+.2f%% of summed losses)\n", bestThreshold, bestAvoided)
	} else {
		fmt.Println("\nNo threshold excludes net losses; confidence does not separate outcomes yet.")
	}
}

type tally struct {
	count, wins, losses int
	pnl                 float64
}

func (t tally) winRate() float64 {
	if t.wins+t.losses == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.wins+t.losses) * 100
}

// split sums the buckets at or above threshold and those below it
func split(buckets []database.ConfidenceBucket, threshold int) (in, out tally) {
	for _, b := range buckets {
		t := &out
		if b.Low >= threshold {
			t = &in
		}
		t.count += b.Total
		t.wins += b.Wins
		t.losses += b.Losses
		t.pnl += b.AvgPnL * float64(b.Total)
	}
	return in, out
}
