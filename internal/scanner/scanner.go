package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/logging"
)

// Generator produces one signal; *generator.Service satisfies it
type Generator interface {
	Generate(ctx context.Context, req engine.Request) (*engine.Signal, error)
}

// Scanner runs the signal pipeline over a watchlist on a cron schedule
type Scanner struct {
	generator Generator
	bus       *events.EventBus
	config    ScannerConfig
	cooldowns *CooldownCache
	cron      *cron.Cron
	logger    *logging.Logger
	now       func() time.Time

	scanMu     sync.Mutex // one scan at a time
	mu         sync.RWMutex
	lastResult *ScanResult
}

// ConfigFrom converts the file configuration
func ConfigFrom(c config.ScannerConfig) ScannerConfig {
	targets := make([]Target, 0, len(c.Watchlist))
	for _, w := range c.Watchlist {
		targets = append(targets, Target{
			Symbol:    strings.ToUpper(w.Symbol),
			Timeframe: analysis.Timeframe(w.Timeframe),
		})
	}
	return ScannerConfig{
		Enabled:       c.Enabled,
		Schedule:      c.Schedule,
		Watchlist:     targets,
		WorkerCount:   c.WorkerCount,
		MinConfidence: c.MinConfidence,
		OrderType:     engine.OrderType(c.OrderType),
		Cooldown:      time.Duration(c.CooldownMin) * time.Minute,
	}
}

// NewScanner creates a new scanner instance; bus may be nil
func NewScanner(gen Generator, bus *events.EventBus, cfg ScannerConfig) *Scanner {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 5 * time.Minute
	}
	if cfg.OrderType == "" {
		cfg.OrderType = engine.OrderMarket
	}
	return &Scanner{
		generator: gen,
		bus:       bus,
		config:    cfg,
		cooldowns: NewCooldownCache(cfg.Cooldown),
		cron:      cron.New(cron.WithSeconds()),
		logger:    logging.WithComponent("scanner"),
		now:       time.Now,
	}
}

// Start registers the schedule and starts the cron runner
func (sc *Scanner) Start() error {
	if !sc.config.Enabled {
		sc.logger.Info("signal scanner is disabled")
		return nil
	}
	if len(sc.config.Watchlist) == 0 {
		return fmt.Errorf("scanner enabled with an empty watchlist")
	}

	if _, err := sc.cron.AddFunc(sc.config.Schedule, sc.scheduledScan); err != nil {
		return fmt.Errorf("register scan schedule %q: %w", sc.config.Schedule, err)
	}
	sc.cron.Start()
	sc.logger.Info("signal scanner started", "schedule", sc.config.Schedule,
		"targets", len(sc.config.Watchlist), "workers", sc.config.WorkerCount)
	return nil
}

// Stop waits for a running scan to finish and stops the scheduler
func (sc *Scanner) Stop() {
	<-sc.cron.Stop().Done()
	sc.logger.Info("signal scanner stopped")
}

func (sc *Scanner) scheduledScan() {
	ctx, cancel := context.WithTimeout(context.Background(), sc.config.ScanTimeout)
	defer cancel()
	sc.Scan(ctx)
}

// Scan executes a single scan cycle over the watchlist. Concurrent calls queue.
func (sc *Scanner) Scan(ctx context.Context) *ScanResult {
	sc.scanMu.Lock()
	defer sc.scanMu.Unlock()

	startTime := sc.now()
	scanID := fmt.Sprintf("scan-%d", startTime.UnixMilli())
	targets := sc.config.Watchlist
	sc.logger.Info("starting scan", "scan_id", scanID, "targets", len(targets))

	resultChan := make(chan JobResult, len(targets))
	targetChan := make(chan Target, len(targets))
	var wg sync.WaitGroup

	for i := 0; i < min(sc.config.WorkerCount, max(len(targets), 1)); i++ {
		wg.Add(1)
		go sc.worker(ctx, targetChan, resultChan, &wg)
	}

	for _, t := range targets {
		targetChan <- t
	}
	close(targetChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	result := &ScanResult{ScanID: scanID, StartTime: startTime, TargetsScanned: len(targets)}
	for r := range resultChan {
		switch r.Status {
		case StatusGenerated:
			result.Generated++
		case StatusRejected:
			result.Rejected++
		case StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		result.Results = append(result.Results, r)
	}

	// Generated first, then by confidence
	sort.SliceStable(result.Results, func(i, j int) bool {
		a, b := result.Results[i], result.Results[j]
		if (a.Status == StatusGenerated) != (b.Status == StatusGenerated) {
			return a.Status == StatusGenerated
		}
		return a.Confidence > b.Confidence
	})

	result.EndTime = sc.now()
	result.Duration = result.EndTime.Sub(startTime)

	sc.mu.Lock()
	sc.lastResult = result
	sc.mu.Unlock()
	sc.cooldowns.CleanupExpired()

	if sc.bus != nil {
		sc.bus.PublishScanCompleted(result.Generated, result.Rejected, result.Failed, result.Duration)
	}
	sc.logger.Info("scan completed", "scan_id", scanID, "generated", result.Generated,
		"rejected", result.Rejected, "failed", result.Failed, "skipped", result.Skipped,
		"duration_ms", result.Duration.Milliseconds())
	return result
}

// worker processes targets from the channel
func (sc *Scanner) worker(ctx context.Context, targetChan <-chan Target, resultChan chan<- JobResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for t := range targetChan {
		select {
		case <-ctx.Done():
			resultChan <- JobResult{
				Symbol: t.Symbol, Timeframe: t.Timeframe, Status: StatusFailed,
				Error: ctx.Err().Error(), Timestamp: sc.now(),
			}
		default:
			resultChan <- sc.scanTarget(ctx, t)
		}
	}
}

// scanTarget runs one generation for a watchlist entry
func (sc *Scanner) scanTarget(ctx context.Context, t Target) JobResult {
	res := JobResult{Symbol: t.Symbol, Timeframe: t.Timeframe, Timestamp: sc.now()}

	if id, ok := sc.cooldowns.Active(t.key()); ok {
		res.Status = StatusSkipped
		res.SignalID = id
		return res
	}

	sig, err := sc.generator.Generate(ctx, engine.Request{
		Symbol:        t.Symbol,
		Timeframe:     t.Timeframe,
		OrderType:     sc.config.OrderType,
		MinConfidence: engine.MinConfidence(sc.config.MinConfidence),
		Methods:       []string{"scanner"},
	})
	if err != nil {
		if rej, ok := engine.AsRejection(err); ok {
			res.Status = StatusRejected
			res.Reason = string(rej.Reason)
			res.Confidence = rej.Achieved
			return res
		}
		res.Status = StatusFailed
		res.Error = err.Error()
		sc.logger.Warn("scan target failed", "symbol", t.Symbol, "timeframe", string(t.Timeframe), "error", err)
		if sc.bus != nil {
			sc.bus.PublishError("scanner", "scan "+t.key(), err)
		}
		return res
	}

	sc.cooldowns.Mark(t.key(), sig.ID)
	res.Status = StatusGenerated
	res.SignalID = sig.ID
	res.Direction = string(sig.Direction)
	res.Confidence = sig.ConfidenceScore
	res.Degraded = sig.Degraded
	return res
}

// GetLastResult returns the most recent scan result
func (sc *Scanner) GetLastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}
