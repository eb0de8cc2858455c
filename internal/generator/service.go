// Package generator turns a signal request into a persisted, published signal:
// fetch both timeframes, resolve the live price, evaluate, store and announce.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/logging"
	"smc-signal-engine/internal/marketdata"
)

// Evaluator is the pure pipeline; *engine.Engine satisfies it
type Evaluator interface {
	Evaluate(req engine.Request, snap engine.Snapshot) (*engine.Signal, error)
}

// SignalCache mirrors generated signals into a shared cache; *cache.CacheService satisfies it
type SignalCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Options configures a Service
type Options struct {
	DefaultMinConfidence int
	UseLivePrice         bool
	Store                database.Store   // optional
	Bus                  *events.EventBus // optional
	Cache                SignalCache      // optional
	Now                  func() time.Time // optional
	NewID                func() string    // optional
}

// Service orchestrates one signal generation end to end. It is safe for concurrent use.
type Service struct {
	fetcher   *marketdata.Fetcher
	prices    *marketdata.PriceService
	evaluator Evaluator
	opts      Options
	logger    *logging.Logger

	mu     sync.RWMutex
	latest map[string]*engine.Signal // symbol:timeframe -> newest signal
}

// NewService wires the generation pipeline
func NewService(fetcher *marketdata.Fetcher, prices *marketdata.PriceService, evaluator Evaluator, opts Options) *Service {
	if opts.DefaultMinConfidence <= 0 {
		opts.DefaultMinConfidence = engine.DefaultMinConfidence
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Service{
		fetcher:   fetcher,
		prices:    prices,
		evaluator: evaluator,
		opts:      opts,
		logger:    logging.WithComponent("generator"),
		latest:    make(map[string]*engine.Signal),
	}
}

// Normalize validates and fills defaults on a request
func (s *Service) Normalize(req engine.Request) (engine.Request, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return req, fmt.Errorf("%w: symbol is required", engine.ErrInvalidRequest)
	}
	if req.Timeframe == "" {
		req.Timeframe = analysis.TF1h
	}
	if !req.Timeframe.Known() {
		return req, fmt.Errorf("%w: unsupported timeframe %q", engine.ErrInvalidRequest, req.Timeframe)
	}
	if req.OrderType == "" {
		req.OrderType = engine.OrderMarket
	}
	if !req.OrderType.Valid() {
		return req, fmt.Errorf("%w: unsupported order type %q", engine.ErrInvalidRequest, req.OrderType)
	}
	if req.MinConfidence == nil {
		req.MinConfidence = engine.MinConfidence(s.opts.DefaultMinConfidence)
	}
	if v := *req.MinConfidence; v < 0 || v > 100 {
		return req, fmt.Errorf("%w: min_confidence must be between 0 and 100", engine.ErrInvalidRequest)
	}
	return req, nil
}

// Generate runs one generation. It returns the signal, a *engine.RejectionError for
// business rejections, or an error wrapping engine.ErrInvalidRequest for bad input.
// Persistence and publication failures are logged, never returned.
func (s *Service) Generate(ctx context.Context, req engine.Request) (*engine.Signal, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	log := logging.SignalContext(req.Symbol, string(req.Timeframe), string(req.OrderType))
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		log = log.WithTraceID(traceID)
	}
	start := s.opts.Now()

	pair, err := s.fetcher.FetchPair(ctx, req.Symbol, req.Timeframe)
	if err != nil {
		return nil, err
	}
	if pair.Degraded() {
		log.Warn("generating on degraded market data",
			"working_source", string(pair.Working.Source), "higher_source", string(pair.Higher.Source))
	}

	snap := engine.Snapshot{
		Working:         pair.Working.Candles,
		HigherTF:        pair.Higher.Candles,
		HigherTimeframe: pair.Higher.Timeframe,
		Degraded:        pair.Degraded(),
	}
	if s.opts.UseLivePrice && s.prices != nil {
		price, src, perr := s.prices.CurrentPrice(ctx, req.Symbol, pair.LastClose())
		if perr != nil {
			log.Warn("price unavailable, using last close", "error", perr)
		} else {
			snap.Price = price
			log.Debug("price resolved", "price", price, "source", string(src))
		}
	}

	sig, err := s.evaluator.Evaluate(req, snap)
	if err != nil {
		if rej, ok := engine.AsRejection(err); ok {
			s.recordRejection(ctx, req, rej)
		}
		return nil, err
	}

	sig.ID = s.opts.NewID()
	s.remember(sig)
	s.persist(ctx, sig)
	if s.opts.Bus != nil {
		s.opts.Bus.PublishSignalGenerated(sig.ID, sig.Symbol, string(sig.Timeframe), string(sig.Direction),
			sig.ConfidenceScore, sig.EntryPrice)
	}

	log.WithDuration(s.opts.Now().Sub(start)).Info("signal stored",
		"signal_id", sig.ID, "confidence", sig.ConfidenceScore, "degraded", sig.Degraded)
	return sig, nil
}

// Latest returns the newest signal generated for symbol and timeframe in this process
func (s *Service) Latest(symbol string, tf analysis.Timeframe) (*engine.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.latest[latestKey(symbol, tf)]
	return sig, ok
}

func (s *Service) remember(sig *engine.Signal) {
	s.mu.Lock()
	s.latest[latestKey(sig.Symbol, sig.Timeframe)] = sig
	s.mu.Unlock()
}

func (s *Service) persist(ctx context.Context, sig *engine.Signal) {
	if s.opts.Store != nil {
		rec, err := database.NewSignalRecord(sig)
		if err == nil {
			err = s.opts.Store.SaveSignal(ctx, rec)
		}
		if err != nil {
			s.logger.Error("failed to persist signal", "signal_id", sig.ID, "error", err)
			if s.opts.Bus != nil {
				s.opts.Bus.PublishError("generator", "persist signal", err)
			}
		}
	}

	if s.opts.Cache != nil {
		for _, key := range []string{cache.SignalKey(sig.ID), cache.LatestSignalKey(sig.Symbol, string(sig.Timeframe))} {
			if err := s.opts.Cache.SetJSON(ctx, key, sig, cache.DefaultSignalTTL); err != nil &&
				!errors.Is(err, cache.ErrCircuitOpen) {
				s.logger.Debug("signal cache write failed", "key", key, "error", err)
			}
		}
	}
}

func (s *Service) recordRejection(ctx context.Context, req engine.Request, rej *engine.RejectionError) {
	if s.opts.Bus != nil {
		s.opts.Bus.PublishSignalRejected(req.Symbol, string(req.Timeframe), string(rej.Reason),
			rej.Achieved, rej.Threshold, rej.RiskReward)
	}
	if s.opts.Store == nil {
		return
	}
	row := database.NewRejection(req.Symbol, string(req.Timeframe), rej, s.opts.Now().UTC())
	if err := s.opts.Store.SaveRejection(ctx, row); err != nil {
		s.logger.Error("failed to persist rejection", "symbol", req.Symbol, "error", err)
	}
}

func latestKey(symbol string, tf analysis.Timeframe) string {
	return strings.ToUpper(symbol) + ":" + string(tf)
}
