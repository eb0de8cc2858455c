package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/binance"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/marketdata"
)

var fixedNow = time.Date(2025, 3, 10, 12, 34, 56, 0, time.UTC)

type stubEvaluator struct {
	mu   sync.Mutex
	snap engine.Snapshot
	req  engine.Request
	err  error
}

func (e *stubEvaluator) Evaluate(req engine.Request, snap engine.Snapshot) (*engine.Signal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req, e.snap = req, snap
	if e.err != nil {
		return nil, e.err
	}
	return &engine.Signal{
		Symbol:          req.Symbol,
		Timeframe:       req.Timeframe,
		HigherTimeframe: snap.HigherTimeframe,
		Direction:       analysis.DirectionBuy,
		OrderType:       req.OrderType,
		EntryPrice:      snap.Price,
		ConfidenceScore: 70,
		Degraded:        snap.Degraded,
		GeneratedAt:     fixedNow,
	}, nil
}

type recordingStore struct {
	database.Store
	mu         sync.Mutex
	signals    []*database.SignalRecord
	rejections []*database.Rejection
	failSave   error
}

func (s *recordingStore) SaveSignal(_ context.Context, rec *database.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.signals = append(s.signals, rec)
	return nil
}

func (s *recordingStore) SaveRejection(_ context.Context, rej *database.Rejection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, rej)
	return nil
}

func newTestService(t *testing.T, eval Evaluator, opts Options) (*Service, *binance.MockClient) {
	t.Helper()
	client := binance.NewMockClient().WithClock(func() time.Time { return fixedNow })
	fetcher := marketdata.NewFetcher(client, marketdata.WithFetcherClock(func() time.Time { return fixedNow }))
	prices := marketdata.NewPriceService(client, marketdata.NewPriceCache(time.Minute), nil)
	opts.Now = func() time.Time { return fixedNow }
	opts.NewID = func() string { return "sig-fixed" }
	return NewService(fetcher, prices, eval, opts), client
}

func TestNormalize(t *testing.T) {
	svc, _ := newTestService(t, &stubEvaluator{}, Options{DefaultMinConfidence: 40})

	req, err := svc.Normalize(engine.Request{Symbol: " btcusdt "})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, analysis.TF1h, req.Timeframe)
	assert.Equal(t, engine.OrderMarket, req.OrderType)
	assert.Equal(t, 40, req.Threshold())

	req, err = svc.Normalize(engine.Request{Symbol: "BTCUSDT", MinConfidence: engine.MinConfidence(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, req.Threshold(), "an explicit zero is not replaced by the default")

	tests := []struct {
		name string
		req  engine.Request
	}{
		{"empty symbol", engine.Request{}},
		{"unknown timeframe", engine.Request{Symbol: "BTCUSDT", Timeframe: "2h"}},
		{"unknown order type", engine.Request{Symbol: "BTCUSDT", OrderType: "stop"}},
		{"threshold above 100", engine.Request{Symbol: "BTCUSDT", MinConfidence: engine.MinConfidence(101)}},
		{"negative threshold", engine.Request{Symbol: "BTCUSDT", MinConfidence: engine.MinConfidence(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Normalize(tt.req)
			assert.ErrorIs(t, err, engine.ErrInvalidRequest)
		})
	}
}

func TestGenerateStoresAndPublishes(t *testing.T) {
	store := &recordingStore{}
	bus := events.NewEventBus()
	published := make(chan events.Event, 1)
	bus.Subscribe(events.EventSignalGenerated, func(e events.Event) { published <- e })

	eval := &stubEvaluator{}
	svc, client := newTestService(t, eval, Options{UseLivePrice: true, Store: store, Bus: bus})
	client.SetPrice("ETHUSDT", 3501.25)

	sig, err := svc.Generate(context.Background(), engine.Request{Symbol: "ethusdt", Timeframe: analysis.TF4h})
	require.NoError(t, err)

	assert.Equal(t, "sig-fixed", sig.ID)
	assert.Equal(t, 3501.25, eval.snap.Price)
	assert.Equal(t, analysis.TF1D, eval.snap.HigherTimeframe)
	assert.Len(t, eval.snap.Working, marketdata.DefaultCandleLimit)
	assert.False(t, eval.snap.Degraded)

	require.Len(t, store.signals, 1)
	assert.Equal(t, "sig-fixed", store.signals[0].ID)
	assert.Equal(t, database.StatusActive, store.signals[0].Status)

	select {
	case ev := <-published:
		assert.Equal(t, "sig-fixed", ev.Data["signal_id"])
	case <-time.After(time.Second):
		t.Fatal("no SIGNAL_GENERATED event")
	}

	latest, ok := svc.Latest("ETHUSDT", analysis.TF4h)
	require.True(t, ok)
	assert.Same(t, sig, latest)
}

func TestGenerateWithoutLivePriceUsesLastClose(t *testing.T) {
	eval := &stubEvaluator{}
	svc, _ := newTestService(t, eval, Options{})

	_, err := svc.Generate(context.Background(), engine.Request{Symbol: "SOLUSDT"})
	require.NoError(t, err)
	assert.Zero(t, eval.snap.Price, "engine falls back to the last working close")
}

func TestGenerateRejection(t *testing.T) {
	store := &recordingStore{}
	bus := events.NewEventBus()
	rejected := make(chan events.Event, 1)
	bus.Subscribe(events.EventSignalRejected, func(e events.Event) { rejected <- e })

	eval := &stubEvaluator{err: &engine.RejectionError{Reason: engine.ConfidenceTooLow, Achieved: 22, Threshold: 35}}
	svc, _ := newTestService(t, eval, Options{Store: store, Bus: bus})

	sig, err := svc.Generate(context.Background(), engine.Request{Symbol: "BNBUSDT", Timeframe: analysis.TF15m})
	assert.Nil(t, sig)
	rej, ok := engine.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, 22, rej.Achieved)

	require.Len(t, store.rejections, 1)
	assert.Equal(t, "BNBUSDT", store.rejections[0].Symbol)
	assert.Equal(t, "15m", store.rejections[0].Timeframe)
	assert.True(t, store.rejections[0].CreatedAt.Equal(fixedNow))

	select {
	case ev := <-rejected:
		assert.Equal(t, "CONFIDENCE_TOO_LOW", ev.Data["reason"])
	case <-time.After(time.Second):
		t.Fatal("no SIGNAL_REJECTED event")
	}

	_, ok = svc.Latest("BNBUSDT", analysis.TF15m)
	assert.False(t, ok)
}

func TestGenerateSurvivesStoreFailure(t *testing.T) {
	store := &recordingStore{failSave: errors.New("disk full")}
	svc, _ := newTestService(t, &stubEvaluator{}, Options{Store: store})

	sig, err := svc.Generate(context.Background(), engine.Request{Symbol: "XRPUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "sig-fixed", sig.ID)
}

func TestGenerateDegradedData(t *testing.T) {
	eval := &stubEvaluator{}
	svc, client := newTestService(t, eval, Options{})
	client.FailWith("XAUUSD", errors.New("unknown symbol"))

	sig, err := svc.Generate(context.Background(), engine.Request{Symbol: "XAUUSD", Timeframe: analysis.TF1h})
	require.NoError(t, err)
	assert.True(t, eval.snap.Degraded)
	assert.True(t, sig.Degraded)
}
