package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "debug", JSONFormat: true}, &buf).WithComponent("engine")

	l.Info("signal generated", "symbol", "BTCUSDT", "confidence", 72, "err", errors.New("boom"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "signal generated", entry["message"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
	assert.Equal(t, float64(72), entry["confidence"])
	assert.Equal(t, "boom", entry["err"])
	assert.Equal(t, "info", entry["level"])
}

func TestPrintfStyle(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", JSONFormat: true}, &buf)

	l.Warn("fetched %d candles", 200)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "fetched 200 candles", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", JSONFormat: true}, &buf)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Error("shown")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
	assert.Equal(t, "ERROR", ERROR.String())
}

func TestTraceContext(t *testing.T) {
	ctx, l := WithTraceContext(context.Background())

	traceID := TraceIDFromContext(ctx)
	assert.Len(t, traceID, 32)
	assert.Same(t, l, FromContext(ctx))
	assert.Equal(t, "", TraceIDFromContext(context.Background()))
}
