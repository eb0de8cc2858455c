package engine

import (
	"fmt"
	"strings"
)

const traceRule = "=============================="

// Trace sections, in the order they always appear
const (
	sectionHTF        = "HTF STRUCTURE"
	sectionRange      = "DEALING RANGE"
	sectionLiquidity  = "LIQUIDITY"
	sectionSweep      = "LIQUIDITY SWEEP"
	sectionBOS        = "BREAK OF STRUCTURE"
	sectionOrderFlow  = "ORDER BLOCK / FVG"
	sectionWave       = "WAVE FILTER"
	sectionConfidence = "CONFIDENCE"
	sectionSetup      = "FINAL SETUP"
)

// traceBuilder renders the rationale trace. Output depends only on its inputs.
type traceBuilder struct {
	b strings.Builder
}

func newTrace(symbol, timeframe, htf string) *traceBuilder {
	t := &traceBuilder{}
	t.b.WriteString(traceRule + "\n")
	fmt.Fprintf(&t.b, "SIGNAL ANALYSIS %s %s (HTF %s)\n", symbol, timeframe, htf)
	t.b.WriteString(traceRule + "\n")
	return t
}

func (t *traceBuilder) section(title string) {
	fmt.Fprintf(&t.b, "\n[%s]\n", title)
}

func (t *traceBuilder) line(format string, args ...interface{}) {
	t.b.WriteString("  ")
	fmt.Fprintf(&t.b, format, args...)
	t.b.WriteString("\n")
}

// delta writes a scored note such as "No clear BOS (-3 confidence)"
func (t *traceBuilder) delta(note string, delta int) {
	t.line("%s (%+d confidence)", note, delta)
}

func (t *traceBuilder) String() string {
	return strings.TrimRight(t.b.String(), "\n")
}
