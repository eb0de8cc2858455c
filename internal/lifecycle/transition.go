// Package lifecycle tracks persisted signals against the live price: entry fills,
// take-profit and stop-loss hits, break-even and expiry.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"smc-signal-engine/internal/database"
)

// Transition is one state change produced by a price observation
type Transition struct {
	Type  string
	Price float64
	At    time.Time
}

// Advance applies one price observation to rec and returns the new lifecycle state
// plus the transitions it caused. The stop is checked first and ends the signal.
// Otherwise every target the price has crossed fires on the same observation, lowest
// first. Once TP1 has been hit the stop sits at the entry price.
func Advance(rec *database.SignalRecord, price float64, now time.Time, expiry time.Duration) (database.LifecycleState, []Transition) {
	state := rec.LifecycleState
	if state.Closed() || price <= 0 {
		return state, nil
	}

	var out []Transition
	at := now.UTC()
	buy := rec.Direction == "buy"
	state.CurrentPrice = price
	state.UpdatedAt = at

	if state.EntryHitAt == nil {
		filled := rec.OrderType != "limit" ||
			(buy && price <= rec.EntryPrice) || (!buy && price >= rec.EntryPrice)
		if filled {
			state.EntryHitAt = &at
			out = append(out, Transition{Type: database.UpdateEntryHit, Price: price, At: at})
		}
	}

	if state.EntryHitAt == nil {
		if expiry > 0 && now.Sub(rec.CreatedAt) >= expiry {
			state.Status = database.StatusExpired
			state.ClosedAt = &at
			out = append(out, Transition{Type: database.UpdateExpired, Price: price, At: at})
		}
		return state, out
	}

	state.PnLPercent = PnLPercent(rec.Direction, rec.EntryPrice, price)

	stop := rec.StopLoss
	if state.BreakEven {
		stop = rec.EntryPrice
	}
	reached := func(level float64) bool {
		if buy {
			return price >= level
		}
		return price <= level
	}
	stopped := price <= stop
	if !buy {
		stopped = price >= stop
	}

	if state.SLHitAt == nil && stopped {
		state.SLHitAt = &at
		state.Status = database.StatusStopped
		state.ClosedAt = &at
		return state, append(out, Transition{Type: database.UpdateSLHit, Price: price, At: at})
	}

	targets := []struct {
		hit   **time.Time
		level float64
		kind  string
	}{
		{&state.TP1HitAt, rec.TakeProfit1, database.UpdateTP1Hit},
		{&state.TP2HitAt, rec.TakeProfit2, database.UpdateTP2Hit},
		{&state.TP3HitAt, rec.TakeProfit3, database.UpdateTP3Hit},
	}
	crossed := false
	for _, tp := range targets {
		if *tp.hit == nil && reached(tp.level) {
			*tp.hit = &at
			crossed = true
			out = append(out, Transition{Type: tp.kind, Price: price, At: at})
		}
	}

	switch {
	case crossed:
		if state.TP1HitAt != nil {
			state.BreakEven = true
		}
		if state.TP3HitAt != nil {
			state.Status = database.StatusCompleted
			state.ClosedAt = &at
		}
	case expiry > 0 && now.Sub(rec.CreatedAt) >= expiry:
		state.Status = database.StatusExpired
		state.ClosedAt = &at
		out = append(out, Transition{Type: database.UpdateExpired, Price: price, At: at})
	}

	return state, out
}

// PnLPercent is the unrealised move from entry in percent, positive in the signal's favour
func PnLPercent(direction string, entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	move := decimal.NewFromFloat(price).Sub(e)
	if direction != "buy" {
		move = move.Neg()
	}
	return move.Div(e).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
