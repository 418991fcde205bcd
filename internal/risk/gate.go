package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Gate is the pre-trade risk cascade of spec.md §4.5. The kill switch,
// circuit breaker state and rate-limit buckets are the only global
// mutable state in the core (spec.md §9) and live exclusively here,
// behind atomics or their own mutex, never shared with any other
// package directly.
type Gate struct {
	limits Limits
	events *bus.Topic[Event]

	killSwitch atomic.Bool

	cbMu          sync.Mutex
	circuitBroken bool
	cbUntil       time.Time

	positionsMu sync.RWMutex
	positions   map[fxpt.Symbol]*model.Position

	bucketsMu sync.Mutex
	buckets   map[string]*tokenBucket

	dailyPnLMu sync.Mutex
	dailyPnL   fxpt.Px
	peakEquity fxpt.Px

	ordersToday atomic.Uint64
}

// NewGate constructs a Gate publishing events onto the given topic.
// events may be nil, in which case decisions are still computed but no
// fan-out occurs (used by tests that don't care about the bus).
func NewGate(limits Limits, events *bus.Topic[Event]) *Gate {
	return &Gate{
		limits:    limits,
		events:    events,
		positions: make(map[fxpt.Symbol]*model.Position),
		buckets:   make(map[string]*tokenBucket),
	}
}

// CheckOrder runs the full rule cascade of spec.md §4.5 in order,
// returning at the first failing rule. Every call emits exactly one
// Event, whatever the outcome (spec.md §4.5 "Every decision emits a
// risk event to the event bus"). crossesOwnOrder is supplied by the
// caller (the lifecycle manager, which holds the book) and reports
// whether this order would cross a resting order on the opposite side
// already owned by account; self-cross prevention is the risk gate's
// job, not the matcher's (spec.md §4.3).
func (g *Gate) CheckOrder(account string, symbol fxpt.Symbol, side fxpt.Side, qty fxpt.Qty, price fxpt.Px, now fxpt.Ts, crossesOwnOrder bool) Decision {
	decision := g.evaluate(account, symbol, side, qty, price, crossesOwnOrder)
	g.emitDecisionEvent(decision, symbol, now)
	if decision.Kind == Approved {
		g.ordersToday.Add(1)
	}
	return decision
}

func (g *Gate) evaluate(account string, symbol fxpt.Symbol, side fxpt.Side, qty fxpt.Qty, price fxpt.Px, crossesOwnOrder bool) Decision {
	// Rule 1: kill switch.
	if g.killSwitch.Load() {
		return rejected("kill switch active")
	}

	// Rule 2: circuit breaker.
	if g.circuitBreakerActive() {
		return rejected("circuit breaker tripped")
	}

	// Rule 3: self-cross prevention. Same account resting on both sides
	// of the book is rejected here, before any size/exposure rule runs.
	if crossesOwnOrder {
		return rejected("self-cross: account already resting on the opposite side")
	}

	// Rule 4: order size / notional limits.
	if qty > g.limits.MaxOrderQty {
		return rejected("order quantity exceeds per-order limit")
	}
	notional := fxpt.Px(int64(price) * int64(qty) / fxpt.Scale)
	if notional > g.limits.MaxOrderNotional {
		return rejected("order notional exceeds per-order limit")
	}

	// Rule 5: per-symbol and total exposure, projecting the hypothetical
	// post-fill position.
	if exceeded := g.projectedExposureExceeded(symbol, side, qty); exceeded != "" {
		return rejected(exceeded)
	}

	// Rule 6: orders-per-minute token bucket, per account.
	if !g.bucketFor(account).take() {
		return rejected("orders-per-minute limit exceeded")
	}

	// Rule 7: daily-loss limit.
	g.dailyPnLMu.Lock()
	dailyPnL := g.dailyPnL
	g.dailyPnLMu.Unlock()
	if dailyPnL < -g.limits.MaxDailyLoss {
		return rejected("daily loss limit breached")
	}

	// Rule 8: drawdown threshold.
	if g.drawdownExceeded() {
		return requiresApproval("drawdown threshold exceeded")
	}

	return approved()
}

func (g *Gate) projectedExposureExceeded(symbol fxpt.Symbol, side fxpt.Side, qty fxpt.Qty) string {
	g.positionsMu.RLock()
	defer g.positionsMu.RUnlock()

	signedQty := qty
	if side == fxpt.Sell {
		signedQty = -qty
	}

	var symbolExposure, totalExposure fxpt.Qty
	for sym, pos := range g.positions {
		projected := pos.NetQuantity
		if sym == symbol {
			projected += signedQty
		}
		totalExposure += absQty(projected)
		if sym == symbol {
			symbolExposure = absQty(projected)
		}
	}
	if _, ok := g.positions[symbol]; !ok {
		symbolExposure = absQty(signedQty)
		totalExposure += symbolExposure
	}

	if symbolExposure > g.limits.MaxSymbolExposure {
		return "projected per-symbol exposure exceeds limit"
	}
	if totalExposure > g.limits.MaxTotalExposure {
		return "projected total exposure exceeds limit"
	}
	return ""
}

func absQty(q fxpt.Qty) fxpt.Qty {
	if q < 0 {
		return -q
	}
	return q
}

func (g *Gate) bucketFor(account string) *tokenBucket {
	g.bucketsMu.Lock()
	defer g.bucketsMu.Unlock()
	b, ok := g.buckets[account]
	if !ok {
		b = newTokenBucket(g.limits.OrdersPerMinute)
		g.buckets[account] = b
	}
	return b
}

func (g *Gate) circuitBreakerActive() bool {
	g.cbMu.Lock()
	defer g.cbMu.Unlock()
	if !g.circuitBroken {
		return false
	}
	if time.Now().After(g.cbUntil) {
		g.circuitBroken = false
		return false
	}
	return true
}

func (g *Gate) drawdownExceeded() bool {
	g.dailyPnLMu.Lock()
	defer g.dailyPnLMu.Unlock()
	if g.peakEquity == 0 {
		return false
	}
	drawdown := g.peakEquity - g.dailyPnL
	if drawdown <= 0 {
		return false
	}
	frac := fxpt.Px(int64(drawdown) * fxpt.Scale / int64(absOrOnePx(g.peakEquity)))
	return frac > g.limits.DrawdownThreshold
}

func absOrOnePx(p fxpt.Px) fxpt.Px {
	if p <= 0 {
		return fxpt.Px(fxpt.Scale)
	}
	return p
}

// UpdatePosition applies a fill to the account's position for symbol,
// per spec.md §4.5 "Position updates (called from fill stream)": it
// recomputes net quantity/avg entry/realized P&L via model.Position's
// own rules, folds the realized P&L into the daily total, and trips the
// circuit breaker if the daily loss limit is breached.
func (g *Gate) UpdatePosition(symbol fxpt.Symbol, side fxpt.Side, price fxpt.Px, qty fxpt.Qty, now fxpt.Ts) {
	g.positionsMu.Lock()
	pos, ok := g.positions[symbol]
	if !ok {
		pos = &model.Position{Symbol: symbol}
		g.positions[symbol] = pos
	}
	before := pos.RealizedPnL
	pos.ApplyFill(side, price, qty)
	delta := pos.RealizedPnL - before
	g.positionsMu.Unlock()

	g.dailyPnLMu.Lock()
	g.dailyPnL += delta
	if g.dailyPnL > g.peakEquity {
		g.peakEquity = g.dailyPnL
	}
	breached := g.dailyPnL < -g.limits.MaxDailyLoss
	g.dailyPnLMu.Unlock()

	g.publish(Event{Kind: EventPositionUpdated, Level: AlertInfo, Symbol: symbol, HasSymbol: true, Timestamp: now})

	if breached {
		g.tripCircuitBreaker(now, "daily loss limit breached")
	}
}

// tripCircuitBreaker trips the breaker for a fixed cooldown, per
// spec.md §4.5 "Rejected until cooldown elapses."
func (g *Gate) tripCircuitBreaker(now fxpt.Ts, reason string) {
	const cooldown = 15 * time.Minute
	g.cbMu.Lock()
	alreadyBroken := g.circuitBroken
	g.circuitBroken = true
	g.cbUntil = time.Now().Add(cooldown)
	g.cbMu.Unlock()

	if !alreadyBroken {
		log.Error().Str("reason", reason).Msg("circuit breaker tripped")
		g.publish(Event{Kind: EventCircuitBreakerTriggered, Level: AlertCritical, Message: reason, Timestamp: now})
	}
}

// ActivateKillSwitch sets the kill switch; all subsequent CheckOrder
// calls return Rejected regardless of other state, per spec.md §4.5.
// Reports whether it flipped the switch from inactive to active.
func (g *Gate) ActivateKillSwitch(reason string, now fxpt.Ts) bool {
	activated := g.killSwitch.CompareAndSwap(false, true)
	if activated {
		log.Error().Str("reason", reason).Msg("kill switch activated")
		g.publish(Event{Kind: EventKillSwitchActivated, Level: AlertEmergency, Message: reason, Timestamp: now})
	}
	return activated
}

// DeactivateKillSwitch clears the kill switch. Reports whether it was
// active beforehand.
func (g *Gate) DeactivateKillSwitch(reason string, now fxpt.Ts) bool {
	deactivated := g.killSwitch.CompareAndSwap(true, false)
	if deactivated {
		g.publish(Event{Kind: EventKillSwitchDeactivated, Level: AlertWarning, Message: reason, Timestamp: now})
	}
	return deactivated
}

// IsKillSwitchActive reports the current kill switch state.
func (g *Gate) IsKillSwitchActive() bool { return g.killSwitch.Load() }

// GetPosition returns a copy of the account's position for symbol.
func (g *Gate) GetPosition(symbol fxpt.Symbol) (model.Position, bool) {
	g.positionsMu.RLock()
	defer g.positionsMu.RUnlock()
	pos, ok := g.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// GetAllPositions returns a copy of every tracked position.
func (g *Gate) GetAllPositions() []model.Position {
	g.positionsMu.RLock()
	defer g.positionsMu.RUnlock()
	out := make([]model.Position, 0, len(g.positions))
	for _, pos := range g.positions {
		out = append(out, *pos)
	}
	return out
}

// GetMetrics returns a point-in-time snapshot, per original_source's
// RiskMetrics surface (supplemented into this core per SPEC_FULL.md §5.5).
func (g *Gate) GetMetrics() Metrics {
	g.positionsMu.RLock()
	var totalExposure fxpt.Qty
	openPositions := 0
	for _, pos := range g.positions {
		if pos.NetQuantity != 0 {
			openPositions++
		}
		totalExposure += absQty(pos.NetQuantity)
	}
	g.positionsMu.RUnlock()

	g.dailyPnLMu.Lock()
	dailyPnL := g.dailyPnL
	peak := g.peakEquity
	var drawdown fxpt.Px
	if peak > 0 {
		drawdown = fxpt.Px(int64(peak-dailyPnL) * fxpt.Scale / int64(peak))
	}
	g.dailyPnLMu.Unlock()

	return Metrics{
		TotalExposure:        totalExposure,
		CurrentDrawdown:      drawdown,
		DailyPnL:             dailyPnL,
		OpenPositions:        openPositions,
		OrdersToday:          g.ordersToday.Load(),
		CircuitBreakerActive: g.circuitBreakerActive(),
		KillSwitchActive:     g.killSwitch.Load(),
	}
}

func (g *Gate) emitDecisionEvent(d Decision, symbol fxpt.Symbol, now fxpt.Ts) {
	kind := EventOrderChecked
	level := AlertInfo
	if d.Kind == Rejected {
		kind = EventOrderRejected
		level = AlertWarning
	} else if d.Kind == RequiresApproval {
		kind = EventOrderRejected
		level = AlertWarning
	}
	g.publish(Event{Kind: kind, Level: level, Symbol: symbol, HasSymbol: true, Message: d.Reason, Timestamp: now})
}

func (g *Gate) publish(evt Event) {
	if g.events != nil {
		g.events.Publish(evt)
	}
}
