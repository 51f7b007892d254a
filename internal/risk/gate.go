package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"oms/internal/obs"
	"oms/internal/schema"
)

// Rule names reported to metrics on rejection.
const (
	RulePositionSize      = "position_size"
	RuleOpenPositions     = "open_positions"
	RuleExposure          = "exposure"
	RuleDailyLoss         = "daily_loss"
	RuleConsecutiveLosses = "consecutive_losses"
)

var hundred = decimal.NewFromInt(100)

// Snapshot is a copy-on-read view of the risk state and the active limits.
type Snapshot struct {
	OpenPositions     int                        `json:"openPositions"`
	Positions         map[string]schema.Position `json:"positions"`
	DailyPnL          decimal.Decimal            `json:"dailyPnl"`
	DailyTrades       int                        `json:"dailyTrades"`
	ConsecutiveLosses int                        `json:"consecutiveLosses"`
	LastReset         time.Time                  `json:"lastReset"`
	Config            Config                     `json:"config"`
}

// Payload flattens the snapshot for the risk.reset event.
func (s Snapshot) Payload() schema.Payload {
	p := schema.Payload{
		schema.FieldOpenPositions: s.OpenPositions,
		schema.FieldDailyPnL:      s.DailyPnL.String(),
		schema.FieldDailyTrades:   s.DailyTrades,
	}
	return p.Stamp(s.LastReset)
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithMetrics counts rejections per rule and evaluation latency.
func WithMetrics(metrics *obs.Metrics) Option {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithResetHook is called after every daily reset, outside the gate lock.
func WithResetHook(fn func(Snapshot)) Option {
	return func(g *Gate) {
		g.onReset = fn
	}
}

// Gate evaluates order intents against account limits and owns the account's
// RiskState. One Gate serves one account; every mutation holds its lock.
type Gate struct {
	mu  sync.RWMutex
	cfg Config

	positions         map[string]schema.Position
	dailyPnL          decimal.Decimal
	dailyTrades       int
	consecutiveLosses int
	lastReset         time.Time

	now     func() time.Time
	metrics *obs.Metrics
	onReset func(Snapshot)
}

// NewGate creates a gate with validated limits and empty state.
func NewGate(cfg Config, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gate{
		cfg:       cfg.withDefaults(),
		positions: make(map[string]schema.Position),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lastReset = g.now().UTC()
	return g, nil
}

// Evaluate decides whether intent may reach the venue given the current balance.
// Rules run in order: position size, open positions, asset exposure, daily
// loss, consecutive losses. The first failing rule rejects.
func (g *Gate) Evaluate(intent schema.OrderIntent, accountBalance decimal.Decimal) schema.RiskDecision {
	start := time.Now()
	defer func() { g.metrics.ObserveRiskEval(time.Since(start)) }()

	reset := g.rollIfDue()
	if reset != nil {
		g.notifyReset(*reset)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	decision, rule := g.evaluateLocked(intent, accountBalance)
	if !decision.Approved {
		g.metrics.IncRiskReject(rule)
		logs.Warnf("risk: order %s rejected, %s", intent.Key, decision.Reason)
		return decision
	}
	logs.Debugf("risk: order %s approved, %s %s %s @ %s", intent.Key, intent.Symbol, intent.Side, intent.Quantity, intent.Price)
	return decision
}

func (g *Gate) evaluateLocked(intent schema.OrderIntent, balance decimal.Decimal) (schema.RiskDecision, string) {
	cfg := g.cfg
	maxSize := decimal.NewFromFloat(cfg.MaxPositionSizePct)
	isBuy := intent.Side == schema.OrderSideBuy

	if !balance.IsPositive() {
		return schema.Reject(intent.Key, fmt.Sprintf("Position size exceeds maximum %s, account balance %s is not positive",
			percent(maxSize), balance.StringFixed(2))), RulePositionSize
	}

	sizePct := intent.Notional().Div(balance)
	if sizePct.GreaterThan(maxSize) {
		return schema.Reject(intent.Key, fmt.Sprintf("Position size %s exceeds maximum %s",
			percent(sizePct), percent(maxSize))), RulePositionSize
	}

	if isBuy && len(g.positions) >= cfg.MaxOpenPositions {
		return schema.Reject(intent.Key, fmt.Sprintf("Maximum open positions (%d) reached",
			cfg.MaxOpenPositions)), RuleOpenPositions
	}

	exposurePct := decimal.Zero
	if pos, ok := g.positions[intent.Symbol]; ok {
		exposurePct = pos.Notional.Abs().Div(balance)
	}
	if isBuy {
		exposurePct = exposurePct.Add(sizePct)
	}
	maxExposure := decimal.NewFromFloat(cfg.MaxExposurePerAssetPct)
	if exposurePct.GreaterThan(maxExposure) {
		return schema.Reject(intent.Key, fmt.Sprintf("Total exposure to %s (%s) exceeds maximum %s",
			intent.Symbol, percent(exposurePct), percent(maxExposure))), RuleExposure
	}

	lossLimit := balance.Mul(decimal.NewFromFloat(cfg.MaxDailyLossPct))
	if g.dailyPnL.IsNegative() && g.dailyPnL.Abs().GreaterThan(lossLimit) {
		return schema.Reject(intent.Key, fmt.Sprintf("Daily loss limit reached (%s > %s)",
			g.dailyPnL.Abs().StringFixed(2), lossLimit.StringFixed(2))), RuleDailyLoss
	}

	if cfg.MaxConsecutiveLosses > 0 && g.consecutiveLosses >= cfg.MaxConsecutiveLosses {
		return schema.Reject(intent.Key, fmt.Sprintf("Circuit breaker triggered: %d consecutive losses",
			g.consecutiveLosses)), RuleConsecutiveLosses
	}

	return schema.Approve(intent.Key), ""
}

// PositionSize returns the quantity to buy at entryPrice so that a stop loss
// stopLossPct below entry loses RiskPerTradePct of balance. The result is
// capped by MaxPositionSizePct and is zero when any input is not positive.
func (g *Gate) PositionSize(balance, entryPrice decimal.Decimal, stopLossPct float64) decimal.Decimal {
	if !balance.IsPositive() || !entryPrice.IsPositive() || stopLossPct <= 0 {
		return decimal.Zero
	}

	g.mu.RLock()
	cfg := g.cfg
	g.mu.RUnlock()

	riskAmount := balance.Mul(decimal.NewFromFloat(cfg.RiskPerTradePct))
	qty := riskAmount.Div(entryPrice.Mul(decimal.NewFromFloat(stopLossPct)))
	maxQty := balance.Mul(decimal.NewFromFloat(cfg.MaxPositionSizePct)).Div(entryPrice)
	return decimal.Min(qty, maxQty)
}

// RecordPositionOpen inserts or replaces the position for its symbol.
func (g *Gate) RecordPositionOpen(position schema.Position) {
	g.mu.Lock()
	g.openLocked(position)
	g.mu.Unlock()
	logs.Infof("risk: position opened, %s qty=%s value=%s", position.Symbol, position.Quantity, position.Notional)
}

func (g *Gate) openLocked(position schema.Position) {
	if position.OpenedAt == 0 {
		position.OpenedAt = g.now().UTC().UnixNano()
	}
	g.positions[position.Symbol] = position
}

// RecordPositionClose removes the symbol's position and adds realizedPnL to
// the daily P&L. Closing an unknown symbol is logged and ignored.
func (g *Gate) RecordPositionClose(symbol string, realizedPnL decimal.Decimal) {
	g.mu.Lock()
	ok, daily := g.closeLocked(symbol, realizedPnL)
	g.mu.Unlock()

	if !ok {
		logs.Warnf("risk: attempted to close unknown position %s", symbol)
		return
	}
	logs.Infof("risk: position closed, %s pnl=%s daily pnl=%s", symbol, realizedPnL.StringFixed(2), daily.StringFixed(2))
}

func (g *Gate) closeLocked(symbol string, realizedPnL decimal.Decimal) (bool, decimal.Decimal) {
	if _, ok := g.positions[symbol]; !ok {
		return false, g.dailyPnL
	}
	delete(g.positions, symbol)
	g.dailyPnL = g.dailyPnL.Add(realizedPnL)
	if realizedPnL.IsNegative() {
		g.consecutiveLosses++
	} else {
		g.consecutiveLosses = 0
	}
	return true, g.dailyPnL
}

// RecordTrade counts an execution toward today's trade counter.
func (g *Gate) RecordTrade(trade schema.Trade) {
	g.mu.Lock()
	g.dailyTrades++
	g.mu.Unlock()
	logs.Debugf("risk: trade recorded, %s %s %s @ %s", trade.Symbol, trade.Side, trade.Quantity, trade.Price)
}

// ResetDailyMetrics zeroes daily P&L and trade counters. Open positions are kept.
func (g *Gate) ResetDailyMetrics() {
	g.mu.Lock()
	snap := g.resetLocked(g.now().UTC())
	g.mu.Unlock()
	g.notifyReset(snap)
}

func (g *Gate) resetLocked(now time.Time) Snapshot {
	g.dailyPnL = decimal.Zero
	g.dailyTrades = 0
	g.lastReset = now
	return g.snapshotLocked()
}

func (g *Gate) notifyReset(snap Snapshot) {
	logs.Infof("risk: daily metrics reset at %s, %d open positions kept", snap.LastReset.Format(time.RFC3339), snap.OpenPositions)
	if g.onReset != nil {
		g.onReset(snap)
	}
}

// rollIfDue resets the daily metrics when the rolling boundary has passed.
func (g *Gate) rollIfDue() *Snapshot {
	now := g.now().UTC()

	g.mu.RLock()
	due := g.dueLocked(now)
	g.mu.RUnlock()
	if !due {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.dueLocked(now) {
		return nil
	}
	snap := g.resetLocked(now)
	return &snap
}

func (g *Gate) dueLocked(now time.Time) bool {
	return g.cfg.ResetInterval > 0 && !now.Before(g.lastReset.Add(g.cfg.ResetInterval))
}

// UpdateConfig swaps the limits. State is untouched.
func (g *Gate) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.cfg = cfg.withDefaults()
	g.mu.Unlock()
	logs.Infof("risk: limits updated, %+v", cfg)
	return nil
}

// Config returns the active limits.
func (g *Gate) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Snapshot returns a copy of the current risk state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

func (g *Gate) snapshotLocked() Snapshot {
	positions := make(map[string]schema.Position, len(g.positions))
	for k, v := range g.positions {
		positions[k] = v
	}
	return Snapshot{
		OpenPositions:     len(g.positions),
		Positions:         positions,
		DailyPnL:          g.dailyPnL,
		DailyTrades:       g.dailyTrades,
		ConsecutiveLosses: g.consecutiveLosses,
		LastReset:         g.lastReset,
		Config:            g.cfg,
	}
}

// Position returns the open position for symbol.
func (g *Gate) Position(symbol string) (schema.Position, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.positions[symbol]
	return p, ok
}

func percent(d decimal.Decimal) string {
	return d.Mul(hundred).StringFixed(2) + "%"
}
