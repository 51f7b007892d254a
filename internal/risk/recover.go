package risk

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

// TradeHistory is the persisted trade log used to seed the gate at startup.
type TradeHistory interface {
	// ListTrades returns trades executed at or after since, oldest first.
	ListTrades(ctx context.Context, since time.Time) ([]schema.Trade, error)
}

// RecoverResult summarizes a replay.
type RecoverResult struct {
	Trades      int
	Positions   int
	DailyPnL    decimal.Decimal
	WindowStart time.Time
}

// Recover rebuilds positions and the current window's P&L from persisted trades.
// Buys open positions and sells close them, in execution order. Only trades at
// or after the current window start count toward daily metrics.
func (g *Gate) Recover(ctx context.Context, history TradeHistory, now time.Time) (RecoverResult, error) {
	if history == nil {
		return RecoverResult{}, exception.ErrRiskNilHistory
	}

	trades, err := history.ListTrades(ctx, time.Time{})
	if err != nil {
		return RecoverResult{}, errors.Wrap(err, "list trades")
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutedAt < trades[j].ExecutedAt
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	windowStart := now.UTC()
	if g.cfg.ResetInterval > 0 {
		windowStart = now.UTC().Truncate(g.cfg.ResetInterval)
	}
	windowNanos := windowStart.UnixNano()

	g.positions = make(map[string]schema.Position)
	g.dailyPnL = decimal.Zero
	g.dailyTrades = 0
	g.consecutiveLosses = 0
	g.lastReset = windowStart

	for _, trade := range trades {
		if err := ctx.Err(); err != nil {
			return RecoverResult{}, err
		}
		inWindow := trade.ExecutedAt >= windowNanos
		if inWindow {
			g.dailyTrades++
		}

		switch trade.Side {
		case schema.OrderSideBuy:
			g.openLocked(schema.Position{
				Symbol:   trade.Symbol,
				Quantity: trade.Quantity,
				Notional: trade.Notional(),
				Account:  trade.Account,
				OpenedAt: trade.ExecutedAt,
			})
		case schema.OrderSideSell:
			pnl := decimal.Zero
			if inWindow {
				pnl = trade.RealizedPnL
			}
			if ok, _ := g.closeLocked(trade.Symbol, pnl); !ok {
				logs.Warnf("risk: recover found close without open, %s order %s", trade.Symbol, trade.Key)
			}
		}
	}

	result := RecoverResult{
		Trades:      len(trades),
		Positions:   len(g.positions),
		DailyPnL:    g.dailyPnL,
		WindowStart: windowStart,
	}
	logs.Infof("risk: recovered %d trades, %d open positions, daily pnl %s since %s",
		result.Trades, result.Positions, result.DailyPnL.StringFixed(2), windowStart.Format(time.RFC3339))
	return result, nil
}

// Run resets daily metrics each time ResetInterval elapses since the last
// reset, until ctx is done.
func (g *Gate) Run(ctx context.Context) {
	for {
		g.mu.RLock()
		interval := g.cfg.ResetInterval
		next := g.lastReset.Add(interval)
		g.mu.RUnlock()

		wait := next.Sub(g.now())
		if interval <= 0 {
			wait = time.Minute
		}
		if wait < 0 {
			wait = 0
		}
		logs.Debugf("risk: next daily reset in %s", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if snap := g.rollIfDue(); snap != nil {
			g.notifyReset(*snap)
		}
	}
}
