package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/schema"
	"oms/pkg/exception"
)

type stubHistory struct {
	trades []schema.Trade
	err    error
}

func (s stubHistory) ListTrades(_ context.Context, since time.Time) ([]schema.Trade, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]schema.Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if t.ExecutedAt >= since.UnixNano() || since.IsZero() {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestRecover(t *testing.T) {
	now := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	yesterday := now.Add(-20 * time.Hour).UnixNano()
	today := now.Add(-2 * time.Hour).UnixNano()

	history := stubHistory{trades: []schema.Trade{
		{Key: "o4", Symbol: "ETH", Side: schema.OrderSideSell, Quantity: d("1"), Price: d("90"), RealizedPnL: d("-30"), ExecutedAt: today + 1},
		{Key: "o1", Symbol: "BTC", Side: schema.OrderSideBuy, Quantity: d("1"), Price: d("100"), ExecutedAt: yesterday},
		{Key: "o2", Symbol: "BTC", Side: schema.OrderSideSell, Quantity: d("1"), Price: d("120"), RealizedPnL: d("20"), ExecutedAt: yesterday + 1},
		{Key: "o3", Symbol: "ETH", Side: schema.OrderSideBuy, Quantity: d("1"), Price: d("120"), ExecutedAt: today},
		{Key: "o5", Symbol: "SOL", Side: schema.OrderSideBuy, Quantity: d("2"), Price: d("10"), ExecutedAt: today + 2},
	}}

	g := newTestGate(t, DefaultConfig())
	result, err := g.Recover(context.Background(), history, now)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Trades)
	assert.Equal(t, 1, result.Positions)
	assert.True(t, result.DailyPnL.Equal(d("-30")))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), result.WindowStart)

	snap := g.Snapshot()
	pos, ok := snap.Positions["SOL"]
	require.True(t, ok)
	assert.True(t, pos.Notional.Equal(d("20")))
	assert.Equal(t, 3, snap.DailyTrades)
	assert.Equal(t, 1, snap.ConsecutiveLosses)
	assert.Equal(t, result.WindowStart, snap.LastReset)
}

func TestRecoverErrors(t *testing.T) {
	g := newTestGate(t, DefaultConfig())

	_, err := g.Recover(context.Background(), nil, time.Now())
	assert.ErrorIs(t, err, exception.ErrRiskNilHistory)

	cause := errors.New("db down")
	_, err = g.Recover(context.Background(), stubHistory{err: cause}, time.Now())
	assert.ErrorIs(t, err, cause)
}
