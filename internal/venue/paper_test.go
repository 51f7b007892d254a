package venue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/schema"
	"oms/pkg/exception"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestPaper() *Paper {
	return NewPaper(PaperConfig{
		Balance: d("10000"),
		FeeRate: 0.001,
		Prices:  map[string]float64{"BTCUSDT": 100},
	})
}

func TestPaperMarketOrderFillsImmediately(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: d("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, schema.VenueStatusClosed, order.Status)
	assert.True(t, order.IsImmediateFill())
	assert.True(t, order.Filled.Equal(d("1")))
	assert.True(t, order.AvgPrice.Equal(d("100")))
	assert.True(t, order.Fee.Equal(d("0.1")))
	assert.True(t, p.Balance().Equal(d("9899.9")))

	info, err := p.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USDT", info.Currency)
	assert.True(t, info.Balance.Equal(d("9899.9")))

	again, err := p.CreateOrder(ctx, schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: d("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)
	assert.True(t, p.Balance().Equal(d("9899.9")))
}

func TestPaperMarketOrderWithoutPrice(t *testing.T) {
	p := newTestPaper()

	order, err := p.CreateOrder(context.Background(), schema.CreateOrderRequest{
		Key: "order_1", Symbol: "ETHUSDT", Side: schema.OrderSideBuy, Quantity: d("1"),
	})
	assert.ErrorIs(t, err, exception.ErrVenueNoPrice)
	assert.True(t, order.IsError())
	assert.NotEmpty(t, order.Message)
}

func TestPaperInsufficientBalance(t *testing.T) {
	p := newTestPaper()

	order, err := p.CreateOrder(context.Background(), schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: d("1000"),
	})
	assert.ErrorIs(t, err, exception.ErrVenueInsufficientBal)
	assert.True(t, order.IsError())

	_, err = p.GetOrderStatus(context.Background(), "order_1")
	assert.ErrorIs(t, err, exception.ErrVenueUnknownOrder)
}

func TestPaperLimitOrderRestsAndFills(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit, Quantity: d("2"), Price: d("90"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusOpen, order.Status)
	assert.False(t, order.IsImmediateFill())

	order, err = p.Fill("order_1", d("0.5"))
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusPartiallyFilled, order.Status)
	assert.True(t, order.Filled.Equal(d("0.5")))

	order, err = p.Fill(order.ID, d("5"))
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusClosed, order.Status)
	assert.True(t, order.Filled.Equal(d("2")))
	assert.True(t, order.AvgPrice.Equal(d("90")))

	status, err := p.GetOrderStatus(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, order, status)
}

func TestPaperMarketableLimitOrder(t *testing.T) {
	p := newTestPaper()

	order, err := p.CreateOrder(context.Background(), schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideSell, Type: schema.OrderTypeLimit, Quantity: d("1"), Price: d("95"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusClosed, order.Status)
	assert.True(t, order.AvgPrice.Equal(d("100")))
	assert.True(t, p.Balance().Equal(d("10099.9")))
}

func TestPaperCancel(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.CreateOrder(ctx, schema.CreateOrderRequest{
		Key: "resting", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit, Quantity: d("1"), Price: d("50"),
	})
	require.NoError(t, err)
	_, err = p.CreateOrder(ctx, schema.CreateOrderRequest{
		Key: "filled", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: d("1"),
	})
	require.NoError(t, err)

	order, err := p.CancelOrder(ctx, "resting", "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusCanceled, order.Status)

	order, err = p.CancelOrder(ctx, "filled", "BTCUSDT")
	assert.ErrorIs(t, err, exception.ErrVenueNotCancelable)
	assert.True(t, order.IsError())

	_, err = p.CancelOrder(ctx, "missing", "")
	assert.ErrorIs(t, err, exception.ErrVenueUnknownOrder)
}
