package venue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/chaos"
	"oms/internal/schema"
	"oms/pkg/exception"
)

type hangingVenue struct {
	*Paper
	release chan struct{}
}

func (h hangingVenue) CreateOrder(_ context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error) {
	<-h.release
	return schema.VenueOrder{Key: req.Key, Status: "open"}, nil
}

func TestTimeoutBoundsHungCall(t *testing.T) {
	h := hangingVenue{Paper: newTestPaper(), release: make(chan struct{})}
	defer close(h.release)
	v := NewTimeout(h, 20*time.Millisecond)

	start := time.Now()
	order, err := v.CreateOrder(context.Background(), schema.CreateOrderRequest{Key: "order_1"})
	assert.ErrorIs(t, err, exception.ErrVenueTimeout)
	assert.True(t, order.IsError())
	assert.Equal(t, "order_1", order.Key)
	assert.Less(t, time.Since(start), time.Second)

	info, err := v.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Balance.Equal(d("10000")))
}

func TestTimeoutDisabledPassesThrough(t *testing.T) {
	v := NewTimeout(newTestPaper(), 0)

	order, err := v.CreateOrder(context.Background(), schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Quantity: d("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusClosed, order.Status)
}

func TestChaosAlwaysFails(t *testing.T) {
	v, err := NewChaos(newTestPaper(), chaos.Config{Seed: 7, FailRate: 1})
	require.NoError(t, err)
	ctx := context.Background()

	order, err := v.CreateOrder(ctx, schema.CreateOrderRequest{Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Quantity: d("1")})
	assert.ErrorIs(t, err, exception.ErrVenueInjectedFault)
	assert.True(t, order.IsError())

	_, err = v.GetAccountInfo(ctx)
	assert.ErrorIs(t, err, exception.ErrVenueInjectedFault)
}

func TestChaosStatusError(t *testing.T) {
	v, err := NewChaos(newTestPaper(), chaos.Config{Seed: 7, StatusErrorRate: 1})
	require.NoError(t, err)

	order, err := v.GetOrderStatus(context.Background(), "order_1")
	assert.ErrorIs(t, err, exception.ErrVenueInjectedFault)
	assert.Equal(t, "injected status error", order.Message)
}

func TestChaosDisabledPassesThrough(t *testing.T) {
	v, err := NewChaos(newTestPaper(), chaos.Config{Seed: 7})
	require.NoError(t, err)

	order, err := v.CreateOrder(context.Background(), schema.CreateOrderRequest{
		Key: "order_1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy, Quantity: d("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.VenueStatusClosed, order.Status)

	_, err = NewChaos(newTestPaper(), chaos.Config{FailRate: 2})
	assert.ErrorIs(t, err, exception.ErrInvalidConfig)
}
