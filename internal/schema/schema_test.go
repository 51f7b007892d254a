package schema

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/pkg/exception"
)

func TestTopic(t *testing.T) {
	testCases := []struct {
		desc     string
		topic    Topic
		category string
		subtype  string
		valid    bool
	}{
		{"order created", TopicOrderCreated, "order", "created", true},
		{"trade executed", NewTopic("trade", "executed"), "trade", "executed", true},
		{"missing subtype", Topic("order"), "order", "", false},
		{"empty category", Topic(".created"), "", "created", false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.category, tc.topic.Category())
			assert.Equal(t, tc.subtype, tc.topic.Subtype())
			assert.Equal(t, tc.valid, tc.topic.Valid())
		})
	}
}

func TestPayloadDecimal(t *testing.T) {
	p := Payload{
		"s":   "0.5",
		"f":   0.25,
		"i":   3,
		"n":   json.Number("1.75"),
		"d":   decimal.RequireFromString("2"),
		"bad": "abc",
	}

	assert.True(t, p.Decimal("s").Equal(decimal.RequireFromString("0.5")))
	assert.True(t, p.Decimal("f").Equal(decimal.RequireFromString("0.25")))
	assert.True(t, p.Decimal("i").Equal(decimal.NewFromInt(3)))
	assert.True(t, p.Decimal("n").Equal(decimal.RequireFromString("1.75")))
	assert.True(t, p.Decimal("d").Equal(decimal.NewFromInt(2)))

	_, ok := p.LookupDecimal("bad")
	assert.False(t, ok)
	_, ok = p.LookupDecimal("missing")
	assert.False(t, ok)
}

func TestIntentValidate(t *testing.T) {
	base := OrderIntent{
		Symbol:   "BTC/USDT",
		Side:     OrderSideBuy,
		Type:     OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.1"),
		Price:    decimal.NewFromInt(30000),
	}

	testCases := []struct {
		desc   string
		mutate func(*OrderIntent)
		ok     bool
	}{
		{"valid market", func(*OrderIntent) {}, true},
		{"empty symbol", func(i *OrderIntent) { i.Symbol = "" }, false},
		{"unknown side", func(i *OrderIntent) { i.Side = "hold" }, false},
		{"zero quantity", func(i *OrderIntent) { i.Quantity = decimal.Zero }, false},
		{"limit without price", func(i *OrderIntent) {
			i.Type = OrderTypeLimit
			i.Price = decimal.Zero
		}, false},
		{"limit with price", func(i *OrderIntent) {
			i.Type = OrderTypeLimit
			i.Price = decimal.NewFromInt(100)
		}, true},
		{"stop without stop price", func(i *OrderIntent) { i.Type = OrderTypeStop }, false},
		{"market without price", func(i *OrderIntent) { i.Price = decimal.Zero }, false},
		{"negative price", func(i *OrderIntent) { i.Price = decimal.NewFromInt(-1) }, false},
		{"stop sized by stop price", func(i *OrderIntent) {
			i.Type = OrderTypeStop
			i.Price = decimal.Zero
			i.StopPrice = decimal.NewFromInt(29000)
		}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			intent := base
			tc.mutate(&intent)
			err := intent.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, exception.ErrOrderInvalidIntent)
		})
	}
}

func TestIntentPayloadRoundTrip(t *testing.T) {
	intent := OrderIntent{
		Key:        "order_1",
		StrategyID: "momentum",
		Symbol:     "ETH/USDT",
		Side:       OrderSideSell,
		Type:       OrderTypeLimit,
		Quantity:   decimal.RequireFromString("1.5"),
		Price:      decimal.RequireFromString("2500"),
	}

	got, err := IntentFromPayload(intent.Payload())
	require.NoError(t, err)
	assert.Equal(t, intent.Key, got.Key)
	assert.Equal(t, intent.Side, got.Side)
	assert.Equal(t, intent.Type, got.Type)
	assert.True(t, intent.Quantity.Equal(got.Quantity))
	assert.True(t, intent.Price.Equal(got.Price))
}

func TestIntentFromPayloadMissingQuantity(t *testing.T) {
	_, err := IntentFromPayload(Payload{FieldSymbol: "BTC/USDT", FieldSide: "buy"})
	require.ErrorIs(t, err, exception.ErrOrderInvalidIntent)
}

func TestVenueOrderImmediateFill(t *testing.T) {
	filled := VenueOrder{Status: "filled", Filled: decimal.NewFromInt(1)}
	assert.True(t, filled.IsImmediateFill())

	open := VenueOrder{Status: "open"}
	assert.False(t, open.IsImmediateFill())

	failed := StatusError("k", "boom")
	assert.True(t, failed.IsError())
	assert.Equal(t, "boom", failed.Payload()[FieldError])
}
