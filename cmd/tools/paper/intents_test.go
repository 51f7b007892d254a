package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/schema"
	"oms/internal/venue"
	"oms/pkg/exception"
)

func TestReadIntents(t *testing.T) {
	f, err := os.Open("testdata/intents.csv")
	require.NoError(t, err)
	defer f.Close()

	intents, err := readIntents(f)
	require.NoError(t, err)
	require.Len(t, intents, 5)

	assert.Equal(t, "paper-1", intents[0].Key)
	assert.Equal(t, schema.OrderSideBuy, intents[0].Side)
	assert.Equal(t, schema.OrderTypeMarket, intents[0].Type)
	assert.Equal(t, "0.01", intents[0].Quantity.String())

	assert.Equal(t, schema.OrderTypeLimit, intents[1].Type)
	assert.Equal(t, "1500", intents[1].Price.String())
	assert.Equal(t, schema.OrderSideSell, intents[2].Side)
	assert.Error(t, intents[4].Validate())
}

func TestReadIntentsErrors(t *testing.T) {
	testCases := []struct {
		desc  string
		input string
		err   error
	}{
		{desc: "missing column", input: "symbol,side\nBTC,buy\n", err: exception.ErrInvalidConfig},
		{desc: "bad quantity", input: "symbol,side,quantity\nBTC,buy,lots\n", err: exception.ErrOrderInvalidIntent},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := readIntents(strings.NewReader(tc.input))
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := readIntents(strings.NewReader(""))
	assert.Error(t, err)
}

func TestApplyPaperFlags(t *testing.T) {
	cfg := venue.PaperConfig{Prices: map[string]float64{"BTC": 31000}}
	require.NoError(t, applyPaperFlags(&cfg, "5000", "BTC=30000, ETH=1500"))
	assert.Equal(t, "5000", cfg.Balance.String())
	assert.Equal(t, 31000.0, cfg.Prices["BTC"], "config prices win")
	assert.Equal(t, 1500.0, cfg.Prices["ETH"])

	assert.Error(t, applyPaperFlags(&venue.PaperConfig{}, "", "BTC"))
	assert.Error(t, applyPaperFlags(&venue.PaperConfig{}, "abc", ""))
}
