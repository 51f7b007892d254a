package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the flat key/value body carried by every event.
type Payload map[string]any

// Clone returns a shallow copy so subscribers cannot mutate each other's view.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value under key formatted as a string.
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Decimal parses the value under key, returning zero when absent or malformed.
func (p Payload) Decimal(key string) decimal.Decimal {
	d, _ := p.LookupDecimal(key)
	return d
}

// LookupDecimal parses the value under key and reports whether it was usable.
func (p Payload) LookupDecimal(key string) (decimal.Decimal, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case string:
		if n == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// Stamp sets the timestamp field in RFC3339Nano.
func (p Payload) Stamp(t time.Time) Payload {
	p[FieldTimestamp] = t.UTC().Format(time.RFC3339Nano)
	return p
}

// Common payload keys shared by producers and consumers.
const (
	FieldOrderKey       = "order_id"
	FieldVenueOrderID   = "exchange_order_id"
	FieldStrategyID     = "strategy_id"
	FieldSymbol         = "symbol"
	FieldSide           = "side"
	FieldOrderType      = "order_type"
	FieldQuantity       = "quantity"
	FieldPrice          = "price"
	FieldStopPrice      = "stop_price"
	FieldAccount        = "account"
	FieldStatus         = "status"
	FieldState          = "state"
	FieldFilled         = "filled"
	FieldAmount         = "amount"
	FieldFee            = "fee"
	FieldReason         = "reason"
	FieldError          = "error"
	FieldTimestamp      = "timestamp"
	FieldNotional       = "value"
	FieldRealizedPnL    = "pnl"
	FieldFilledAvgPrice = "filled_avg_price"
	FieldTraceID        = "trace_id"
	FieldAttempt        = "attempt"
	FieldOpenPositions  = "open_positions"
	FieldDailyPnL       = "daily_pnl"
	FieldDailyTrades    = "daily_trades"
)
