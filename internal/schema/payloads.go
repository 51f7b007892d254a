package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide describes order direction.
type OrderSide string

const (
	OrderSideUnknown OrderSide = ""
	OrderSideBuy     OrderSide = "buy"
	OrderSideSell    OrderSide = "sell"
)

// ParseOrderSide normalizes a side string.
func ParseOrderSide(s string) OrderSide {
	switch OrderSide(strings.ToLower(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy
	case OrderSideSell:
		return OrderSideSell
	default:
		return OrderSideUnknown
	}
}

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType describes order kind.
type OrderType string

const (
	OrderTypeUnknown   OrderType = ""
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// ParseOrderType normalizes an order type string. Empty input means market.
func ParseOrderType(s string) OrderType {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderTypeMarket:
		return OrderTypeMarket
	case OrderTypeLimit:
		return OrderTypeLimit
	case OrderTypeStop:
		return OrderTypeStop
	case OrderTypeStopLimit:
		return OrderTypeStopLimit
	default:
		return OrderTypeUnknown
	}
}

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	default:
		return false
	}
}

// NeedsPrice reports whether the order kind requires a limit price.
func (t OrderType) NeedsPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RiskDecision is produced by the risk gate for every intent.
type RiskDecision struct {
	Key      string `json:"order_id"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Approve builds an approving decision.
func Approve(key string) RiskDecision {
	return RiskDecision{Key: key, Approved: true}
}

// Reject builds a rejecting decision.
func Reject(key, reason string) RiskDecision {
	return RiskDecision{Key: key, Approved: false, Reason: reason}
}

// AccountInfo is the account snapshot reported by a venue.
type AccountInfo struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency,omitempty"`
}

// CreateOrderRequest is what the pipeline sends to a venue.
type CreateOrderRequest struct {
	Key       string          `json:"client_order_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Type      OrderType       `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	StopPrice decimal.Decimal `json:"stop_price"`
}

// Venue order status strings as reported by venues.
const (
	VenueStatusNew             = "new"
	VenueStatusOpen            = "open"
	VenueStatusAccepted        = "accepted"
	VenueStatusClosed          = "closed"
	VenueStatusFilled          = "filled"
	VenueStatusPartiallyFilled = "partially_filled"
	VenueStatusCanceled        = "canceled"
	VenueStatusExpired         = "expired"
	VenueStatusRejected        = "rejected"
	VenueStatusFailed          = "failed"
	VenueStatusError           = "error"
)

// VenueOrder is a venue's view of an order.
type VenueOrder struct {
	ID       string          `json:"id"`
	Key      string          `json:"client_order_id"`
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Status   string          `json:"status"`
	Filled   decimal.Decimal `json:"filled"`
	Amount   decimal.Decimal `json:"amount"`
	AvgPrice decimal.Decimal `json:"filled_avg_price"`
	Fee      decimal.Decimal `json:"fee"`
	Message  string          `json:"message,omitempty"`
}

// StatusError builds the failure shape every venue call reports.
func StatusError(key, message string) VenueOrder {
	return VenueOrder{Key: key, Status: VenueStatusError, Message: message}
}

// IsError reports whether the venue flagged the result as failed.
func (o VenueOrder) IsError() bool {
	return strings.EqualFold(o.Status, VenueStatusError)
}

// IsImmediateFill reports whether the response already carries a complete fill.
func (o VenueOrder) IsImmediateFill() bool {
	switch strings.ToLower(o.Status) {
	case VenueStatusFilled, VenueStatusClosed:
		return o.Filled.IsPositive() || o.Amount.IsPositive()
	default:
		return false
	}
}

// Payload flattens the venue response for event publishing.
func (o VenueOrder) Payload() Payload {
	p := Payload{
		FieldVenueOrderID:   o.ID,
		FieldStatus:         o.Status,
		FieldFilled:         o.Filled.String(),
		FieldAmount:         o.Amount.String(),
		FieldFilledAvgPrice: o.AvgPrice.String(),
	}
	if o.Key != "" {
		p[FieldOrderKey] = o.Key
	}
	if o.Message != "" {
		p[FieldError] = o.Message
	}
	return p
}

// Position is one open position held by the risk gate.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Notional decimal.Decimal `json:"value"`
	Account  string          `json:"account,omitempty"`
	OpenedAt int64           `json:"opened_at"`
}

// Trade is a single execution produced by fill handling.
type Trade struct {
	Key         string          `json:"order_id"`
	VenueID     string          `json:"exchange_order_id"`
	StrategyID  string          `json:"strategy_id,omitempty"`
	Account     string          `json:"account,omitempty"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fee         decimal.Decimal `json:"fee"`
	RealizedPnL decimal.Decimal `json:"pnl"`
	ExecutedAt  int64           `json:"executed_at"`
}

// Notional is quantity times price.
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// IsClosing reports whether the trade reduces a position.
func (t Trade) IsClosing() bool {
	return t.Side == OrderSideSell
}

// Payload flattens the trade for event publishing.
func (t Trade) Payload() Payload {
	p := Payload{
		FieldOrderKey:     t.Key,
		FieldVenueOrderID: t.VenueID,
		FieldStrategyID:   t.StrategyID,
		FieldSymbol:       t.Symbol,
		FieldSide:         string(t.Side),
		FieldQuantity:     t.Quantity.String(),
		FieldPrice:        t.Price.String(),
		FieldFee:          t.Fee.String(),
		FieldNotional:     t.Notional().String(),
		FieldRealizedPnL:  t.RealizedPnL.String(),
	}
	if t.ExecutedAt > 0 {
		p.Stamp(time.Unix(0, t.ExecutedAt))
	}
	return p
}
