package schema

import (
	"fmt"

	"github.com/shopspring/decimal"

	"oms/internal/errors"
	"oms/pkg/exception"
)

// OrderIntent is a strategy's request to trade, prior to risk approval.
// It is immutable once submitted.
type OrderIntent struct {
	Key        string          `json:"order_id"`
	StrategyID string          `json:"strategy_id"`
	Account    string          `json:"account,omitempty"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Type       OrderType       `json:"order_type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

// Validate rejects empty or malformed intents.
func (i OrderIntent) Validate() error {
	if i.Symbol == "" {
		return errors.Wrap(exception.ErrOrderInvalidIntent, "symbol is empty")
	}
	if !i.Side.Valid() {
		return errors.Wrapf(exception.ErrOrderInvalidIntent, "side %q is unknown", i.Side)
	}
	if !i.Type.Valid() {
		return errors.Wrapf(exception.ErrOrderInvalidIntent, "order type %q is unknown", i.Type)
	}
	if !i.Quantity.IsPositive() {
		return errors.Wrap(exception.ErrOrderInvalidIntent, "quantity must be > 0")
	}
	if i.Type.NeedsPrice() && !i.Price.IsPositive() {
		return errors.Wrapf(exception.ErrOrderInvalidIntent, "price must be > 0 for %s orders", i.Type)
	}
	if (i.Type == OrderTypeStop || i.Type == OrderTypeStopLimit) && !i.StopPrice.IsPositive() {
		return errors.Wrapf(exception.ErrOrderInvalidIntent, "stop price must be > 0 for %s orders", i.Type)
	}
	if i.Price.IsNegative() {
		return errors.Wrap(exception.ErrOrderInvalidIntent, "price must not be negative")
	}
	// risk limits are sized on the notional, so market orders carry the expected price
	if !i.ReferencePrice().IsPositive() {
		return errors.Wrapf(exception.ErrOrderInvalidIntent, "%s order has no price to size it", i.Type)
	}
	return nil
}

// ReferencePrice is the price used to size the order: the limit or expected
// price, falling back to the stop price for stop orders.
func (i OrderIntent) ReferencePrice() decimal.Decimal {
	if i.Price.IsPositive() {
		return i.Price
	}
	return i.StopPrice
}

// WithKey returns a copy carrying the given order key.
func (i OrderIntent) WithKey(key string) OrderIntent {
	i.Key = key
	return i
}

// Notional is quantity times the reference price.
func (i OrderIntent) Notional() decimal.Decimal {
	return i.Quantity.Mul(i.ReferencePrice())
}

// Request converts the intent into a venue request.
func (i OrderIntent) Request() CreateOrderRequest {
	return CreateOrderRequest{
		Key:       i.Key,
		Symbol:    i.Symbol,
		Side:      i.Side,
		Type:      i.Type,
		Quantity:  i.Quantity,
		Price:     i.Price,
		StopPrice: i.StopPrice,
	}
}

// Payload flattens the intent into an event payload.
func (i OrderIntent) Payload() Payload {
	p := Payload{
		FieldOrderKey:   i.Key,
		FieldStrategyID: i.StrategyID,
		FieldSymbol:     i.Symbol,
		FieldSide:       string(i.Side),
		FieldOrderType:  string(i.Type),
		FieldQuantity:   i.Quantity.String(),
		FieldPrice:      i.Price.String(),
	}
	if i.Account != "" {
		p[FieldAccount] = i.Account
	}
	if !i.StopPrice.IsZero() {
		p[FieldStopPrice] = i.StopPrice.String()
	}
	return p
}

// IntentFromPayload rebuilds an intent from an order.new payload.
func IntentFromPayload(p Payload) (OrderIntent, error) {
	if p == nil {
		return OrderIntent{}, errors.Wrap(exception.ErrOrderInvalidIntent, "empty payload")
	}
	intent := OrderIntent{
		Key:        p.String(FieldOrderKey),
		StrategyID: p.String(FieldStrategyID),
		Account:    p.String(FieldAccount),
		Symbol:     p.String(FieldSymbol),
		Side:       ParseOrderSide(p.String(FieldSide)),
		Type:       ParseOrderType(p.String(FieldOrderType)),
		Price:      p.Decimal(FieldPrice),
		StopPrice:  p.Decimal(FieldStopPrice),
	}
	qty, ok := p.LookupDecimal(FieldQuantity)
	if !ok {
		return intent, errors.Wrap(exception.ErrOrderInvalidIntent, fmt.Sprintf("%s is missing", FieldQuantity))
	}
	intent.Quantity = qty
	return intent, nil
}
