package venue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Venue = (*Paper)(nil)

// PaperConfig seeds the simulated account.
type PaperConfig struct {
	Balance  decimal.Decimal `json:"balance" yaml:"balance"`
	Currency string          `json:"currency" yaml:"currency"`
	// FeeRate is charged on every fill notional, 0.001 means 10 bps.
	FeeRate float64 `json:"feeRate" yaml:"feeRate"`
	// Prices are the initial reference prices by symbol.
	Prices map[string]float64 `json:"prices" yaml:"prices"`
}

// Paper simulates a venue with a virtual quote balance. Market orders and
// marketable limit orders fill immediately at the reference price; other
// orders rest until Fill or CancelOrder.
type Paper struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	currency string
	feeRate  decimal.Decimal
	prices   map[string]decimal.Decimal
	orders   map[string]*schema.VenueOrder
	limits   map[string]decimal.Decimal
	nextID   atomic.Uint64
}

// NewPaper creates a paper venue.
func NewPaper(cfg PaperConfig) *Paper {
	currency := cfg.Currency
	if currency == "" {
		currency = "USDT"
	}
	p := &Paper{
		balance:  cfg.Balance,
		currency: currency,
		feeRate:  decimal.NewFromFloat(cfg.FeeRate),
		prices:   make(map[string]decimal.Decimal, len(cfg.Prices)),
		orders:   make(map[string]*schema.VenueOrder),
		limits:   make(map[string]decimal.Decimal),
	}
	for symbol, price := range cfg.Prices {
		p.prices[symbol] = decimal.NewFromFloat(price)
	}
	return p
}

// SetPrice updates the reference price for symbol.
func (p *Paper) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// Balance returns the current quote balance.
func (p *Paper) Balance() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

func (p *Paper) GetAccountInfo(_ context.Context) (schema.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return schema.AccountInfo{Balance: p.balance, Currency: p.currency}, nil
}

func (p *Paper) CreateOrder(_ context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Key != "" {
		if existing, ok := p.orders[req.Key]; ok {
			return *existing, nil
		}
	}

	order := &schema.VenueOrder{
		ID:     fmt.Sprintf("paper-%d", p.nextID.Add(1)),
		Key:    req.Key,
		Symbol: req.Symbol,
		Side:   req.Side,
		Status: schema.VenueStatusOpen,
		Amount: req.Quantity,
	}

	ref, hasRef := p.prices[req.Symbol]
	switch req.Type {
	case schema.OrderTypeMarket, "":
		if !hasRef {
			return schema.StatusError(req.Key, "no price available for "+req.Symbol),
				errors.Wrapf(exception.ErrVenueNoPrice, "symbol %s", req.Symbol)
		}
		if err := p.fillLocked(order, req.Quantity, ref); err != nil {
			return schema.StatusError(req.Key, err.Error()), err
		}
	case schema.OrderTypeLimit:
		if hasRef && marketable(req.Side, req.Price, ref) {
			if err := p.fillLocked(order, req.Quantity, ref); err != nil {
				return schema.StatusError(req.Key, err.Error()), err
			}
		}
	}

	p.orders[p.indexKey(order)] = order
	p.limits[p.indexKey(order)] = req.Price
	logs.Debugf("paper: order %s %s %s %s status=%s", order.ID, req.Symbol, req.Side, req.Quantity, order.Status)
	return *order, nil
}

func (p *Paper) CancelOrder(_ context.Context, key, _ string) (schema.VenueOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.lookupLocked(key)
	if !ok {
		return schema.StatusError(key, "order not found"), errors.Wrapf(exception.ErrVenueUnknownOrder, "order %s", key)
	}
	switch strings.ToLower(order.Status) {
	case schema.VenueStatusClosed, schema.VenueStatusCanceled, schema.VenueStatusExpired, schema.VenueStatusRejected:
		return schema.StatusError(key, "order is "+order.Status), errors.Wrapf(exception.ErrVenueNotCancelable, "order %s is %s", key, order.Status)
	}
	order.Status = schema.VenueStatusCanceled
	return *order, nil
}

func (p *Paper) GetOrderStatus(_ context.Context, key string) (schema.VenueOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.lookupLocked(key)
	if !ok {
		return schema.StatusError(key, "order not found"), errors.Wrapf(exception.ErrVenueUnknownOrder, "order %s", key)
	}
	return *order, nil
}

// Fill executes qty of a resting order at its limit price, or at the
// reference price when the order has none.
func (p *Paper) Fill(key string, qty decimal.Decimal) (schema.VenueOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.lookupLocked(key)
	if !ok {
		return schema.StatusError(key, "order not found"), errors.Wrapf(exception.ErrVenueUnknownOrder, "order %s", key)
	}
	if s := strings.ToLower(order.Status); s != schema.VenueStatusOpen && s != schema.VenueStatusPartiallyFilled {
		return *order, errors.Wrapf(exception.ErrVenueNotCancelable, "order %s is %s", key, order.Status)
	}
	price := p.limits[p.indexKey(order)]
	if !price.IsPositive() {
		price = p.prices[order.Symbol]
	}
	if err := p.fillLocked(order, qty, price); err != nil {
		return *order, err
	}
	return *order, nil
}

func (p *Paper) fillLocked(order *schema.VenueOrder, qty, price decimal.Decimal) error {
	remaining := order.Amount.Sub(order.Filled)
	if qty.GreaterThan(remaining) {
		qty = remaining
	}
	if !qty.IsPositive() {
		return nil
	}

	notional := qty.Mul(price)
	fee := notional.Mul(p.feeRate)
	switch order.Side {
	case schema.OrderSideBuy:
		cost := notional.Add(fee)
		if cost.GreaterThan(p.balance) {
			return errors.Wrapf(exception.ErrVenueInsufficientBal, "need %s, have %s", cost.StringFixed(2), p.balance.StringFixed(2))
		}
		p.balance = p.balance.Sub(cost)
	case schema.OrderSideSell:
		p.balance = p.balance.Add(notional).Sub(fee)
	}

	prevNotional := order.AvgPrice.Mul(order.Filled)
	order.Filled = order.Filled.Add(qty)
	order.AvgPrice = prevNotional.Add(notional).Div(order.Filled)
	order.Fee = order.Fee.Add(fee)
	if order.Filled.GreaterThanOrEqual(order.Amount) {
		order.Status = schema.VenueStatusClosed
	} else {
		order.Status = schema.VenueStatusPartiallyFilled
	}
	return nil
}

func (p *Paper) indexKey(order *schema.VenueOrder) string {
	if order.Key != "" {
		return order.Key
	}
	return order.ID
}

func (p *Paper) lookupLocked(key string) (*schema.VenueOrder, bool) {
	if order, ok := p.orders[key]; ok {
		return order, true
	}
	for _, order := range p.orders {
		if order.ID == key {
			return order, true
		}
	}
	return nil, false
}

func marketable(side schema.OrderSide, limit, ref decimal.Decimal) bool {
	if !limit.IsPositive() {
		return false
	}
	if side == schema.OrderSideBuy {
		return limit.GreaterThanOrEqual(ref)
	}
	return limit.LessThanOrEqual(ref)
}
