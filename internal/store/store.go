// Package store persists orders and trades for audit and for seeding the
// risk gate at startup.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/schema"
)

// Order is the persisted view of an order.
type Order struct {
	Key        string           `json:"order_id"`
	VenueID    string           `json:"exchange_order_id"`
	StrategyID string           `json:"strategy_id"`
	Account    string           `json:"account"`
	Symbol     string           `json:"symbol"`
	Side       schema.OrderSide `json:"side"`
	Type       schema.OrderType `json:"order_type"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Filled     decimal.Decimal  `json:"filled"`
	AvgPrice   decimal.Decimal  `json:"filled_avg_price"`
	State      string           `json:"state"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// OrderFromIntent builds the persisted order for an accepted venue response.
func OrderFromIntent(intent schema.OrderIntent, resp schema.VenueOrder, state string) Order {
	return Order{
		Key:        intent.Key,
		VenueID:    resp.ID,
		StrategyID: intent.StrategyID,
		Account:    intent.Account,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Type:       intent.Type,
		Quantity:   intent.Quantity,
		Price:      intent.Price,
		Filled:     resp.Filled,
		AvgPrice:   resp.AvgPrice,
		State:      state,
		Status:     resp.Status,
	}
}

// StatusUpdate is a reconciled status for an existing order.
type StatusUpdate struct {
	State    string
	Status   string
	Filled   decimal.Decimal
	AvgPrice decimal.Decimal
}

// Store is the record store consumed by the order pipeline.
type Store interface {
	SaveOrder(ctx context.Context, order Order) error
	UpdateOrderStatus(ctx context.Context, key string, update StatusUpdate) error
	GetOrder(ctx context.Context, key string) (Order, error)
	SaveTrade(ctx context.Context, trade schema.Trade) error
	// ListTrades returns trades executed at or after since, oldest first. A zero since returns all.
	ListTrades(ctx context.Context, since time.Time) ([]schema.Trade, error)
}
