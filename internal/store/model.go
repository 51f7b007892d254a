package store

import (
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/schema"
)

// OrderModel is the orders table.
type OrderModel struct {
	ID         uint            `gorm:"primaryKey"`
	Key        string          `gorm:"column:order_key;size:64;uniqueIndex"`
	VenueID    string          `gorm:"column:exchange_order_id;size:128;index"`
	StrategyID string          `gorm:"column:strategy_id;size:64;index"`
	Account    string          `gorm:"size:64"`
	Symbol     string          `gorm:"size:32;index"`
	Side       string          `gorm:"size:8"`
	Type       string          `gorm:"column:order_type;size:16"`
	Quantity   decimal.Decimal `gorm:"type:decimal(36,18)"`
	Price      decimal.Decimal `gorm:"type:decimal(36,18)"`
	Filled     decimal.Decimal `gorm:"type:decimal(36,18)"`
	AvgPrice   decimal.Decimal `gorm:"column:filled_avg_price;type:decimal(36,18)"`
	State      string          `gorm:"size:24;index"`
	Status     string          `gorm:"size:32"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

func newOrderModel(o Order) OrderModel {
	return OrderModel{
		Key:        o.Key,
		VenueID:    o.VenueID,
		StrategyID: o.StrategyID,
		Account:    o.Account,
		Symbol:     o.Symbol,
		Side:       string(o.Side),
		Type:       string(o.Type),
		Quantity:   o.Quantity,
		Price:      o.Price,
		Filled:     o.Filled,
		AvgPrice:   o.AvgPrice,
		State:      o.State,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func (m OrderModel) toOrder() Order {
	return Order{
		Key:        m.Key,
		VenueID:    m.VenueID,
		StrategyID: m.StrategyID,
		Account:    m.Account,
		Symbol:     m.Symbol,
		Side:       schema.OrderSide(m.Side),
		Type:       schema.OrderType(m.Type),
		Quantity:   m.Quantity,
		Price:      m.Price,
		Filled:     m.Filled,
		AvgPrice:   m.AvgPrice,
		State:      m.State,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// TradeModel is the trades table.
type TradeModel struct {
	ID          uint            `gorm:"primaryKey"`
	Key         string          `gorm:"column:order_key;size:64;index"`
	VenueID     string          `gorm:"column:exchange_order_id;size:128"`
	StrategyID  string          `gorm:"column:strategy_id;size:64;index"`
	Account     string          `gorm:"size:64"`
	Symbol      string          `gorm:"size:32;index"`
	Side        string          `gorm:"size:8"`
	Quantity    decimal.Decimal `gorm:"type:decimal(36,18)"`
	Price       decimal.Decimal `gorm:"type:decimal(36,18)"`
	Fee         decimal.Decimal `gorm:"type:decimal(36,18)"`
	RealizedPnL decimal.Decimal `gorm:"column:pnl;type:decimal(36,18)"`
	ExecutedAt  int64           `gorm:"index"`
	CreatedAt   time.Time
}

func (TradeModel) TableName() string {
	return "trades"
}

func newTradeModel(t schema.Trade) TradeModel {
	return TradeModel{
		Key:         t.Key,
		VenueID:     t.VenueID,
		StrategyID:  t.StrategyID,
		Account:     t.Account,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Fee:         t.Fee,
		RealizedPnL: t.RealizedPnL,
		ExecutedAt:  t.ExecutedAt,
	}
}

func (m TradeModel) toTrade() schema.Trade {
	return schema.Trade{
		Key:         m.Key,
		VenueID:     m.VenueID,
		StrategyID:  m.StrategyID,
		Account:     m.Account,
		Symbol:      m.Symbol,
		Side:        schema.OrderSide(m.Side),
		Quantity:    m.Quantity,
		Price:       m.Price,
		Fee:         m.Fee,
		RealizedPnL: m.RealizedPnL,
		ExecutedAt:  m.ExecutedAt,
	}
}
