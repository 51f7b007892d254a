package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Store = (*Gorm)(nil)

// Gorm is the SQL-backed store.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps db and migrates the orders and trades tables.
func NewGorm(ctx context.Context, db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, exception.ErrStoreNilDB
	}
	if err := db.WithContext(ctx).AutoMigrate(&OrderModel{}, &TradeModel{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate")
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) SaveOrder(ctx context.Context, order Order) error {
	model := newOrderModel(order)
	var existing OrderModel
	err := g.db.WithContext(ctx).Where("order_key = ?", order.Key).Take(&existing).Error
	switch {
	case err == nil:
		model.ID = existing.ID
		model.CreatedAt = existing.CreatedAt
		return g.db.WithContext(ctx).Save(&model).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return g.db.WithContext(ctx).Create(&model).Error
	default:
		return errors.Wrapf(err, "save order %s", order.Key)
	}
}

func (g *Gorm) UpdateOrderStatus(ctx context.Context, key string, update StatusUpdate) error {
	values := map[string]any{
		"state":      update.State,
		"status":     update.Status,
		"updated_at": time.Now().UTC(),
	}
	if !update.Filled.IsZero() {
		values["filled"] = update.Filled
	}
	if !update.AvgPrice.IsZero() {
		values["filled_avg_price"] = update.AvgPrice
	}

	result := g.db.WithContext(ctx).Model(&OrderModel{}).Where("order_key = ?", key).Updates(values)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update order %s", key)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(exception.ErrStoreNotFound, "order %s", key)
	}
	return nil
}

func (g *Gorm) GetOrder(ctx context.Context, key string) (Order, error) {
	var model OrderModel
	err := g.db.WithContext(ctx).Where("order_key = ?", key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, errors.Wrapf(exception.ErrStoreNotFound, "order %s", key)
	}
	if err != nil {
		return Order{}, errors.Wrapf(err, "get order %s", key)
	}
	return model.toOrder(), nil
}

func (g *Gorm) SaveTrade(ctx context.Context, trade schema.Trade) error {
	model := newTradeModel(trade)
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return errors.Wrapf(err, "save trade for order %s", trade.Key)
	}
	return nil
}

func (g *Gorm) ListTrades(ctx context.Context, since time.Time) ([]schema.Trade, error) {
	query := g.db.WithContext(ctx).Model(&TradeModel{})
	if !since.IsZero() {
		query = query.Where("executed_at >= ?", since.UnixNano())
	}

	var models []TradeModel
	if err := query.Order("executed_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list trades")
	}
	trades := make([]schema.Trade, len(models))
	for i, m := range models {
		trades[i] = m.toTrade()
	}
	return trades, nil
}
