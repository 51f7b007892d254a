// Package venue holds exchange adapters and decorators around them.
package venue

import (
	"context"

	"oms/internal/schema"
)

// Venue is the exchange adapter capability set. Every failure carries a
// VenueOrder with status "error" and a message next to the returned error.
type Venue interface {
	GetAccountInfo(ctx context.Context) (schema.AccountInfo, error)
	CreateOrder(ctx context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error)
	CancelOrder(ctx context.Context, key, symbol string) (schema.VenueOrder, error)
	GetOrderStatus(ctx context.Context, key string) (schema.VenueOrder, error)
}
