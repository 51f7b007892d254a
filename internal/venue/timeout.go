package venue

import (
	"context"
	"time"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Venue = (*Timeout)(nil)

// Timeout bounds every call to the wrapped venue. An expired call returns
// ErrVenueTimeout even when the wrapped venue ignores its context.
type Timeout struct {
	next    Venue
	timeout time.Duration
}

// NewTimeout wraps next. A non-positive timeout disables the bound.
func NewTimeout(next Venue, timeout time.Duration) *Timeout {
	return &Timeout{next: next, timeout: timeout}
}

func (t *Timeout) GetAccountInfo(ctx context.Context) (schema.AccountInfo, error) {
	info, err := call(ctx, t.timeout, "get account", t.next.GetAccountInfo)
	return info, err
}

func (t *Timeout) CreateOrder(ctx context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error) {
	order, err := call(ctx, t.timeout, "create order", func(ctx context.Context) (schema.VenueOrder, error) {
		return t.next.CreateOrder(ctx, req)
	})
	return orTimeout(order, req.Key, err)
}

func (t *Timeout) CancelOrder(ctx context.Context, key, symbol string) (schema.VenueOrder, error) {
	order, err := call(ctx, t.timeout, "cancel order", func(ctx context.Context) (schema.VenueOrder, error) {
		return t.next.CancelOrder(ctx, key, symbol)
	})
	return orTimeout(order, key, err)
}

func (t *Timeout) GetOrderStatus(ctx context.Context, key string) (schema.VenueOrder, error) {
	order, err := call(ctx, t.timeout, "get order status", func(ctx context.Context) (schema.VenueOrder, error) {
		return t.next.GetOrderStatus(ctx, key)
	})
	return orTimeout(order, key, err)
}

func orTimeout(order schema.VenueOrder, key string, err error) (schema.VenueOrder, error) {
	if errors.Is(err, exception.ErrVenueTimeout) {
		return schema.StatusError(key, err.Error()), err
	}
	return order, err
}

type result[T any] struct {
	value T
	err   error
}

func call[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrapf(exception.ErrVenueTimeout, "%s after %s", op, timeout)
	}
}
