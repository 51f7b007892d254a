package venue

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"oms/internal/chaos"
	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Venue = (*Chaos)(nil)

// Chaos injects seeded faults and latency in front of another venue.
type Chaos struct {
	next   Venue
	engine *chaos.Engine
}

// NewChaos wraps next with the given fault configuration.
func NewChaos(next Venue, cfg chaos.Config) (*Chaos, error) {
	engine, err := chaos.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	logs.Infof("venue: chaos enabled, seed=%d failRate=%v statusErrorRate=%v maxDelay=%s",
		engine.Config().Seed, cfg.FailRate, cfg.StatusErrorRate, cfg.MaxDelay)
	return &Chaos{next: next, engine: engine}, nil
}

func (c *Chaos) GetAccountInfo(ctx context.Context) (schema.AccountInfo, error) {
	fault, err := c.inject(ctx, "get account")
	if err != nil {
		return schema.AccountInfo{}, err
	}
	if fault == chaos.FaultStatusError {
		return schema.AccountInfo{}, errors.Wrap(exception.ErrVenueInjectedFault, "get account: status error")
	}
	return c.next.GetAccountInfo(ctx)
}

func (c *Chaos) CreateOrder(ctx context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error) {
	if order, failed, err := c.fail(ctx, "create order", req.Key); failed {
		return order, err
	}
	return c.next.CreateOrder(ctx, req)
}

func (c *Chaos) CancelOrder(ctx context.Context, key, symbol string) (schema.VenueOrder, error) {
	if order, failed, err := c.fail(ctx, "cancel order", key); failed {
		return order, err
	}
	return c.next.CancelOrder(ctx, key, symbol)
}

func (c *Chaos) GetOrderStatus(ctx context.Context, key string) (schema.VenueOrder, error) {
	if order, failed, err := c.fail(ctx, "get order status", key); failed {
		return order, err
	}
	return c.next.GetOrderStatus(ctx, key)
}

func (c *Chaos) fail(ctx context.Context, op, key string) (schema.VenueOrder, bool, error) {
	fault, err := c.inject(ctx, op)
	if err != nil {
		return schema.StatusError(key, err.Error()), true, err
	}
	if fault == chaos.FaultStatusError {
		err := errors.Wrapf(exception.ErrVenueInjectedFault, "%s: status error", op)
		return schema.StatusError(key, "injected status error"), true, err
	}
	return schema.VenueOrder{}, false, nil
}

func (c *Chaos) inject(ctx context.Context, op string) (chaos.Fault, error) {
	fault, delay := c.engine.Draw()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fault, ctx.Err()
		case <-timer.C:
		}
	}
	if fault == chaos.FaultFail {
		logs.Debugf("venue: chaos failed %s", op)
		return fault, errors.Wrapf(exception.ErrVenueInjectedFault, "%s", op)
	}
	return fault, nil
}
