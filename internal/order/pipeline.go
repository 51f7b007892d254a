package order

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"oms/internal/errors"
	"oms/internal/og"
	"oms/internal/schema"
	"oms/internal/store"
	"oms/pkg/exception"
)

const (
	opAccount = "get_account_info"
	opCreate  = "create_order"
	opCancel  = "cancel_order"
	opStatus  = "get_order_status"
)

// ProcessOrder takes an intent through validation, risk, the venue and the
// state machine. A risk rejection is a normal outcome and returns a nil error.
// Transport failures while publishing are returned next to the Result.
func (use *Usecase) ProcessOrder(ctx context.Context, intent schema.OrderIntent) (Result, error) {
	start := time.Now()
	defer func() { use.metrics.ObserveOrderFlow(time.Since(start)) }()

	if !use.running.Load() {
		return use.notRunning(intent.Key)
	}

	if intent.Key == "" {
		intent.Key = NewOrderKey()
	}
	if intent.Account == "" {
		intent.Account = use.cfg.Account
	}

	unlock := use.lock(intent.Key)
	defer unlock()

	if err := intent.Validate(); err != nil {
		return use.invalid(ctx, intent, err)
	}
	if _, exists := use.states.State(intent.Key); exists {
		return use.invalid(ctx, intent, errors.Wrapf(exception.ErrOrderDuplicateKey, "order %s", intent.Key))
	}
	use.remember(intent)

	return use.submit(ctx, intent, 0)
}

// RetryOrder resubmits a failed order under the same key. It consumes one
// retry token and refuses once the state machine stops granting them.
func (use *Usecase) RetryOrder(ctx context.Context, key string) (Result, error) {
	if !use.running.Load() {
		return use.notRunning(key)
	}
	if key == "" {
		return Result{Outcome: OutcomeInvalid, Reason: exception.ErrOrderEmptyKey.Error()}, exception.ErrOrderEmptyKey
	}

	unlock := use.lock(key)
	defer unlock()

	intent, ok := use.Intent(key)
	if !ok {
		return Result{Outcome: OutcomeInvalid, Key: key, Reason: exception.ErrOrderUnknown.Error()},
			errors.Wrapf(exception.ErrOrderUnknown, "order %s", key)
	}

	state, _ := use.states.State(key)
	if !use.states.ShouldRetry(key) {
		return Result{Outcome: OutcomeFailed, Key: key, State: state, Reason: exception.ErrOrderRetryExhausted.Error()},
			errors.Wrapf(exception.ErrOrderRetryExhausted, "order %s in %s after %d retries", key, state, use.states.RetryCount(key))
	}

	attempt := use.states.RetryCount(key)
	use.states.Transition(key, og.OrderStatePending, schema.Payload{schema.FieldAttempt: attempt})
	logs.Infof("order: retrying %s, attempt %d", key, attempt)

	return use.submit(ctx, intent, attempt)
}

func (use *Usecase) submit(ctx context.Context, intent schema.OrderIntent, attempt int) (Result, error) {
	key := intent.Key

	account, err := use.accountInfo(ctx)
	if err != nil {
		use.states.Initialize(key)
		use.states.Transition(key, og.OrderStateError, errorDetail(opAccount, err))
		return use.failed(ctx, intent, schema.StatusError(key, err.Error()), opAccount, err)
	}

	decision := use.risk.Evaluate(intent, account.Balance)
	if !decision.Approved {
		state := og.OrderState("")
		if attempt > 0 {
			use.states.Transition(key, og.OrderStateRejected, schema.Payload{schema.FieldReason: decision.Reason})
			state = og.OrderStateRejected
		}
		return use.rejected(ctx, intent, schema.VenueOrder{}, state, decision.Reason)
	}

	use.states.Initialize(key)
	resp, err := use.createOrder(ctx, intent.Request())
	if err == nil && resp.IsError() {
		err = errors.Wrap(exception.ErrVenueStatusError, resp.Message)
	}
	if err != nil {
		if resp.Status == "" {
			resp = schema.StatusError(key, err.Error())
		}
		use.states.Transition(key, og.OrderStateError, errorDetail(opCreate, err))
		return use.failed(ctx, intent, resp, opCreate, err)
	}
	if resp.Key == "" {
		resp.Key = key
	}

	use.states.Transition(key, og.OrderStateSent, intent.Payload())
	state := og.MapVenueStatus(resp.Status, resp.Filled, resp.Amount)
	if state != og.OrderStateSent {
		use.states.Reconcile(key, resp.Status, resp.Payload())
		state, _ = use.states.State(key)
	}
	use.saveOrder(ctx, store.OrderFromIntent(intent, resp, state.String()), attempt > 0)

	if state == og.OrderStateRejected {
		reason := resp.Message
		if reason == "" {
			reason = "rejected by venue"
		}
		return use.rejected(ctx, intent, resp, state, reason)
	}

	payload := merge(intent.Payload(), resp.Payload())
	payload[schema.FieldState] = state.String()
	if attempt > 0 {
		payload[schema.FieldAttempt] = attempt
	}
	pubErr := use.publish(ctx, schema.TopicOrderCreated, payload)

	if state == og.OrderStateFilled {
		pubErr = errors.Join(pubErr, use.handleFill(ctx, intent, resp))
	}

	use.metrics.IncOutcome(string(OutcomeSubmitted))
	logs.Infof("order: %s submitted, %s %s %s, venue status %s, state %s",
		key, intent.Side, intent.Quantity, intent.Symbol, resp.Status, state)
	return Result{Outcome: OutcomeSubmitted, Key: key, State: state, Order: resp}, pubErr
}

// handleFill books a completed execution: it publishes trade.executed, then
// opens the position for buys or closes it for sells.
func (use *Usecase) handleFill(ctx context.Context, intent schema.OrderIntent, resp schema.VenueOrder) error {
	qty := resp.Filled
	if !qty.IsPositive() {
		qty = intent.Quantity
	}
	price := resp.AvgPrice
	if !price.IsPositive() {
		price = intent.Price
	}

	trade := schema.Trade{
		Key:        intent.Key,
		VenueID:    resp.ID,
		StrategyID: intent.StrategyID,
		Account:    intent.Account,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   qty,
		Price:      price,
		Fee:        resp.Fee,
		ExecutedAt: time.Now().UTC().UnixNano(),
	}
	if trade.IsClosing() {
		trade.RealizedPnL = trade.Notional()
	}

	err := use.publish(ctx, schema.TopicTradeExecuted, trade.Payload())

	use.risk.RecordTrade(trade)
	if trade.IsClosing() {
		use.risk.RecordPositionClose(trade.Symbol, trade.RealizedPnL)
	} else {
		use.risk.RecordPositionOpen(schema.Position{
			Symbol:   trade.Symbol,
			Quantity: trade.Quantity,
			Notional: trade.Notional(),
			Account:  trade.Account,
		})
	}

	if use.store != nil {
		if serr := use.store.SaveTrade(ctx, trade); serr != nil {
			logs.Errorf("order: save trade %s, err: %+v", trade.Key, serr)
		}
	}
	return err
}

// CancelOrder cancels a live order. Orders the venue already reports as
// terminal are refused with exception.ErrOrderNotCancelable and their
// history is left untouched. A failed venue cancel also leaves state as is.
func (use *Usecase) CancelOrder(ctx context.Context, key string) (Result, error) {
	if !use.running.Load() {
		return use.notRunning(key)
	}
	if key == "" {
		return Result{Outcome: OutcomeInvalid, Reason: exception.ErrOrderEmptyKey.Error()}, exception.ErrOrderEmptyKey
	}

	unlock := use.lock(key)
	defer unlock()

	current, err := use.orderStatus(ctx, key)
	if err != nil {
		return use.venueFailure(key, current, opStatus, err)
	}

	observed := og.MapVenueStatus(current.Status, current.Filled, current.Amount)
	if observed.IsTerminal() {
		use.metrics.IncOutcome(string(OutcomeInvalid))
		err := errors.Wrapf(exception.ErrOrderNotCancelable, "order %s is %s", key, observed)
		return Result{Outcome: OutcomeInvalid, Key: key, State: observed, Order: current, Reason: err.Error()}, err
	}

	symbol := current.Symbol
	if intent, ok := use.Intent(key); ok {
		symbol = intent.Symbol
	}

	resp, err := use.cancelOrder(ctx, key, symbol)
	if err == nil && resp.IsError() {
		err = errors.Wrap(exception.ErrVenueStatusError, resp.Message)
	}
	if err != nil {
		return use.venueFailure(key, resp, opCancel, err)
	}
	if resp.Key == "" {
		resp.Key = key
	}

	use.states.Transition(key, og.OrderStateCanceled, resp.Payload())
	state, _ := use.states.State(key)
	use.updateOrder(ctx, key, state, resp)

	payload := resp.Payload()
	payload[schema.FieldOrderKey] = key
	payload[schema.FieldState] = state.String()
	if symbol != "" {
		payload[schema.FieldSymbol] = symbol
	}
	pubErr := use.publish(ctx, schema.TopicOrderCanceled, payload)

	use.metrics.IncOutcome(string(OutcomeCanceled))
	logs.Infof("order: %s canceled", key)
	return Result{Outcome: OutcomeCanceled, Key: key, State: state, Order: resp}, pubErr
}

// GetOrderStatus asks the venue for the order, reconciles the answer into the
// state machine and returns the normalized status. A venue failure is
// returned as reported, without touching the state machine.
func (use *Usecase) GetOrderStatus(ctx context.Context, key string) (Status, error) {
	if !use.running.Load() {
		return Status{Key: key}, exception.ErrOrderNotRunning
	}
	if key == "" {
		return Status{}, exception.ErrOrderEmptyKey
	}

	unlock := use.lock(key)
	defer unlock()

	resp, err := use.orderStatus(ctx, key)
	if err != nil {
		return Status{Key: key, State: og.OrderStateError, Order: resp}, &VenueError{Op: opStatus, Key: key, Err: err}
	}

	before, _ := use.states.State(key)
	use.states.Reconcile(key, resp.Status, resp.Payload())
	state, _ := use.states.State(key)
	use.updateOrder(ctx, key, state, resp)

	payload := resp.Payload()
	payload[schema.FieldOrderKey] = key
	payload[schema.FieldState] = state.String()
	pubErr := use.publish(ctx, schema.TopicOrderStatus, payload)

	if state == og.OrderStateFilled && before != og.OrderStateFilled {
		if intent, ok := use.Intent(key); ok {
			pubErr = errors.Join(pubErr, use.handleFill(ctx, intent, resp))
		}
	}

	return Status{Key: key, State: state, Order: resp}, pubErr
}

func (use *Usecase) accountInfo(ctx context.Context) (schema.AccountInfo, error) {
	start := time.Now()
	defer func() { use.metrics.ObserveVenue(time.Since(start)) }()
	return use.venue.GetAccountInfo(ctx)
}

func (use *Usecase) createOrder(ctx context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error) {
	start := time.Now()
	defer func() { use.metrics.ObserveVenue(time.Since(start)) }()
	return use.venue.CreateOrder(ctx, req)
}

func (use *Usecase) cancelOrder(ctx context.Context, key, symbol string) (schema.VenueOrder, error) {
	start := time.Now()
	defer func() { use.metrics.ObserveVenue(time.Since(start)) }()
	return use.venue.CancelOrder(ctx, key, symbol)
}

func (use *Usecase) orderStatus(ctx context.Context, key string) (schema.VenueOrder, error) {
	start := time.Now()
	defer func() { use.metrics.ObserveVenue(time.Since(start)) }()
	resp, err := use.venue.GetOrderStatus(ctx, key)
	if err == nil && resp.IsError() {
		err = errors.Wrap(exception.ErrVenueStatusError, resp.Message)
	}
	return resp, err
}

func (use *Usecase) notRunning(key string) (Result, error) {
	use.metrics.IncOutcome(string(OutcomeNotRunning))
	return Result{Outcome: OutcomeNotRunning, Key: key, Reason: exception.ErrOrderNotRunning.Error()}, exception.ErrOrderNotRunning
}

func (use *Usecase) invalid(ctx context.Context, intent schema.OrderIntent, err error) (Result, error) {
	use.metrics.IncOutcome(string(OutcomeInvalid))
	logs.Warnf("order: %s invalid, err: %+v", intent.Key, err)

	payload := intent.Payload()
	payload[schema.FieldReason] = err.Error()
	return Result{Outcome: OutcomeInvalid, Key: intent.Key, Reason: err.Error()},
		errors.Join(err, use.publish(ctx, schema.TopicOrderRejected, payload))
}

func (use *Usecase) rejected(ctx context.Context, intent schema.OrderIntent, resp schema.VenueOrder, state og.OrderState, reason string) (Result, error) {
	use.metrics.IncOutcome(string(OutcomeRejected))

	payload := intent.Payload()
	if resp.Status != "" {
		payload = merge(payload, resp.Payload())
	}
	payload[schema.FieldReason] = reason
	if state != "" {
		payload[schema.FieldState] = state.String()
	}
	err := use.publish(ctx, schema.TopicOrderRejected, payload)
	return Result{Outcome: OutcomeRejected, Key: intent.Key, State: state, Order: resp, Reason: reason}, err
}

func (use *Usecase) failed(ctx context.Context, intent schema.OrderIntent, resp schema.VenueOrder, op string, cause error) (Result, error) {
	use.metrics.IncOutcome(string(OutcomeFailed))
	logs.Errorf("order: %s %s failed, err: %+v", intent.Key, op, cause)

	payload := merge(intent.Payload(), resp.Payload())
	payload[schema.FieldState] = og.OrderStateError.String()
	payload[schema.FieldError] = cause.Error()
	pubErr := use.publish(ctx, schema.TopicOrderError, payload)

	res := Result{Outcome: OutcomeFailed, Key: intent.Key, State: og.OrderStateError, Order: resp, Reason: cause.Error()}
	return res, errors.Join(&VenueError{Op: op, Key: intent.Key, Err: cause}, pubErr)
}

func (use *Usecase) venueFailure(key string, resp schema.VenueOrder, op string, cause error) (Result, error) {
	use.metrics.IncOutcome(string(OutcomeFailed))
	logs.Errorf("order: %s %s failed, err: %+v", key, op, cause)

	state, _ := use.states.State(key)
	return Result{Outcome: OutcomeFailed, Key: key, State: state, Order: resp, Reason: cause.Error()},
		&VenueError{Op: op, Key: key, Err: cause}
}

func (use *Usecase) saveOrder(ctx context.Context, o store.Order, retry bool) {
	if use.store == nil {
		return
	}
	if err := use.store.SaveOrder(ctx, o); err != nil {
		logs.Errorf("order: save %s (retry=%t), err: %+v", o.Key, retry, err)
	}
}

func (use *Usecase) updateOrder(ctx context.Context, key string, state og.OrderState, resp schema.VenueOrder) {
	if use.store == nil {
		return
	}
	err := use.store.UpdateOrderStatus(ctx, key, store.StatusUpdate{
		State:    state.String(),
		Status:   resp.Status,
		Filled:   resp.Filled,
		AvgPrice: resp.AvgPrice,
	})
	if err != nil && !errors.Is(err, exception.ErrStoreNotFound) {
		logs.Errorf("order: update %s, err: %+v", key, err)
	}
}

func errorDetail(op string, err error) schema.Payload {
	return schema.Payload{
		schema.FieldError:  err.Error(),
		schema.FieldReason: op,
	}
}

func merge(base, overlay schema.Payload) schema.Payload {
	out := base.Clone()
	if out == nil {
		out = schema.Payload{}
	}
	for k, v := range overlay {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}
