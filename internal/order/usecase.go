// Package order is the pipeline that takes an intent through risk, the venue
// and the state machine, and reports every step on the event channel.
package order

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"oms/internal/bus"
	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/og"
	"oms/internal/risk"
	"oms/internal/schema"
	"oms/internal/store"
	"oms/pkg/exception"
)

const (
	defaultQueueSize    = 256
	defaultRetryBackoff = time.Second
)

// Venue is the exchange adapter capability set consumed by the pipeline.
type Venue interface {
	GetAccountInfo(ctx context.Context) (schema.AccountInfo, error)
	CreateOrder(ctx context.Context, req schema.CreateOrderRequest) (schema.VenueOrder, error)
	CancelOrder(ctx context.Context, key, symbol string) (schema.VenueOrder, error)
	GetOrderStatus(ctx context.Context, key string) (schema.VenueOrder, error)
}

// Config tunes the event-driven entry points.
type Config struct {
	// QueueSize bounds the requests waiting behind one order key.
	QueueSize    int           `json:"queueSize" yaml:"queueSize"`
	RetryBackoff time.Duration `json:"retryBackoff" yaml:"retryBackoff"`
	AutoRetry    bool          `json:"autoRetry" yaml:"autoRetry"`
	// Account is stamped on intents that do not name one.
	Account string `json:"account" yaml:"account"`
}

// DefaultConfig returns the settings used by cmd/trader when none are given.
func DefaultConfig() Config {
	return Config{
		QueueSize:    defaultQueueSize,
		RetryBackoff: defaultRetryBackoff,
		AutoRetry:    true,
	}
}

// Validate rejects negative sizes.
func (c Config) Validate() error {
	if c.QueueSize < 0 || c.RetryBackoff < 0 {
		return errors.Wrapf(exception.ErrOrderInvalidWorkerConfig, "queueSize=%d retryBackoff=%s",
			c.QueueSize, c.RetryBackoff)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// Dependencies are handed to the pipeline at construction. Store and Metrics are optional.
type Dependencies struct {
	Channel bus.Channel
	Risk    *risk.Gate
	States  *og.StateMachine
	Venue   Venue
	Store   store.Store
	Metrics *obs.Metrics
}

type subscription struct {
	topic schema.Topic
	id    bus.SubscriptionID
}

// Usecase drives orders end to end. Calls for one order key are serialized;
// different keys proceed in parallel.
type Usecase struct {
	cfg     Config
	channel bus.Channel
	risk    *risk.Gate
	states  *og.StateMachine
	venue   Venue
	store   store.Store
	metrics *obs.Metrics
	traces  *obs.TraceGenerator

	running atomic.Bool
	locks   sync.Map // order key -> *sync.Mutex
	intents sync.Map // order key -> schema.OrderIntent

	mu     sync.Mutex
	subs   []subscription
	lanes  map[string]*lane
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// lane holds the requests waiting for one order key. A lane has at most one
// goroutine draining it and disappears once empty.
type lane struct {
	pending []schema.Event
}

// NewUsecase wires the pipeline. The pipeline starts stopped.
func NewUsecase(cfg Config, deps Dependencies) (*Usecase, error) {
	switch {
	case deps.Channel == nil:
		return nil, exception.ErrOrderNilChannel
	case deps.Risk == nil:
		return nil, exception.ErrOrderNilRiskGate
	case deps.States == nil:
		return nil, exception.ErrOrderNilStateMachine
	case deps.Venue == nil:
		return nil, exception.ErrOrderNilVenue
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Usecase{
		cfg:     cfg.withDefaults(),
		channel: deps.Channel,
		risk:    deps.Risk,
		states:  deps.States,
		venue:   deps.Venue,
		store:   deps.Store,
		metrics: deps.Metrics,
		traces:  obs.NewTraceGenerator(0),
	}, nil
}

// NewOrderKey returns a fresh, globally unique order key.
func NewOrderKey() string {
	return "order_" + uuid.NewString()
}

// Running reports whether the pipeline accepts work.
func (use *Usecase) Running() bool {
	return use.running.Load()
}

// Record returns the lifecycle record kept for key.
func (use *Usecase) Record(key string) (og.Record, bool) {
	return use.states.Record(key)
}

// Start flips the running flag and subscribes to order.new and order.cancel.
// Starting twice is a no-op.
func (use *Usecase) Start(ctx context.Context) error {
	use.mu.Lock()
	if use.running.Load() {
		use.mu.Unlock()
		return nil
	}
	use.running.Store(true)
	use.runCtx, use.cancel = context.WithCancel(ctx)
	use.lanes = make(map[string]*lane)

	for _, topic := range []schema.Topic{schema.TopicOrderNew, schema.TopicOrderCancel} {
		id, err := use.channel.Subscribe(topic, use.enqueue)
		if err != nil {
			use.mu.Unlock()
			use.Stop()
			return errors.Wrapf(err, "subscribe %s", topic)
		}
		use.subs = append(use.subs, subscription{topic: topic, id: id})
	}
	use.mu.Unlock()

	logs.Infof("order: pipeline started, queue=%d per key", use.cfg.QueueSize)
	return nil
}

// Stop flips the running flag, unsubscribes, cancels in-flight venue calls
// and waits for the lanes and retry loops. Requests still queued are answered
// with not running.
func (use *Usecase) Stop() {
	use.mu.Lock()
	if !use.running.Swap(false) {
		use.mu.Unlock()
		return
	}
	subs, cancel := use.subs, use.cancel
	use.subs, use.cancel = nil, nil
	use.mu.Unlock()

	for _, sub := range subs {
		if err := use.channel.Unsubscribe(sub.topic, sub.id); err != nil {
			logs.Warnf("order: unsubscribe %s, err: %+v", sub.topic, err)
		}
	}
	cancel()
	use.wg.Wait()

	logs.Info("order: pipeline stopped")
}

// lock serializes work on one order key.
func (use *Usecase) lock(key string) func() {
	v, _ := use.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (use *Usecase) remember(intent schema.OrderIntent) {
	use.intents.Store(intent.Key, intent)
}

// Intent returns the intent submitted under key.
func (use *Usecase) Intent(key string) (schema.OrderIntent, bool) {
	v, ok := use.intents.Load(key)
	if !ok {
		return schema.OrderIntent{}, false
	}
	return v.(schema.OrderIntent), true
}

func (use *Usecase) publish(ctx context.Context, topic schema.Topic, payload schema.Payload) error {
	payload[schema.FieldTraceID] = use.traces.For(payload.String(schema.FieldOrderKey))
	payload.Stamp(time.Now())
	if err := use.channel.Publish(ctx, topic, payload); err != nil {
		logs.Errorf("order: publish %s failed, err: %+v", topic, err)
		return err
	}
	return nil
}

// enqueue appends an inbound request to the lane of its order key. Requests
// for one key run in arrival order; a hung venue call holds only that key.
func (use *Usecase) enqueue(ctx context.Context, e schema.Event) {
	payload := e.Payload.Clone()
	if payload == nil {
		payload = schema.Payload{}
	}
	key := payload.String(schema.FieldOrderKey)
	if key == "" {
		if e.Header.Topic != schema.TopicOrderNew {
			logs.Warnf("order: %s without %s dropped", e.Header.Topic, schema.FieldOrderKey)
			return
		}
		key = NewOrderKey()
		payload[schema.FieldOrderKey] = key
	}
	e.Payload = payload

	use.mu.Lock()
	if !use.running.Load() {
		use.mu.Unlock()
		logs.Warnf("order: %s for %s dropped, pipeline not running", e.Header.Topic, key)
		return
	}
	l, active := use.lanes[key]
	if !active {
		l = &lane{}
		use.lanes[key] = l
	}
	if len(l.pending) >= use.cfg.QueueSize {
		use.mu.Unlock()
		logs.Warnf("order: %s for %s not queued, %d requests pending", e.Header.Topic, key, use.cfg.QueueSize)
		_ = use.publish(ctx, schema.TopicOrderError, schema.Payload{
			schema.FieldOrderKey: key,
			schema.FieldError:    errors.Wrapf(exception.ErrOrderQueueFull, "key %s", key).Error(),
		})
		return
	}
	l.pending = append(l.pending, e)
	runCtx := use.runCtx
	if !active {
		use.wg.Add(1)
	}
	use.mu.Unlock()

	if !active {
		go use.drain(runCtx, key, l)
	}
}

// drain runs the requests of one lane until it is empty.
func (use *Usecase) drain(ctx context.Context, key string, l *lane) {
	defer use.wg.Done()
	for {
		use.mu.Lock()
		if len(l.pending) == 0 {
			delete(use.lanes, key)
			use.mu.Unlock()
			return
		}
		e := l.pending[0]
		l.pending = l.pending[1:]
		use.mu.Unlock()

		use.dispatch(ctx, e)
	}
}

// spawn runs fn in a goroutine tracked by Stop. It refuses once stopped.
func (use *Usecase) spawn(fn func(ctx context.Context)) bool {
	use.mu.Lock()
	if !use.running.Load() {
		use.mu.Unlock()
		return false
	}
	ctx := use.runCtx
	use.wg.Add(1)
	use.mu.Unlock()

	go func() {
		defer use.wg.Done()
		fn(ctx)
	}()
	return true
}

func (use *Usecase) dispatch(ctx context.Context, e schema.Event) {
	switch e.Header.Topic {
	case schema.TopicOrderNew:
		use.handleNew(ctx, e.Payload)
	case schema.TopicOrderCancel:
		key := e.Payload.String(schema.FieldOrderKey)
		if _, err := use.CancelOrder(ctx, key); err != nil {
			logs.Warnf("order: cancel %s, err: %+v", key, err)
		}
	default:
		logs.Warnf("order: %+v, topic %s", exception.ErrOrderUnknownTopic, e.Header.Topic)
	}
}

func (use *Usecase) handleNew(ctx context.Context, payload schema.Payload) {
	intent, err := schema.IntentFromPayload(payload)
	if err != nil {
		logs.Warnf("order: malformed %s, err: %+v", schema.TopicOrderNew, err)
		p := payload.Clone()
		p[schema.FieldReason] = err.Error()
		_ = use.publish(ctx, schema.TopicOrderRejected, p)
		return
	}

	res, err := use.ProcessOrder(ctx, intent)
	if err != nil {
		logs.Warnf("order: process %s, outcome=%s, err: %+v", res.Key, res.Outcome, err)
	}
	if res.Outcome == OutcomeFailed && use.cfg.AutoRetry {
		key := res.Key
		use.spawn(func(ctx context.Context) { use.retryLoop(ctx, key) })
	}
}

// retryLoop resubmits a failed order until it leaves the failed outcome or
// the state machine refuses another token.
func (use *Usecase) retryLoop(ctx context.Context, key string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(use.cfg.RetryBackoff):
		}

		res, err := use.RetryOrder(ctx, key)
		if errors.Is(err, exception.ErrOrderRetryExhausted) {
			logs.Warnf("order: giving up on %s after %d retries", key, use.states.RetryCount(key))
			return
		}
		if res.Outcome != OutcomeFailed {
			return
		}
	}
}
