package bus

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/schema"
	"oms/pkg/exception"
)

const defaultQueueSize = 1024

var _ Channel = (*Local)(nil)

type subscription struct {
	id      SubscriptionID
	topic   schema.Topic
	handler Handler
	queue   *Queue
}

// Local is the in-process channel. Every subscription owns a bounded queue
// drained by its own goroutine, so Publish never waits on handler work.
type Local struct {
	mu     sync.RWMutex
	subs   map[schema.Topic][]*subscription
	closed bool

	nextID    atomic.Uint64
	seq       atomic.Uint64
	queueSize int
	metrics   *obs.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocal creates an in-process channel with per-subscription queues of queueSize.
func NewLocal(queueSize int, metrics *obs.Metrics) *Local {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		subs:      make(map[schema.Topic][]*subscription),
		queueSize: queueSize,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Publish enqueues payload for every current subscriber of topic.
func (l *Local) Publish(ctx context.Context, topic schema.Topic, payload schema.Payload) error {
	if !topic.Valid() {
		return errors.Wrapf(exception.ErrBusInvalidTopic, "topic %q", topic)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.metrics.IncClosedPublish()
		return &TransportError{Op: "publish", Topic: topic, Err: exception.ErrBusClosed}
	}

	header := schema.NewHeader(topic, l.seq.Add(1), time.Now().UTC().UnixNano())
	for _, sub := range l.subs[topic] {
		err := sub.queue.TryPublish(schema.Event{Header: header, Payload: payload.Clone()})
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueFull):
			l.metrics.IncDeliveryDrop()
			logs.Warnf("bus: drop %s seq=%d for subscription %d, queue full", topic, header.Seq, sub.id)
		default:
			// queue closed by a concurrent Unsubscribe
		}
	}
	l.metrics.ObservePublish(string(topic))
	return nil
}

// Subscribe registers handler for topic. Only events published afterwards are delivered.
func (l *Local) Subscribe(topic schema.Topic, handler Handler) (SubscriptionID, error) {
	if err := validate(topic, handler); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, &TransportError{Op: "subscribe", Topic: topic, Err: exception.ErrBusClosed}
	}

	sub := &subscription{
		id:      SubscriptionID(l.nextID.Add(1)),
		topic:   topic,
		handler: handler,
		queue:   NewQueue(l.queueSize),
	}
	l.subs[topic] = append(l.subs[topic], sub)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		sub.queue.Run(l.ctx, func(e schema.Event) {
			l.deliver(sub, e)
		})
	}()
	return sub.id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (l *Local) Unsubscribe(topic schema.Topic, id SubscriptionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subs[topic]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		sub.queue.Close()
		l.subs[topic] = append(subs[:i:i], subs[i+1:]...)
		if len(l.subs[topic]) == 0 {
			delete(l.subs, topic)
		}
		return nil
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions on topic.
func (l *Local) SubscriberCount(topic schema.Topic) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[topic])
}

// Close stops accepting events, lets queued deliveries finish and waits for subscriber goroutines.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for topic, subs := range l.subs {
		for _, sub := range subs {
			sub.queue.Close()
		}
		delete(l.subs, topic)
	}
	l.mu.Unlock()

	l.wg.Wait()
	l.cancel()
	return nil
}

func (l *Local) deliver(sub *subscription, e schema.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.IncHandlerPanic()
			logs.Errorf("bus: handler panic on %s subscription %d: %v\n%s", sub.topic, sub.id, r, debug.Stack())
		}
	}()
	sub.handler(l.ctx, e)
}
