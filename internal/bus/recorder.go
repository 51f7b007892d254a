package bus

import (
	"context"
	"sync"
	"time"

	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Channel = (*Recorder)(nil)

// Recorder is the backtest channel. It keeps every published event in memory
// and delivers synchronously on the publishing goroutine, which makes runs
// deterministic.
type Recorder struct {
	mu          sync.RWMutex
	events      []schema.Event
	subs        map[schema.Topic][]*subscription
	nextID      SubscriptionID
	seq         uint64
	closed      bool
	unavailable error
	metrics     *obs.Metrics
}

// NewRecorder creates an empty recorder.
func NewRecorder(metrics *obs.Metrics) *Recorder {
	return &Recorder{
		events:  make([]schema.Event, 0, 64),
		subs:    make(map[schema.Topic][]*subscription),
		metrics: metrics,
	}
}

// Publish records the event and invokes current subscribers in registration order.
func (r *Recorder) Publish(ctx context.Context, topic schema.Topic, payload schema.Payload) error {
	if !topic.Valid() {
		return errors.Wrapf(exception.ErrBusInvalidTopic, "topic %q", topic)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.metrics.IncClosedPublish()
		return &TransportError{Op: "publish", Topic: topic, Err: exception.ErrBusClosed}
	}
	if r.unavailable != nil {
		err := r.unavailable
		r.mu.Unlock()
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}
	r.seq++
	event := schema.Event{
		Header:  schema.NewHeader(topic, r.seq, time.Now().UTC().UnixNano()),
		Payload: payload.Clone(),
	}
	r.events = append(r.events, event)
	subs := append([]*subscription(nil), r.subs[topic]...)
	r.mu.Unlock()

	r.metrics.ObservePublish(string(topic))
	for _, sub := range subs {
		sub.handler(ctx, schema.Event{Header: event.Header, Payload: event.Payload.Clone()})
	}
	return nil
}

// Subscribe registers handler for topic.
func (r *Recorder) Subscribe(topic schema.Topic, handler Handler) (SubscriptionID, error) {
	if err := validate(topic, handler); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, &TransportError{Op: "subscribe", Topic: topic, Err: exception.ErrBusClosed}
	}
	r.nextID++
	r.subs[topic] = append(r.subs[topic], &subscription{id: r.nextID, topic: topic, handler: handler})
	return r.nextID, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (r *Recorder) Unsubscribe(topic schema.Topic, id SubscriptionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[topic]
	for i, sub := range subs {
		if sub.id == id {
			r.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return nil
		}
	}
	return nil
}

// Close marks the recorder closed; recorded events stay readable.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// SetUnavailable makes Publish fail with a TransportError wrapping err until cleared with nil.
func (r *Recorder) SetUnavailable(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = err
}

// Events returns every recorded event in publish order.
func (r *Recorder) Events() []schema.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsByTopic returns recorded events for one topic in publish order.
func (r *Recorder) EventsByTopic(topic schema.Topic) []schema.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Event, 0)
	for _, e := range r.events {
		if e.Header.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// Topics returns the topic of every recorded event in publish order.
func (r *Recorder) Topics() []schema.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Topic, len(r.events))
	for i, e := range r.events {
		out[i] = e.Header.Topic
	}
	return out
}

// Reset drops recorded events but keeps subscriptions.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
}
