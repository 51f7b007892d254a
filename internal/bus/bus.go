// Package bus is the event channel: topic-addressed, at-most-once fan-out of
// flat key/value payloads to registered handlers.
//
// Delivery order is preserved per topic per subscriber. Nothing is persisted;
// events published while nobody listens are lost.
package bus

import (
	"context"
	"fmt"
	"strings"

	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/schema"
	"oms/pkg/exception"
)

// Handler consumes one delivered event.
type Handler func(ctx context.Context, event schema.Event)

// SubscriptionID identifies a registered handler for Unsubscribe.
type SubscriptionID uint64

// Channel is the capability set shared by every transport.
type Channel interface {
	Publish(ctx context.Context, topic schema.Topic, payload schema.Payload) error
	Subscribe(topic schema.Topic, handler Handler) (SubscriptionID, error)
	Unsubscribe(topic schema.Topic, id SubscriptionID) error
	Close() error
}

// TransportError reports that the underlying transport is unavailable.
type TransportError struct {
	Op    string
	Topic schema.Topic
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus: transport %s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Kind selects a Channel implementation.
type Kind string

const (
	KindLocal    Kind = "local"
	KindRecorder Kind = "recorder"
	KindRedis    Kind = "redis"
)

// Config selects and tunes the channel implementation.
type Config struct {
	Kind      Kind        `json:"kind" yaml:"kind"`
	QueueSize int         `json:"queueSize" yaml:"queueSize"`
	Redis     RedisConfig `json:"redis" yaml:"redis"`
}

// New builds the channel selected by cfg.Kind.
func New(cfg Config, metrics *obs.Metrics) (Channel, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case "", KindLocal:
		return NewLocal(cfg.QueueSize, metrics), nil
	case KindRecorder:
		return NewRecorder(metrics), nil
	case KindRedis:
		redisCfg := cfg.Redis
		if redisCfg.QueueSize == 0 {
			redisCfg.QueueSize = cfg.QueueSize
		}
		return NewRedis(redisCfg, metrics)
	default:
		return nil, errors.Wrapf(exception.ErrBusUnknownKind, "kind %q", cfg.Kind)
	}
}

func validate(topic schema.Topic, handler Handler) error {
	if !topic.Valid() {
		return errors.Wrapf(exception.ErrBusInvalidTopic, "topic %q", topic)
	}
	if handler == nil {
		return exception.ErrBusNilHandler
	}
	return nil
}
