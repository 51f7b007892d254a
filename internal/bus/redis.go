package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"

	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Channel = (*Redis)(nil)

// RedisConfig holds Redis pub/sub configuration.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string `json:"addr" yaml:"addr"`
	// Password for Redis authentication (empty for no auth)
	Password string `json:"password" yaml:"password"`
	// DB is the Redis database number (0-15)
	DB int `json:"db" yaml:"db"`
	// Prefix is prepended to every channel name
	Prefix string `json:"prefix" yaml:"prefix"`
	// QueueSize bounds each local subscription queue
	QueueSize int `json:"queueSize" yaml:"queueSize"`
	// DialTimeout bounds connection establishment
	DialTimeout time.Duration `json:"dialTimeout" yaml:"dialTimeout"`
}

// RedisConfigDefaults returns sensible defaults for the Redis transport.
func RedisConfigDefaults() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Prefix:      "oms",
		QueueSize:   defaultQueueSize,
		DialTimeout: 5 * time.Second,
	}
}

// Redis is the networked channel over Redis pub/sub. Messages received from
// Redis are fanned out to local handlers through a Local channel, so ordering
// and isolation guarantees match the in-process transport.
type Redis struct {
	client *redis.Client
	local  *Local
	prefix string

	// subscribeTimeout bounds the subscription handshake with Redis.
	subscribeTimeout time.Duration

	mu      sync.Mutex
	pubsubs map[schema.Topic]*redis.PubSub
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedis creates a Redis-backed channel. No connection is made until first use.
func NewRedis(cfg RedisConfig, metrics *obs.Metrics) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, exception.ErrBusEmptyRedisAddr
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = RedisConfigDefaults().DialTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{
		client:           client,
		local:            NewLocal(cfg.QueueSize, metrics),
		prefix:           cfg.Prefix,
		subscribeTimeout: timeout,
		pubsubs:          make(map[schema.Topic]*redis.PubSub),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &TransportError{Op: "ping", Err: err}
	}
	return nil
}

// Publish JSON-encodes payload and publishes it on the topic's Redis channel.
func (r *Redis) Publish(ctx context.Context, topic schema.Topic, payload schema.Payload) error {
	if !topic.Valid() {
		return errors.Wrapf(exception.ErrBusInvalidTopic, "topic %q", topic)
	}
	if r.isClosed() {
		return r.closedError("publish", topic)
	}
	data, err := encodePayload(payload)
	if err != nil {
		return errors.Wrapf(err, "encode payload for %s", topic)
	}
	if err := r.client.Publish(ctx, r.channel(topic), data).Err(); err != nil {
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}
	return nil
}

// Subscribe registers handler for topic, opening the Redis subscription on first use.
func (r *Redis) Subscribe(topic schema.Topic, handler Handler) (SubscriptionID, error) {
	if err := validate(topic, handler); err != nil {
		return 0, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, r.closedError("subscribe", topic)
	}
	_, open := r.pubsubs[topic]
	r.mu.Unlock()

	// handshake runs unlocked, bounded by subscribeTimeout
	var fresh *redis.PubSub
	if !open {
		ps, err := r.open(topic)
		if err != nil {
			return 0, err
		}
		fresh = ps
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		if fresh != nil {
			_ = fresh.Close()
		}
		return 0, r.closedError("subscribe", topic)
	}
	if fresh != nil {
		if _, raced := r.pubsubs[topic]; raced {
			_ = fresh.Close()
		} else {
			r.pubsubs[topic] = fresh
			r.wg.Add(1)
			go r.forward(fresh)
		}
	}

	id, err := r.local.Subscribe(topic, handler)
	if err != nil {
		_ = r.dropIfUnusedLocked(topic)
		return 0, err
	}
	return id, nil
}

func (r *Redis) open(topic schema.Topic) (*redis.PubSub, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.subscribeTimeout)
	defer cancel()

	ps := r.client.Subscribe(ctx, r.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &TransportError{Op: "subscribe", Topic: topic, Err: err}
	}
	return ps, nil
}

// dropIfUnusedLocked closes the Redis subscription of topic once no local handler is left.
func (r *Redis) dropIfUnusedLocked(topic schema.Topic) error {
	if r.local.SubscriberCount(topic) > 0 {
		return nil
	}
	ps, ok := r.pubsubs[topic]
	if !ok {
		return nil
	}
	delete(r.pubsubs, topic)
	if err := ps.Close(); err != nil {
		return &TransportError{Op: "unsubscribe", Topic: topic, Err: err}
	}
	return nil
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Redis) closedError(op string, topic schema.Topic) error {
	return &TransportError{Op: op, Topic: topic, Err: errors.Join(exception.ErrBusClosed, exception.ErrConnectionClose)}
}

// Unsubscribe removes a handler and drops the Redis subscription once no handler is left.
func (r *Redis) Unsubscribe(topic schema.Topic, id SubscriptionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.local.Unsubscribe(topic, id); err != nil {
		return err
	}
	return r.dropIfUnusedLocked(topic)
}

// Close closes every Redis subscription, the local fan-out and the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for topic, ps := range r.pubsubs {
		_ = ps.Close()
		delete(r.pubsubs, topic)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	_ = r.local.Close()
	return r.client.Close()
}

func (r *Redis) forward(ps *redis.PubSub) {
	defer r.wg.Done()
	for msg := range ps.Channel() {
		payload, err := decodePayload(msg.Payload)
		if err != nil {
			logs.Warnf("bus: drop undecodable message on %s, err: %+v", msg.Channel, err)
			continue
		}
		topic := r.topicFromChannel(msg.Channel)
		if err := r.local.Publish(r.ctx, topic, payload); err != nil {
			logs.Warnf("bus: forward %s, err: %+v", topic, err)
			return
		}
	}
}

func (r *Redis) channel(topic schema.Topic) string {
	if r.prefix == "" {
		return string(topic)
	}
	return r.prefix + ":" + string(topic)
}

// topicFromChannel strips the configured prefix from a Redis channel name.
func (r *Redis) topicFromChannel(channel string) schema.Topic {
	if r.prefix == "" {
		return schema.Topic(channel)
	}
	return schema.Topic(strings.TrimPrefix(channel, r.prefix+":"))
}

func encodePayload(payload schema.Payload) (string, error) {
	if payload == nil {
		payload = schema.Payload{}
	}
	return sonic.ConfigStd.MarshalToString(payload)
}

func decodePayload(data string) (schema.Payload, error) {
	payload := schema.Payload{}
	if err := sonic.ConfigStd.UnmarshalFromString(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
