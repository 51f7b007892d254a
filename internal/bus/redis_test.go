package bus

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/schema"
	"oms/pkg/exception"
)

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(RedisConfig{}, nil)
	assert.ErrorIs(t, err, exception.ErrBusEmptyRedisAddr)
}

func TestRedisChannelNames(t *testing.T) {
	r, err := NewRedis(RedisConfigDefaults(), nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "oms:order.created", r.channel(schema.TopicOrderCreated))
	assert.Equal(t, schema.TopicOrderCreated, r.topicFromChannel("oms:order.created"))

	r.prefix = ""
	assert.Equal(t, "order.created", r.channel(schema.TopicOrderCreated))
}

func TestRedisPayloadCodec(t *testing.T) {
	in := schema.Payload{
		schema.FieldOrderKey: "order_1",
		schema.FieldQuantity: decimal.RequireFromString("0.125"),
	}

	data, err := encodePayload(in)
	require.NoError(t, err)

	out, err := decodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, "order_1", out.String(schema.FieldOrderKey))
	assert.True(t, out.Decimal(schema.FieldQuantity).Equal(decimal.RequireFromString("0.125")))

	_, err = decodePayload("{")
	assert.Error(t, err)
}

func TestRedisClosed(t *testing.T) {
	r, err := NewRedis(RedisConfigDefaults(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	err = r.Publish(context.Background(), schema.TopicOrderCreated, schema.Payload{})
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, exception.ErrConnectionClose)
	assert.ErrorIs(t, err, exception.ErrBusClosed)

	_, err = r.Subscribe(schema.TopicOrderNew, func(context.Context, schema.Event) {})
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, exception.ErrConnectionClose)
}

func TestRedisSubscribeUnreachable(t *testing.T) {
	cfg := RedisConfigDefaults()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond
	r, err := NewRedis(cfg, nil)
	require.NoError(t, err)

	_, err = r.Subscribe(schema.TopicOrderNew, func(context.Context, schema.Event) {})
	assert.True(t, IsTransportError(err))
	assert.Empty(t, r.pubsubs)
	assert.Zero(t, r.local.SubscriberCount(schema.TopicOrderNew))

	closed := make(chan error, 1)
	go func() { closed <- r.Close() }()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked after a failed subscribe")
	}
}
