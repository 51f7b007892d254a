package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/internal/schema"
)

func TestQueueTryPublish(t *testing.T) {
	q := NewQueue(1)

	require.NoError(t, q.TryPublish(schema.Event{}))
	assert.ErrorIs(t, q.TryPublish(schema.Event{}), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(schema.Event{}), ErrQueueClosed)
}

func TestQueueRunDrainsAfterClose(t *testing.T) {
	q := NewQueue(4)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.TryPublish(schema.Event{Header: schema.EventHeader{Seq: uint64(i)}}))
	}
	q.Close()

	var seqs []uint64
	done := make(chan struct{})
	go func() {
		q.Run(context.Background(), func(e schema.Event) {
			seqs = append(seqs, e.Header.Seq)
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after close")
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}
