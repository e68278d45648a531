package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(8)
	now := time.Now()

	q.Push(StatusEvent(true, now))
	q.Push(SensorEvent("t", map[string]any{"suhu": 25.0}, now))
	q.Push(RawEvent("t", "garbage", now))

	events := q.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, KindConnectionStatus, events[0].Kind)
	assert.Equal(t, KindSensor, events[1].Kind)
	assert.Equal(t, KindRawUnparsed, events[2].Kind)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DrainEmptyIsIdempotent(t *testing.T) {
	q := NewQueue(4)
	assert.Nil(t, q.Drain())
	assert.Nil(t, q.Drain())

	q.Push(ErrorEvent("boom", time.Now()))
	assert.Len(t, q.Drain(), 1)
	assert.Nil(t, q.Drain())
}

func TestQueue_FullDropsOldest(t *testing.T) {
	q := NewQueue(2)
	var dropped []string
	q.OnDrop = func(e Event) { dropped = append(dropped, e.Message) }

	q.Push(ErrorEvent("1", time.Now()))
	q.Push(ErrorEvent("2", time.Now()))
	q.Push(ErrorEvent("3", time.Now()))

	events := q.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
	assert.Equal(t, int64(1), q.Dropped())
	assert.Equal(t, []string{"1"}, dropped)
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue(64)
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(ErrorEvent("x", time.Now()))
		}
	}()

	received := 0
	deadline := time.After(5 * time.Second)
	for received+int(q.Dropped()) < total {
		select {
		case <-deadline:
			t.Fatalf("timeout: received %d, dropped %d", received, q.Dropped())
		default:
		}
		received += len(q.Drain())
	}
	wg.Wait()
	received += len(q.Drain())

	assert.Equal(t, total, received+int(q.Dropped()))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "sensor", KindSensor.String())
	assert.Equal(t, "status", KindConnectionStatus.String())
	assert.Equal(t, "error", KindTransportError.String())
	assert.Equal(t, "raw", KindRawUnparsed.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
