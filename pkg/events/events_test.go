package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/logger"
)

func TestLocalBusDelivers(t *testing.T) {
	bus := NewLocalBus(logger.NewNop(), 10)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	received := make(chan Event, 2)
	bus.Subscribe(func(_ context.Context, ev Event) { received <- ev })
	bus.Subscribe(func(_ context.Context, ev Event) { received <- ev })

	ev := New(TypeJoinResult, "-1", map[string]any{"success": true})
	require.NoError(t, bus.Publish(context.Background(), ev))

	for i := 0; i < 2; i++ {
		select {
		case got := <-received:
			assert.Equal(t, ev.ID, got.ID)
			assert.Equal(t, TypeJoinResult, got.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	assert.Eventually(t, func() bool {
		return bus.GetMetrics()["delivered"] == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), bus.GetMetrics()["published"])
}

func TestUnsubscribe(t *testing.T) {
	bus := NewLocalBus(logger.NewNop(), 10)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	received := make(chan Event, 1)
	cancel := bus.Subscribe(func(_ context.Context, ev Event) { received <- ev })
	cancel()

	require.NoError(t, bus.Publish(context.Background(), New(TypeWorkflowReady, "-1", nil)))
	select {
	case <-received:
		t.Fatal("unsubscribed handler called")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerPanicDoesNotStopBus(t *testing.T) {
	bus := NewLocalBus(logger.NewNop(), 10)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	received := make(chan Event, 2)
	bus.Subscribe(func(_ context.Context, ev Event) {
		if ev.Type == TypeWorkflowFailed {
			panic("boom")
		}
		received <- ev
	})

	require.NoError(t, bus.Publish(context.Background(), New(TypeWorkflowFailed, "-1", nil)))
	require.NoError(t, bus.Publish(context.Background(), New(TypeWorkflowReady, "-1", nil)))

	select {
	case ev := <-received:
		assert.Equal(t, TypeWorkflowReady, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("bus stalled after panic")
	}
	assert.Eventually(t, func() bool { return bus.GetMetrics()["errors"] == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublishAfterStop(t *testing.T) {
	bus := NewLocalBus(logger.NewNop(), 1)
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())

	err := bus.Publish(context.Background(), New(TypeWorkflowReady, "", nil))
	assert.Error(t, err)
}

func TestNewBusUnknownBackend(t *testing.T) {
	_, err := NewBus(logger.NewNop(), &Config{Backend: "kafka"})
	assert.Error(t, err)
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("TGBRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("TGBRIDGE_TEST_REDIS not set")
	}

	bus, err := NewRedisBus(logger.NewNop(), &RedisBusConfig{Addr: addr, Prefix: "tgbridge:test:events:"})
	require.NoError(t, err)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	received := make(chan Event, 1)
	bus.Subscribe(func(_ context.Context, ev Event) { received <- ev })

	// Give the subscription a moment to register on the server.
	time.Sleep(100 * time.Millisecond)
	ev := New(TypeJoinResult, "-1", nil)
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case got := <-received:
		assert.Equal(t, ev.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered through redis")
	}
}

func TestAMQPBus(t *testing.T) {
	url := os.Getenv("TGBRIDGE_TEST_AMQP")
	if url == "" {
		t.Skip("TGBRIDGE_TEST_AMQP not set")
	}

	bus, err := NewAMQPBus(logger.NewNop(), &AMQPBusConfig{URL: url, Exchange: "tgbridge.test"})
	require.NoError(t, err)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	received := make(chan Event, 1)
	bus.Subscribe(func(_ context.Context, ev Event) { received <- ev })
	require.NoError(t, bus.Publish(context.Background(), New(TypeWorkflowReady, "-1", nil)))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered locally")
	}
}
