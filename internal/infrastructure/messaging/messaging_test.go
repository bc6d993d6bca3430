package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventCompanionFed, func(shared.Event) error {
		typed++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewCompanionEvent(shared.EventCompanionFed, "u1", "CAT", 1, 15, 0, 0)))
	require.NoError(t, bus.Publish(shared.NewProfileRegisteredEvent("u1", "STUDENT")))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(3), snap.TotalHandlerExecs)
	assert.Equal(t, int64(2), snap.HandlerFailures)
}

func TestInMemoryEventBus_AsyncCloseWaits(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		n.Add(1)
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewProfileRegisteredEvent("u", "STUDENT")))
	}

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(5), n.Load())
	assert.ErrorIs(t, bus.Publish(shared.NewProfileRegisteredEvent("u", "STUDENT")), ErrEventBusClosed)
}

func TestInMemoryEventBus_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	assert.NotPanics(t, func() {
		_ = bus.Publish(shared.NewProfileRegisteredEvent("u", "MENTOR"))
	})
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)
}

func TestLocalBroker_FanOut(t *testing.T) {
	b := NewLocalBroker(4, nil)
	ctx := context.Background()

	l1, err := b.Listen(ctx, "a_b")
	require.NoError(t, err)
	l2, err := b.Listen(ctx, "a_b")
	require.NoError(t, err)
	other, err := b.Listen(ctx, "a_c")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, chat.Message{ID: "m1", ConversationID: "a_b", Seq: 1}))

	assert.Equal(t, "m1", (<-l1.C()).ID)
	assert.Equal(t, "m1", (<-l2.C()).ID)
	select {
	case m := <-other.C():
		t.Fatalf("unexpected message %v", m)
	default:
	}

	require.NoError(t, l1.Close())
	require.NoError(t, l1.Close())
	assert.Equal(t, 1, b.ListenerCount("a_b"))
	_, open := <-l1.C()
	assert.False(t, open)
}

func TestLocalBroker_ContextCancelDetaches(t *testing.T) {
	b := NewLocalBroker(1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	l, err := b.Listen(ctx, "a_b")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool { return b.ListenerCount("a_b") == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-l.C()
	assert.False(t, open)
}

func TestLocalBroker_SlowListenerIsDropped(t *testing.T) {
	b := NewLocalBroker(1, nil)
	ctx := context.Background()

	l, err := b.Listen(ctx, "a_b")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, chat.Message{ID: "m1", ConversationID: "a_b"}))
	require.NoError(t, b.Publish(ctx, chat.Message{ID: "m2", ConversationID: "a_b"}))

	assert.Equal(t, "m1", (<-l.C()).ID)
	_, open := <-l.C()
	assert.False(t, open)
}

func TestLocalBroker_Closed(t *testing.T) {
	b := NewLocalBroker(0, nil)
	l, err := b.Listen(context.Background(), "a_b")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, open := <-l.C()
	assert.False(t, open)

	_, err = b.Listen(context.Background(), "a_b")
	assert.ErrorIs(t, err, ErrBrokerClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), chat.Message{}), ErrBrokerClosed)
}
