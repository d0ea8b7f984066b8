package eventbus

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"catalog-service/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_SubscribePublish(t *testing.T) {
	bus := NewEventBus(nil)
	var called bool
	bus.Subscribe("test", func(ctx context.Context, event Event) error {
		called = true
		assert.Equal(t, "test", event.Type())
		assert.Equal(t, "v", event.Data()["k"])
		return nil
	})
	err := bus.Publish(context.Background(), NewBasicEvent("test", "unit", map[string]interface{}{"k": "v"}))
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestEventBus_NoHandlers(t *testing.T) {
	bus := NewEventBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), NewBasicEvent("nobody", "unit", nil)))
}

func TestEventBus_AsyncPublish(t *testing.T) {
	bus := NewEventBusWithConfig(nil, BusConfig{AsyncProcessing: true})
	ch := make(chan struct{}, 1)
	bus.Subscribe("async", func(ctx context.Context, event Event) error {
		ch <- struct{}{}
		return nil
	})
	require.NoError(t, bus.Publish(context.Background(), NewBasicEvent("async", "unit", nil)))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestEventBus_RetriesThenFails(t *testing.T) {
	bus := NewEventBusWithConfig(nil, BusConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	var attempts int32
	bus.Subscribe("flaky", func(ctx context.Context, event Event) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("still broken")
	})
	err := bus.Publish(context.Background(), NewBasicEvent("flaky", "unit", nil))
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestEventBus_PublishAndForgetSurvivesCancelledContext(t *testing.T) {
	bus := NewEventBus(nil)
	done := make(chan struct{})
	bus.Subscribe("detached", func(ctx context.Context, event Event) error {
		assert.NoError(t, ctx.Err())
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.PublishAndForget(ctx, NewBasicEvent("detached", "unit", nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Subscribe("ev", func(ctx context.Context, event Event) error { return nil })
	assert.Equal(t, 1, bus.GetSubscriberCount("ev"))
	bus.Unsubscribe("ev")
	assert.Equal(t, 0, bus.GetSubscriberCount("ev"))
}

func TestRegisterAuditLog(t *testing.T) {
	var buf bytes.Buffer
	bus := NewEventBus(nil)
	RegisterAuditLog(bus, logger.NewLoggerWithConfig("info", "json", &buf))

	err := bus.Publish(context.Background(), NewBasicEvent(EventTypeItemCreated, "catalog", map[string]interface{}{"item_id": "abc"}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"event":"item.created"`)
	assert.Contains(t, buf.String(), `"item_id":"abc"`)
}
