package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger records Ack/Nack/Reject calls instead of talking to
// a broker, letting handleDelivery's always-ack contract be tested
// without a live AMQP connection.
type fakeAcknowledger struct {
	mu          sync.Mutex
	acked       int
	nacked      int
	rejected    int
	lastTag     uint64
	lastMultiple bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked++
	f.lastTag, f.lastMultiple = tag, multiple
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked++
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected++
	return nil
}

type brokerTestEvent struct {
	IntegrationEvent
	Name string `json:"name"`
}

func newTestBus(t *testing.T, reg *Registry) *Bus {
	t.Helper()
	return &Bus{
		cfg:      &Config{RetryCount: 1},
		registry: reg,
		policy:   RetryPolicy{MaxAttempts: 1},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		stopCh:   make(chan struct{}),
	}
}

func newTestDelivery(t *testing.T, ack *fakeAcknowledger, routingKey string, body []byte) amqp.Delivery {
	t.Helper()
	return amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   routingKey,
		Body:         body,
		Headers:      amqp.Table{},
	}
}

// TestHandleDelivery_UnknownEventTypeAcksWithoutDispatch covers the
// consumer's "unknown routing key" edge case: the delivery is still
// acked exactly once, and no handler runs (there being none registered
// for it).
func TestHandleDelivery_UnknownEventTypeAcksWithoutDispatch(t *testing.T) {
	reg := NewRegistry()
	bus := newTestBus(t, reg)
	ack := &fakeAcknowledger{}

	bus.handleDelivery(newTestDelivery(t, ack, "NoSuchEvent", []byte(`{}`)))

	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, 0, ack.nacked)
}

// TestHandleDelivery_MalformedPayloadAcksWithoutDispatch covers the
// malformed-JSON edge case: still acked, handler never invoked.
func TestHandleDelivery_MalformedPayloadAcksWithoutDispatch(t *testing.T) {
	reg := NewRegistry()
	called := false
	RegisterSubscription[brokerTestEvent](reg, func() Handler {
		return HandlerFunc(func(context.Context, Event) error {
			called = true
			return nil
		})
	})
	bus := newTestBus(t, reg)
	ack := &fakeAcknowledger{}

	bus.handleDelivery(newTestDelivery(t, ack, "brokerTestEvent", []byte(`not-json`)))

	assert.Equal(t, 1, ack.acked)
	assert.False(t, called)
}

// TestHandleDelivery_FaultInjectionMarkerSkipsDispatch covers the
// documented chaos-testing hook: a payload containing the marker is
// acked but never reaches a handler, case-insensitively.
func TestHandleDelivery_FaultInjectionMarkerSkipsDispatch(t *testing.T) {
	reg := NewRegistry()
	called := false
	RegisterSubscription[brokerTestEvent](reg, func() Handler {
		return HandlerFunc(func(context.Context, Event) error {
			called = true
			return nil
		})
	})
	bus := newTestBus(t, reg)
	ack := &fakeAcknowledger{}

	body, err := json.Marshal(brokerTestEvent{
		IntegrationEvent: NewIntegrationEvent(),
		Name:             "THROW-FAKE-EXCEPTION please",
	})
	require.NoError(t, err)

	bus.handleDelivery(newTestDelivery(t, ack, "brokerTestEvent", body))

	assert.Equal(t, 1, ack.acked)
	assert.False(t, called)
}

// TestHandleDelivery_HandlerErrorStopsRemainingHandlersButStillAcks
// covers ordered multi-handler dispatch: the first handler's error
// must prevent the second from running, and the delivery is still
// acked exactly once (durability is the outbox's job, not the
// broker's).
func TestHandleDelivery_HandlerErrorStopsRemainingHandlersButStillAcks(t *testing.T) {
	reg := NewRegistry()
	secondCalled := false
	RegisterSubscription[brokerTestEvent](reg, func() Handler {
		return HandlerFunc(func(context.Context, Event) error {
			return assert.AnError
		})
	})
	RegisterSubscription[brokerTestEvent](reg, func() Handler {
		return HandlerFunc(func(context.Context, Event) error {
			secondCalled = true
			return nil
		})
	})
	bus := newTestBus(t, reg)
	ack := &fakeAcknowledger{}

	body, err := json.Marshal(brokerTestEvent{IntegrationEvent: NewIntegrationEvent(), Name: "x"})
	require.NoError(t, err)

	bus.handleDelivery(newTestDelivery(t, ack, "brokerTestEvent", body))

	assert.Equal(t, 1, ack.acked)
	assert.False(t, secondCalled)
}

// TestHandleDelivery_SuccessfulDispatchDecodesAndAcks covers the happy
// path: the handler receives a correctly decoded event and the
// delivery is acked.
func TestHandleDelivery_SuccessfulDispatchDecodesAndAcks(t *testing.T) {
	reg := NewRegistry()
	var received *brokerTestEvent
	RegisterSubscription[brokerTestEvent](reg, func() Handler {
		return HandlerFunc(func(_ context.Context, e Event) error {
			ev := e.(*brokerTestEvent)
			received = ev
			return nil
		})
	})
	bus := newTestBus(t, reg)
	ack := &fakeAcknowledger{}

	body, err := json.Marshal(brokerTestEvent{IntegrationEvent: NewIntegrationEvent(), Name: "widget"})
	require.NoError(t, err)

	bus.handleDelivery(newTestDelivery(t, ack, "brokerTestEvent", body))

	assert.Equal(t, 1, ack.acked)
	require.NotNil(t, received)
	assert.Equal(t, "widget", received.Name)
}

// TestHandleDelivery_PanicInHandlerIsRecoveredAndStillAcks covers the
// panic-safety net: a panicking handler must not crash the consumer
// loop, and the delivery is still acked.
func TestHandleDelivery_PanicInHandlerIsRecoveredAndStillAcks(t *testing.T) {
	reg := NewRegistry()
	RegisterSubscription[brokerTestEvent](reg, func() Handler {
		return HandlerFunc(func(context.Context, Event) error {
			panic("boom")
		})
	})
	bus := newTestBus(t, reg)
	ack := &fakeAcknowledger{}

	body, err := json.Marshal(brokerTestEvent{IntegrationEvent: NewIntegrationEvent(), Name: "x"})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		bus.handleDelivery(newTestDelivery(t, ack, "brokerTestEvent", body))
	})
	assert.Equal(t, 1, ack.acked)
}
