package eventbus

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCreatedEvent struct {
	IntegrationEvent
	OrderID string `json:"orderId"`
}

type orderCancelledEvent struct {
	IntegrationEvent
	OrderID string `json:"orderId"`
}

func TestRegisterSubscription_RecordsShortNameAndHandler(t *testing.T) {
	reg := NewRegistry()
	called := false
	RegisterSubscription[orderCreatedEvent](reg, func() Handler {
		return HandlerFunc(func(ctx context.Context, event Event) error {
			called = true
			return nil
		})
	})

	typ, ok := reg.EventType("orderCreatedEvent")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(orderCreatedEvent{}), typ)

	handlers := reg.HandlersFor(typ)
	require.Len(t, handlers, 1)

	require.NoError(t, handlers[0]().Handle(context.Background(), orderCreatedEvent{}))
	assert.True(t, called)
}

func TestRegisterSubscription_StacksDistinctHandlers(t *testing.T) {
	reg := NewRegistry()
	var order []int
	RegisterSubscription[orderCreatedEvent](reg, func() Handler {
		return HandlerFunc(func(ctx context.Context, event Event) error {
			order = append(order, 1)
			return nil
		})
	})
	RegisterSubscription[orderCreatedEvent](reg, func() Handler {
		return HandlerFunc(func(ctx context.Context, event Event) error {
			order = append(order, 2)
			return nil
		})
	})

	typ, _ := reg.EventType("orderCreatedEvent")
	handlers := reg.HandlersFor(typ)
	require.Len(t, handlers, 2)

	for _, factory := range handlers {
		require.NoError(t, factory().Handle(context.Background(), orderCreatedEvent{}))
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestEventType_UnknownNameNotFound(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.EventType("doesNotExist")
	assert.False(t, ok)
}

func TestShortTypeName_ResolvesThroughPointer(t *testing.T) {
	assert.Equal(t, "orderCancelledEvent", ShortTypeName(reflect.TypeOf(orderCancelledEvent{})))
	assert.Equal(t, "orderCancelledEvent", ShortTypeName(reflect.TypeOf(&orderCancelledEvent{})))
}

func TestEventTypeName(t *testing.T) {
	assert.Equal(t, "orderCreatedEvent", EventTypeName(orderCreatedEvent{}))
}
