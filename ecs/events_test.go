package ecs_test

import (
	"errors"
	"testing"

	"github.com/plus3/ecsrt/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type DamageEvent struct {
	Target ecs.EntityId
	Amount int
}

func TestEventBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := ecs.NewEventBus()
	var order []string

	bus.Subscribe("tick", func(any) error { order = append(order, "a"); return nil })
	bus.Subscribe("tick", func(any) error { order = append(order, "b"); return nil })
	bus.Subscribe("other", func(any) error { order = append(order, "x"); return nil })

	require.NoError(t, bus.Publish("tick", nil))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 2, bus.SubscriberCount("tick"))
	assert.NoError(t, bus.Publish("nobody-listens", 1))
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := ecs.NewEventBus()
	calls := 0
	sub := bus.Subscribe("tick", func(any) error { calls++; return nil })
	assert.Equal(t, "tick", sub.Event())
	assert.NotEmpty(t, sub.ID())

	assert.True(t, bus.Unsubscribe(sub))
	assert.False(t, bus.Unsubscribe(sub))
	require.NoError(t, bus.Publish("tick", nil))
	assert.Equal(t, 0, calls)
}

func TestEventBusUnsubscribeDuringPublish(t *testing.T) {
	bus := ecs.NewEventBus()
	var order []string
	var second ecs.Subscription

	bus.Subscribe("tick", func(any) error {
		order = append(order, "first")
		bus.Unsubscribe(second)
		return nil
	})
	second = bus.Subscribe("tick", func(any) error { order = append(order, "second"); return nil })

	require.NoError(t, bus.Publish("tick", nil))
	require.NoError(t, bus.Publish("tick", nil))
	assert.Equal(t, []string{"first", "first"}, order)
}

func TestEventBusStopsAtFirstError(t *testing.T) {
	bus := ecs.NewEventBus()
	boom := errors.New("boom")
	reached := false

	bus.Subscribe("tick", func(any) error { return boom })
	bus.Subscribe("tick", func(any) error { reached = true; return nil })

	err := bus.Publish("tick", nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached)
}

func TestEventBusTypedEvents(t *testing.T) {
	bus := ecs.NewEventBus()
	require.NoError(t, ecs.RegisterEvent[DamageEvent](bus, "damage"))
	require.NoError(t, ecs.RegisterEvent[DamageEvent](bus, "damage"))
	assert.ErrorIs(t, ecs.RegisterEvent[int](bus, "damage"), ecs.ErrContractConflict)

	var total int
	ecs.SubscribeTyped(bus, "damage", func(ev DamageEvent) error {
		total += ev.Amount
		return nil
	})

	require.NoError(t, bus.Publish("damage", DamageEvent{Amount: 3}))
	require.NoError(t, bus.Publish("damage", DamageEvent{Amount: 4}))
	assert.ErrorIs(t, bus.Publish("damage", 5), ecs.ErrEventType)
	assert.Equal(t, 7, total)
}

func TestRuntimeEventsReachSystems(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, ecs.RegisterEvent[DamageEvent](rt.Events(), "damage"))
	target, _ := rt.Spawn(Health{Current: 10, Max: 10})

	require.NoError(t, rt.AddSystem("damage").
		SetEventHandlers(map[string]ecs.SystemEventHandler{
			"damage": func(payload any, rt *ecs.Runtime) error {
				ev := payload.(DamageEvent)
				hp, ok := ecs.Get[Health](rt, ev.Target)
				if !ok {
					return nil
				}
				hp.Current -= ev.Amount
				rt.MarkChanged(ev.Target, "Health")
				return nil
			},
		}).Build())

	require.NoError(t, rt.Publish("damage", DamageEvent{Target: target, Amount: 4}))
	hp, _ := ecs.Get[Health](rt, target)
	assert.Equal(t, 6, hp.Current)
}
