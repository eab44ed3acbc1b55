package ecs

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// EventHandler receives the payload of a published event.
type EventHandler func(payload any) error

// Subscription identifies one handler registered on an EventBus.
type Subscription struct {
	id    string
	event string
}

// ID returns the unique id of the subscription.
func (s Subscription) ID() string { return s.id }

// Event returns the event name the subscription listens to.
func (s Subscription) Event() string { return s.event }

type subscriber struct {
	id      string
	handler EventHandler
	active  bool
}

// EventBus maps event names to ordered subscriber lists. Publishing is
// synchronous and follows subscription order.
type EventBus struct {
	subscribers map[string][]*subscriber
	types       map[string]reflect.Type
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]*subscriber),
		types:       make(map[string]reflect.Type),
	}
}

// RegisterEvent declares that payloads published under name have type T.
// Declaring the same name with a different type fails.
func RegisterEvent[T any](b *EventBus, name string) error {
	return b.declare(name, reflect.TypeFor[T]())
}

func (b *EventBus) declare(name string, typ reflect.Type) error {
	if existing, ok := b.types[name]; ok && existing != typ {
		return fmt.Errorf("%w: event %q is %s, not %s", ErrContractConflict, name, existing, typ)
	}
	b.types[name] = typ
	return nil
}

// EventType returns the declared payload type of an event.
func (b *EventBus) EventType(name string) (reflect.Type, bool) {
	typ, ok := b.types[name]
	return typ, ok
}

// Subscribe appends handler to the subscribers of name.
func (b *EventBus) Subscribe(name string, handler EventHandler) Subscription {
	sub := &subscriber{id: uuid.NewString(), handler: handler, active: true}
	b.subscribers[name] = append(b.subscribers[name], sub)
	return Subscription{id: sub.id, event: name}
}

// SubscribeTyped subscribes a handler that receives the payload as T.
// Payloads of another type are ignored.
func SubscribeTyped[T any](b *EventBus, name string, handler func(T) error) Subscription {
	return b.Subscribe(name, func(payload any) error {
		value, ok := payload.(T)
		if !ok {
			return nil
		}
		return handler(value)
	})
}

// Unsubscribe removes a subscription. It reports whether it was active.
func (b *EventBus) Unsubscribe(sub Subscription) bool {
	subs := b.subscribers[sub.event]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		s.active = false
		next := make([]*subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subscribers, sub.event)
		} else {
			b.subscribers[sub.event] = next
		}
		return true
	}
	return false
}

// Publish delivers payload to the subscribers of name in subscription order.
// Delivery stops at the first handler error, which is returned.
func (b *EventBus) Publish(name string, payload any) error {
	if typ, ok := b.types[name]; ok && reflect.TypeOf(payload) != typ {
		return fmt.Errorf("%w: event %q expects %s, got %T", ErrEventType, name, typ, payload)
	}
	for _, sub := range b.subscribers[name] {
		if !sub.active {
			continue
		}
		if err := sub.handler(payload); err != nil {
			return fmt.Errorf("event %q: %w", name, err)
		}
	}
	return nil
}

// SubscriberCount returns the number of active subscribers of name.
func (b *EventBus) SubscriberCount(name string) int {
	return len(b.subscribers[name])
}
