package event

import "context"

// Key binds an event name to its payload type.
type Key[P any] struct {
	name Name
}

// NewKey returns a typed key for name.
func NewKey[P any](name Name) Key[P] {
	return Key[P]{name: name}
}

// Name returns the event name.
func (k Key[P]) Name() Name {
	return k.name
}

// TypedHandlerFunc handles a payload of a known type.
type TypedHandlerFunc[P any] func(ctx context.Context, payload P) error

// AsHandler wraps a typed handler. Payloads of another type are skipped.
func AsHandler[P any](fn TypedHandlerFunc[P]) Handler {
	return HandlerFunc(func(ctx context.Context, payload any) error {
		p, ok := payload.(P)
		if !ok {
			return nil
		}
		return fn(ctx, p)
	})
}

// On subscribes a typed handler to the key's event.
func On[P any](b *Bus, k Key[P], fn TypedHandlerFunc[P], opts ...SubscriptionOption) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.On(k.name, AsHandler(fn), opts...)
}

// Once subscribes a typed handler that runs at most one time.
func Once[P any](b *Bus, k Key[P], fn TypedHandlerFunc[P], opts ...SubscriptionOption) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Once(k.name, AsHandler(fn), opts...)
}

// Trigger dispatches a typed payload.
func Trigger[P any](ctx context.Context, b *Bus, k Key[P], payload P) error {
	return b.Trigger(ctx, k.name, payload)
}
