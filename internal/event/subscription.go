package event

import (
	"context"
	"sync/atomic"
)

// Name identifies an event on a bus.
type Name string

// Handler processes one triggered event.
type Handler interface {
	Handle(ctx context.Context, payload any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload any) error

// Handle calls f(ctx, payload).
func (f HandlerFunc) Handle(ctx context.Context, payload any) error {
	return f(ctx, payload)
}

// FilterFunc reports whether a payload should be delivered to a subscription.
type FilterFunc func(payload any) bool

// SubscriptionState represents the state of a subscription.
type SubscriptionState int32

const (
	// SubscriptionStateActive means the subscription is receiving events.
	SubscriptionStateActive SubscriptionState = iota

	// SubscriptionStatePaused means the subscription is temporarily not receiving events.
	SubscriptionStatePaused

	// SubscriptionStateCancelled means the subscription has been permanently cancelled.
	SubscriptionStateCancelled
)

// String returns a human-readable state name.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStatePaused:
		return "paused"
	case SubscriptionStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Subscription is a listener registration returned by On and Once.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Name returns the subscribed event name.
	Name() Name

	// State returns the current subscription state.
	State() SubscriptionState

	// IsActive returns true if the subscription can receive events.
	IsActive() bool

	// Pause temporarily stops event delivery to this subscription.
	Pause()

	// Resume restarts event delivery after a pause.
	Resume()

	// Cancel permanently stops delivery. The bus drops cancelled
	// subscriptions on the next trigger.
	Cancel()
}

// SubscriptionConfig contains configuration for a subscription.
type SubscriptionConfig struct {
	// Filter is an optional predicate; events are delivered only if it returns true.
	Filter FilterFunc

	// Once cancels the subscription before its first delivery.
	Once bool
}

// SubscriptionOption is a function that configures a subscription.
type SubscriptionOption func(*SubscriptionConfig)

// WithFilter sets a filter predicate.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Filter = f
	}
}

// WithOnce sets the subscription to cancel itself on the first event.
func WithOnce() SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Once = true
	}
}

// subscription is the internal implementation of Subscription.
type subscription struct {
	id      string
	name    Name
	handler Handler
	config  SubscriptionConfig
	state   atomic.Int32
}

func newSubscription(id string, name Name, h Handler, opts ...SubscriptionOption) *subscription {
	var config SubscriptionConfig
	for _, opt := range opts {
		opt(&config)
	}
	s := &subscription{
		id:      id,
		name:    name,
		handler: h,
		config:  config,
	}
	s.state.Store(int32(SubscriptionStateActive))
	return s
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Name() Name { return s.name }

func (s *subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *subscription) IsActive() bool {
	return s.State() == SubscriptionStateActive
}

func (s *subscription) Pause() {
	s.state.CompareAndSwap(int32(SubscriptionStateActive), int32(SubscriptionStatePaused))
}

func (s *subscription) Resume() {
	s.state.CompareAndSwap(int32(SubscriptionStatePaused), int32(SubscriptionStateActive))
}

func (s *subscription) Cancel() {
	s.state.Store(int32(SubscriptionStateCancelled))
}

// claim reports whether the subscription should receive the payload. For
// one-shot subscriptions only the first caller wins.
func (s *subscription) claim(payload any) bool {
	if s.config.Filter != nil && !s.config.Filter(payload) {
		return false
	}
	if s.config.Once {
		return s.state.CompareAndSwap(int32(SubscriptionStateActive), int32(SubscriptionStateCancelled))
	}
	return s.IsActive()
}
