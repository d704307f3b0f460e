package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Stats holds bus counters.
type Stats struct {
	EventsTriggered  uint64
	HandlersExecuted uint64
	HandlerErrors    uint64
	HandlerPanics    uint64
	Subscriptions    int
}

// Bus is a synchronous event bus. The zero value is not usable; call NewBus.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Name][]*subscription
	names     map[Name]struct{}
	logger    *slog.Logger

	eventsTriggered  atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		listeners: make(map[Name][]*subscription),
		logger:    config.logger,
	}
	if len(config.names) > 0 {
		b.names = make(map[Name]struct{}, len(config.names))
		for _, n := range config.names {
			b.names[n] = struct{}{}
		}
	}
	return b
}

// Declare adds names to a closed bus schema. It has no effect on a bus
// constructed without WithNames.
func (b *Bus) Declare(names ...Name) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.names == nil {
		return
	}
	for _, n := range names {
		b.names[n] = struct{}{}
	}
}

// Known reports whether the bus accepts subscriptions for name.
func (b *Bus) Known(name Name) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.knownLocked(name)
}

func (b *Bus) knownLocked(name Name) bool {
	if b.names == nil {
		return true
	}
	_, ok := b.names[name]
	return ok
}

// On appends a listener for name. The same handler may be registered more
// than once; each registration is invoked.
func (b *Bus) On(name Name, h Handler, opts ...SubscriptionOption) (Subscription, error) {
	if name == "" {
		return nil, ErrInvalidTopic
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.knownLocked(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	sub := newSubscription(uuid.NewString(), name, h, opts...)
	b.listeners[name] = append(b.listeners[name], sub)
	return sub, nil
}

// OnFunc is On for a plain function.
func (b *Bus) OnFunc(name Name, fn HandlerFunc, opts ...SubscriptionOption) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.On(name, fn, opts...)
}

// Once registers a listener that runs at most one time.
func (b *Bus) Once(name Name, h Handler, opts ...SubscriptionOption) (Subscription, error) {
	return b.On(name, h, append(opts, WithOnce())...)
}

// Off removes sub from the listeners of name.
func (b *Bus) Off(name Name, sub Subscription) error {
	if sub == nil {
		return ErrSubscriptionNotFound
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[name]
	for i, s := range list {
		if s.id == sub.ID() {
			s.Cancel()
			b.listeners[name] = slices.Delete(slices.Clone(list), i, i+1)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// OffAll removes every listener for name.
func (b *Bus) OffAll(name Name) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.listeners[name] {
		s.Cancel()
	}
	delete(b.listeners, name)
}

// Reset removes every listener for every name.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range b.listeners {
		for _, s := range list {
			s.Cancel()
		}
	}
	b.listeners = make(map[Name][]*subscription)
}

// Count returns the number of listeners registered for name.
func (b *Bus) Count(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Trigger invokes every listener of name, in registration order, with
// payload. Listener failures do not stop the dispatch; they are logged and
// returned joined together.
func (b *Bus) Trigger(ctx context.Context, name Name, payload any) error {
	b.eventsTriggered.Add(1)

	b.mu.RLock()
	snapshot := b.listeners[name]
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	var errs []error
	pruned := false
	for _, sub := range snapshot {
		if !sub.claim(payload) {
			if sub.State() == SubscriptionStateCancelled {
				pruned = true
			}
			continue
		}
		if sub.config.Once {
			pruned = true
		}
		if err := b.invoke(ctx, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if pruned {
		b.prune(name)
	}
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, payload any) (err error) {
	b.handlersExecuted.Add(1)

	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			err = &PanicError{
				SubscriptionID: sub.id,
				Name:           sub.name,
				Value:          r,
				Stack:          string(debug.Stack()),
			}
			b.logger.Error("event listener panicked",
				"event", string(sub.name), "subscription", sub.id, "panic", r)
		}
	}()

	if herr := sub.handler.Handle(ctx, payload); herr != nil {
		b.handlerErrors.Add(1)
		b.logger.Warn("event listener failed",
			"event", string(sub.name), "subscription", sub.id, "error", herr)
		return &HandlerError{SubscriptionID: sub.id, Name: sub.name, Err: herr}
	}
	return nil
}

// prune drops cancelled subscriptions for name.
func (b *Bus) prune(name Name) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[name]
	kept := make([]*subscription, 0, len(list))
	for _, s := range list {
		if s.State() != SubscriptionStateCancelled {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.listeners, name)
		return
	}
	b.listeners[name] = kept
}

// Stats returns the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	count := 0
	for _, list := range b.listeners {
		count += len(list)
	}
	b.mu.RUnlock()

	return Stats{
		EventsTriggered:  b.eventsTriggered.Load(),
		HandlersExecuted: b.handlersExecuted.Load(),
		HandlerErrors:    b.handlerErrors.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
		Subscriptions:    count,
	}
}
