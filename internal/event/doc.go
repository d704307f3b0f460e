// Package event provides the synchronous publish/subscribe bus that tree
// components and plugins use to coordinate.
//
// A Bus keeps, per event name, an ordered list of subscriptions. Trigger
// invokes the listeners registered for a name in registration order, on the
// caller's goroutine, and returns once every listener has run.
//
// # Event Names
//
// A bus can be constructed with a closed set of event names:
//
//	bus := event.NewBus(event.WithNames("open", "close", "select"))
//
// On rejects names outside the set with ErrUnknownEvent. Components that
// publish their own events add them with Declare before subscribing.
//
// # Typed Keys
//
// Key binds an event name to a payload type so that subscriptions and
// triggers are checked at compile time:
//
//	var Opened = event.NewKey[NodeEvent]("open")
//
//	sub, err := event.On(bus, Opened, func(ctx context.Context, e NodeEvent) error {
//		log.Println("opened", e.ID)
//		return nil
//	})
//
// # Error Isolation
//
// A listener that returns an error or panics does not stop the dispatch. The
// failure is logged, counted in Stats, and returned from Trigger joined with
// the other listener failures.
//
// # Removal
//
// Go functions are not comparable, so listeners are removed through the
// Subscription returned by On:
//
//	bus.Off("open", sub)   // one listener
//	bus.OffAll("open")     // every listener for the name
//	bus.Reset()            // every listener
//
// A subscription removed while a dispatch is in progress is not invoked for
// the remainder of that dispatch. A subscription added during a dispatch only
// sees later triggers.
package event
