package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func quietBus(opts ...BusOption) *Bus {
	return NewBus(append([]BusOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)...)
}

func TestBus_OnRejectsInvalidInput(t *testing.T) {
	bus := quietBus(WithNames("open"))
	noop := HandlerFunc(func(context.Context, any) error { return nil })

	if _, err := bus.On("", noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("On(\"\") = %v, want ErrInvalidTopic", err)
	}
	if _, err := bus.On("open", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("On(nil) = %v, want ErrNilHandler", err)
	}
	if _, err := bus.On("bogus", noop); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("On(bogus) = %v, want ErrUnknownEvent", err)
	}

	bus.Declare("bogus")
	if _, err := bus.On("bogus", noop); err != nil {
		t.Errorf("On after Declare failed: %v", err)
	}
}

func TestBus_TriggerOrderAndDuplicates(t *testing.T) {
	bus := quietBus()
	var got []string

	record := func(tag string) HandlerFunc {
		return func(_ context.Context, payload any) error {
			got = append(got, tag+":"+payload.(string))
			return nil
		}
	}

	h := record("a")
	bus.On("x", h)
	bus.On("x", record("b"))
	bus.On("x", h)

	if err := bus.Trigger(context.Background(), "x", "1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	want := []string{"a:1", "b:1", "a:1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func TestBus_TriggerWithoutListeners(t *testing.T) {
	bus := quietBus()
	if err := bus.Trigger(context.Background(), "nothing", nil); err != nil {
		t.Errorf("Trigger with no listeners = %v, want nil", err)
	}
}

func TestBus_Off(t *testing.T) {
	bus := quietBus()
	calls := 0
	h := HandlerFunc(func(context.Context, any) error { calls++; return nil })

	first, _ := bus.On("x", h)
	bus.On("x", h)

	if err := bus.Off("x", first); err != nil {
		t.Fatalf("Off failed: %v", err)
	}
	if err := bus.Off("x", first); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("second Off = %v, want ErrSubscriptionNotFound", err)
	}

	bus.Trigger(context.Background(), "x", nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	bus.OffAll("x")
	bus.Trigger(context.Background(), "x", nil)
	if calls != 1 {
		t.Errorf("calls after OffAll = %d, want 1", calls)
	}
}

func TestBus_Reset(t *testing.T) {
	bus := quietBus()
	h := HandlerFunc(func(context.Context, any) error { return nil })
	bus.On("a", h)
	bus.On("b", h)

	bus.Reset()

	if n := bus.Stats().Subscriptions; n != 0 {
		t.Errorf("Subscriptions after Reset = %d, want 0", n)
	}
}

func TestBus_Once(t *testing.T) {
	bus := quietBus()
	calls := 0
	bus.Once("init", HandlerFunc(func(context.Context, any) error { calls++; return nil }))

	bus.Trigger(context.Background(), "init", nil)
	bus.Trigger(context.Background(), "init", nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := bus.Count("init"); n != 0 {
		t.Errorf("Count after once = %d, want 0", n)
	}
}

func TestBus_OnceReentrant(t *testing.T) {
	bus := quietBus()
	calls := 0
	bus.Once("x", HandlerFunc(func(ctx context.Context, _ any) error {
		calls++
		return bus.Trigger(ctx, "x", nil)
	}))

	bus.Trigger(context.Background(), "x", nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_AddDuringDispatch(t *testing.T) {
	bus := quietBus()
	late := 0
	bus.On("x", HandlerFunc(func(context.Context, any) error {
		bus.On("x", HandlerFunc(func(context.Context, any) error { late++; return nil }))
		return nil
	}))

	bus.Trigger(context.Background(), "x", nil)
	if late != 0 {
		t.Errorf("listener added during dispatch ran %d times, want 0", late)
	}

	bus.Trigger(context.Background(), "x", nil)
	if late != 1 {
		t.Errorf("late listener ran %d times on second trigger, want 1", late)
	}
}

func TestBus_RemoveDuringDispatch(t *testing.T) {
	bus := quietBus()
	var second Subscription
	ran := false

	bus.On("x", HandlerFunc(func(context.Context, any) error {
		bus.Off("x", second)
		return nil
	}))
	second, _ = bus.On("x", HandlerFunc(func(context.Context, any) error { ran = true; return nil }))

	bus.Trigger(context.Background(), "x", nil)
	if ran {
		t.Error("listener removed during dispatch was invoked")
	}
}

func TestBus_ErrorIsolation(t *testing.T) {
	bus := quietBus()
	boom := errors.New("boom")
	after := false

	bus.On("x", HandlerFunc(func(context.Context, any) error { return boom }))
	bus.On("x", HandlerFunc(func(context.Context, any) error { panic("kaboom") }))
	bus.On("x", HandlerFunc(func(context.Context, any) error { after = true; return nil }))

	err := bus.Trigger(context.Background(), "x", nil)
	if !after {
		t.Error("listener after failing ones was not invoked")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Trigger error %v does not wrap handler error", err)
	}
	if !errors.Is(err, ErrHandlerPanic) {
		t.Errorf("Trigger error %v does not report the panic", err)
	}

	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Name != "x" {
		t.Errorf("expected HandlerError for event x, got %v", err)
	}

	stats := bus.Stats()
	if stats.HandlerErrors != 1 || stats.HandlerPanics != 1 || stats.HandlersExecuted != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestBus_FilterAndPause(t *testing.T) {
	bus := quietBus()
	var got []int

	sub, _ := bus.On("n", HandlerFunc(func(_ context.Context, p any) error {
		got = append(got, p.(int))
		return nil
	}), WithFilter(func(p any) bool { return p.(int)%2 == 0 }))

	for i := range 4 {
		bus.Trigger(context.Background(), "n", i)
	}
	sub.Pause()
	bus.Trigger(context.Background(), "n", 10)
	sub.Resume()
	bus.Trigger(context.Background(), "n", 12)

	if diff := cmp.Diff([]int{0, 2, 12}, got); diff != "" {
		t.Errorf("filtered payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestBus_Concurrent(t *testing.T) {
	bus := quietBus()
	var mu sync.Mutex
	count := 0
	bus.On("x", HandlerFunc(func(context.Context, any) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Trigger(context.Background(), "x", nil)
			bus.On("y", HandlerFunc(func(context.Context, any) error { return nil }))
		}()
	}
	wg.Wait()

	if count != 20 {
		t.Errorf("count = %d, want 20", count)
	}
}

type openEvent struct {
	ID string
}

func TestTypedKey(t *testing.T) {
	bus := quietBus()
	opened := NewKey[openEvent]("open")
	var ids []string

	_, err := On(bus, opened, func(_ context.Context, e openEvent) error {
		ids = append(ids, e.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("On failed: %v", err)
	}

	Trigger(context.Background(), bus, opened, openEvent{ID: "a"})
	bus.Trigger(context.Background(), "open", "not an openEvent")
	Trigger(context.Background(), bus, opened, openEvent{ID: "b"})

	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("typed dispatch mismatch (-want +got):\n%s", diff)
	}
}

func TestTypedOnce(t *testing.T) {
	bus := quietBus()
	k := NewKey[int]("tick")
	total := 0
	Once(bus, k, func(_ context.Context, n int) error { total += n; return nil })

	Trigger(context.Background(), bus, k, 3)
	Trigger(context.Background(), bus, k, 4)

	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}
