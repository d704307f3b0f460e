package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDispatcherNamedHandler(t *testing.T) {
	reg := NewRegistry()
	var got []Selection
	if err := reg.Register("preview", func(_ context.Context, sel Selection) error {
		got = append(got, sel)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("preview", func(context.Context, Selection) error { return nil }); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate Register = %v", err)
	}
	if err := reg.Register("nil", nil); !errors.Is(err, ErrNilFunc) {
		t.Errorf("Register(nil) = %v", err)
	}

	d := NewDispatcher(reg)
	sel := Selection{ID: "docs", Label: "Documents"}
	if err := d.Run(context.Background(), " preview ", sel); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]Selection{sel}, got); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}

	if err := d.Run(context.Background(), "", sel); err != nil {
		t.Errorf("empty declaration = %v", err)
	}
	if err := d.Run(context.Background(), `alert("x")`, sel); !errors.Is(err, ErrUnknownHandler) {
		t.Errorf("unknown handler without expressions = %v", err)
	}
}

func TestDispatcherExpressions(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register("open", func(context.Context, Selection) error { calls++; return nil })
	reg.Register("fail", func(context.Context, Selection) error { return errors.New("nope") })

	d := NewDispatcher(reg, WithExpressions(true))
	sel := Selection{ID: "docs", Label: "Documents", Attributes: map[string]string{"kind": "folder"}}

	if err := d.Run(context.Background(), `attrs.kind == "folder" && call("open")`, sel); err != nil {
		t.Fatalf("expression failed: %v", err)
	}
	if err := d.Run(context.Background(), `id == "other" && call("open")`, sel); err != nil {
		t.Fatalf("expression failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("open called %d times, want 1", calls)
	}

	if err := d.Run(context.Background(), `call("fail")`, sel); err == nil {
		t.Error("failing callback error was dropped")
	}
	if err := d.Run(context.Background(), `call("missing")`, sel); !errors.Is(err, ErrUnknownHandler) {
		t.Errorf("missing callback = %v", err)
	}
	if err := d.Run(context.Background(), `id ==`, sel); err == nil {
		t.Error("invalid expression compiled")
	}
}
