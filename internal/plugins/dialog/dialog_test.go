package dialog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/tree"
)

const markup = `<ul><li>Docs<ul><li>a.txt</li></ul></li></ul>`

func newTree(t *testing.T, settings plugin.Settings) *Dialog {
	t.Helper()
	tr, err := tree.Parse(strings.NewReader(markup), "",
		tree.WithLogger(slog.New(slog.DiscardHandler)),
		tree.WithPlugins(plugin.Items{{Name: Name, Options: settings}}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown() })
	d, err := plugin.As[*Dialog](tr.Plugins(), Name)
	if err != nil {
		t.Fatalf("As failed: %v", err)
	}
	return d
}

func TestConfirm_Default(t *testing.T) {
	tests := []struct {
		name     string
		settings plugin.Settings
		want     bool
	}{
		{"unset", nil, true},
		{"false", plugin.Settings{"default": false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTree(t, tt.settings)
			if !d.Ready() {
				t.Fatal("dialog not ready after initialize")
			}
			got, err := d.Confirm(context.Background(), "remove?")
			if err != nil {
				t.Fatalf("Confirm failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfirm_Confirmer(t *testing.T) {
	var asked string
	d := newTree(t, plugin.Settings{
		"title": "Files",
		"confirmer": ConfirmFunc(func(_ context.Context, msg string) (bool, error) {
			asked = msg
			return false, nil
		}),
	})

	got, err := d.Confirm(context.Background(), "remove a.txt?")
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if got {
		t.Error("Confirm = true, want the confirmer's answer")
	}
	if asked != "Files: remove a.txt?" {
		t.Errorf("asked %q", asked)
	}
}

func TestConfirm_ConfirmerError(t *testing.T) {
	boom := errors.New("boom")
	d := newTree(t, plugin.Settings{
		"confirmer": func(context.Context, string) (bool, error) { return true, boom },
	})
	if _, err := d.Confirm(context.Background(), "?"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestNew_BadConfirmer(t *testing.T) {
	_, err := tree.Parse(strings.NewReader(markup), "",
		tree.WithLogger(slog.New(slog.DiscardHandler)),
		tree.WithPlugins(plugin.Items{{Name: Name, Options: plugin.Settings{"confirmer": 42}}}))
	var le *plugin.LoadError
	if !errors.As(err, &le) || le.Plugin != Name {
		t.Errorf("err = %v, want a load error for %q", err, Name)
	}
}

func TestReady_LoadedAfterInitialize(t *testing.T) {
	tr, err := tree.Parse(strings.NewReader(markup), "", tree.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown() })
	if !tr.IsInitialized() {
		t.Fatal("tree not initialized after Parse")
	}

	d, err := plugin.As[*Dialog](tr.Plugins(), Name)
	if err != nil {
		t.Fatalf("As failed: %v", err)
	}
	if !d.Ready() {
		t.Error("dialog loaded after initialize is not ready")
	}
	if ok, err := d.Confirm(context.Background(), "remove?"); err != nil || !ok {
		t.Errorf("Confirm = %v, %v; want true", ok, err)
	}
}
