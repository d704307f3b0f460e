package watch

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(WithDelay(20*time.Millisecond), WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestAddRemove(t *testing.T) {
	w := newWatcher(t)
	path := filepath.Join(t.TempDir(), "tree.html")

	if err := w.Add(path); err != nil {
		t.Fatalf("Add error = %v", err)
	}
	if err := w.Add(path); !errors.Is(err, ErrAlreadyWatching) {
		t.Errorf("Add again error = %v, want ErrAlreadyWatching", err)
	}
	if got := w.Files(); len(got) != 1 {
		t.Errorf("Files() = %v, want one file", got)
	}
	if err := w.Remove(path); err != nil {
		t.Fatalf("Remove error = %v", err)
	}
	if err := w.Remove(path); !errors.Is(err, ErrNotWatching) {
		t.Errorf("Remove again error = %v, want ErrNotWatching", err)
	}
}

func TestAdd_MissingDirectory(t *testing.T) {
	w := newWatcher(t)
	if err := w.Add(filepath.Join(t.TempDir(), "missing", "tree.html")); err == nil {
		t.Error("Add should fail when the directory does not exist")
	}
}

func TestEvents_Debounced(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.html")
	if err := os.WriteFile(path, []byte("<ul></ul>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(path); err != nil {
		t.Fatal(err)
	}

	for i := range 3 {
		body := []byte("<ul><li>" + string(rune('a'+i)) + "</li></ul>")
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ev := waitEvent(t, w)
	want, _ := filepath.Abs(path)
	if ev.Path != want {
		t.Errorf("Path = %q, want %q", ev.Path, want)
	}
	if !ev.Op.Has(OpWrite) {
		t.Errorf("Op = %v, want WRITE", ev.Op)
	}

	select {
	case extra := <-w.Events():
		t.Errorf("unexpected second event %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEvents_IgnoresSiblings(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.html")
	if err := w.Add(path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("<ul></ul>"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, w)
	if filepath.Base(ev.Path) != "tree.html" {
		t.Errorf("Path = %q, want tree.html", ev.Path)
	}
	if !ev.Op.Has(OpCreate) {
		t.Errorf("Op = %v, want CREATE", ev.Op)
	}
}

func TestEvents_RenameOver(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.html")
	if err := os.WriteFile(path, []byte("<ul></ul>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(path); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(dir, "tree.html.tmp")
	if err := os.WriteFile(tmp, []byte("<ul><li>x</li></ul>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, w)
	if !ev.Op.Has(OpCreate) {
		t.Errorf("Op = %v, want CREATE", ev.Op)
	}
}

func TestClose(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events channel should be closed")
	}
	if err := w.Add("tree.html"); !errors.Is(err, ErrClosed) {
		t.Errorf("Add after Close error = %v, want ErrClosed", err)
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpWrite, "WRITE"},
		{OpCreate | OpWrite, "CREATE|WRITE"},
		{0, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
