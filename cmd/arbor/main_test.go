package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/arbor/internal/config"
	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/tree"
)

const document = `<!DOCTYPE html>
<html><body>
<ul id="files">
  <li data-treejs-id="docs">Docs
    <ul>
      <li data-treejs-id="a">a.txt</li>
    </ul>
  </li>
  <li data-treejs-id="c">c.txt</li>
</ul>
</body></html>`

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-c", "arbor.toml", "-open", "docs, pics", "-plugins", "dialog,context-menu", "-json", "tree.html"})
	if err != nil {
		t.Fatalf("parseFlags error = %v", err)
	}
	want := options{
		ConfigPath: "arbor.toml",
		Open:       []string{"docs", "pics"},
		Plugins:    []string{"dialog", "context-menu"},
		JSON:       true,
		File:       "tree.html",
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("parseFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no file", []string{}},
		{"two files", []string{"a.html", "b.html"}},
		{"bad level", []string{"-log-level", "loud", "a.html"}},
		{"watch and browse", []string{"-w", "-b", "a.html"}},
		{"unknown flag", []string{"-frobnicate", "a.html"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args); err == nil {
				t.Error("parseFlags should fail")
			}
		})
	}
}

func newApp(t *testing.T, opts options) (*app, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	opts.File = filepath.Join(dir, "tree.html")
	if err := os.WriteFile(opts.File, []byte(document), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.FromMap("test", map[string]any{"element_id": "files"}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Plugins) > 0 {
		cfg.Plugins = plugin.Names(opts.Plugins)
	}
	var out bytes.Buffer
	return &app{opts: opts, cfg: cfg, logger: slog.New(slog.DiscardHandler), out: &out}, &out
}

func TestRenderOnce_HTML(t *testing.T) {
	a, out := newApp(t, options{Open: []string{"docs"}})
	if err := a.renderOnce(context.Background()); err != nil {
		t.Fatalf("renderOnce error = %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "<ul") || !strings.Contains(got, `id="files"`) {
		t.Errorf("output should be the list:\n%s", got)
	}
	if !strings.Contains(got, `data-treejs-id="docs"`) || !strings.Contains(got, "show") {
		t.Errorf("output should carry ids and the opened class:\n%s", got)
	}
}

func TestRenderOnce_JSON(t *testing.T) {
	a, out := newApp(t, options{JSON: true})
	if err := a.renderOnce(context.Background()); err != nil {
		t.Fatalf("renderOnce error = %v", err)
	}
	var specs []tree.NodeSpec
	if err := json.Unmarshal(out.Bytes(), &specs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	var names []string
	for _, s := range specs {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"docs", "c"}, names); diff != "" {
		t.Errorf("top-level names mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderOnce_Plugins(t *testing.T) {
	a, out := newApp(t, options{Plugins: []string{"checkbox"}})
	if err := a.renderOnce(context.Background()); err != nil {
		t.Fatalf("renderOnce error = %v", err)
	}
	if got := strings.Count(out.String(), `class="treejs-checkbox"`); got != 3 {
		t.Errorf("checkboxes = %d, want 3", got)
	}
}

func TestRenderOnce_Errors(t *testing.T) {
	a, _ := newApp(t, options{Open: []string{"missing"}})
	if err := a.renderOnce(context.Background()); err == nil {
		t.Error("opening an unknown node should fail")
	}

	a, _ = newApp(t, options{})
	a.opts.File = filepath.Join(t.TempDir(), "absent.html")
	if err := a.renderOnce(context.Background()); !os.IsNotExist(err) {
		t.Errorf("renderOnce error = %v, want not exist", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.toml")
	if err := os.WriteFile(path, []byte("element_id = \"other\"\nplugins = [\"dialog\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(options{ConfigPath: path, ElementID: "files", Plugins: []string{"checkbox"}}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ElementID != "files" {
		t.Errorf("ElementID = %q, want the flag value", cfg.ElementID)
	}
	if diff := cmp.Diff(plugin.Request(plugin.Names{"checkbox"}), cfg.Plugins); diff != "" {
		t.Errorf("Plugins mismatch (-want +got):\n%s", diff)
	}
}
