package tree

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/dshills/arbor/internal/dom"
	"github.com/dshills/arbor/internal/event"
	"github.com/dshills/arbor/internal/handler"
	"github.com/dshills/arbor/internal/identity"
	"github.com/dshills/arbor/internal/plugin"
)

const sample = `<!DOCTYPE html>
<html><body>
<ul id="files">
  <li>Documents
    <ul>
      <li>Report.pdf</li>
      <li data-treejs-id="notes">Notes.txt</li>
    </ul>
  </li>
  <li data-treejs-open>Photos
    <ul><li>Beach.jpg</li></ul>
  </li>
  <li>README.md</li>
</ul>
</body></html>`

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestTree(t *testing.T, markup string, opts ...Option) *Tree {
	t.Helper()
	tr, err := Parse(strings.NewReader(markup), "", append([]Option{WithLogger(quiet())}, opts...)...)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown() })
	return tr
}

type recorder[P any] struct {
	mu  sync.Mutex
	got []P
}

func record[P any](t *testing.T, tr *Tree, k event.Key[P]) *recorder[P] {
	t.Helper()
	r := &recorder[P]{}
	_, err := event.On(tr.Events(), k, func(_ context.Context, p P) error {
		r.mu.Lock()
		r.got = append(r.got, p)
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("On(%s) failed: %v", k.Name(), err)
	}
	return r
}

func (r *recorder[P]) events() []P {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]P(nil), r.got...)
}

func nodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestNew_AssignsIDs(t *testing.T) {
	tr := newTestTree(t, sample)

	want := []string{"documents", "report_pdf", "notes", "photos", "beach_jpg", "readme_md"}
	if diff := cmp.Diff(want, nodeIDs(tr.Nodes())); diff != "" {
		t.Errorf("node ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"documents", "photos", "readme_md"}, tr.Roots()); diff != "" {
		t.Errorf("Roots mismatch (-want +got):\n%s", diff)
	}

	n, err := tr.Node("report_pdf")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	if n.Label != "Report.pdf" || n.Depth != 1 || n.Parent {
		t.Errorf("Node(report_pdf) = %+v", n)
	}
}

func TestNew_RejectsNonList(t *testing.T) {
	doc := `<html><body><div id="files"></div></body></html>`
	_, err := Parse(strings.NewReader(doc), "files", WithLogger(quiet()))
	if !errors.Is(err, ErrNotList) {
		t.Errorf("Parse = %v, want ErrNotList", err)
	}

	_, err = Parse(strings.NewReader(doc), "missing", WithLogger(quiet()))
	if !errors.Is(err, dom.ErrNotFound) {
		t.Errorf("Parse = %v, want dom.ErrNotFound", err)
	}
}

func TestNew_DuplicateExplicitID(t *testing.T) {
	doc := `<ul><li data-treejs-id="a">One</li><li data-treejs-id="a">Two</li></ul>`
	_, err := Parse(strings.NewReader(doc), "", WithLogger(quiet()))
	if !errors.Is(err, identity.ErrDuplicateID) {
		t.Errorf("Parse = %v, want ErrDuplicateID", err)
	}
}

func TestNew_DerivedCollisionsAreUnique(t *testing.T) {
	tr := newTestTree(t, `<ul><li>Same</li><li>Same</li><li>Same</li></ul>`)
	seen := make(map[string]bool)
	for _, n := range tr.Nodes() {
		if seen[n.ID] {
			t.Errorf("duplicate id %q", n.ID)
		}
		seen[n.ID] = true
		if !strings.HasPrefix(n.ID, "same") {
			t.Errorf("id %q does not derive from the label", n.ID)
		}
	}
	if len(seen) != 3 {
		t.Errorf("got %d ids, want 3", len(seen))
	}
}

func TestNew_RebuildKeepsIDs(t *testing.T) {
	tr := newTestTree(t, `<ul><li>Same</li><li>Same</li></ul>`)
	out, err := tr.Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	again := newTestTree(t, out)
	if diff := cmp.Diff(nodeIDs(tr.Nodes()), nodeIDs(again.Nodes())); diff != "" {
		t.Errorf("rebuilt ids mismatch (-first +second):\n%s", diff)
	}
	n, err := again.Node(tr.Roots()[0])
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	if n.Label != "Same" {
		t.Errorf("rebuilt label = %q, want Same", n.Label)
	}
}

func TestState(t *testing.T) {
	tr := newTestTree(t, sample)

	tests := []struct {
		id   string
		want State
	}{
		{"documents", StateClosed},
		{"photos", StateOpen},
		{"readme_md", StateNotApplicable},
	}
	for _, tt := range tests {
		got, err := tr.State(tt.id)
		if err != nil {
			t.Fatalf("State(%q) failed: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("State(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	if _, err := tr.State("nope"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("State(nope) = %v, want ErrNodeNotFound", err)
	}
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	opened := record(t, tr, Opened)
	closed := record(t, tr, Closed)

	if err := tr.Toggle(ctx, "documents"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if s, _ := tr.State("documents"); s != StateOpen {
		t.Errorf("after first toggle state = %v, want open", s)
	}
	if err := tr.Toggle(ctx, "documents"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if s, _ := tr.State("documents"); s != StateClosed {
		t.Errorf("after second toggle state = %v, want closed", s)
	}

	if got := len(opened.events()); got != 1 {
		t.Errorf("open events = %d, want 1", got)
	}
	if got := len(closed.events()); got != 1 {
		t.Errorf("close events = %d, want 1", got)
	}
	if ev := opened.events()[0]; ev.ID != "documents" || ev.Target == nil {
		t.Errorf("open event = %+v", ev)
	}
}

func TestOpenClose_NoOps(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	opened := record(t, tr, Opened)
	closed := record(t, tr, Closed)

	if err := tr.Open(ctx, "photos"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := tr.Close(ctx, "documents"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(opened.events()) != 0 || len(closed.events()) != 0 {
		t.Errorf("no-op transitions published events")
	}

	if err := tr.Open(ctx, "readme_md"); !errors.Is(err, ErrNotParent) {
		t.Errorf("Open(leaf) = %v, want ErrNotParent", err)
	}
	if err := tr.Close(ctx, "readme_md"); !errors.Is(err, ErrNotParent) {
		t.Errorf("Close(leaf) = %v, want ErrNotParent", err)
	}
	if err := tr.Toggle(ctx, "nope"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Toggle(nope) = %v, want ErrNodeNotFound", err)
	}
}

func TestOpen_UpdatesClasses(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	if err := tr.Open(ctx, "documents"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := tr.WithNode("documents", func(li *html.Node) error {
		if !dom.HasClass(li, "show") || dom.HasClass(li, "hide") {
			t.Errorf("open item classes = %v", dom.Classes(li))
		}
		if !dom.HasClass(li, "has-children") {
			t.Errorf("parent item lacks has-children: %v", dom.Classes(li))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithNode failed: %v", err)
	}
}

func TestOpenChild(t *testing.T) {
	tr := newTestTree(t, `<ul>
		<li data-treejs-open-child>A
			<ul><li>B<ul><li>C<ul><li>D</li></ul></li></ul></li></ul>
		</li>
	</ul>`)

	for id, want := range map[string]State{"a": StateClosed, "b": StateOpen, "c": StateOpen, "d": StateNotApplicable} {
		if got, _ := tr.State(id); got != want {
			t.Errorf("State(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestToggleAll(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	if err := tr.ToggleAll(ctx); err != nil {
		t.Fatalf("ToggleAll failed: %v", err)
	}
	if s, _ := tr.State("documents"); s != StateOpen {
		t.Errorf("documents = %v, want open", s)
	}
	if s, _ := tr.State("photos"); s != StateClosed {
		t.Errorf("photos = %v, want closed", s)
	}

	if err := tr.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	for _, n := range tr.Nodes() {
		if n.State == StateOpen {
			t.Errorf("%s still open after CloseAll", n.ID)
		}
	}
}

func TestVisible(t *testing.T) {
	tr := newTestTree(t, sample)
	var got []string
	for _, r := range tr.Visible() {
		got = append(got, strings.Repeat(" ", r.Depth)+r.ID)
	}
	want := []string{"documents", "photos", " beach_jpg", "readme_md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Visible mismatch (-want +got):\n%s", diff)
	}
}

func TestClick_SelectPayload(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	selected := record(t, tr, Selected)

	if err := tr.Click(ctx, "readme_md"); err != nil {
		t.Fatalf("Click failed: %v", err)
	}

	got := selected.events()
	if len(got) != 1 {
		t.Fatalf("select events = %d, want 1", len(got))
	}
	if got[0].ID != "readme_md" {
		t.Errorf("select id = %q, want readme_md", got[0].ID)
	}
	if id, _ := dom.Attr(got[0].Target, DefaultPrefix+"id"); id != "readme_md" {
		t.Errorf("select target id = %q, want readme_md", id)
	}
	if id, ok := tr.Selected(); !ok || id != "readme_md" {
		t.Errorf("Selected() = %q, %v", id, ok)
	}

	if err := tr.Click(ctx, "notes"); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	err := tr.WithNode("readme_md", func(li *html.Node) error {
		if dom.HasClass(li, "selected") {
			t.Errorf("previous selection kept its class")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestClick_ParentToggles(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	selected := record(t, tr, Selected)

	if err := tr.Click(ctx, "documents"); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if s, _ := tr.State("documents"); s != StateOpen {
		t.Errorf("click did not open the parent")
	}
	if len(selected.events()) != 0 {
		t.Errorf("click on parent selected it")
	}
}

func TestDoubleClick_OpenOnDblClick(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample, WithOpenOnDblClick(true))

	if err := tr.Click(ctx, "documents"); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if s, _ := tr.State("documents"); s != StateClosed {
		t.Errorf("single click toggled with open-on-dbl-click")
	}
	if id, _ := tr.Selected(); id != "documents" {
		t.Errorf("single click selected %q, want documents", id)
	}

	if err := tr.DoubleClick(ctx, "documents"); err != nil {
		t.Fatalf("DoubleClick failed: %v", err)
	}
	if s, _ := tr.State("documents"); s != StateOpen {
		t.Errorf("double click did not open the parent")
	}
}

func TestSelect_OnSelectHandler(t *testing.T) {
	ctx := context.Background()
	reg := handler.NewRegistry()
	var got []handler.Selection
	if err := reg.Register("show", func(_ context.Context, sel handler.Selection) error {
		got = append(got, sel)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if err := reg.Register("fail", func(context.Context, handler.Selection) error { return boom }); err != nil {
		t.Fatal(err)
	}

	tr := newTestTree(t, `<ul>
		<li data-treejs-onselect="show">Shown</li>
		<li data-treejs-onselect="fail">Failing</li>
		<li data-treejs-onselect="alert(1)">Inline</li>
	</ul>`, WithHandlers(reg))

	if err := tr.Select(ctx, "shown"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "shown" || got[0].Label != "Shown" {
		t.Errorf("handler got %+v", got)
	}

	if err := tr.Select(ctx, "failing"); !errors.Is(err, boom) {
		t.Errorf("Select(failing) = %v, want boom", err)
	}
	if err := tr.Select(ctx, "inline"); !errors.Is(err, handler.ErrUnknownHandler) {
		t.Errorf("Select(inline) = %v, want ErrUnknownHandler", err)
	}
	if id, _ := tr.Selected(); id != "inline" {
		t.Errorf("failed handler dropped the selection: %q", id)
	}
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	tr := newTestTree(t, sample)
	created := record(t, tr, Created)
	edited := record(t, tr, Edited)
	removed := record(t, tr, Removed)

	folder, err := tr.CreateFolder(ctx, "documents", "New folder", "")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if folder != "new_folder" {
		t.Errorf("CreateFolder id = %q, want new_folder", folder)
	}
	children, _ := tr.Children("documents")
	if diff := cmp.Diff([]string{"report_pdf", "notes", "new_folder"}, children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	if s, _ := tr.State(folder); s != StateClosed {
		t.Errorf("new folder state = %v, want closed", s)
	}

	file, err := tr.CreateFile(ctx, "readme_md", "License", "license")
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if diff := cmp.Diff([]string{"documents", "photos", "readme_md", "license"}, tr.Roots()); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}

	if _, err := tr.CreateFile(ctx, "", "Other", "photos"); !errors.Is(err, identity.ErrDuplicateID) {
		t.Errorf("CreateFile with taken id = %v, want ErrDuplicateID", err)
	}
	if _, err := tr.CreateFile(ctx, "", "  ", ""); !errors.Is(err, ErrEmptyLabel) {
		t.Errorf("CreateFile with blank label = %v, want ErrEmptyLabel", err)
	}

	wantCreated := []CreateEvent{{ID: folder, ParentID: "documents"}, {ID: file, ParentID: ""}}
	if diff := cmp.Diff(wantCreated, created.events(), cmpIgnoreTarget); diff != "" {
		t.Errorf("create events mismatch (-want +got):\n%s", diff)
	}

	if err := tr.Rename(ctx, "notes", "Notes.md"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	n, _ := tr.Node("notes")
	if n.Label != "Notes.md" {
		t.Errorf("renamed label = %q", n.Label)
	}
	wantEdit := []EditEvent{{ID: "notes", OldValue: "Notes.txt", NewValue: "Notes.md"}}
	if diff := cmp.Diff(wantEdit, edited.events(), cmpIgnoreTarget); diff != "" {
		t.Errorf("edit events mismatch (-want +got):\n%s", diff)
	}

	if err := tr.Remove(ctx, "documents"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	for _, id := range []string{"documents", "report_pdf", "notes", "new_folder"} {
		if _, err := tr.Node(id); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("Node(%q) after remove = %v", id, err)
		}
	}
	ev := removed.events()
	if len(ev) != 1 || len(ev[0].Removed) != 4 {
		t.Errorf("remove events = %+v", ev)
	}

	// Released ids can be taken again.
	if _, err := tr.CreateFile(ctx, "", "Notes", "notes"); err != nil {
		t.Errorf("reusing a removed id failed: %v", err)
	}
}

var cmpIgnoreTarget = cmp.FilterPath(func(p cmp.Path) bool {
	return p.Last().String() == ".Target"
}, cmp.Ignore())

func TestToJSON(t *testing.T) {
	tr := newTestTree(t, `<ul><li>A<ul><li>B</li></ul></li><li data-treejs-open>C<ul></ul></li></ul>`)
	want := []NodeSpec{
		{Label: "A", Name: "a", Children: []NodeSpec{{Label: "B", Name: "b", Children: []NodeSpec{}}}},
		{Label: "C", Name: "c", Attributes: map[string]string{"open": ""}, Children: []NodeSpec{}},
	}
	if diff := cmp.Diff(want, tr.ToJSON()); diff != "" {
		t.Errorf("ToJSON mismatch (-want +got):\n%s", diff)
	}
}

func TestShutdown(t *testing.T) {
	tr := newTestTree(t, sample)
	if err := tr.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := tr.Open(context.Background(), "documents"); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Shutdown = %v, want ErrClosed", err)
	}
	if err := tr.Shutdown(); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

var (
	pluginMu     sync.Mutex
	pluginCalls  = map[string]int{}
	pluginInited = map[string]int{}
)

func countCall(name string) {
	pluginMu.Lock()
	pluginCalls[name]++
	pluginMu.Unlock()
}

func calls(name string) int {
	pluginMu.Lock()
	defer pluginMu.Unlock()
	return pluginCalls[name]
}

func init() {
	MustDefine("test-listener", func(tr *Tree, s plugin.Settings) (any, error) {
		countCall("test-listener")
		_, err := event.Once(tr.Events(), Initialized, func(context.Context, InitializeEvent) error {
			pluginMu.Lock()
			pluginInited[s.String("tag", "")]++
			pluginMu.Unlock()
			return nil
		})
		return nil, err
	})
	MustDefine("test-after", func(*Tree, plugin.Settings) (any, error) {
		countCall("test-after")
		return nil, nil
	})
	MustDefine("test-needs", func(tr *Tree, _ plugin.Settings) (any, error) {
		countCall("test-needs")
		return tr.Require("test-after")
	})
}

func TestPlugins_Initialize(t *testing.T) {
	before := calls("test-listener")
	pluginMu.Lock()
	initedBefore := pluginInited["init-once"]
	pluginMu.Unlock()
	tr := newTestTree(t, sample, WithPlugins(plugin.Items{
		{Name: "test-listener", Options: plugin.Settings{"tag": "init-once"}},
		{Name: "test-needs"},
	}))

	if got := calls("test-listener") - before; got != 1 {
		t.Errorf("listener factory ran %d times, want 1", got)
	}
	pluginMu.Lock()
	inited := pluginInited["init-once"] - initedBefore
	pluginMu.Unlock()
	if inited != 1 {
		t.Errorf("initialize listener ran %d times, want 1", inited)
	}
	if diff := cmp.Diff([]string{"test-listener", "test-after", "test-needs"}, tr.Plugins().Names()); diff != "" {
		t.Errorf("loaded plugins mismatch (-want +got):\n%s", diff)
	}

	// Requiring a loaded plugin does not run its factory again.
	afterBefore := calls("test-after")
	if _, err := tr.Require("test-after"); err != nil {
		t.Fatalf("Require failed: %v", err)
	}
	if calls("test-after") != afterBefore {
		t.Errorf("Require re-ran a loaded factory")
	}
}

func TestPlugins_UnknownStopsInitialization(t *testing.T) {
	before := calls("test-after")
	_, err := Parse(strings.NewReader(sample), "", WithLogger(quiet()),
		WithPlugins(plugin.Names{"test-listener", "does-not-exist", "test-after"}))
	if !errors.Is(err, plugin.ErrPluginNotDefined) {
		t.Fatalf("Parse = %v, want ErrPluginNotDefined", err)
	}
	if !strings.Contains(err.Error(), "does-not-exist") {
		t.Errorf("error %q does not name the plugin", err)
	}
	if calls("test-after") != before {
		t.Errorf("plugin queued after the failure was loaded")
	}
}

func TestDefine_Duplicate(t *testing.T) {
	err := Define("test-after", func(*Tree, plugin.Settings) (any, error) { return nil, nil })
	if !errors.Is(err, plugin.ErrAlreadyDefined) {
		t.Errorf("Define duplicate = %v, want ErrAlreadyDefined", err)
	}
}
