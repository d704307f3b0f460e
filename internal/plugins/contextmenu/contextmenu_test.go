package contextmenu

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/plugins/dialog"
	"github.com/dshills/arbor/internal/tree"
)

const markup = `<ul>
  <li data-treejs-id="docs">Docs
    <ul><li data-treejs-id="a">a.txt</li></ul>
  </li>
  <li data-treejs-id="c">c.txt</li>
</ul>`

func newTree(t *testing.T, req plugin.Items) (*tree.Tree, *Menu) {
	t.Helper()
	tr, err := tree.Parse(strings.NewReader(markup), "",
		tree.WithLogger(slog.New(slog.DiscardHandler)),
		tree.WithPlugins(req))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown() })
	m, err := plugin.As[*Menu](tr.Plugins(), Name)
	if err != nil {
		t.Fatalf("As failed: %v", err)
	}
	return tr, m
}

// answers returns a prompter that replies with values in order and records
// the messages it was asked.
func answers(asked *[]string, values ...string) PromptFunc {
	return func(_ context.Context, msg, _ string) (string, bool, error) {
		*asked = append(*asked, msg)
		if len(values) == 0 {
			return "", false, nil
		}
		v := values[0]
		values = values[1:]
		return v, true, nil
	}
}

func TestRequiresDialog(t *testing.T) {
	tr, _ := newTree(t, plugin.Items{{Name: Name}})
	if diff := cmp.Diff([]string{dialog.Name, Name}, tr.Plugins().Names()); diff != "" {
		t.Errorf("load order mismatch (-want +got):\n%s", diff)
	}
}

func TestItems(t *testing.T) {
	_, m := newTree(t, plugin.Items{{Name: Name}})

	actions := func(id string) []Action {
		items, err := m.Items(id)
		if err != nil {
			t.Fatalf("Items(%q) failed: %v", id, err)
		}
		var out []Action
		for _, it := range items {
			out = append(out, it.Action)
		}
		return out
	}

	want := []Action{ActionRename, ActionCreateFolder, ActionCreateFile, ActionRemoveFolder}
	if diff := cmp.Diff(want, actions("docs")); diff != "" {
		t.Errorf("folder menu mismatch (-want +got):\n%s", diff)
	}
	want[3] = ActionRemoveFile
	if diff := cmp.Diff(want, actions("c")); diff != "" {
		t.Errorf("file menu mismatch (-want +got):\n%s", diff)
	}
	if _, err := m.Items("missing"); !errors.Is(err, tree.ErrNodeNotFound) {
		t.Errorf("Items(missing) err = %v", err)
	}
}

func TestCreate_Defaults(t *testing.T) {
	ctx := context.Background()
	tr, m := newTree(t, plugin.Items{{Name: Name}})

	id, err := m.Invoke(ctx, ActionCreateFolder, "docs")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	n, err := tr.Node(id)
	if err != nil {
		t.Fatalf("Node(%q) failed: %v", id, err)
	}
	if n.Label != "New folder" || !n.Parent {
		t.Errorf("created %+v, want a folder labelled New folder", n)
	}
	children, _ := tr.Children("docs")
	if !slices.Contains(children, id) {
		t.Errorf("Children(docs) = %v, want %q among them", children, id)
	}
}

func TestCreate_Chosen(t *testing.T) {
	ctx := context.Background()
	var asked []string
	tr, m := newTree(t, plugin.Items{{Name: Name, Options: plugin.Settings{
		"chooseFileLabel": true,
		"chooseFileId":    true,
		"prompter":        answers(&asked, "Notes.md", "notes"),
	}}})

	id, err := m.Invoke(ctx, ActionCreateFile, "c")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if id != "notes" {
		t.Errorf("id = %q, want notes", id)
	}
	if diff := cmp.Diff([]string{"Choose file label", "Choose file id"}, asked); diff != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", diff)
	}
	// Files are created next to a file target.
	if diff := cmp.Diff([]string{"docs", "c", "notes"}, tr.Roots()); diff != "" {
		t.Errorf("Roots mismatch (-want +got):\n%s", diff)
	}
}

func TestCreate_Cancelled(t *testing.T) {
	ctx := context.Background()
	var asked []string
	tr, m := newTree(t, plugin.Items{{Name: Name, Options: plugin.Settings{
		"chooseFolderLabel": true,
		"prompter":          answers(&asked),
	}}})
	before := tr.Len()

	id, err := m.Invoke(ctx, ActionCreateFolder, "docs")
	if err != nil || id != "" {
		t.Errorf("Invoke = %q, %v; want a silent cancel", id, err)
	}
	if tr.Len() != before {
		t.Errorf("Len = %d, want %d", tr.Len(), before)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	var asked []string
	tr, m := newTree(t, plugin.Items{{Name: Name, Options: plugin.Settings{
		"prompter": answers(&asked, "Documents"),
	}}})

	if _, err := m.Invoke(ctx, ActionRename, "docs"); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	n, _ := tr.Node("docs")
	if n.Label != "Documents" {
		t.Errorf("Label = %q, want Documents", n.Label)
	}
}

func TestRename_NoPrompter(t *testing.T) {
	_, m := newTree(t, plugin.Items{{Name: Name}})
	if _, err := m.Invoke(context.Background(), ActionRename, "docs"); !errors.Is(err, ErrNoPrompter) {
		t.Errorf("err = %v, want %v", err, ErrNoPrompter)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("declined", func(t *testing.T) {
		tr, m := newTree(t, plugin.Items{
			{Name: dialog.Name, Options: plugin.Settings{"default": false}},
			{Name: Name},
		})
		id, err := m.Invoke(ctx, ActionRemoveFolder, "docs")
		if err != nil || id != "" {
			t.Errorf("Invoke = %q, %v; want a silent decline", id, err)
		}
		if _, err := tr.Node("docs"); err != nil {
			t.Errorf("docs removed despite the declined confirmation: %v", err)
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		var asked string
		tr, m := newTree(t, plugin.Items{
			{Name: dialog.Name, Options: plugin.Settings{
				"confirmer": dialog.ConfirmFunc(func(_ context.Context, msg string) (bool, error) {
					asked = msg
					return true, nil
				}),
			}},
			{Name: Name},
		})
		if _, err := m.Invoke(ctx, ActionRemoveFolder, "docs"); err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if !strings.Contains(asked, `"Docs"`) {
			t.Errorf("confirmation %q does not name the folder", asked)
		}
		for _, id := range []string{"docs", "a"} {
			if _, err := tr.Node(id); !errors.Is(err, tree.ErrNodeNotFound) {
				t.Errorf("Node(%q) err = %v, want not found", id, err)
			}
		}
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, m := newTree(t, plugin.Items{{Name: Name}})
		if _, err := m.Invoke(ctx, ActionRemoveFile, "docs"); !errors.Is(err, ErrUnsupportedAction) {
			t.Errorf("err = %v, want %v", err, ErrUnsupportedAction)
		}
	})
}

func TestRemove_LoadedAfterConstruction(t *testing.T) {
	tr, err := tree.Parse(strings.NewReader(markup), "", tree.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown() })

	m, err := plugin.As[*Menu](tr.Plugins(), Name)
	if err != nil {
		t.Fatalf("As failed: %v", err)
	}
	if _, err := m.Invoke(context.Background(), ActionRemoveFile, "c"); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if _, err := tr.Node("c"); !errors.Is(err, tree.ErrNodeNotFound) {
		t.Errorf("Node(c) err = %v, want not found", err)
	}
}
