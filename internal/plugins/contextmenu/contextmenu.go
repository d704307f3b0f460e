// Package contextmenu provides the folder and file menus that drive
// structural edits: rename, create and remove.
package contextmenu

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/plugins/dialog"
	"github.com/dshills/arbor/internal/tree"
)

// Name is the plugin name.
const Name = "context-menu"

// Action identifies a menu entry.
type Action string

const (
	ActionRename       Action = "rename"
	ActionCreateFolder Action = "create-folder"
	ActionCreateFile   Action = "create-file"
	ActionRemoveFolder Action = "remove-folder"
	ActionRemoveFile   Action = "remove-file"
)

var (
	// ErrUnsupportedAction is returned for an action that is not on the
	// menu of the node.
	ErrUnsupportedAction = errors.New("action not available for node")

	// ErrNoPrompter is returned by actions that need input when no
	// prompter is configured.
	ErrNoPrompter = errors.New("no prompter configured")
)

// Prompter asks the user for a line of text. ok is false when the user
// cancelled.
type Prompter interface {
	Prompt(ctx context.Context, message, def string) (value string, ok bool, err error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, message, def string) (string, bool, error)

// Prompt calls f.
func (f PromptFunc) Prompt(ctx context.Context, message, def string) (string, bool, error) {
	return f(ctx, message, def)
}

// Item is one menu entry.
type Item struct {
	Action Action
	Label  string
	Danger bool
}

// Options controls which values the user is asked for when creating.
type Options struct {
	ChooseFolderLabel bool
	ChooseFolderID    bool
	ChooseFileLabel   bool
	ChooseFileID      bool
}

// Menu is the capability of the context-menu plugin.
type Menu struct {
	tree     *tree.Tree
	dialog   *dialog.Dialog
	prompter Prompter
	opts     Options
}

func init() {
	tree.MustDefine(Name, New)
}

// New is the plugin factory. It requires the dialog plugin. Settings:
//
//	prompter           Prompter used for labels and ids
//	chooseFolderLabel  ask for the label of new folders
//	chooseFolderId     ask for the id of new folders
//	chooseFileLabel    ask for the label of new files
//	chooseFileId       ask for the id of new files
func New(t *tree.Tree, settings plugin.Settings) (any, error) {
	d, err := plugin.As[*dialog.Dialog](t.Plugins(), dialog.Name)
	if err != nil {
		return nil, err
	}
	m := &Menu{
		tree:   t,
		dialog: d,
		opts: Options{
			ChooseFolderLabel: settings.Bool("chooseFolderLabel", false),
			ChooseFolderID:    settings.Bool("chooseFolderId", false),
			ChooseFileLabel:   settings.Bool("chooseFileLabel", false),
			ChooseFileID:      settings.Bool("chooseFileId", false),
		},
	}
	switch p := settings["prompter"].(type) {
	case nil:
	case Prompter:
		m.prompter = p
	case func(context.Context, string, string) (string, bool, error):
		m.prompter = PromptFunc(p)
	default:
		return nil, fmt.Errorf("prompter: unsupported type %T", p)
	}
	return m, nil
}

// Options returns the effective options.
func (m *Menu) Options() Options {
	return m.opts
}

// Items returns the menu of node id.
func (m *Menu) Items(id string) ([]Item, error) {
	n, err := m.tree.Node(id)
	if err != nil {
		return nil, err
	}
	items := []Item{
		{Action: ActionRename, Label: "Rename"},
		{Action: ActionCreateFolder, Label: "Create folder"},
		{Action: ActionCreateFile, Label: "Create file"},
	}
	if n.Parent {
		return append(items, Item{Action: ActionRemoveFolder, Label: "Remove folder", Danger: true}), nil
	}
	return append(items, Item{Action: ActionRemoveFile, Label: "Remove file", Danger: true}), nil
}

// Invoke runs action on node id and returns the id of the node it created,
// renamed or removed. A cancelled prompt or a declined confirmation returns
// an empty id and no error.
func (m *Menu) Invoke(ctx context.Context, action Action, id string) (string, error) {
	n, err := m.tree.Node(id)
	if err != nil {
		return "", err
	}
	switch action {
	case ActionRename:
		if m.prompter == nil {
			return "", ErrNoPrompter
		}
		label, ok, err := m.prompter.Prompt(ctx, "Rename", n.Label)
		if err != nil || !ok {
			return "", err
		}
		return id, m.tree.Rename(ctx, id, label)

	case ActionCreateFolder:
		label, newID, ok, err := m.choose(ctx, "New folder", "folder", m.opts.ChooseFolderLabel, m.opts.ChooseFolderID)
		if err != nil || !ok {
			return "", err
		}
		return m.tree.CreateFolder(ctx, id, label, newID)

	case ActionCreateFile:
		label, newID, ok, err := m.choose(ctx, "New file", "file", m.opts.ChooseFileLabel, m.opts.ChooseFileID)
		if err != nil || !ok {
			return "", err
		}
		return m.tree.CreateFile(ctx, id, label, newID)

	case ActionRemoveFolder, ActionRemoveFile:
		if n.Parent != (action == ActionRemoveFolder) {
			return "", fmt.Errorf("%w: %s on %q", ErrUnsupportedAction, action, id)
		}
		msg := fmt.Sprintf("Remove file %q?", n.Label)
		if n.Parent {
			msg = fmt.Sprintf("Remove folder %q and its contents?", n.Label)
		}
		ok, err := m.dialog.Confirm(ctx, msg)
		if err != nil || !ok {
			return "", err
		}
		return id, m.tree.Remove(ctx, id)

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}
}

// choose asks for the label and id of a new node as the options require.
func (m *Menu) choose(ctx context.Context, def, kind string, askLabel, askID bool) (label, id string, ok bool, err error) {
	label = def
	if !askLabel && !askID {
		return label, "", true, nil
	}
	if m.prompter == nil {
		return "", "", false, ErrNoPrompter
	}
	if askLabel {
		label, ok, err = m.prompter.Prompt(ctx, "Choose "+kind+" label", def)
		if err != nil || !ok {
			return "", "", false, err
		}
	}
	if askID {
		id, ok, err = m.prompter.Prompt(ctx, "Choose "+kind+" id", "")
		if err != nil || !ok {
			return "", "", false, err
		}
	}
	return label, id, true, nil
}
