// Package dialog provides the confirmation collaborator other plugins ask
// before destructive actions.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dshills/arbor/internal/event"
	"github.com/dshills/arbor/internal/plugin"
	"github.com/dshills/arbor/internal/tree"
)

// Name is the plugin name.
const Name = "dialog"

// ErrNotReady is returned when Confirm is called before the tree finished
// initializing.
var ErrNotReady = errors.New("dialog not ready")

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// Dialog is the capability of the dialog plugin.
type Dialog struct {
	confirmer Confirmer
	title     string
	answer    bool
	ready     atomic.Bool
	tree      *tree.Tree
}

func init() {
	tree.MustDefine(Name, New)
}

// New is the plugin factory. Settings:
//
//	confirmer  Confirmer used to ask; without one every question gets the default
//	default    answer when no confirmer is set (true)
//	title      prefix for every message
func New(t *tree.Tree, settings plugin.Settings) (any, error) {
	d := &Dialog{
		title:  settings.String("title", ""),
		answer: settings.Bool("default", true),
		tree:   t,
	}
	switch c := settings["confirmer"].(type) {
	case nil:
	case Confirmer:
		d.confirmer = c
	case func(context.Context, string) (bool, error):
		d.confirmer = ConfirmFunc(c)
	default:
		return nil, fmt.Errorf("confirmer: unsupported type %T", c)
	}

	_, err := event.Once(t.Events(), tree.Initialized, func(context.Context, tree.InitializeEvent) error {
		d.ready.Store(true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if t.IsInitialized() {
		d.ready.Store(true)
	}
	return d, nil
}

// Ready reports whether the tree has published initialize.
func (d *Dialog) Ready() bool {
	return d.ready.Load()
}

// Confirm asks message and reports the answer.
func (d *Dialog) Confirm(ctx context.Context, message string) (bool, error) {
	if !d.Ready() {
		return false, ErrNotReady
	}
	if d.title != "" {
		message = d.title + ": " + message
	}
	if d.confirmer == nil {
		d.tree.Logger().Debug("dialog answered by default", "message", message, "answer", d.answer)
		return d.answer, nil
	}
	ok, err := d.confirmer.Confirm(ctx, message)
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	return ok, nil
}
