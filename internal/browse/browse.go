// Package browse is an interactive terminal view of a tree.
//
// The browser draws the visible outline of the tree, one node per line, and
// maps keys and mouse clicks to tree operations:
//
//	up, k / down, j     move the cursor
//	right, l            open a parent, or step into an open one
//	left, h             close a parent, or step out to the parent
//	enter, click        click the node (select, or toggle a parent)
//	o                   toggle the node
//	space               toggle the checkbox, when the checkbox plugin is loaded
//	a                   toggle every parent
//	q, esc, ctrl-c      quit
//
// Subtrees that load in the background redraw the view when they arrive.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/arbor/internal/event"
	"github.com/dshills/arbor/internal/plugins/checkbox"
	"github.com/dshills/arbor/internal/tree"
)

// quit is posted as interrupt data to end Run.
type quit struct{}

// redraw is posted as interrupt data when the tree changed behind the view.
type redraw struct{}

// failed is posted as interrupt data when a background load failed.
type failed struct {
	id  string
	err error
}

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the logger for failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(b *Browser) {
		if l != nil {
			b.logger = l
		}
	}
}

// Browser renders a tree on a terminal screen.
type Browser struct {
	tree   *tree.Tree
	screen tcell.Screen
	logger *slog.Logger
	boxes  *checkbox.Checkbox

	rows    []tree.Row
	cursor  int
	offset  int
	status  string
	pressed bool
}

// New creates a browser for t drawing on screen. The screen is initialized
// by Run.
func New(t *tree.Tree, screen tcell.Screen, opts ...Option) *Browser {
	b := &Browser{
		tree:   t,
		screen: screen,
		logger: t.Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if v, ok := t.Plugins().Loaded(checkbox.Name); ok {
		b.boxes, _ = v.(*checkbox.Checkbox)
	}
	return b
}

// Run initializes the screen and handles events until the user quits or
// ctx is done. The screen is finalized before Run returns.
func (b *Browser) Run(ctx context.Context) error {
	if err := b.screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer b.screen.Fini()
	b.screen.EnableMouse()

	unwatch := b.watch()
	defer unwatch()
	stop := context.AfterFunc(ctx, func() {
		_ = b.screen.PostEvent(tcell.NewEventInterrupt(quit{}))
	})
	defer stop()

	b.Draw()
	for {
		ev := b.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if b.HandleEvent(ctx, ev) {
			return nil
		}
		b.Draw()
	}
}

// watch asks for a redraw whenever the tree changes outside a key press.
// Failed background loads are reported in the status line.
func (b *Browser) watch() func() {
	names := []event.Name{
		tree.EventOpen, tree.EventClose, tree.EventFetched,
		tree.EventCreate, tree.EventRemove, tree.EventEdit,
	}
	if b.boxes != nil {
		names = append(names, checkbox.EventChange)
	}

	type sub struct {
		name event.Name
		sub  event.Subscription
	}
	var subs []sub
	add := func(name event.Name, s event.Subscription, err error) {
		if err != nil {
			b.logger.Debug("browse: watch", "event", name, "error", err)
			return
		}
		subs = append(subs, sub{name, s})
	}

	wake := event.HandlerFunc(func(context.Context, any) error {
		_ = b.screen.PostEvent(tcell.NewEventInterrupt(redraw{}))
		return nil
	})
	for _, name := range names {
		s, err := b.tree.On(name, wake)
		add(name, s, err)
	}
	s, err := event.On(b.tree.Events(), tree.FetchFailed, func(_ context.Context, e tree.FetchErrorEvent) error {
		_ = b.screen.PostEvent(tcell.NewEventInterrupt(failed{id: e.ID, err: e.Err}))
		return nil
	})
	add(tree.EventFetchError, s, err)

	return func() {
		for _, s := range subs {
			_ = b.tree.Off(s.name, s.sub)
		}
	}
}

// HandleEvent applies one screen event and reports whether the browser
// should quit.
func (b *Browser) HandleEvent(ctx context.Context, ev tcell.Event) bool {
	b.refresh()
	switch e := ev.(type) {
	case *tcell.EventKey:
		return b.handleKey(ctx, e)
	case *tcell.EventMouse:
		b.handleMouse(ctx, e)
	case *tcell.EventResize:
		b.screen.Sync()
	case *tcell.EventInterrupt:
		switch data := e.Data().(type) {
		case quit:
			return true
		case failed:
			b.status = fmt.Sprintf("load of %s failed: %v", data.id, data.err)
		}
	}
	return false
}

func (b *Browser) handleKey(ctx context.Context, e *tcell.EventKey) bool {
	switch e.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		b.move(-1)
	case tcell.KeyDown:
		b.move(1)
	case tcell.KeyHome:
		b.cursor = 0
	case tcell.KeyEnd:
		b.cursor = len(b.rows) - 1
	case tcell.KeyPgUp:
		b.move(-b.pageSize())
	case tcell.KeyPgDn:
		b.move(b.pageSize())
	case tcell.KeyRight:
		b.expand(ctx)
	case tcell.KeyLeft:
		b.collapse(ctx)
	case tcell.KeyEnter:
		b.activate(ctx)
	case tcell.KeyRune:
		switch e.Rune() {
		case 'q':
			return true
		case 'k':
			b.move(-1)
		case 'j':
			b.move(1)
		case 'l':
			b.expand(ctx)
		case 'h':
			b.collapse(ctx)
		case 'o':
			if row, ok := b.current(); ok && row.Parent {
				b.do(b.tree.Toggle(ctx, row.ID))
			}
		case ' ':
			b.check(ctx)
		case 'a':
			b.do(b.tree.ToggleAll(ctx))
		}
	}
	b.clamp()
	return false
}

func (b *Browser) handleMouse(ctx context.Context, e *tcell.EventMouse) {
	down := e.Buttons()&tcell.Button1 != 0
	if !down || b.pressed {
		b.pressed = down
		return
	}
	b.pressed = true

	_, y := e.Position()
	idx := b.offset + y
	if y >= b.pageSize() || idx >= len(b.rows) {
		return
	}
	b.cursor = idx
	b.activate(ctx)
}

func (b *Browser) current() (tree.Row, bool) {
	if b.cursor < 0 || b.cursor >= len(b.rows) {
		return tree.Row{}, false
	}
	return b.rows[b.cursor], true
}

func (b *Browser) move(delta int) {
	b.cursor += delta
	b.clamp()
}

func (b *Browser) clamp() {
	b.cursor = max(0, min(b.cursor, len(b.rows)-1))
}

func (b *Browser) expand(ctx context.Context) {
	row, ok := b.current()
	if !ok || !row.Parent {
		return
	}
	if !row.Open {
		b.do(b.tree.Open(ctx, row.ID))
		return
	}
	if next := b.cursor + 1; next < len(b.rows) && b.rows[next].Depth > row.Depth {
		b.cursor = next
	}
}

func (b *Browser) collapse(ctx context.Context) {
	row, ok := b.current()
	if !ok {
		return
	}
	if row.Parent && row.Open {
		b.do(b.tree.Close(ctx, row.ID))
		return
	}
	for i := b.cursor - 1; i >= 0; i-- {
		if b.rows[i].Depth < row.Depth {
			b.cursor = i
			return
		}
	}
}

func (b *Browser) activate(ctx context.Context) {
	row, ok := b.current()
	if !ok {
		return
	}
	if !b.do(b.tree.Click(ctx, row.ID)) {
		return
	}
	if id, ok := b.tree.Selected(); ok && id == row.ID {
		b.status = "selected " + row.Label
	}
}

func (b *Browser) check(ctx context.Context) {
	row, ok := b.current()
	if !ok {
		return
	}
	if b.boxes == nil {
		b.status = "checkbox plugin not loaded"
		return
	}
	b.do(b.boxes.Toggle(ctx, row.ID))
}

// do records a failed operation in the status line.
func (b *Browser) do(err error) bool {
	if err == nil {
		b.status = ""
		return true
	}
	var ferr *tree.FetchError
	if errors.As(err, &ferr) {
		b.status = "load failed: " + ferr.Err.Error()
	} else {
		b.status = err.Error()
	}
	b.logger.Debug("browse: operation failed", "error", err)
	return false
}

// refresh rereads the outline and keeps the cursor on the same node.
func (b *Browser) refresh() {
	var id string
	if row, ok := b.current(); ok {
		id = row.ID
	}
	b.rows = b.tree.Visible()
	for i, row := range b.rows {
		if row.ID == id {
			b.cursor = i
			return
		}
	}
	b.clamp()
}

func (b *Browser) pageSize() int {
	_, h := b.screen.Size()
	if h > 1 {
		return h - 1
	}
	return max(h, 1)
}

// Draw renders the outline and the status line.
func (b *Browser) Draw() {
	b.refresh()
	b.screen.Clear()
	w, h := b.screen.Size()
	page := b.pageSize()

	if b.cursor < b.offset {
		b.offset = b.cursor
	}
	if b.cursor >= b.offset+page {
		b.offset = b.cursor - page + 1
	}
	b.offset = max(0, min(b.offset, len(b.rows)-page))

	for y := 0; y < page && b.offset+y < len(b.rows); y++ {
		i := b.offset + y
		row := b.rows[i]
		style := tcell.StyleDefault
		if row.Selected {
			style = style.Bold(true)
		}
		if i == b.cursor {
			style = style.Reverse(true)
		}
		b.put(0, y, w, b.line(row), style)
	}
	if h > 1 {
		b.put(0, h-1, w, b.statusLine(), tcell.StyleDefault.Dim(true))
	}
	b.screen.Show()
}

func (b *Browser) line(row tree.Row) string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", row.Depth))
	switch {
	case !row.Parent:
		sb.WriteString("  ")
	case row.Open:
		sb.WriteString("▾ ")
	default:
		sb.WriteString("▸ ")
	}
	if b.boxes != nil {
		if b.boxes.IsChecked(row.ID) {
			sb.WriteString("[x] ")
		} else {
			sb.WriteString("[ ] ")
		}
	}
	sb.WriteString(row.Label)
	if row.Loading {
		sb.WriteString(" (loading)")
	}
	return sb.String()
}

func (b *Browser) statusLine() string {
	if b.status != "" {
		return b.status
	}
	return fmt.Sprintf("%d/%d  q quit  enter click  space check  a toggle all", b.cursor+1, len(b.rows))
}

// put draws s from column x, clipped to width w.
func (b *Browser) put(x, y, w int, s string, style tcell.Style) {
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		width := g.Width()
		if x+width > w {
			break
		}
		runes := g.Runes()
		b.screen.SetContent(x, y, runes[0], runes[1:], style)
		x += width
	}
	for ; x < w; x++ {
		b.screen.SetContent(x, y, ' ', nil, style)
	}
}
