package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/espalier/pkg/dispatch"
	"github.com/vanderheijden86/espalier/pkg/metrics"
	"github.com/vanderheijden86/espalier/pkg/model"
	"github.com/vanderheijden86/espalier/pkg/state"
	"github.com/vanderheijden86/espalier/pkg/treemodel"
	"github.com/vanderheijden86/espalier/pkg/watcher"
)

var (
	styleSelected = lipgloss.NewStyle().Reverse(true)
	styleStale    = lipgloss.NewStyle().Faint(true)
	styleStatus   = lipgloss.NewStyle().Faint(true)
)

// recordsMsg carries engine deltas into the Bubble Tea loop.
type recordsMsg []model.ChangeRecord

// selectedMsg carries a re-resolved selection path.
type selectedMsg model.TreePath

// row is one flattened visible line.
type row struct {
	path     model.TreePath
	payload  model.Payload
	depth    int
	expanded bool
	stale    bool
	leaf     bool
}

type browser struct {
	async      *treemodel.AsyncModel
	dispatcher *dispatch.Dispatcher
	watch      *watcher.Watcher
	stateDir   string

	viewState *state.ViewState
	rows      []row
	cursor    int
	viewport  viewport.Model
	width     int
	ready     bool
	statusMsg string
}

func newBrowser(async *treemodel.AsyncModel, dispatcher *dispatch.Dispatcher, watch *watcher.Watcher, stateDir string) *browser {
	viewState := state.Load(stateDir)
	root := model.NewTreePath(async.Root())
	if len(viewState.Expanded) == 0 {
		viewState.MarkExpanded(root)
	}
	return &browser{
		async:      async,
		dispatcher: dispatcher,
		watch:      watch,
		stateDir:   stateDir,
		viewState:  viewState,
	}
}

// subscribe bridges the engine's record stream into the program.
func (b *browser) subscribe(p *tea.Program) *treemodel.Subscription {
	return b.async.Subscribe(func(records []model.ChangeRecord) {
		p.Send(recordsMsg(records))
	})
}

func (b *browser) Init() tea.Cmd {
	b.rebuildRows()
	if len(b.viewState.Selected) > 0 {
		return b.resolveSelection(b.viewState.Selected)
	}
	return nil
}

func (b *browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		if !b.ready {
			b.viewport = viewport.New(msg.Width, msg.Height-2)
			b.ready = true
		} else {
			b.viewport.Width = msg.Width
			b.viewport.Height = msg.Height - 2
		}
		b.refresh()

	case recordsMsg:
		b.rebuildRows()

	case selectedMsg:
		for i, r := range b.rows {
			if r.path.Equal(model.TreePath(msg)) {
				b.cursor = i
				break
			}
		}
		b.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if b.cursor < len(b.rows) {
				b.viewState.Selected = b.rows[b.cursor].path
			}
			state.Save(b.stateDir, b.viewState)
			return b, tea.Quit
		case "up", "k":
			if b.cursor > 0 {
				b.cursor--
			}
			b.refresh()
		case "down", "j":
			if b.cursor < len(b.rows)-1 {
				b.cursor++
			}
			b.refresh()
		case "enter", " ", "right", "l":
			b.toggle()
		case "left", "h":
			b.collapse()
		case "r":
			b.dispatcher.UpdateAll()
			b.statusMsg = "refreshing whole tree"
			b.refresh()
		case "c":
			b.copyPath()
		}
	}
	return b, nil
}

func (b *browser) View() string {
	defer metrics.Timer(metrics.Render)()
	if !b.ready {
		return "loading..."
	}
	status := b.statusMsg
	if status == "" {
		status = fmt.Sprintf("%d nodes · space toggle · r refresh · c copy · q quit", len(b.rows))
	}
	return b.viewport.View() + "\n" + styleStatus.Render(status)
}

// toggle expands or collapses the node under the cursor.
func (b *browser) toggle() {
	if b.cursor >= len(b.rows) {
		return
	}
	current := b.rows[b.cursor]
	if current.leaf {
		return
	}
	if current.expanded {
		b.viewState.MarkCollapsed(current.path)
	} else {
		b.viewState.MarkExpanded(current.path)
		if b.watch != nil && current.payload.File != "" {
			_ = b.watch.Add(current.payload.File)
		}
	}
	b.rebuildRows()
}

func (b *browser) collapse() {
	if b.cursor >= len(b.rows) {
		return
	}
	current := b.rows[b.cursor]
	if current.expanded {
		b.viewState.MarkCollapsed(current.path)
		b.rebuildRows()
	}
}

func (b *browser) copyPath() {
	if b.cursor >= len(b.rows) {
		return
	}
	current := b.rows[b.cursor]
	target := current.payload.File
	if target == "" {
		target = current.path.String()
	}
	if err := clipboard.WriteAll(target); err != nil {
		b.statusMsg = fmt.Sprintf("clipboard error: %v", err)
	} else {
		b.statusMsg = fmt.Sprintf("copied %s", target)
	}
	b.refresh()
}

// rebuildRows re-flattens the visible tree from the async model's
// cache. Reads never block; stale rows render dimmed and fill in when
// their materialization lands as a records message.
func (b *browser) rebuildRows() {
	b.rows = b.rows[:0]
	root := b.async.Root()
	b.walk(model.NewTreePath(root), 0)
	if b.cursor >= len(b.rows) && len(b.rows) > 0 {
		b.cursor = len(b.rows) - 1
	}
	b.refresh()
}

func (b *browser) walk(path model.TreePath, depth int) {
	id := path.Last()
	payload, _ := b.async.Payload(id)
	if payload.Name == "" {
		payload.Name = string(id)
	}
	children, stale := b.async.Children(id)
	expanded := b.viewState.IsExpanded(path)
	b.rows = append(b.rows, row{
		path:     path,
		payload:  payload,
		depth:    depth,
		expanded: expanded,
		stale:    stale,
		leaf:     payload.Leaf,
	})
	if !expanded {
		return
	}
	for _, child := range children {
		b.walk(path.Child(child), depth+1)
	}
}

func (b *browser) refresh() {
	if !b.ready {
		return
	}
	lines := make([]string, len(b.rows))
	for i, r := range b.rows {
		lines[i] = b.renderRow(r, i == b.cursor)
	}
	b.viewport.SetContent(strings.Join(lines, "\n"))
	b.scrollToCursor()
}

func (b *browser) renderRow(r row, selected bool) string {
	marker := "  "
	switch {
	case r.leaf:
	case r.expanded:
		marker = "▾ "
	default:
		marker = "▸ "
	}
	label := strings.Repeat("  ", r.depth) + marker + r.payload.Name
	if r.stale {
		label += " …"
	}
	width := b.width
	if width <= 0 {
		width = 80
	}
	label = runewidth.Truncate(label, width, "…")
	switch {
	case selected:
		return styleSelected.Render(label)
	case r.stale:
		return styleStale.Render(label)
	default:
		return label
	}
}

func (b *browser) scrollToCursor() {
	if b.cursor < b.viewport.YOffset {
		b.viewport.SetYOffset(b.cursor)
	} else if b.cursor >= b.viewport.YOffset+b.viewport.Height {
		b.viewport.SetYOffset(b.cursor - b.viewport.Height + 1)
	}
}

// resolveSelection re-resolves a persisted selection token through the
// visit API; the node may have moved or vanished since last session.
func (b *browser) resolveSelection(token model.TreePath) tea.Cmd {
	last := token.Last()
	if last == model.NodeIDNone {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		path, err := b.dispatcher.Select(ctx, "", string(last))
		if err != nil || path == nil {
			return nil
		}
		return selectedMsg(path)
	}
}
