// Package tui is the terminal rendition of the inbox: a roster pane, the
// open conversation, a toast line and a status bar.
package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/ashureev/castle-console/internal/realtime"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Source is the inbox surface the view drives.
type Source interface {
	Snapshot() inbox.Snapshot
	Roster(f inbox.Filter, key inbox.SortKey) []domain.Client
	Select(ctx context.Context, id domain.ID) error
	Send(ctx context.Context, text string) error
	Refresh(ctx context.Context) error
	DismissToast()
	Subscribe() (<-chan inbox.Change, func())
}

// Focus is the input region receiving keys.
type Focus int

const (
	FocusRoster Focus = iota
	FocusFilter
	FocusCompose
)

const opTimeout = 15 * time.Second

type (
	changeMsg   struct{ change inbox.Change }
	opResultMsg struct {
		op  string
		err error
	}
	flashTickMsg  struct{}
	statusTickMsg struct{}
)

// Options configures a Model.
type Options struct {
	// Realtime reports the push channel state for the status bar.
	Realtime func() realtime.State
	// Bell receives the audible alert. Defaults to stderr.
	Bell     io.Writer
	Username string
	Filter   inbox.Filter
	Sort     inbox.SortKey
}

// Model is the bubbletea model of the inbox.
type Model struct {
	ctx     context.Context
	src     Source
	opts    Options
	keys    KeyMap
	help    help.Model
	changes <-chan inbox.Change
	cancel  func()

	snap    inbox.Snapshot
	roster  []domain.Client
	cursor  int
	filter  inbox.Filter
	sortKey inbox.SortKey

	focus   Focus
	query   textinput.Model
	compose textinput.Model
	sending bool

	notice    string
	lastError string
	loggedOut bool

	width  int
	height int
}

// NewModel subscribes to src and builds the initial view.
func NewModel(ctx context.Context, src Source, opts Options) Model {
	if opts.Bell == nil {
		opts.Bell = os.Stderr
	}
	if opts.Sort == "" {
		opts.Sort = inbox.SortRecent
	}

	query := textinput.New()
	query.Prompt = "/ "
	query.Placeholder = "name, phone, status, office..."
	query.SetValue(opts.Filter.Query)

	compose := textinput.New()
	compose.Prompt = "> "
	compose.Placeholder = "Type a message"
	compose.CharLimit = 1600

	changes, cancel := src.Subscribe()
	model := Model{
		ctx:     ctx,
		src:     src,
		opts:    opts,
		keys:    DefaultKeyMap,
		help:    help.New(),
		changes: changes,
		cancel:  cancel,
		filter:  opts.Filter,
		sortKey: opts.Sort,
		query:   query,
		compose: compose,
		width:   100,
		height:  30,
	}
	model.sync()
	return model
}

// Close releases the change subscription.
func (model Model) Close() {
	if model.cancel != nil {
		model.cancel()
	}
}

// ViewState returns the filter and sort key the operator ended with.
func (model Model) ViewState() (inbox.Filter, inbox.SortKey) {
	return model.filter, model.sortKey
}

// LoggedOut reports whether the program stopped because the session ended.
func (model Model) LoggedOut() bool {
	return model.loggedOut
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(listenForChange(model.changes), scheduleStatusTick())
}

// listenForChange blocks until the inbox publishes a change.
func listenForChange(ch <-chan inbox.Change) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-ch
		if !ok {
			return nil
		}
		return changeMsg{change: change}
	}
}

func scheduleStatusTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return statusTickMsg{} })
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch model.focus {
		case FocusFilter:
			return model.handleFilterKeys(message)
		case FocusCompose:
			return model.handleComposeKeys(message)
		}
		return model.handleRosterKeys(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.compose.Width = model.conversationWidth() - 4

	case changeMsg:
		return model.handleChange(message.change)

	case opResultMsg:
		if message.op == "send" {
			model.sending = false
		}
		if message.err != nil {
			model.lastError = message.op + ": " + message.err.Error()
		} else {
			model.lastError = ""
			if message.op == "send" {
				model.compose.SetValue("")
			}
		}
		model.sync()

	case flashTickMsg, statusTickMsg:
		model.sync()
		if _, ok := message.(statusTickMsg); ok {
			return model, scheduleStatusTick()
		}
	}
	return model, nil
}

func (model Model) handleRosterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}
	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.roster)-1 {
			model.cursor++
		}
	case key.Matches(message, model.keys.Open):
		if model.cursor < len(model.roster) {
			return model, model.selectCmd(model.roster[model.cursor].ID)
		}
	case key.Matches(message, model.keys.Compose):
		if model.snap.Selected != 0 {
			model.focus = FocusCompose
			return model, model.compose.Focus()
		}
	case key.Matches(message, model.keys.Filter):
		model.focus = FocusFilter
		model.cursor = 0
		return model, model.query.Focus()
	case key.Matches(message, model.keys.Sort):
		model.sortKey = model.sortKey.Next()
		model.sync()
	case key.Matches(message, model.keys.Unread):
		model.filter.UnreadOnly = !model.filter.UnreadOnly
		model.cursor = 0
		model.sync()
	case key.Matches(message, model.keys.Jump):
		if t := model.snap.Toast; t != nil {
			return model, model.selectCmd(t.ClientID)
		}
	case key.Matches(message, model.keys.Dismiss):
		model.src.DismissToast()
		model.sync()
	case key.Matches(message, model.keys.Refresh):
		return model, model.refreshCmd()
	case key.Matches(message, model.keys.Back):
		if !model.filter.IsZero() {
			model.filter = inbox.Filter{}
			model.query.SetValue("")
			model.sync()
		}
	}
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyEsc:
		model.query.SetValue("")
		model.filter.Query = ""
		model.query.Blur()
		model.focus = FocusRoster
		model.sync()
		return model, nil
	case tea.KeyEnter:
		model.query.Blur()
		model.focus = FocusRoster
		return model, nil
	}
	var cmd tea.Cmd
	model.query, cmd = model.query.Update(message)
	model.filter.Query = strings.TrimSpace(model.query.Value())
	model.sync()
	return model, cmd
}

func (model Model) handleComposeKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyEsc:
		model.compose.Blur()
		model.focus = FocusRoster
		return model, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(model.compose.Value())
		if text == "" || model.sending {
			return model, nil
		}
		model.sending = true
		return model, model.sendCmd(text)
	}
	var cmd tea.Cmd
	model.compose, cmd = model.compose.Update(message)
	return model, cmd
}

func (model Model) handleChange(change inbox.Change) (tea.Model, tea.Cmd) {
	commands := []tea.Cmd{listenForChange(model.changes)}
	switch change.Kind {
	case inbox.ChangeBeep:
		commands = append(commands, model.bellCmd())
	case inbox.ChangeFlash:
		if change.Duration > 0 {
			commands = append(commands, tea.Tick(change.Duration, func(time.Time) tea.Msg { return flashTickMsg{} }))
		}
	case inbox.ChangeLogout:
		model.loggedOut = true
		model.notice = "Session ended. Log in again with `console login`."
		model.sync()
		return model, tea.Quit
	}
	model.sync()
	return model, tea.Batch(commands...)
}

// sync re-reads the inbox and keeps the cursor on the same client.
func (model *Model) sync() {
	var current domain.ID
	if model.cursor < len(model.roster) {
		current = model.roster[model.cursor].ID
	}
	model.snap = model.src.Snapshot()
	model.roster = model.src.Roster(model.filter, model.sortKey)

	model.cursor = min(model.cursor, max(len(model.roster)-1, 0))
	for i := range model.roster {
		if model.roster[i].ID == current {
			model.cursor = i
			break
		}
	}
}

func (model Model) selectCmd(id domain.ID) tea.Cmd {
	ctx, src := model.ctx, model.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		err := src.Select(ctx, id)
		if errors.Is(err, inbox.ErrNotInRoster) {
			err = nil
		}
		return opResultMsg{op: "open", err: err}
	}
}

func (model Model) sendCmd(text string) tea.Cmd {
	ctx, src := model.ctx, model.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return opResultMsg{op: "send", err: src.Send(ctx, text)}
	}
}

func (model Model) refreshCmd() tea.Cmd {
	ctx, src := model.ctx, model.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return opResultMsg{op: "refresh", err: src.Refresh(ctx)}
	}
}

func (model Model) bellCmd() tea.Cmd {
	bell := model.opts.Bell
	return func() tea.Msg {
		_, _ = io.WriteString(bell, "\a")
		return nil
	}
}

// Run starts the full-screen program and blocks until the operator quits
// or the session ends. It returns the final model.
func Run(ctx context.Context, src Source, opts Options) (Model, error) {
	model := NewModel(ctx, src, opts)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if m, ok := final.(Model); ok {
		model = m
	}
	return model, err
}
