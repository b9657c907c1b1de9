package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the inbox view.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding // Roster: open the conversation. Compose: send.
	Compose key.Binding // Move focus to the message input.
	Back    key.Binding // Leave filter or compose mode.
	Filter  key.Binding
	Sort    key.Binding
	Unread  key.Binding // Toggle the unread-only filter.
	Jump    key.Binding // Open the client named by the toast.
	Dismiss key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open/send"),
	),
	Compose: key.NewBinding(
		key.WithKeys("tab", "i"),
		key.WithHelp("tab", "compose"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sort"),
	),
	Unread: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "unread only"),
	),
	Jump: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "go to toast"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "dismiss"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Compose, k.Filter, k.Sort, k.Unread, k.Jump, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Back, k.Dismiss, k.Refresh}}
}
