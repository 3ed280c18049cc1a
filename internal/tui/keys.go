package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap lists every binding on the board. Column actions only fire when
// the matching column has focus.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	NextFocus key.Binding

	Enter     key.Binding // issues: create workspace; workspaces/sessions: attach
	NewIssue  key.Binding
	Close     key.Binding
	Remove    key.Binding
	Force     key.Binding
	Kill      key.Binding
	Propose   key.Binding
	Ready     key.Binding
	Merge     key.Binding
	Revert    key.Binding
	Open      key.Binding
	Refresh   key.Binding
	Pull      key.Binding
	Filter    key.Binding
	State     key.Binding
	Mine      key.Binding
	ToggleLog key.Binding
	Quit      key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↓/j", "down")),
	Left:      key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("←/h", "column")),
	Right:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("→/l", "column")),
	NextFocus: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next column")),

	Enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start/attach")),
	NewIssue:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new issue")),
	Close:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "close issue")),
	Remove:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "remove")),
	Force:     key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "force remove")),
	Kill:      key.NewBinding(key.WithKeys("K"), key.WithHelp("K", "kill session")),
	Propose:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "open PR")),
	Ready:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "mark ready")),
	Merge:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "merge")),
	Revert:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "revert")),
	Open:      key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
	Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Pull:      key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "pull main")),
	Filter:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
	State:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "open/closed")),
	Mine:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all/mine")),
	ToggleLog: key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// helpLine renders bindings as "key desc" pairs.
func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "   ")
}
