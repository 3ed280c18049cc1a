// Package tui renders the board in four columns (issues, workspaces,
// sessions and proposed changes) and turns key presses into orchestrator
// calls. Every call that may block runs as a tea.Cmd.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"octodeck/internal/board"
	"octodeck/internal/model"
	"octodeck/internal/msglog"
	"octodeck/internal/orchestrator"
	"octodeck/internal/refresh"
	"octodeck/internal/registry"
	"octodeck/internal/tracker"
)

// — state ———————————————————————————————————————————————————————————————————

type appState int

const (
	stateNormal appState = iota
	stateNewIssue
	stateConfirm
	stateFilter
)

// Deps are the engine parts the board drives.
type Deps struct {
	Context      context.Context
	Board        *board.Store
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	Refresh      *refresh.Reconciler
	Log          *msglog.Log
	Repo         string
	Tracker      string // tracker kind, shown in the header
	Multiplexer  string
}

// confirmation is an action waiting for y/n.
type confirmation struct {
	title  string
	detail string
	danger bool
	run    tea.Cmd
}

// — model ———————————————————————————————————————————————————————————————————

type Model struct {
	deps Deps
	ctx  context.Context
	keys KeyMap

	view   board.View
	width  int
	height int

	state       appState
	titleInput  textinput.Model
	bodyInput   textinput.Model
	filterInput textinput.Model
	query       string
	inputErr    string
	confirm     confirmation

	status    string
	statusErr bool
	busy      map[string]bool // keys with an operation in flight
	spinner   spinner.Model
	logView   viewport.Model
	showLog   bool
}

func New(d Deps) Model {
	ctx := d.Context
	if ctx == nil {
		ctx = context.Background()
	}

	title := textinput.New()
	title.Placeholder = "Short summary"
	title.CharLimit = 200
	body := textinput.New()
	body.Placeholder = "Details (optional)"
	body.CharLimit = 2000
	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "fuzzy filter"

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return Model{
		deps:        d,
		ctx:         ctx,
		keys:        DefaultKeyMap,
		view:        d.Board.Snapshot(),
		titleInput:  title,
		bodyInput:   body,
		filterInput: filter,
		busy:        map[string]bool{},
		spinner:     sp,
		logView:     viewport.New(0, 0),
		showLog:     true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		listen(m.deps.Board.Changed(), boardChangedMsg{}),
		listen(m.deps.Registry.Changed(), sessionsChangedMsg{}),
		m.spinner.Tick,
	)
}

// — update ——————————————————————————————————————————————————————————————————

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logView.Width = msg.Width
		m.logView.Height = logHeight
		m.syncLog()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.syncLog()
		return m, cmd

	case boardChangedMsg:
		m.view = m.deps.Board.Snapshot()
		return m, listen(m.deps.Board.Changed(), boardChangedMsg{})

	case sessionsChangedMsg:
		m.view = m.deps.Board.Snapshot()
		return m, listen(m.deps.Registry.Changed(), sessionsChangedMsg{})

	case actionDoneMsg:
		delete(m.busy, msg.key)
		m.view = m.deps.Board.Snapshot()
		switch {
		case msg.err == nil:
			m.setStatus(msg.what+": done", false)
		case isConflict(msg.err):
			m.setStatus(msg.err.Error()+" (D forces removal)", true)
		default:
			m.setStatus(msg.what+": "+msg.err.Error(), true)
		}
		return m, nil

	case attachReadyMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		key := msg.key
		return m, tea.ExecProcess(msg.cmd, func(err error) tea.Msg {
			return execExitedMsg{key: key, err: err}
		})

	case execExitedMsg:
		return m, detachCmd(m.deps.Orchestrator, msg.key, msg.err)

	case detachedMsg:
		m.view = m.deps.Board.Snapshot()
		if msg.err != nil {
			m.setStatus("attach "+msg.key+": "+msg.err.Error(), true)
		} else {
			m.setStatus("detached from "+model.SessionName(msg.key), false)
		}
		m.deps.Refresh.Trigger()
		return m, nil
	}

	switch m.state {
	case stateNewIssue:
		return m.updateNewIssue(msg)
	case stateConfirm:
		return m.updateConfirm(msg)
	case stateFilter:
		return m.updateFilter(msg)
	default:
		return m.updateNormal(msg)
	}
}

type execExitedMsg struct {
	key string
	err error
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m *Model) syncLog() {
	m.logView.SetContent(renderLog(m.deps.Log.Entries(), m.width))
	m.logView.GotoBottom()
}

func (m Model) updateNormal(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	b := m.deps.Board
	focus := m.view.Focus

	switch {
	case key.Matches(km, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(km, m.keys.Up):
		b.Move(focus, -1)
	case key.Matches(km, m.keys.Down):
		b.Move(focus, 1)
	case key.Matches(km, m.keys.Left):
		b.SetFocus((focus + board.NumColumns - 1) % board.NumColumns)
	case key.Matches(km, m.keys.Right), key.Matches(km, m.keys.NextFocus):
		b.SetFocus((focus + 1) % board.NumColumns)
	case key.Matches(km, m.keys.Refresh):
		m.deps.Refresh.Trigger()
		m.setStatus("refreshing…", false)
	case key.Matches(km, m.keys.Pull):
		return m, action("pull main", "", func() error { return m.deps.Orchestrator.PullMain(m.ctx) })
	case key.Matches(km, m.keys.State):
		f := m.deps.Refresh.Filter()
		if f.State == tracker.StateClosed {
			f.State = tracker.StateOpen
		} else {
			f.State = tracker.StateClosed
		}
		m.deps.Refresh.SetFilter(f)
		m.setStatus("showing "+m.filterLabel(), false)
	case key.Matches(km, m.keys.Mine):
		f := m.deps.Refresh.Filter()
		f.Mine = !f.Mine
		m.deps.Refresh.SetFilter(f)
		m.setStatus("showing "+m.filterLabel(), false)
	case key.Matches(km, m.keys.ToggleLog):
		m.showLog = !m.showLog
	case key.Matches(km, m.keys.Filter):
		m.state = stateFilter
		m.filterInput.SetValue(m.query)
		m.filterInput.Focus()
		return m, textinput.Blink
	case key.Matches(km, m.keys.NewIssue):
		m.state = stateNewIssue
		m.inputErr = ""
		m.titleInput.Reset()
		m.bodyInput.Reset()
		m.bodyInput.Blur()
		m.titleInput.Focus()
		return m, textinput.Blink
	default:
		return m.columnAction(km)
	}
	m.view = b.Snapshot()
	return m, nil
}

// columnAction handles the bindings that act on the focused column's
// selected entity.
func (m Model) columnAction(km tea.KeyMsg) (tea.Model, tea.Cmd) {
	o := m.deps.Orchestrator
	id := m.view.Selected[m.view.Focus]
	if id == "" {
		return m, nil
	}

	switch m.view.Focus {
	case board.Issues:
		is, ok := m.issue(id)
		if !ok {
			return m, nil
		}
		switch {
		case key.Matches(km, m.keys.Enter):
			if ws, ok := m.workspace(is.Key()); ok && ws.Lifecycle.Active() {
				return m, attachCmd(m.ctx, o, ws.Key)
			}
			m.busy[is.Key()] = true
			m.setStatus("starting workspace for #"+id+"…", false)
			return m, createCmd(m.ctx, o, is)
		case key.Matches(km, m.keys.Close):
			return m.ask(confirmation{
				title:  "Close Issue",
				detail: board.IssueTitle(is),
				danger: true,
				run:    action("close #"+id, "", func() error { return o.CloseIssue(m.ctx, is.Number) }),
			})
		case key.Matches(km, m.keys.Open) && is.URL != "":
			return m, openURLCmd(is.URL)
		}

	case board.Workspaces, board.Sessions:
		ws, hasWorkspace := m.workspace(id)
		switch {
		case key.Matches(km, m.keys.Enter):
			return m, attachCmd(m.ctx, o, id)
		case key.Matches(km, m.keys.Kill):
			return m.ask(confirmation{
				title:  "Kill Session",
				detail: model.SessionName(id) + "\nThe worktree is kept.",
				danger: true,
				run:    action("kill "+model.SessionName(id), id, func() error { return o.KillSession(m.ctx, id) }),
			})
		case key.Matches(km, m.keys.Remove), key.Matches(km, m.keys.Force):
			if !hasWorkspace {
				return m, nil
			}
			force := key.Matches(km, m.keys.Force)
			detail := ws.Branch + "\n" + ws.Path + "\n\nKills the session, removes the worktree and deletes the branch."
			if force {
				detail += "\nUncommitted changes are discarded."
			}
			return m.ask(confirmation{
				title:  "Remove Workspace",
				detail: detail,
				danger: true,
				run:    removeCmd(m.ctx, o, id, force),
			})
		case key.Matches(km, m.keys.Propose) && hasWorkspace:
			return m, action("open PR for "+ws.Branch, "", func() error {
				_, err := o.CreateChange(m.ctx, id)
				return err
			})
		}

	case board.Changes:
		c, ok := m.change(id)
		if !ok {
			return m, nil
		}
		switch {
		case key.Matches(km, m.keys.Ready):
			return m, action("mark #"+id+" ready", "", func() error { return o.MarkReady(m.ctx, c.Number) })
		case key.Matches(km, m.keys.Merge):
			return m.ask(confirmation{
				title:  "Merge",
				detail: board.ChangeTitle(c) + "\nThe workspace of the branch is removed afterwards.",
				run:    action("merge #"+id, "", func() error { return o.Merge(m.ctx, c.Number) }),
			})
		case key.Matches(km, m.keys.Revert):
			return m.ask(confirmation{
				title:  "Revert",
				detail: board.ChangeTitle(c) + "\nOpens a new change undoing this one.",
				danger: true,
				run: action("revert #"+id, "", func() error {
					_, err := o.Revert(m.ctx, c.Number)
					return err
				}),
			})
		case key.Matches(km, m.keys.Open) && c.URL != "":
			return m, openURLCmd(c.URL)
		}
	}
	return m, nil
}

func (m Model) ask(c confirmation) (tea.Model, tea.Cmd) {
	m.state = stateConfirm
	m.confirm = c
	return m, nil
}

func (m Model) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch km.String() {
	case "esc", "n", "N":
		m.state = stateNormal
		m.confirm = confirmation{}
		return m, nil
	case "enter", "y", "Y":
		run := m.confirm.run
		m.state = stateNormal
		m.confirm = confirmation{}
		m.setStatus("working…", false)
		return m, run
	}
	return m, nil
}

func (m Model) updateNewIssue(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc":
			m.state = stateNormal
			m.inputErr = ""
			m.titleInput.Blur()
			m.bodyInput.Blur()
			return m, nil
		case "tab", "shift+tab":
			if m.titleInput.Focused() {
				m.titleInput.Blur()
				m.bodyInput.Focus()
			} else {
				m.bodyInput.Blur()
				m.titleInput.Focus()
			}
			return m, textinput.Blink
		case "enter":
			title := strings.TrimSpace(m.titleInput.Value())
			if title == "" {
				m.inputErr = "title cannot be empty"
				return m, nil
			}
			body := strings.TrimSpace(m.bodyInput.Value())
			m.state = stateNormal
			m.inputErr = ""
			m.titleInput.Blur()
			m.bodyInput.Blur()
			o := m.deps.Orchestrator
			return m, action("create issue", "", func() error {
				_, err := o.CreateIssue(m.ctx, title, body)
				return err
			})
		}
	}
	var cmd tea.Cmd
	if m.titleInput.Focused() {
		m.titleInput, cmd = m.titleInput.Update(msg)
	} else {
		m.bodyInput, cmd = m.bodyInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updateFilter(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc":
			m.state = stateNormal
			m.query = ""
			m.filterInput.Reset()
			m.filterInput.Blur()
			return m, nil
		case "enter":
			m.state = stateNormal
			m.filterInput.Blur()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.query = strings.TrimSpace(m.filterInput.Value())
	return m, cmd
}

// — lookups —————————————————————————————————————————————————————————————————

func (m Model) issue(id string) (model.Issue, bool) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return model.Issue{}, false
	}
	for _, is := range m.view.Issues {
		if is.Number == n {
			return is, true
		}
	}
	return model.Issue{}, false
}

func (m Model) workspace(key string) (model.Workspace, bool) {
	for _, w := range m.view.Workspaces {
		if w.Key == key {
			return w, true
		}
	}
	return model.Workspace{}, false
}

func (m Model) change(id string) (model.ProposedChange, bool) {
	for _, c := range m.view.Changes {
		if c.ID() == id {
			return c, true
		}
	}
	return model.ProposedChange{}, false
}

func (m Model) session(id string) (model.Session, bool) {
	for _, s := range m.view.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}

func (m Model) filterLabel() string {
	f := m.deps.Refresh.Filter()
	state := f.State
	if state == "" {
		state = tracker.StateOpen
	}
	who := "all"
	if f.Mine {
		who = "mine"
	}
	return fmt.Sprintf("%s · %s", state, who)
}
