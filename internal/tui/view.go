package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"octodeck/internal/board"
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
	"octodeck/internal/msglog"
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	helpStyle  = lipgloss.NewStyle().Faint(true).PaddingLeft(1)
	labelStyle = lipgloss.NewStyle().Faint(true)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			PaddingLeft(1)

	focusedColumnStyle = columnStyle.BorderForeground(lipgloss.Color("205"))

	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	relatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 3).
			Width(58)

	dangerModalStyle = modalStyle.BorderForeground(lipgloss.Color("196"))
)

const logHeight = 6

// — view ————————————————————————————————————————————————————————————————————

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	switch m.state {
	case stateNewIssue:
		return m.renderNewIssue()
	case stateConfirm:
		return m.renderConfirm()
	}

	parts := []string{m.renderHeader(), m.renderColumns(), m.renderDetail()}
	if m.showLog {
		parts = append(parts, dimStyle.Render(strings.Repeat("─", m.width)), m.logView.View())
	}
	parts = append(parts, m.renderStatus(), m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	h := titleStyle.Render("octodeck")
	if m.deps.Repo != "" {
		h += " " + m.deps.Repo
	}
	meta := []string{m.filterLabel()}
	if m.deps.Tracker != "" {
		meta = append(meta, m.deps.Tracker)
	}
	if m.deps.Multiplexer != "" {
		meta = append(meta, m.deps.Multiplexer)
	}
	if m.query != "" || m.state == stateFilter {
		meta = append(meta, m.filterInput.View())
	}
	return h + dimStyle.Render("  "+strings.Join(meta, " · "))
}

// columnsHeight is what is left for the columns once the fixed rows are
// placed: header, detail, status and help, plus the log pane.
func (m Model) columnsHeight() int {
	h := m.height - 4
	if m.showLog {
		h -= logHeight + 1
	}
	return max(h, 5)
}

func (m Model) renderColumns() string {
	colWidth := m.width / board.NumColumns
	height := m.columnsHeight()
	// border top and bottom, column title
	rows := height - 3

	var related board.Related
	if id := m.view.Selected[m.view.Focus]; id != "" {
		related = m.view.Related(m.view.Focus, id)
	}

	cols := make([]string, board.NumColumns)
	for c := board.Column(0); c < board.NumColumns; c++ {
		ids := m.view.Filter(c, m.query)
		lines := make([]string, 0, len(ids))
		start := scrollStart(ids, m.view.Selected[c], rows)
		for i := start; i < len(ids) && len(lines) < rows; i++ {
			lines = append(lines, m.renderItem(c, ids[i], colWidth-4, related))
		}
		if len(ids) == 0 {
			lines = append(lines, dimStyle.Render("nothing here"))
		}

		title := fmt.Sprintf("%s (%d)", columnTitle(c), len(ids))
		style := columnStyle
		if c == m.view.Focus {
			style = focusedColumnStyle
			title = titleStyle.Render(title)
		} else {
			title = boldStyle.Render(title)
		}
		body := title + "\n" + strings.Join(lines, "\n")
		cols[c] = style.Width(colWidth - 2).Height(height - 2).Render(body)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func columnTitle(c board.Column) string {
	switch c {
	case board.Issues:
		return "Issues"
	case board.Workspaces:
		return "Workspaces"
	case board.Sessions:
		return "Sessions"
	default:
		return "Changes"
	}
}

// scrollStart keeps the selected row inside a window of rows lines.
func scrollStart(ids []string, selected string, rows int) int {
	for i, id := range ids {
		if id == selected && i >= rows {
			return i - rows + 1
		}
	}
	return 0
}

func (m Model) renderItem(c board.Column, id string, width int, related board.Related) string {
	glyph, text := " ", ""
	switch c {
	case board.Issues:
		if is, ok := m.issue(id); ok {
			text = board.IssueTitle(is)
			if is.State == model.IssueClosed {
				glyph = dimStyle.Render("✓")
			}
		}
	case board.Workspaces:
		if w, ok := m.workspace(id); ok {
			glyph, text = m.workspaceGlyph(w), w.Key+" "+w.Branch
		}
	case board.Sessions:
		if s, ok := m.session(id); ok {
			glyph, text = m.sessionGlyph(s), model.SessionName(s.ID)+" "+s.Status.String()
		}
	case board.Changes:
		if ch, ok := m.change(id); ok {
			text = fmt.Sprintf("#%d %s [%s]", ch.Number, ch.Title, ch.State)
		}
	}
	// the glyph may carry escape codes, so only the plain text is cut
	text = truncate(text, width-2)

	switch {
	case id == m.view.Selected[c] && c == m.view.Focus:
		text = cursorStyle.Render(text)
	case id == m.view.Selected[c]:
		text = boldStyle.Render(text)
	case related.Has(c, id):
		text = relatedStyle.Render(text)
	}
	return glyph + " " + text
}

func (m Model) workspaceGlyph(w model.Workspace) string {
	if m.busy[w.Key] || w.Lifecycle.InFlight() {
		return m.spinner.View()
	}
	switch w.State() {
	case model.WorkspaceReady:
		return okStyle.Render("●")
	case model.WorkspaceFailed:
		return errStyle.Render("✗")
	}
	return " "
}

func (m Model) sessionGlyph(s model.Session) string {
	switch s.Status {
	case model.StatusStarting, model.StatusWorking:
		return m.spinner.View()
	case model.StatusWaitingForPermission:
		return warnStyle.Render("!")
	case model.StatusIdle:
		return dimStyle.Render("·")
	case model.StatusExited:
		return dimStyle.Render("x")
	}
	return dimStyle.Render("?")
}

// renderDetail describes the selected entity of the focused column on
// one line.
func (m Model) renderDetail() string {
	id := m.view.Selected[m.view.Focus]
	if id == "" {
		return ""
	}
	row := func(pairs ...string) string {
		var b strings.Builder
		for i := 0; i+1 < len(pairs); i += 2 {
			if pairs[i+1] == "" {
				continue
			}
			b.WriteString(labelStyle.Render(pairs[i]+" ") + pairs[i+1] + "  ")
		}
		return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
	}

	switch m.view.Focus {
	case board.Issues:
		if is, ok := m.issue(id); ok {
			body := strings.Join(strings.Fields(is.Body), " ")
			return row("issue", "#"+id, "state", string(is.State), "body", truncate(body, m.width/2))
		}
	case board.Workspaces:
		if w, ok := m.workspace(id); ok {
			state := w.Lifecycle.String()
			if w.Lifecycle.Phase == lifecycle.Failed {
				state = errStyle.Render(state)
			}
			return row("path", w.Path, "state", state)
		}
	case board.Sessions:
		if s, ok := m.session(id); ok {
			updated := ""
			if !s.UpdatedAt.IsZero() {
				updated = s.UpdatedAt.Format("15:04:05")
			}
			return row("session", model.SessionName(s.ID), "status", s.Status.String(), "detail", s.Detail, "updated", updated)
		}
	case board.Changes:
		if c, ok := m.change(id); ok {
			review := ""
			if c.HasUnresolved {
				review = warnStyle.Render("unresolved threads")
			} else if c.ReviewReady {
				review = okStyle.Render("ready")
			}
			return row("branch", c.Branch, "ci", pipelineLabel(c.PipelineStatus), "review", review, "url", c.URL)
		}
	}
	return ""
}

func pipelineLabel(status string) string {
	switch status {
	case "success":
		return okStyle.Render("passed")
	case "failed", "failure":
		return errStyle.Render("failed")
	case "running":
		return warnStyle.Render("running")
	case "pending", "waiting_for_resource", "preparing", "scheduled":
		return warnStyle.Render("pending")
	case "canceled", "skipped":
		return dimStyle.Render(status)
	case "":
		return ""
	default:
		return dimStyle.Render(status)
	}
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return " " + errStyle.Render(m.status)
	}
	return " " + okStyle.Render(m.status)
}

func (m Model) renderHelp() string {
	k := m.keys
	var text string
	switch m.view.Focus {
	case board.Issues:
		text = helpLine(k.Enter, k.NewIssue, k.Close, k.Open)
	case board.Workspaces:
		text = helpLine(k.Enter, k.Remove, k.Force, k.Propose, k.Kill)
	case board.Sessions:
		text = helpLine(k.Enter, k.Kill, k.Remove)
	case board.Changes:
		text = helpLine(k.Ready, k.Merge, k.Revert, k.Open)
	}
	text += "   " + helpLine(k.Filter, k.State, k.Mine, k.Refresh, k.Pull, k.ToggleLog, k.Quit)
	return helpStyle.Render(text)
}

func renderLog(entries []msglog.Entry, width int) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%s %-9s %s", e.Time.Format("15:04:05"), e.Source, e.Text)
		if width > 0 {
			line = truncate(line, width-1)
		}
		switch e.Level {
		case msglog.Error:
			line = errStyle.Render(line)
		case msglog.Warn:
			line = warnStyle.Render(line)
		default:
			line = dimStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// — modals ——————————————————————————————————————————————————————————————————

func (m Model) renderNewIssue() string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("New Issue") + "\n\n")
	b.WriteString("Title\n")
	b.WriteString(m.titleInput.View() + "\n\n")
	b.WriteString("Description\n")
	b.WriteString(m.bodyInput.View() + "\n")
	if m.inputErr != "" {
		b.WriteString("\n" + errStyle.Render(m.inputErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Enter create · Tab switch field · Esc cancel"))
	return m.place(modalStyle.Render(b.String()))
}

func (m Model) renderConfirm() string {
	c := m.confirm
	style := modalStyle
	head := boldStyle.Render(c.title)
	if c.danger {
		style = dangerModalStyle
		head = errStyle.Render(c.title)
	}
	var b strings.Builder
	b.WriteString(head + "\n\n")
	b.WriteString(c.detail + "\n")
	b.WriteString("\n" + dimStyle.Render("y/Enter to confirm · Esc/n to cancel"))
	return m.place(style.Render(b.String()))
}

func (m Model) place(modal string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
