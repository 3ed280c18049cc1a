package tui

import (
	"context"
	"errors"
	"os/exec"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"

	"octodeck/internal/model"
	"octodeck/internal/orchestrator"
)

// — messages ————————————————————————————————————————————————————————————————

type boardChangedMsg struct{}

type sessionsChangedMsg struct{}

// actionDoneMsg reports a finished orchestrator call. The message log
// already holds the details; the model only shows a one-line status.
type actionDoneMsg struct {
	what string
	key  string
	err  error
}

type attachReadyMsg struct {
	key string
	cmd *exec.Cmd
	err error
}

type detachedMsg struct {
	key string
	err error
}

// — commands ————————————————————————————————————————————————————————————————

// listen blocks until ch fires and reports it as msg. The model
// re-issues the command after every delivery.
func listen(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}

func action(what, key string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{what: what, key: key, err: fn()}
	}
}

func createCmd(ctx context.Context, o *orchestrator.Orchestrator, is model.Issue) tea.Cmd {
	return action("start "+is.Key(), is.Key(), func() error {
		_, err := o.Create(ctx, is)
		return err
	})
}

func removeCmd(ctx context.Context, o *orchestrator.Orchestrator, key string, force bool) tea.Cmd {
	return action("remove "+key, key, func() error { return o.Remove(ctx, key, force) })
}

func attachCmd(ctx context.Context, o *orchestrator.Orchestrator, key string) tea.Cmd {
	return func() tea.Msg {
		cmd, err := o.Attach(ctx, key)
		return attachReadyMsg{key: key, cmd: cmd, err: err}
	}
}

func detachCmd(o *orchestrator.Orchestrator, key string, err error) tea.Cmd {
	return func() tea.Msg {
		o.Detached(key)
		return detachedMsg{key: key, err: err}
	}
}

func openURLCmd(url string) tea.Cmd {
	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		return actionDoneMsg{what: "open " + url, err: cmd.Run()}
	}
}

func isConflict(err error) bool {
	var conflict *orchestrator.ConflictError
	return errors.As(err, &conflict)
}
