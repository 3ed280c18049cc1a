package mux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"octodeck/internal/runner"
)

// socketName keeps octodeck sessions on their own tmux server.
const socketName = "octodeck"

const tmuxConf = "# octodeck tmux config, rewritten on every session start\n" +
	"# Ctrl+] returns you to the board without stopping the assistant\n" +
	"bind-key -n C-] detach-client\n" +
	"set -g mouse on\n" +
	"bind-key -n PageUp copy-mode\n"

type Tmux struct {
	run       runner.Runner
	configDir string
}

func NewTmux(run runner.Runner, configDir string) *Tmux {
	return &Tmux{run: run, configDir: configDir}
}

func (t *Tmux) Name() string { return "tmux" }

func (t *Tmux) tmux(ctx context.Context, args ...string) ([]byte, error) {
	return t.run.Run(ctx, "", "tmux", append([]string{"-L", socketName}, args...)...)
}

// configPath writes the tmux config and returns its path.
func (t *Tmux) configPath() (string, error) {
	if t.configDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(t.configDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	p := filepath.Join(t.configDir, "tmux.conf")
	if err := os.WriteFile(p, []byte(tmuxConf), 0o644); err != nil {
		return "", fmt.Errorf("write tmux config: %w", err)
	}
	return p, nil
}

func (t *Tmux) StartSession(ctx context.Context, spec Spec) error {
	cfg, err := t.configPath()
	if err != nil {
		return err
	}
	var args []string
	if cfg != "" {
		args = append(args, "-f", cfg)
	}
	args = append(args, "new-session", "-d", "-s", spec.Name, "-c", spec.Dir,
		envPrefix(spec.Env)+spec.Command)
	if out, err := t.tmux(ctx, args...); err != nil {
		return fmt.Errorf("tmux new-session: %s", runner.Output(out))
	}
	return nil
}

func (t *Tmux) KillSession(ctx context.Context, name string) error {
	out, err := t.tmux(ctx, "kill-session", "-t", name)
	if err != nil && !tmuxGone(string(out)) {
		return fmt.Errorf("tmux kill-session: %s", runner.Output(out))
	}
	return nil
}

func (t *Tmux) ListSessions(ctx context.Context) ([]string, error) {
	out, err := t.tmux(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if tmuxGone(string(out)) {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions: %s", runner.Output(out))
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (t *Tmux) AttachCmd(name string) *exec.Cmd {
	return exec.Command("tmux", "-L", socketName, "attach-session", "-t", name)
}

// tmuxGone matches tmux's complaints about a missing session or server.
func tmuxGone(out string) bool {
	return strings.Contains(out, "can't find session") ||
		strings.Contains(out, "session not found") ||
		strings.Contains(out, "no server running") ||
		strings.Contains(out, "error connecting to")
}
