// Package mux drives the terminal multiplexer that hosts assistant
// sessions. tmux is preferred; GNU screen is the fallback.
package mux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"octodeck/internal/runner"
)

var ErrNoMultiplexer = errors.New("no terminal multiplexer found (install tmux or screen)")

// Spec describes a detached session to start.
type Spec struct {
	Name    string
	Dir     string
	Command string // shell command line, run by sh
	Env     map[string]string
}

// Multiplexer is the contract the orchestrator and the reconciler rely
// on. KillSession of a session that does not exist succeeds.
type Multiplexer interface {
	Name() string
	StartSession(ctx context.Context, spec Spec) error
	KillSession(ctx context.Context, name string) error
	ListSessions(ctx context.Context) ([]string, error)
	// AttachCmd returns a command that attaches the terminal to a named
	// session. The caller runs it in the foreground.
	AttachCmd(name string) *exec.Cmd
}

// Detect picks a multiplexer. preferred may be "tmux", "screen" or empty.
// lookPath is exec.LookPath outside tests.
func Detect(preferred string, lookPath func(string) (string, error), run runner.Runner, configDir string) (Multiplexer, error) {
	candidates := []string{"tmux", "screen"}
	switch preferred {
	case "":
	case "tmux", "screen":
		candidates = []string{preferred}
	default:
		return nil, fmt.Errorf("unknown multiplexer %q", preferred)
	}
	for _, name := range candidates {
		if _, err := lookPath(name); err != nil {
			continue
		}
		if name == "tmux" {
			return NewTmux(run, configDir), nil
		}
		return NewScreen(run), nil
	}
	if preferred != "" {
		return nil, fmt.Errorf("%w: %s not on PATH", ErrNoMultiplexer, preferred)
	}
	return nil, ErrNoMultiplexer
}

// envPrefix renders env as shell assignments in a stable order.
func envPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s; ", k, ShellQuote(env[k]))
	}
	return b.String()
}

// ShellQuote single-quotes s for sh.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
