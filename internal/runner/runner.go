// Package runner executes external collaborator CLIs (git, tmux, screen,
// gh, glab). Collaborator packages take a Runner so tests can script the
// CLI's replies.
package runner

import (
	"context"
	"os/exec"
	"strings"
)

type Runner interface {
	// Run executes name with args in dir (the process working directory
	// when dir is empty) and returns combined stdout and stderr.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Output trims CLI output for inclusion in error messages.
func Output(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "…"
	}
	return s
}
