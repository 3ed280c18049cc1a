package mux

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"octodeck/internal/runner"
)

type Screen struct {
	run runner.Runner
}

func NewScreen(run runner.Runner) *Screen { return &Screen{run: run} }

func (s *Screen) Name() string { return "screen" }

func (s *Screen) StartSession(ctx context.Context, spec Spec) error {
	out, err := s.run.Run(ctx, spec.Dir, "screen", "-dmS", spec.Name,
		"sh", "-c", envPrefix(spec.Env)+spec.Command)
	if err != nil {
		return fmt.Errorf("screen -dmS: %s", runner.Output(out))
	}
	return nil
}

func (s *Screen) KillSession(ctx context.Context, name string) error {
	out, err := s.run.Run(ctx, "", "screen", "-S", name, "-X", "quit")
	if err != nil && !strings.Contains(string(out), "No screen session found") {
		return fmt.Errorf("screen quit: %s", runner.Output(out))
	}
	return nil
}

// ListSessions parses `screen -ls`, which exits non-zero even when it
// lists sessions.
func (s *Screen) ListSessions(ctx context.Context) ([]string, error) {
	out, err := s.run.Run(ctx, "", "screen", "-ls")
	names := parseScreenList(string(out))
	if err != nil && len(names) == 0 && !strings.Contains(string(out), "No Sockets found") {
		return nil, fmt.Errorf("screen -ls: %s", runner.Output(out))
	}
	return names, nil
}

func (s *Screen) AttachCmd(name string) *exec.Cmd {
	return exec.Command("screen", "-r", name)
}

// parseScreenList extracts names from lines like "\t1234.issue-42\t(Detached)".
func parseScreenList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "\t") {
			continue
		}
		field := strings.Fields(line)
		if len(field) == 0 {
			continue
		}
		_, name, ok := strings.Cut(field[0], ".")
		if ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
