// Package deps checks for the external programs octodeck drives.
package deps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"octodeck/internal/runner"
)

// Dependency is one checked program or group of alternatives.
type Dependency struct {
	Name        string
	Description string
	Required    bool
	Available   bool
	Found       string // the alternative that satisfied the check
	Version     string
}

// Checker probes PATH. LookPath is exec.LookPath outside tests.
type Checker struct {
	LookPath func(string) (string, error)
	Run      runner.Runner
}

type probe struct {
	name        string
	commands    []string
	description string
	required    bool
}

var probes = []probe{
	{"git", []string{"git"}, "version control with worktree support", true},
	{"multiplexer", []string{"tmux", "screen"}, "terminal multiplexer hosting sessions (tmux preferred)", true},
	{"assistant", []string{"claude", "cursor-agent"}, "AI coding assistant (Claude Code or Cursor)", true},
	{"gh", []string{"gh"}, "GitHub CLI (local mode without it)", false},
	{"glab", []string{"glab"}, "GitLab CLI (local mode without it)", false},
	{"hook transport", []string{"nc", "python3"}, "used by the hook script to reach the event socket", false},
}

// Check probes every dependency.
func (c Checker) Check(ctx context.Context) Report {
	var r Report
	for _, p := range probes {
		d := Dependency{Name: p.name, Description: p.description, Required: p.required}
		for _, cmd := range p.commands {
			if _, err := c.LookPath(cmd); err != nil {
				continue
			}
			d.Available = true
			d.Found = cmd
			d.Version = c.version(ctx, cmd)
			break
		}
		r.Deps = append(r.Deps, d)
	}
	return r
}

func (c Checker) version(ctx context.Context, cmd string) string {
	if c.Run == nil {
		return ""
	}
	// tmux and screen use -V instead of --version
	flag := "--version"
	if cmd == "tmux" || cmd == "screen" {
		flag = "-V"
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := c.Run.Run(ctx, "", cmd, flag)
	if err != nil && len(out) == 0 {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return first
}

// Report is the outcome of a Check.
type Report struct {
	Deps []Dependency
}

// Get returns the named dependency.
func (r Report) Get(name string) (Dependency, bool) {
	for _, d := range r.Deps {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// Has reports whether command was found by any probe.
func (r Report) Has(command string) bool {
	for _, d := range r.Deps {
		if d.Available && d.Found == command {
			return true
		}
	}
	return false
}

// Missing returns the required dependencies that were not found.
func (r Report) Missing() []Dependency {
	var out []Dependency
	for _, d := range r.Deps {
		if d.Required && !d.Available {
			out = append(out, d)
		}
	}
	return out
}

// Err describes the missing required dependencies, or is nil.
func (r Report) Err() error {
	missing := r.Missing()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, d := range missing {
		names[i] = d.Name
	}
	return fmt.Errorf("missing required dependencies: %s", strings.Join(names, ", "))
}

// Render formats the report as a table for --check.
func (r Report) Render() string {
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("#3fb950"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DEPENDENCY", "STATUS", "FOUND", "VERSION", "")
	for _, d := range r.Deps {
		status := ok.Render("ok")
		switch {
		case !d.Available && d.Required:
			status = bad.Render("missing")
		case !d.Available:
			status = dim.Render("absent")
		}
		t.Row(d.Name, status, d.Found, d.Version, dim.Render(d.Description))
	}
	return t.Render()
}
