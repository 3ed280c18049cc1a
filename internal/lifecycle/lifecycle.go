// Package lifecycle holds the state machine for one workspace and the
// assistant session running inside it. It performs no I/O; the
// orchestrator drives it and records the results on the board.
package lifecycle

import (
	"errors"
	"fmt"
)

// Phase is a step in the workspace+session lifecycle.
type Phase int

const (
	Requested Phase = iota
	CreatingWorkspace
	LaunchingSession
	Ready
	Attaching
	Removing
	Removed
	Failed
)

var phaseNames = [...]string{
	Requested:         "requested",
	CreatingWorkspace: "creating-workspace",
	LaunchingSession:  "launching-session",
	Ready:             "ready",
	Attaching:         "attaching",
	Removing:          "removing",
	Removed:           "removed",
	Failed:            "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// transitions lists the legal successors of every phase. Failed is
// entered through Fail, never through this table, and only leaves via an
// explicit removal.
var transitions = map[Phase][]Phase{
	Requested:         {CreatingWorkspace},
	CreatingWorkspace: {LaunchingSession},
	LaunchingSession:  {Ready},
	Ready:             {Attaching, Removing},
	Attaching:         {Ready, Removing},
	Removing:          {Removed, Ready},
	Failed:            {Removing},
	Removed:           nil,
}

// State is the tagged variant: a phase plus, for Failed, the reason.
type State struct {
	Phase  Phase
	Reason string
}

// New returns the initial state of a freshly requested workspace.
func New() State { return State{Phase: Requested} }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s.Phase == Removed }

// Active reports whether the workspace still occupies its issue's slot.
func (s State) Active() bool { return s.Phase != Removed }

// InFlight reports whether an orchestrator operation currently owns the
// workspace. Refresh never touches in-flight workspaces.
func (s State) InFlight() bool {
	switch s.Phase {
	case Requested, CreatingWorkspace, LaunchingSession, Removing:
		return true
	}
	return false
}

// CanTransition reports whether next is a legal successor of s.
func (s State) CanTransition(next Phase) bool {
	for _, p := range transitions[s.Phase] {
		if p == next {
			return true
		}
	}
	return false
}

// To moves to next, or returns ErrInvalidTransition.
func (s State) To(next Phase) (State, error) {
	if next == Failed {
		return s, fmt.Errorf("%w: use Fail to enter %s", ErrInvalidTransition, Failed)
	}
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, next)
	}
	return State{Phase: next}, nil
}

// Fail moves any non-terminal, non-failed state to Failed(reason).
func (s State) Fail(reason string) (State, error) {
	if s.Phase == Removed || s.Phase == Failed {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, Failed)
	}
	return State{Phase: Failed, Reason: reason}, nil
}

func (s State) String() string {
	if s.Phase == Failed && s.Reason != "" {
		return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
	}
	return s.Phase.String()
}
