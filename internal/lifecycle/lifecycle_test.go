package lifecycle

import (
	"errors"
	"testing"
)

func TestHappyPath(t *testing.T) {
	s := New()
	for _, next := range []Phase{CreatingWorkspace, LaunchingSession, Ready, Attaching, Ready, Removing, Removed} {
		var err error
		s, err = s.To(next)
		if err != nil {
			t.Fatalf("to %s: %v", next, err)
		}
	}
	if !s.Terminal() {
		t.Fatalf("expected terminal state, got %s", s)
	}
	if s.Active() {
		t.Fatalf("removed state must not be active")
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from Phase
		to   Phase
	}{
		{Requested, Ready},
		{CreatingWorkspace, Ready},
		{Ready, CreatingWorkspace},
		{Removed, Requested},
		{Removed, Removing},
		{Failed, Ready},
		{Ready, Failed},
	}
	for _, tt := range tests {
		_, err := State{Phase: tt.from}.To(tt.to)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestFailFromAnyNonTerminal(t *testing.T) {
	for _, p := range []Phase{Requested, CreatingWorkspace, LaunchingSession, Ready, Attaching, Removing} {
		s, err := State{Phase: p}.Fail("boom")
		if err != nil {
			t.Fatalf("fail from %s: %v", p, err)
		}
		if s.Phase != Failed || s.Reason != "boom" {
			t.Fatalf("unexpected state %+v", s)
		}
	}
	if _, err := (State{Phase: Removed}).Fail("x"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("removed must not fail, got %v", err)
	}
	if _, err := (State{Phase: Failed, Reason: "a"}).Fail("b"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed is absorbing, got %v", err)
	}
}

func TestFailedOnlyLeavesThroughRemoval(t *testing.T) {
	s := State{Phase: Failed, Reason: "rollback failed"}
	s, err := s.To(Removing)
	if err != nil {
		t.Fatalf("failed -> removing: %v", err)
	}
	if s.Reason != "" {
		t.Fatalf("reason must be cleared after leaving Failed")
	}
}

func TestInFlight(t *testing.T) {
	tests := map[Phase]bool{
		Requested:         true,
		CreatingWorkspace: true,
		LaunchingSession:  true,
		Ready:             false,
		Attaching:         false,
		Removing:          true,
		Removed:           false,
		Failed:            false,
	}
	for p, want := range tests {
		if got := (State{Phase: p}).InFlight(); got != want {
			t.Errorf("%s: InFlight=%v, want %v", p, got, want)
		}
	}
}

func TestString(t *testing.T) {
	if got := (State{Phase: Failed, Reason: "no tmux"}).String(); got != "failed(no tmux)" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := Phase(42).String(); got != "phase(42)" {
		t.Fatalf("unexpected string %q", got)
	}
}
