package model

import (
	"testing"

	"octodeck/internal/lifecycle"
)

func TestKeyFromBranch(t *testing.T) {
	tests := []struct {
		branch string
		key    string
		ok     bool
	}{
		{"issue-42", "42", true},
		{"feature/issue-7", "7", true},
		{"issue-12-fix-login", "12", true},
		{"local-issue-3", "3", true},
		{"issue-", "", false},
		{"issue-abc", "", false},
		{"main", "", false},
	}
	for _, tt := range tests {
		key, ok := KeyFromBranch(tt.branch)
		if key != tt.key || ok != tt.ok {
			t.Errorf("KeyFromBranch(%q) = %q, %v; want %q, %v", tt.branch, key, ok, tt.key, tt.ok)
		}
	}
}

func TestNamingRoundTrip(t *testing.T) {
	key := KeyForIssue(42)
	if key != "42" {
		t.Fatalf("unexpected key %q", key)
	}
	if got := NormaliseKey(SessionName(key)); got != key {
		t.Fatalf("NormaliseKey(SessionName) = %q", got)
	}
	if got, _ := KeyFromBranch(BranchForKey(key)); got != key {
		t.Fatalf("KeyFromBranch(BranchForKey) = %q", got)
	}
}

func TestWorkspaceState(t *testing.T) {
	tests := map[lifecycle.Phase]WorkspaceState{
		lifecycle.Requested:        WorkspaceCreating,
		lifecycle.LaunchingSession: WorkspaceCreating,
		lifecycle.Ready:            WorkspaceReady,
		lifecycle.Attaching:        WorkspaceReady,
		lifecycle.Removing:         WorkspaceRemoving,
		lifecycle.Removed:          WorkspaceRemoved,
		lifecycle.Failed:           WorkspaceFailed,
	}
	for p, want := range tests {
		w := Workspace{Lifecycle: lifecycle.State{Phase: p}}
		if got := w.State(); got != want {
			t.Errorf("%s: got %s, want %s", p, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"starting", "working", "idle", "waiting_permission", "exited"} {
		st, err := ParseStatus(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if st.String() != s {
			t.Fatalf("round trip %q -> %q", s, st.String())
		}
	}
	if _, err := ParseStatus("waiting"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestLessKey(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"9", "10", true},
		{"10", "9", false},
		{"42", "42", false},
		{"7", "spike", true},
		{"alpha", "beta", true},
	}
	for _, tt := range tests {
		if got := LessKey(tt.a, tt.b); got != tt.want {
			t.Errorf("LessKey(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
