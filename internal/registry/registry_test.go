package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"octodeck/internal/model"
)

func newRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New()
	r.now = func() time.Time { return now }
	return r, &now
}

func TestApplyStrictlyIncreasingEndsOnLast(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("42")
	seq := []string{"working", "waiting_permission", "working", "idle"}
	for i, st := range seq {
		if _, err := r.Apply(Event{SessionID: "42", Status: st, Seq: int64(i + 1)}); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	s, _ := r.Get("42")
	if s.Status != model.StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status)
	}
}

func TestOutOfOrderEventsIgnored(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("42")
	if _, err := r.Apply(Event{SessionID: "42", Status: "idle", Seq: 2}); err != nil {
		t.Fatalf("apply seq 2: %v", err)
	}
	_, err := r.Apply(Event{SessionID: "42", Status: "working", Seq: 1})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	_, err = r.Apply(Event{SessionID: "42", Status: "working", Seq: 2})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("equal seq must be stale, got %v", err)
	}
	s, _ := r.Get("42")
	if s.Status != model.StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status)
	}
}

func TestExitedNotResurrectedByOlderEvent(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("7")
	if _, err := r.Apply(Event{SessionID: "7", Status: "working", Seq: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Apply(Event{SessionID: "7", Status: "exited", Seq: 11}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Apply(Event{SessionID: "7", Status: "working", Seq: 9}); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	// re-registration starts a new generation but keeps the sequence floor
	r.Register("7")
	if _, err := r.Apply(Event{SessionID: "7", Status: "working", Seq: 10}); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale after re-register, got %v", err)
	}
	if _, err := r.Apply(Event{SessionID: "7", Status: "working", Seq: 12}); err != nil {
		t.Fatalf("newer event after re-register: %v", err)
	}
}

func TestApplyValidation(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("1")
	tests := []struct {
		name string
		ev   Event
		want error
	}{
		{"unknown session", Event{SessionID: "99", Status: "idle", Seq: 1}, ErrUnknownSession},
		{"bad status", Event{SessionID: "1", Status: "sleeping", Seq: 1}, ErrInvalidStatus},
		{"empty status", Event{SessionID: "1", Seq: 1}, ErrInvalidStatus},
		{"zero seq", Event{SessionID: "1", Status: "idle", Seq: 0}, ErrStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Apply(tt.ev); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	s, _ := r.Get("1")
	if s.Status != model.StatusStarting {
		t.Fatalf("rejected events must not change state, got %s", s.Status)
	}
}

func TestApplyAcceptsSessionNames(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("42")
	s, err := r.Apply(Event{SessionID: "issue-42", Status: "working", Seq: 1, Detail: "Edit"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.ID != "42" || s.Detail != "Edit" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestChangedCoalesces(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("1")
	r.Register("2")
	select {
	case <-r.Changed():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-r.Changed():
		t.Fatal("signals must coalesce")
	default:
	}
}

func TestReconcileMarksMissingSessionsExited(t *testing.T) {
	r, now := newRegistry(t)
	r.Register("1")
	r.Register("2")
	if _, err := r.Apply(Event{SessionID: "1", Status: "working", Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Apply(Event{SessionID: "2", Status: "idle", Seq: 1}); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(time.Minute)
	r.Register("3")

	exited := r.Reconcile([]string{"issue-2"})
	if len(exited) != 1 || exited[0] != "1" {
		t.Fatalf("expected only session 1 exited, got %v", exited)
	}
	if s, _ := r.Get("3"); s.Status != model.StatusStarting {
		t.Fatalf("fresh starting session must survive, got %s", s.Status)
	}

	*now = now.Add(time.Minute)
	exited = r.Reconcile([]string{"issue-2"})
	if len(exited) != 1 || exited[0] != "3" {
		t.Fatalf("expected stuck starting session exited, got %v", exited)
	}
}

func TestReconcileGraceFollowsRegistration(t *testing.T) {
	r, now := newRegistry(t)
	r.Register("42")
	if _, err := r.Apply(Event{SessionID: "42", Status: "working", Seq: 1}); err != nil {
		t.Fatal(err)
	}
	// listing taken before the session was started
	if exited := r.Reconcile(nil); len(exited) != 0 {
		t.Fatalf("working session inside its start grace marked exited: %v", exited)
	}
	*now = now.Add(startGrace)
	if exited := r.Reconcile(nil); len(exited) != 1 {
		t.Fatalf("expected exit after the grace window, got %v", exited)
	}

	r.Adopt("7")
	if exited := r.Reconcile(nil); len(exited) != 1 || exited[0] != "7" {
		t.Fatalf("adopted sessions get no grace, got %v", exited)
	}
}

func TestForgetKeepsSequence(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register("42")
	for i, st := range []string{"working", "exited"} {
		if _, err := r.Apply(Event{SessionID: "42", Status: st, Seq: int64(100 * (i + 1))}); err != nil {
			t.Fatal(err)
		}
	}
	r.Forget("42")
	r.Register("42")

	if _, err := r.Apply(Event{SessionID: "42", Status: "working", Seq: 150}); !errors.Is(err, ErrStale) {
		t.Fatalf("event from the previous generation: err = %v, want ErrStale", err)
	}
	if s, _ := r.Get("42"); s.Status != model.StatusStarting {
		t.Fatalf("status = %s, want starting", s.Status)
	}
	if _, err := r.Apply(Event{SessionID: "42", Status: "working", Seq: 201}); err != nil {
		t.Fatalf("newer event rejected: %v", err)
	}
}

func TestSnapshotOrderAndForget(t *testing.T) {
	r, _ := newRegistry(t)
	for _, id := range []string{"10", "9", "100"} {
		r.Register(id)
	}
	snap := r.Snapshot()
	if snap[0].ID != "9" || snap[1].ID != "10" || snap[2].ID != "100" {
		t.Fatalf("unexpected order: %+v", snap)
	}
	r.Forget("10")
	if r.Known("10") {
		t.Fatal("forgotten session still known")
	}
	if !r.Adopt("10") || r.Adopt("9") {
		t.Fatal("adopt must only add unknown sessions")
	}
	if s, _ := r.Get("10"); s.Status != model.StatusUnknown {
		t.Fatalf("adopted session should be unknown, got %s", s.Status)
	}
}

func TestConcurrentApplyAndSnapshot(t *testing.T) {
	r := New()
	r.Register("1")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 1000; i++ {
			_, _ = r.Apply(Event{SessionID: "1", Status: "working", Seq: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = r.Snapshot()
		}
	}()
	wg.Wait()
	if _, err := r.Apply(Event{SessionID: "1", Status: "idle", Seq: 1000}); !errors.Is(err, ErrStale) {
		t.Fatalf("expected last seq 1000 to be recorded, got %v", err)
	}
}
