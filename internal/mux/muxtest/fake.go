// Package muxtest provides an in-memory multiplexer for tests.
package muxtest

import (
	"context"
	"os/exec"
	"sort"
	"sync"

	"octodeck/internal/mux"
)

// Fake records sessions in memory. Setting StartErr, KillErr or ListErr
// makes the corresponding call fail.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]mux.Spec
	Started  []mux.Spec
	Killed   []string

	StartErr error
	KillErr  error
	ListErr  error
}

func New() *Fake { return &Fake{sessions: map[string]mux.Spec{}} }

func (f *Fake) Name() string { return "fake" }

func (f *Fake) StartSession(_ context.Context, spec mux.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, spec)
	if f.StartErr != nil {
		return f.StartErr
	}
	f.sessions[spec.Name] = spec
	return nil
}

func (f *Fake) KillSession(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Killed = append(f.Killed, name)
	if f.KillErr != nil {
		return f.KillErr
	}
	delete(f.sessions, name)
	return nil
}

func (f *Fake) ListSessions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	names := make([]string, 0, len(f.sessions))
	for n := range f.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) AttachCmd(name string) *exec.Cmd {
	return exec.Command("true", name)
}

// Live reports whether name is running.
func (f *Fake) Live(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[name]
	return ok
}

// Add puts a session in place without recording a start.
func (f *Fake) Add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[name] = mux.Spec{Name: name}
}

// Drop simulates a session exiting by itself.
func (f *Fake) Drop(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
}

// StartCount returns the number of StartSession calls.
func (f *Fake) StartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Started)
}

// KillCount returns the number of KillSession calls.
func (f *Fake) KillCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Killed)
}
