// Package testutil holds fakes shared by collaborator tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Line renders the call as a command line.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Reply is a scripted response.
type Reply struct {
	Out string
	Err error
}

// FakeRunner records calls and answers them from rules matched by command
// line prefix. Unmatched calls succeed with empty output.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call
	rules []rule
}

type rule struct {
	prefix  string
	replies []Reply
}

// ErrExit stands in for a non-zero exit status.
var ErrExit = errors.New("exit status 1")

// On scripts replies for calls whose command line starts with prefix. The
// replies are consumed in order; the last one repeats.
func (f *FakeRunner) On(prefix string, replies ...Reply) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, replies: replies})
	return f
}

func (f *FakeRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.calls = append(f.calls, c)
	line := c.Line()
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := &f.rules[i]
		if !strings.HasPrefix(line, r.prefix) || len(r.replies) == 0 {
			continue
		}
		reply := r.replies[0]
		if len(r.replies) > 1 {
			r.replies = r.replies[1:]
		}
		return []byte(reply.Out), reply.Err
	}
	return nil, nil
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded command lines.
func (f *FakeRunner) Lines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Line())
	}
	return out
}

// Count returns how many recorded calls start with prefix.
func (f *FakeRunner) Count(prefix string) int {
	n := 0
	for _, l := range f.Lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
