package deps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"octodeck/internal/testutil"
)

func onPath(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range names {
			if n == name {
				return "/usr/bin/" + n, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestCheckAllPresent(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("tmux -V", testutil.Reply{Out: "tmux 3.4\n"})
	c := Checker{LookPath: onPath("git", "tmux", "screen", "claude", "gh", "nc"), Run: fr}

	r := c.Check(context.Background())
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	mux, _ := r.Get("multiplexer")
	if mux.Found != "tmux" || mux.Version != "tmux 3.4" {
		t.Fatalf("multiplexer = %+v", mux)
	}
	if !r.Has("gh") || r.Has("glab") {
		t.Fatal("optional tracker CLIs misreported")
	}
}

func TestCheckFallsBackToAlternatives(t *testing.T) {
	r := Checker{LookPath: onPath("git", "screen", "cursor-agent")}.Check(context.Background())
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	a, _ := r.Get("assistant")
	if a.Found != "cursor-agent" {
		t.Fatalf("assistant = %+v", a)
	}
}

func TestCheckMissingRequired(t *testing.T) {
	r := Checker{LookPath: onPath("git", "gh")}.Check(context.Background())
	err := r.Err()
	if err == nil {
		t.Fatal("missing multiplexer and assistant not reported")
	}
	for _, want := range []string{"multiplexer", "assistant"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
	if len(r.Missing()) != 2 {
		t.Fatalf("Missing = %+v", r.Missing())
	}
}

func TestRenderListsEveryDependency(t *testing.T) {
	r := Checker{LookPath: onPath("git")}.Check(context.Background())
	out := r.Render()
	for _, p := range probes {
		if !strings.Contains(out, p.name) {
			t.Errorf("rendered table lacks %q", p.name)
		}
	}
	if !strings.Contains(out, "missing") {
		t.Error("rendered table does not mark missing dependencies")
	}
}
