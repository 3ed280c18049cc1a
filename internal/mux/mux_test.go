package mux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"octodeck/internal/testutil"
)

func TestDetect(t *testing.T) {
	only := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		}
	}
	tests := []struct {
		name      string
		preferred string
		onPath    []string
		want      string
		wantErr   bool
	}{
		{name: "tmux preferred", onPath: []string{"tmux", "screen"}, want: "tmux"},
		{name: "screen fallback", onPath: []string{"screen"}, want: "screen"},
		{name: "explicit screen", preferred: "screen", onPath: []string{"tmux", "screen"}, want: "screen"},
		{name: "explicit but missing", preferred: "tmux", onPath: []string{"screen"}, wantErr: true},
		{name: "nothing installed", wantErr: true},
		{name: "unknown name", preferred: "zellij", onPath: []string{"tmux"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Detect(tt.preferred, only(tt.onPath...), &testutil.FakeRunner{}, "")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Detect = %s, want error", m.Name())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if m.Name() != tt.want {
				t.Fatalf("Detect = %s, want %s", m.Name(), tt.want)
			}
		})
	}
}

func TestDetectNoMultiplexerSentinel(t *testing.T) {
	_, err := Detect("", func(string) (string, error) { return "", errors.New("nope") }, nil, "")
	if !errors.Is(err, ErrNoMultiplexer) {
		t.Fatalf("err = %v, want ErrNoMultiplexer", err)
	}
}

func TestTmuxStartSession(t *testing.T) {
	fr := &testutil.FakeRunner{}
	dir := t.TempDir()
	tm := NewTmux(fr, dir)

	err := tm.StartSession(context.Background(), Spec{
		Name:    "issue-42",
		Dir:     "/src/app-issue-42",
		Command: "claude --help",
		Env:     map[string]string{"OCTODECK_SESSION": "42"},
	})
	if err != nil {
		t.Fatal(err)
	}
	calls := fr.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %v", fr.Lines())
	}
	args := calls[0].Args
	if args[0] != "-L" || args[1] != socketName {
		t.Fatalf("tmux not on the private socket: %v", args)
	}
	last := args[len(args)-1]
	if last != "export OCTODECK_SESSION='42'; claude --help" {
		t.Fatalf("command arg = %q", last)
	}
	conf, err := os.ReadFile(filepath.Join(dir, "tmux.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(conf), "detach-client") {
		t.Fatalf("tmux.conf lacks detach binding:\n%s", conf)
	}
}

func TestTmuxKillSessionIdempotent(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("tmux -L octodeck kill-session", testutil.Reply{Out: "can't find session: issue-1", Err: testutil.ErrExit})
	if err := NewTmux(fr, "").KillSession(context.Background(), "issue-1"); err != nil {
		t.Fatalf("killing a missing session: %v", err)
	}

	fr = &testutil.FakeRunner{}
	fr.On("tmux -L octodeck kill-session", testutil.Reply{Out: "permission denied", Err: testutil.ErrExit})
	if err := NewTmux(fr, "").KillSession(context.Background(), "issue-1"); err == nil {
		t.Fatal("unexpected success")
	}
}

func TestTmuxListSessions(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("tmux -L octodeck list-sessions", testutil.Reply{Out: "issue-1\nissue-22\n\n"})
	got, err := NewTmux(fr, "").ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "issue-1" || got[1] != "issue-22" {
		t.Fatalf("ListSessions = %v", got)
	}

	fr = &testutil.FakeRunner{}
	fr.On("tmux -L octodeck list-sessions", testutil.Reply{Out: "no server running on /tmp/tmux-0/octodeck", Err: testutil.ErrExit})
	got, err = NewTmux(fr, "").ListSessions(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("no server: %v, %v", got, err)
	}
}

func TestScreenListSessions(t *testing.T) {
	const out = "There are screens on:\n" +
		"\t4021.issue-7\t(10/17/2026 09:12:01 AM)\t(Detached)\n" +
		"\t3990.issue-12\t(Attached)\n" +
		"2 Sockets in /run/screen/S-dev.\n"
	fr := &testutil.FakeRunner{}
	fr.On("screen -ls", testutil.Reply{Out: out, Err: testutil.ErrExit})
	got, err := NewScreen(fr).ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "issue-7" || got[1] != "issue-12" {
		t.Fatalf("ListSessions = %v", got)
	}

	fr = &testutil.FakeRunner{}
	fr.On("screen -ls", testutil.Reply{Out: "No Sockets found in /run/screen/S-dev.\n", Err: testutil.ErrExit})
	got, err = NewScreen(fr).ListSessions(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("no sockets: %v, %v", got, err)
	}
}

func TestScreenStartSessionRunsInDir(t *testing.T) {
	fr := &testutil.FakeRunner{}
	err := NewScreen(fr).StartSession(context.Background(), Spec{Name: "issue-3", Dir: "/w", Command: "claude"})
	if err != nil {
		t.Fatal(err)
	}
	c := fr.Calls()[0]
	if c.Dir != "/w" || c.Line() != "screen -dmS issue-3 sh -c claude" {
		t.Fatalf("call = %+v", c)
	}
}

func TestShellQuote(t *testing.T) {
	if got := ShellQuote("it's"); got != `'it'\''s'` {
		t.Fatalf("ShellQuote = %s", got)
	}
}
