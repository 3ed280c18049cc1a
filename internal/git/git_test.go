package git

import (
	"context"
	"errors"
	"testing"

	"octodeck/internal/lifecycle"
	"octodeck/internal/testutil"
)

const porcelain = `worktree /src/app
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /src/app-issue-42
HEAD 2222222222222222222222222222222222222222
branch refs/heads/issue-42

worktree /src/app-spike
HEAD 3333333333333333333333333333333333333333
branch refs/heads/feature/Spike

worktree /src/app-detached
HEAD 4444444444444444444444444444444444444444
detached
`

func TestParseWorktrees(t *testing.T) {
	trees := parseWorktrees(porcelain)
	if len(trees) != 4 {
		t.Fatalf("got %d worktrees, want 4", len(trees))
	}
	if trees[1].path != "/src/app-issue-42" || trees[1].branch != "issue-42" {
		t.Fatalf("unexpected entry: %+v", trees[1])
	}
	if !trees[3].detached || trees[3].branch != "detached" {
		t.Fatalf("detached entry not recognised: %+v", trees[3])
	}
}

func TestListWorktreesSkipsMainCheckout(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git worktree list", testutil.Reply{Out: porcelain})
	r := New("/src/app", fr)

	got, err := r.ListWorktrees(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d workspaces, want 3: %+v", len(got), got)
	}
	if got[0].Key != "42" || got[0].IssueKey != "42" {
		t.Fatalf("issue worktree key = %q/%q", got[0].Key, got[0].IssueKey)
	}
	if got[0].Lifecycle.Phase != lifecycle.Ready {
		t.Fatalf("listed worktree phase = %v, want ready", got[0].Lifecycle.Phase)
	}
	if got[1].Key != "feature-spike" || got[1].IssueKey != "" {
		t.Fatalf("non-convention worktree = %+v", got[1])
	}
	if got[2].Key != "app-detached" {
		t.Fatalf("detached worktree key = %q", got[2].Key)
	}
}

func TestWorktreePath(t *testing.T) {
	r := New("/src/app", &testutil.FakeRunner{})
	if got := r.WorktreePath("7"); got != "/src/app-issue-7" {
		t.Fatalf("WorktreePath = %q", got)
	}
}

func TestAddWorktreeReusesExistingBranch(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git worktree add /src/app-issue-7 -b issue-7",
		testutil.Reply{Out: "fatal: a branch named 'issue-7' already exists", Err: testutil.ErrExit})
	r := New("/src/app", fr)

	if err := r.AddWorktree(context.Background(), "/src/app-issue-7", "issue-7"); err != nil {
		t.Fatal(err)
	}
	if n := fr.Count("git worktree add /src/app-issue-7 issue-7"); n != 1 {
		t.Fatalf("retry without -b ran %d times, calls: %v", n, fr.Lines())
	}
}

func TestAddWorktreePathExists(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git worktree add", testutil.Reply{Out: "fatal: '/src/app-issue-7' already exists", Err: testutil.ErrExit})
	r := New("/src/app", fr)

	err := r.AddWorktree(context.Background(), "/src/app-issue-7", "issue-7")
	if err == nil || errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want plain failure", err)
	}
	if n := fr.Count("git worktree add"); n != 1 {
		t.Fatalf("worktree add ran %d times, want 1", n)
	}
}

func TestRemoveWorktree(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git worktree list", testutil.Reply{Out: porcelain})
	r := New("/src/app", fr)

	if err := r.RemoveWorktree(context.Background(), "/src/app-issue-42", "issue-42", false); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"git worktree list --porcelain",
		"git worktree remove /src/app-issue-42",
		"git branch -d issue-42",
	}
	got := fr.Lines()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRemoveWorktreeConflicts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testutil.FakeRunner)
		path  string
	}{
		{
			name: "branch checked out elsewhere",
			setup: func(fr *testutil.FakeRunner) {
				fr.On("git worktree list", testutil.Reply{Out: porcelain})
			},
			path: "/src/other-place",
		},
		{
			name: "dirty worktree",
			setup: func(fr *testutil.FakeRunner) {
				fr.On("git worktree remove", testutil.Reply{
					Out: "fatal: '/src/app-issue-42' contains modified or untracked files, use --force to delete it",
					Err: testutil.ErrExit,
				})
			},
			path: "/src/app-issue-42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &testutil.FakeRunner{}
			tt.setup(fr)
			r := New("/src/app", fr)
			err := r.RemoveWorktree(context.Background(), tt.path, "issue-42", false)
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("err = %v, want ErrConflict", err)
			}
			if n := fr.Count("git branch"); n != 0 {
				t.Fatalf("branch deleted despite conflict: %v", fr.Lines())
			}
		})
	}
}

func TestRemoveWorktreeAlreadyGone(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git worktree remove", testutil.Reply{Out: "fatal: '/src/app-issue-9' is not a working tree", Err: testutil.ErrExit})
	fr.On("git branch -D", testutil.Reply{Out: "error: branch 'issue-9' not found.", Err: testutil.ErrExit})
	r := New("/src/app", fr)

	if err := r.RemoveWorktree(context.Background(), "/src/app-issue-9", "issue-9", true); err != nil {
		t.Fatalf("removing a missing worktree: %v", err)
	}
}

func TestPullMain(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git rev-parse --abbrev-ref HEAD", testutil.Reply{Out: "main\n"})
	fr.On("git pull", testutil.Reply{Out: "Already up to date."})
	r := New("/src/app", fr)

	branch, err := r.PullMain(context.Background())
	if err != nil || branch != "main" {
		t.Fatalf("PullMain = %q, %v", branch, err)
	}
	for _, c := range fr.Calls() {
		if c.Dir != "/src/app" {
			t.Fatalf("git ran in %q, want repo root", c.Dir)
		}
	}
}

func TestDefaultBranch(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("git symbolic-ref", testutil.Reply{Out: "origin/trunk\n"})
	if got := New("/src/app", fr).DefaultBranch(context.Background()); got != "trunk" {
		t.Fatalf("DefaultBranch = %q", got)
	}

	fr = &testutil.FakeRunner{}
	fr.On("git symbolic-ref", testutil.Reply{Err: testutil.ErrExit})
	if got := New("/src/app", fr).DefaultBranch(context.Background()); got != "main" {
		t.Fatalf("DefaultBranch fallback = %q", got)
	}
}

func TestCanRemove(t *testing.T) {
	ctx := context.Background()

	fr := &testutil.FakeRunner{}
	fr.On("git worktree list", testutil.Reply{Out: porcelain})
	fr.On("git status --porcelain", testutil.Reply{Out: " M main.go\n"})
	r := New("/src/app", fr)
	if err := r.CanRemove(ctx, "/src/app-issue-42", "issue-42", false); !errors.Is(err, ErrConflict) {
		t.Fatalf("dirty worktree: err = %v", err)
	}
	if err := r.CanRemove(ctx, "/src/app-issue-42", "issue-42", true); err != nil {
		t.Fatalf("forced: %v", err)
	}
	if err := r.CanRemove(ctx, "/src/elsewhere", "issue-42", true); !errors.Is(err, ErrConflict) {
		t.Fatalf("branch checked out elsewhere even with force: err = %v", err)
	}

	fr = &testutil.FakeRunner{}
	fr.On("git worktree list", testutil.Reply{Out: porcelain})
	r = New("/src/app", fr)
	if err := r.CanRemove(ctx, "/src/app-issue-42", "issue-42", false); err != nil {
		t.Fatalf("clean worktree: %v", err)
	}
	for _, c := range fr.Calls() {
		if c.Line() == "git status --porcelain" && c.Dir != "/src/app-issue-42" {
			t.Fatalf("status ran in %q", c.Dir)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"git@github.com:acme/app.git", "acme/app"},
		{"https://github.com/acme/app.git", "acme/app"},
		{"https://github.com/acme/app/", "acme/app"},
		{"ssh://git@gitlab.example.com:2222/group/sub/app.git", "group/sub/app"},
		{"https://gitlab.com/app", ""},
		{"/srv/git/app", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.remote); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}
