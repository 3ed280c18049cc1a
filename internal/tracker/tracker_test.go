package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"octodeck/internal/model"
	"octodeck/internal/testutil"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		remote string
		glabOK bool
		want   string
	}{
		{remote: "git@github.com:acme/app.git", want: "github"},
		{remote: "https://gitlab.example.com/acme/app.git", want: "gitlab"},
		{remote: "ssh://git.internal/acme/app.git", glabOK: true, want: "gitlab"},
		{remote: "ssh://git.internal/acme/app.git", want: ""},
	}
	for _, tt := range tests {
		fr := &testutil.FakeRunner{}
		fr.On("git remote get-url origin", testutil.Reply{Out: tt.remote + "\n"})
		if !tt.glabOK {
			fr.On("glab repo view", testutil.Reply{Err: testutil.ErrExit})
		}
		got := Detect(context.Background(), fr, "/src/app", "")
		kind := ""
		if got != nil {
			kind = got.Kind()
		}
		if kind != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.remote, kind, tt.want)
		}
	}
}

func TestNumberFromURL(t *testing.T) {
	out := "Creating issue in acme/app\n\nhttps://github.com/acme/app/issues/17\n"
	n, url, ok := numberFromURL(out)
	if !ok || n != 17 || url != "https://github.com/acme/app/issues/17" {
		t.Fatalf("numberFromURL = %d %q %v", n, url, ok)
	}
	if _, _, ok := numberFromURL("nothing useful"); ok {
		t.Fatal("parsed a number from non-URL output")
	}
}

func TestGitHubListChanges(t *testing.T) {
	const out = `[
	{"number":9,"title":"Newer","state":"OPEN","isDraft":true,"headRefName":"feature/x","statusCheckRollup":[],"reviewDecision":""},
	{"number":5,"title":"Fix login","state":"OPEN","isDraft":false,"headRefName":"issue-42",
	 "statusCheckRollup":[{"status":"COMPLETED","conclusion":"SUCCESS"},{"state":"PENDING"}],
	 "reviewDecision":"REVIEW_REQUIRED","url":"https://github.com/acme/app/pull/5"}
]`
	fr := &testutil.FakeRunner{}
	fr.On("gh pr list", testutil.Reply{Out: out})
	gh := NewGitHub(fr, "/src/app", "acme/app")

	got, err := gh.ListChanges(context.Background(), Filter{Mine: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Number != 5 {
		t.Fatalf("changes not oldest first: %+v", got)
	}
	c := got[0]
	if c.IssueKey != "42" || c.State != model.ChangeOpen || c.PipelineStatus != "pending" || !c.HasUnresolved {
		t.Fatalf("unexpected change: %+v", c)
	}
	if got[1].State != model.ChangeDraft || got[1].IssueKey != "" {
		t.Fatalf("draft change: %+v", got[1])
	}
	line := fr.Lines()[0]
	for _, want := range []string{"--state open", "--limit 30", "--assignee @me", "--repo acme/app"} {
		if !strings.Contains(line, want) {
			t.Errorf("gh call %q lacks %q", line, want)
		}
	}
}

func TestGHCIStatus(t *testing.T) {
	tests := []struct {
		checks []ghCheck
		want   string
	}{
		{nil, ""},
		{[]ghCheck{{Conclusion: "SUCCESS"}, {State: "SUCCESS"}}, "success"},
		{[]ghCheck{{Conclusion: "SUCCESS"}, {Status: "IN_PROGRESS"}}, "pending"},
		{[]ghCheck{{Status: "IN_PROGRESS"}, {Conclusion: "FAILURE"}}, "failed"},
	}
	for _, tt := range tests {
		if got := ghCIStatus(tt.checks); got != tt.want {
			t.Errorf("ghCIStatus(%+v) = %q, want %q", tt.checks, got, tt.want)
		}
	}
}

func TestGitHubCreateIssue(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("gh issue create", testutil.Reply{Out: "https://github.com/acme/app/issues/101\n"})
	is, err := NewGitHub(fr, "/src/app", "").CreateIssue(context.Background(), "Title", "Body")
	if err != nil {
		t.Fatal(err)
	}
	if is.Number != 101 || is.State != model.IssueOpen {
		t.Fatalf("CreateIssue = %+v", is)
	}
}

func TestGitHubRevert(t *testing.T) {
	fr := &testutil.FakeRunner{}
	fr.On("gh pr view 5", testutil.Reply{Out: "PR_kwDOAbc\n"})
	fr.On("gh api graphql", testutil.Reply{Out: `{"data":{"revertPullRequest":{"revertPullRequest":{"number":6,"url":"https://github.com/acme/app/pull/6"}}}}`})

	url, err := NewGitHub(fr, "/src/app", "").Revert(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://github.com/acme/app/pull/6" {
		t.Fatalf("Revert url = %q", url)
	}
	if n := fr.Count("gh api graphql -f query=mutation"); n != 1 {
		t.Fatalf("mutation calls = %d: %v", n, fr.Lines())
	}
}

func TestGitLabListChanges(t *testing.T) {
	const out = `[{"iid":3,"title":"MR","state":"opened","draft":false,"source_branch":"issue-8",
	"pipeline":{"status":"failed"},"blocking_discussions_resolved":false}]`
	fr := &testutil.FakeRunner{}
	fr.On("glab mr list", testutil.Reply{Out: out})
	got, err := NewGitLab(fr, "/src/app", "").ListChanges(context.Background(), Filter{State: StateMerged})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].IssueKey != "8" || got[0].PipelineStatus != "failed" || !got[0].HasUnresolved || got[0].ReviewReady {
		t.Fatalf("ListChanges = %+v", got)
	}
	if !strings.Contains(fr.Lines()[0], "--merged") {
		t.Fatalf("merged filter not passed: %v", fr.Lines())
	}
}

func TestGitLabRevertUnsupported(t *testing.T) {
	_, err := NewGitLab(&testutil.FakeRunner{}, "", "").Revert(context.Background(), 1)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(filepath.Join(t.TempDir(), "acme--app", "store.json"))

	first, err := l.CreateIssue(ctx, "First", "body")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := l.CreateIssue(ctx, "Second", "")
	if first.Number != 1 || second.Number != 2 {
		t.Fatalf("numbers = %d, %d", first.Number, second.Number)
	}
	if err := l.CloseIssue(ctx, 1); err != nil {
		t.Fatal(err)
	}
	open, _ := l.ListIssues(ctx, Filter{})
	closed, _ := l.ListIssues(ctx, Filter{State: StateClosed})
	if len(open) != 1 || open[0].Number != 2 || len(closed) != 1 || closed[0].Number != 1 {
		t.Fatalf("open=%+v closed=%+v", open, closed)
	}
	if err := l.CloseIssue(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("closing unknown issue: %v", err)
	}

	ch, err := l.CreateChange(ctx, ChangeRequest{Title: "Fix", Branch: "issue-2", Base: "main", Draft: true})
	if err != nil {
		t.Fatal(err)
	}
	if ch.State != model.ChangeDraft || ch.IssueKey != "2" {
		t.Fatalf("CreateChange = %+v", ch)
	}
	if _, err := l.CreateChange(ctx, ChangeRequest{Title: "Again", Branch: "issue-2"}); err == nil {
		t.Fatal("second open change for the same branch accepted")
	}
	if err := l.MarkReady(ctx, ch.Number); err != nil {
		t.Fatal(err)
	}
	if err := l.Merge(ctx, ch.Number); err != nil {
		t.Fatal(err)
	}
	if err := l.Merge(ctx, ch.Number); err == nil {
		t.Fatal("merging twice succeeded")
	}
	merged, _ := l.ListChanges(ctx, Filter{State: StateMerged})
	if len(merged) != 1 || merged[0].State != model.ChangeMerged {
		t.Fatalf("merged = %+v", merged)
	}

	// a fresh instance sees the persisted store
	again := NewLocal(l.Path())
	open, _ = again.ListIssues(ctx, Filter{})
	if len(open) != 1 {
		t.Fatalf("reloaded open issues = %+v", open)
	}
}

func TestLocalListLimit(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(filepath.Join(t.TempDir(), "store.json"))
	for i := 0; i < 5; i++ {
		if _, err := l.CreateIssue(ctx, "t", ""); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := l.ListIssues(ctx, Filter{Limit: 3})
	if len(got) != 3 || got[0].Number != 3 {
		t.Fatalf("limited listing = %+v", got)
	}
}
