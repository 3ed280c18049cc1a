// Package tracker abstracts the issue tracker and its proposed changes
// (GitHub pull requests, GitLab merge requests or a local JSON store).
package tracker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"octodeck/internal/model"
	"octodeck/internal/runner"
)

var (
	ErrUnsupported = errors.New("not supported by this tracker")
	ErrNotFound    = errors.New("not found")
)

// State selects which issues or changes a listing returns.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged" // changes only
)

// DefaultLimit caps every listing.
const DefaultLimit = 30

// Filter narrows a listing.
type Filter struct {
	State State
	Mine  bool // only items assigned to the current user
	Limit int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

func (f Filter) state() State {
	if f.State == "" {
		return StateOpen
	}
	return f.State
}

// ChangeRequest are the parameters for opening a proposed change.
type ChangeRequest struct {
	Title  string
	Body   string
	Branch string
	Base   string
	Draft  bool
}

// Tracker is the issue tracker contract. Listing methods return at most
// Filter.Limit items; a listing of exactly Limit items may be truncated.
type Tracker interface {
	Kind() string // "github" | "gitlab" | "local"
	ListIssues(ctx context.Context, f Filter) ([]model.Issue, error)
	CreateIssue(ctx context.Context, title, body string) (model.Issue, error)
	CloseIssue(ctx context.Context, number int) error
	ListChanges(ctx context.Context, f Filter) ([]model.ProposedChange, error)
	CreateChange(ctx context.Context, req ChangeRequest) (model.ProposedChange, error)
	MarkReady(ctx context.Context, number int) error
	Merge(ctx context.Context, number int) error
	// Revert opens a change reverting a merged one and returns its URL.
	Revert(ctx context.Context, number int) (string, error)
}

const (
	listTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Second
)

// Detect returns the tracker for the repo at repoRoot, or nil if the
// remote is unrecognised or no remote exists.
func Detect(ctx context.Context, run runner.Runner, repoRoot, repo string) Tracker {
	out, err := run.Run(ctx, repoRoot, "git", "remote", "get-url", "origin")
	if err != nil {
		return nil
	}
	remote := strings.ToLower(strings.TrimSpace(string(out)))

	switch {
	case strings.Contains(remote, "github.com"):
		return NewGitHub(run, repoRoot, repo)
	case strings.Contains(remote, "gitlab"):
		return NewGitLab(run, repoRoot, repo)
	default:
		// Last-resort probe: if glab is configured for this repo, treat as GitLab.
		if _, err := run.Run(ctx, repoRoot, "glab", "repo", "view"); err == nil {
			return NewGitLab(run, repoRoot, repo)
		}
		return nil
	}
}

// numberFromURL parses the trailing number of an issue or change URL from
// CLI output that may contain other lines.
func numberFromURL(out string) (int, string, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "http") {
			continue
		}
		seg := line[strings.LastIndex(line, "/")+1:]
		if n, err := strconv.Atoi(seg); err == nil {
			return n, line, true
		}
	}
	return 0, "", false
}

func linkIssue(c *model.ProposedChange) {
	if key, ok := model.KeyFromBranch(c.Branch); ok {
		c.IssueKey = key
	}
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
