package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"octodeck/internal/model"
	"octodeck/internal/runner"
)

// GitLab drives the glab CLI.
type GitLab struct {
	run  runner.Runner
	dir  string
	repo string
}

func NewGitLab(run runner.Runner, dir, repo string) *GitLab {
	return &GitLab{run: run, dir: dir, repo: repo}
}

func (g *GitLab) Kind() string { return "gitlab" }

func (g *GitLab) glab(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if g.repo != "" {
		args = append(args, "--repo", g.repo)
	}
	out, err := g.run.Run(ctx, g.dir, "glab", args...)
	if err != nil {
		return out, fmt.Errorf("glab %s: %s", args[0]+" "+args[1], runner.Output(out))
	}
	return out, nil
}

type glabUser struct {
	Username string `json:"username"`
}

type glabIssue struct {
	IID         int        `json:"iid"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"` // "opened", "closed"
	WebURL      string     `json:"web_url"`
	Labels      []string   `json:"labels"`
	Assignees   []glabUser `json:"assignees"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// glabMR mirrors the fields we care about from glab's JSON output.
type glabMR struct {
	IID          int    `json:"iid"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	State        string `json:"state"`
	WebURL       string `json:"web_url"`
	Draft        bool   `json:"draft"`
	SourceBranch string `json:"source_branch"`
	Pipeline     *struct {
		Status string `json:"status"`
	} `json:"pipeline"`
	BlockingDiscussionsResolved *bool `json:"blocking_discussions_resolved"`
}

func stateFlags(s State) []string {
	switch s {
	case StateClosed:
		return []string{"--closed"}
	case StateMerged:
		return []string{"--merged"}
	}
	return nil
}

func (g *GitLab) ListIssues(ctx context.Context, f Filter) ([]model.Issue, error) {
	args := append([]string{"issue", "list", "-F", "json", "--per-page", strconv.Itoa(f.limit())}, stateFlags(f.state())...)
	if f.Mine {
		args = append(args, "--assignee=@me")
	}
	out, err := g.glab(ctx, listTimeout, args...)
	if err != nil {
		return nil, err
	}
	var raw []glabIssue
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode glab issues: %w", err)
	}
	issues := make([]model.Issue, 0, len(raw))
	for _, r := range raw {
		is := model.Issue{
			Number:    r.IID,
			Title:     r.Title,
			Body:      r.Description,
			State:     model.IssueOpen,
			URL:       r.WebURL,
			Labels:    r.Labels,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
		if r.State == "closed" {
			is.State = model.IssueClosed
		}
		for _, a := range r.Assignees {
			is.Assignees = append(is.Assignees, a.Username)
		}
		issues = append(issues, is)
	}
	reverse(issues)
	return issues, nil
}

func (g *GitLab) CreateIssue(ctx context.Context, title, body string) (model.Issue, error) {
	out, err := g.glab(ctx, writeTimeout, "issue", "create",
		"--title", title, "--description", body, "--assignee", "@me", "--yes")
	if err != nil {
		return model.Issue{}, err
	}
	n, url, ok := numberFromURL(string(out))
	if !ok {
		return model.Issue{}, fmt.Errorf("glab issue create: no issue URL in %q", runner.Output(out))
	}
	now := time.Now()
	return model.Issue{Number: n, Title: title, Body: body, State: model.IssueOpen, URL: url, CreatedAt: now, UpdatedAt: now}, nil
}

func (g *GitLab) CloseIssue(ctx context.Context, number int) error {
	_, err := g.glab(ctx, writeTimeout, "issue", "close", strconv.Itoa(number))
	return err
}

func (g *GitLab) ListChanges(ctx context.Context, f Filter) ([]model.ProposedChange, error) {
	args := append([]string{"mr", "list", "-F", "json", "--per-page", strconv.Itoa(f.limit())}, stateFlags(f.state())...)
	if f.Mine {
		args = append(args, "--assignee=@me")
	}
	out, err := g.glab(ctx, listTimeout, args...)
	if err != nil {
		return nil, err
	}
	var raw []glabMR
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode glab merge requests: %w", err)
	}
	changes := make([]model.ProposedChange, 0, len(raw))
	for _, r := range raw {
		c := model.ProposedChange{
			Number: r.IID,
			Title:  r.Title,
			Body:   r.Description,
			URL:    r.WebURL,
			Branch: r.SourceBranch,
			State:  normaliseState(r.State, r.Draft),
		}
		if r.Pipeline != nil {
			c.PipelineStatus = r.Pipeline.Status
		}
		if r.BlockingDiscussionsResolved != nil {
			c.HasUnresolved = !*r.BlockingDiscussionsResolved
		}
		c.ReviewReady = c.State == model.ChangeOpen && !c.HasUnresolved
		linkIssue(&c)
		changes = append(changes, c)
	}
	reverse(changes)
	return changes, nil
}

func (g *GitLab) CreateChange(ctx context.Context, req ChangeRequest) (model.ProposedChange, error) {
	args := []string{"mr", "create",
		"--source-branch", req.Branch,
		"--target-branch", req.Base,
		"--title", req.Title,
		"--description", req.Body,
		"--yes", // non-interactive
	}
	if req.Draft {
		args = append(args, "--draft")
	}
	out, err := g.glab(ctx, writeTimeout, args...)
	if err != nil {
		return model.ProposedChange{}, err
	}
	n, url, ok := numberFromURL(string(out))
	if !ok {
		return model.ProposedChange{}, fmt.Errorf("glab mr create: no merge request URL in %q", runner.Output(out))
	}
	c := model.ProposedChange{Number: n, Title: req.Title, Body: req.Body, URL: url, Branch: req.Branch, State: model.ChangeOpen}
	if req.Draft {
		c.State = model.ChangeDraft
	}
	linkIssue(&c)
	return c, nil
}

func (g *GitLab) MarkReady(ctx context.Context, number int) error {
	_, err := g.glab(ctx, writeTimeout, "mr", "update", strconv.Itoa(number), "--ready")
	return err
}

func (g *GitLab) Merge(ctx context.Context, number int) error {
	_, err := g.glab(ctx, writeTimeout, "mr", "merge", strconv.Itoa(number), "--remove-source-branch", "--yes")
	return err
}

func (g *GitLab) Revert(context.Context, int) (string, error) {
	return "", fmt.Errorf("revert merge request: %w", ErrUnsupported)
}

// normaliseState maps GitLab state strings to our unified model.
func normaliseState(s string, draft bool) model.ChangeState {
	switch s {
	case "merged":
		return model.ChangeMerged
	case "closed":
		return model.ChangeClosed
	}
	if draft {
		return model.ChangeDraft
	}
	return model.ChangeOpen
}
