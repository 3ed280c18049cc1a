package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"octodeck/internal/model"
	"octodeck/internal/runner"
)

// GitHub drives the gh CLI.
type GitHub struct {
	run  runner.Runner
	dir  string
	repo string // owner/name; empty lets gh infer it from dir
}

func NewGitHub(run runner.Runner, dir, repo string) *GitHub {
	return &GitHub{run: run, dir: dir, repo: repo}
}

func (g *GitHub) Kind() string { return "github" }

func (g *GitHub) gh(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if g.repo != "" {
		args = append(args, "--repo", g.repo)
	}
	out, err := g.run.Run(ctx, g.dir, "gh", args...)
	if err != nil {
		return out, fmt.Errorf("gh %s: %s", args[0]+" "+args[1], runner.Output(out))
	}
	return out, nil
}

type ghLabel struct {
	Name string `json:"name"`
}

type ghUser struct {
	Login string `json:"login"`
}

type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"` // "OPEN", "CLOSED"
	URL       string    `json:"url"`
	Labels    []ghLabel `json:"labels"`
	Assignees []ghUser  `json:"assignees"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ghCheck is one entry of statusCheckRollup: a check run carries
// Status/Conclusion, a commit status carries State.
type ghCheck struct {
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	State      string `json:"state"`
}

// ghPR mirrors the fields we care about from gh's JSON output.
type ghPR struct {
	Number            int       `json:"number"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	State             string    `json:"state"` // "OPEN", "MERGED", "CLOSED"
	URL               string    `json:"url"`
	IsDraft           bool      `json:"isDraft"`
	HeadRefName       string    `json:"headRefName"`
	StatusCheckRollup []ghCheck `json:"statusCheckRollup"`
	// ReviewDecision is the overall review state.
	ReviewDecision string `json:"reviewDecision"` // "APPROVED", "CHANGES_REQUESTED", "REVIEW_REQUIRED", ""
}

func (g *GitHub) ListIssues(ctx context.Context, f Filter) ([]model.Issue, error) {
	args := []string{"issue", "list",
		"--state", string(f.state()),
		"--json", "number,title,body,state,url,labels,assignees,createdAt,updatedAt",
		"--limit", strconv.Itoa(f.limit()),
	}
	if f.Mine {
		args = append(args, "--assignee", "@me")
	}
	out, err := g.gh(ctx, listTimeout, args...)
	if err != nil {
		return nil, err
	}
	var raw []ghIssue
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode gh issues: %w", err)
	}
	issues := make([]model.Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, r.issue())
	}
	// gh lists newest first
	reverse(issues)
	return issues, nil
}

func (r ghIssue) issue() model.Issue {
	is := model.Issue{
		Number:    r.Number,
		Title:     r.Title,
		Body:      r.Body,
		State:     model.IssueOpen,
		URL:       r.URL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if strings.EqualFold(r.State, "closed") {
		is.State = model.IssueClosed
	}
	for _, l := range r.Labels {
		is.Labels = append(is.Labels, l.Name)
	}
	for _, a := range r.Assignees {
		is.Assignees = append(is.Assignees, a.Login)
	}
	return is
}

func (g *GitHub) CreateIssue(ctx context.Context, title, body string) (model.Issue, error) {
	out, err := g.gh(ctx, writeTimeout, "issue", "create",
		"--title", title, "--body", body, "--assignee", "@me")
	if err != nil {
		return model.Issue{}, err
	}
	// gh issue create prints the issue URL
	n, url, ok := numberFromURL(string(out))
	if !ok {
		return model.Issue{}, fmt.Errorf("gh issue create: no issue URL in %q", runner.Output(out))
	}
	now := time.Now()
	return model.Issue{Number: n, Title: title, Body: body, State: model.IssueOpen, URL: url, CreatedAt: now, UpdatedAt: now}, nil
}

func (g *GitHub) CloseIssue(ctx context.Context, number int) error {
	_, err := g.gh(ctx, writeTimeout, "issue", "close", strconv.Itoa(number))
	return err
}

func (g *GitHub) ListChanges(ctx context.Context, f Filter) ([]model.ProposedChange, error) {
	args := []string{"pr", "list",
		"--state", string(f.state()),
		"--json", "number,title,body,state,url,isDraft,headRefName,statusCheckRollup,reviewDecision",
		"--limit", strconv.Itoa(f.limit()),
	}
	if f.Mine {
		args = append(args, "--assignee", "@me")
	}
	out, err := g.gh(ctx, listTimeout, args...)
	if err != nil {
		return nil, err
	}
	var raw []ghPR
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode gh pull requests: %w", err)
	}
	changes := make([]model.ProposedChange, 0, len(raw))
	for _, r := range raw {
		changes = append(changes, r.change())
	}
	reverse(changes)
	return changes, nil
}

func (r ghPR) change() model.ProposedChange {
	c := model.ProposedChange{
		Number:         r.Number,
		Title:          r.Title,
		Body:           r.Body,
		URL:            r.URL,
		Branch:         r.HeadRefName,
		State:          ghState(r.State, r.IsDraft),
		PipelineStatus: ghCIStatus(r.StatusCheckRollup),
		HasUnresolved:  r.ReviewDecision == "CHANGES_REQUESTED" || r.ReviewDecision == "REVIEW_REQUIRED",
	}
	c.ReviewReady = c.State == model.ChangeOpen && r.ReviewDecision != "CHANGES_REQUESTED"
	linkIssue(&c)
	return c
}

func (g *GitHub) CreateChange(ctx context.Context, req ChangeRequest) (model.ProposedChange, error) {
	args := []string{"pr", "create",
		"--head", req.Branch,
		"--base", req.Base,
		"--title", req.Title,
		"--body", req.Body,
	}
	if req.Draft {
		args = append(args, "--draft")
	}
	out, err := g.gh(ctx, writeTimeout, args...)
	if err != nil {
		return model.ProposedChange{}, err
	}
	n, url, ok := numberFromURL(string(out))
	if !ok {
		return model.ProposedChange{}, fmt.Errorf("gh pr create: no pull request URL in %q", runner.Output(out))
	}
	c := model.ProposedChange{Number: n, Title: req.Title, Body: req.Body, URL: url, Branch: req.Branch, State: model.ChangeOpen}
	if req.Draft {
		c.State = model.ChangeDraft
	}
	linkIssue(&c)
	return c, nil
}

func (g *GitHub) MarkReady(ctx context.Context, number int) error {
	_, err := g.gh(ctx, writeTimeout, "pr", "ready", strconv.Itoa(number))
	return err
}

func (g *GitHub) Merge(ctx context.Context, number int) error {
	_, err := g.gh(ctx, writeTimeout, "pr", "merge", strconv.Itoa(number), "--merge", "--delete-branch")
	return err
}

const revertMutation = `mutation($id: ID!) { revertPullRequest(input: {pullRequestId: $id}) { revertPullRequest { number url } } }`

// Revert uses the revertPullRequest GraphQL mutation, which gh has no
// subcommand for.
func (g *GitHub) Revert(ctx context.Context, number int) (string, error) {
	out, err := g.gh(ctx, listTimeout, "pr", "view", strconv.Itoa(number), "--json", "id", "--jq", ".id")
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("pull request %d: %w", number, ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	out, err = g.run.Run(ctx, g.dir, "gh", "api", "graphql",
		"-f", "query="+revertMutation, "-f", "id="+id)
	if err != nil {
		return "", fmt.Errorf("gh api graphql: %s", runner.Output(out))
	}
	var resp struct {
		Data struct {
			RevertPullRequest struct {
				RevertPullRequest struct {
					Number int    `json:"number"`
					URL    string `json:"url"`
				} `json:"revertPullRequest"`
			} `json:"revertPullRequest"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", fmt.Errorf("decode revert response: %w", err)
	}
	return resp.Data.RevertPullRequest.RevertPullRequest.URL, nil
}

// ghState maps GitHub PR state strings to our unified model.
func ghState(s string, draft bool) model.ChangeState {
	switch s {
	case "MERGED":
		return model.ChangeMerged
	case "CLOSED":
		return model.ChangeClosed
	}
	if draft {
		return model.ChangeDraft
	}
	return model.ChangeOpen
}

// ghCIStatus rolls the individual checks up into one pipeline status:
// any failure wins, then anything unfinished, then success.
func ghCIStatus(checks []ghCheck) string {
	if len(checks) == 0 {
		return ""
	}
	pending := false
	for _, c := range checks {
		switch strings.ToUpper(c.Conclusion + c.State) {
		case "FAILURE", "ERROR", "TIMED_OUT", "CANCELLED", "ACTION_REQUIRED", "STARTUP_FAILURE":
			return "failed"
		case "SUCCESS", "NEUTRAL", "SKIPPED":
		default:
			pending = true
		}
	}
	if pending {
		return "pending"
	}
	return "success"
}
