package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"octodeck/internal/board"
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
	"octodeck/internal/tracker"
)

// Tracker actions round-trip through the tracker first; the board copy
// is only updated once the tracker has confirmed.

func (o *Orchestrator) CreateIssue(ctx context.Context, title, body string) (model.Issue, error) {
	is, err := o.tracker.CreateIssue(ctx, title, body)
	if err != nil {
		o.log.Errorf("tracker", "create issue: %v", err)
		return model.Issue{}, err
	}
	o.board.PutIssue(is)
	o.log.Infof("tracker", "created issue #%d", is.Number)
	return is, nil
}

// CloseIssue closes the issue and drops it from the board.
func (o *Orchestrator) CloseIssue(ctx context.Context, number int) error {
	if err := o.tracker.CloseIssue(ctx, number); err != nil {
		o.log.Errorf("tracker", "close issue #%d: %v", number, err)
		return err
	}
	o.board.Evict(board.Issues, strconv.Itoa(number))
	o.log.Infof("tracker", "closed issue #%d", number)
	return nil
}

// CreateChange opens a proposed change for the workspace's branch.
func (o *Orchestrator) CreateChange(ctx context.Context, key string) (model.ProposedChange, error) {
	key = model.NormaliseKey(key)
	ws, ok := o.board.Workspace(key)
	if !ok {
		return model.ProposedChange{}, fmt.Errorf("create change: no workspace %s", key)
	}
	req := tracker.ChangeRequest{
		Title:  "Work on " + ws.Branch,
		Branch: ws.Branch,
		Base:   o.vcs.DefaultBranch(ctx),
		Draft:  o.draft,
	}
	if n, err := strconv.Atoi(ws.IssueKey); err == nil {
		if is, ok := o.board.Issue(n); ok {
			req.Title = is.Title
		}
		req.Body = fmt.Sprintf("Closes #%d", n)
	}
	c, err := o.tracker.CreateChange(ctx, req)
	if err != nil {
		o.log.Errorf("tracker", "create change for %s: %v", ws.Branch, err)
		return model.ProposedChange{}, err
	}
	if c.IssueKey == "" {
		c.IssueKey = ws.IssueKey
	}
	o.board.PutChange(c)
	o.log.Infof("tracker", "opened change #%d for %s", c.Number, ws.Branch)
	return c, nil
}

func (o *Orchestrator) MarkReady(ctx context.Context, number int) error {
	if err := o.tracker.MarkReady(ctx, number); err != nil {
		o.log.Errorf("tracker", "mark #%d ready: %v", number, err)
		return err
	}
	if c, ok := o.board.Change(number); ok {
		c.State = model.ChangeOpen
		c.ReviewReady = true
		o.board.PutChange(c)
	}
	o.log.Infof("tracker", "change #%d marked ready for review", number)
	return nil
}

// Merge merges the change and then removes the workspace of its branch.
// A workspace that cannot be removed cleanly is kept and reported.
func (o *Orchestrator) Merge(ctx context.Context, number int) error {
	c, known := o.board.Change(number)
	if err := o.tracker.Merge(ctx, number); err != nil {
		o.log.Errorf("tracker", "merge #%d: %v", number, err)
		return err
	}
	o.board.Evict(board.Changes, strconv.Itoa(number))
	o.log.Infof("tracker", "merged change #%d", number)
	if !known {
		return nil
	}

	key := c.IssueKey
	if key == "" {
		key = model.BranchToSlug(c.Branch)
	}
	ws, ok := o.board.Workspace(key)
	if !ok || ws.Branch != c.Branch || ws.Lifecycle.Phase != lifecycle.Ready {
		return nil
	}
	var conflict *ConflictError
	if err := o.CleanupMerged(ctx, key); err != nil && !errors.As(err, &conflict) {
		return err
	}
	return nil
}

// Revert opens a change undoing a merged one and returns its URL.
func (o *Orchestrator) Revert(ctx context.Context, number int) (string, error) {
	url, err := o.tracker.Revert(ctx, number)
	if err != nil {
		o.log.Errorf("tracker", "revert #%d: %v", number, err)
		return "", err
	}
	o.log.Infof("tracker", "revert of #%d opened: %s", number, url)
	return url, nil
}

// PullMain fast-forwards the main checkout.
func (o *Orchestrator) PullMain(ctx context.Context) error {
	branch, err := o.vcs.PullMain(ctx)
	if err != nil {
		o.log.Errorf("git", "pull %s: %v", branch, err)
		return err
	}
	o.log.Infof("git", "pulled %s", branch)
	return nil
}
