// Package trackertest provides an in-memory tracker for tests.
package trackertest

import (
	"context"
	"fmt"
	"sync"

	"octodeck/internal/model"
	"octodeck/internal/tracker"
)

// Fake serves issues and changes from memory. ListErr fails both
// listings; Calls records every mutating call.
type Fake struct {
	mu      sync.Mutex
	Issues  []model.Issue
	Changes []model.ProposedChange
	ListErr error
	Calls   []string
	next    int
}

func New() *Fake { return &Fake{next: 1000} }

func (f *Fake) Kind() string { return "fake" }

func (f *Fake) SetIssues(issues ...model.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Issues = append([]model.Issue(nil), issues...)
}

func (f *Fake) SetChanges(changes ...model.ProposedChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Changes = append([]model.ProposedChange(nil), changes...)
}

func (f *Fake) SetListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListErr = err
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) ListIssues(_ context.Context, flt tracker.Filter) ([]model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []model.Issue
	for _, is := range f.Issues {
		if flt.State == tracker.StateClosed && is.State != model.IssueClosed {
			continue
		}
		if flt.State != tracker.StateClosed && is.State == model.IssueClosed {
			continue
		}
		out = append(out, is)
	}
	return out, nil
}

func (f *Fake) CreateIssue(_ context.Context, title, body string) (model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	is := model.Issue{Number: f.next, Title: title, Body: body, State: model.IssueOpen}
	f.Issues = append(f.Issues, is)
	f.record("create-issue %d", is.Number)
	return is, nil
}

func (f *Fake) CloseIssue(_ context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close-issue %d", number)
	for i := range f.Issues {
		if f.Issues[i].Number == number {
			f.Issues[i].State = model.IssueClosed
			return nil
		}
	}
	return tracker.ErrNotFound
}

func (f *Fake) ListChanges(_ context.Context, flt tracker.Filter) ([]model.ProposedChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []model.ProposedChange
	for _, c := range f.Changes {
		switch flt.State {
		case tracker.StateMerged:
			if c.State != model.ChangeMerged {
				continue
			}
		case tracker.StateClosed:
			if c.Active() {
				continue
			}
		default:
			if !c.Active() {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *Fake) CreateChange(_ context.Context, req tracker.ChangeRequest) (model.ProposedChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	c := model.ProposedChange{Number: f.next, Title: req.Title, Branch: req.Branch, State: model.ChangeOpen}
	if req.Draft {
		c.State = model.ChangeDraft
	}
	f.Changes = append(f.Changes, c)
	f.record("create-change %d", c.Number)
	return c, nil
}

func (f *Fake) change(number int) (*model.ProposedChange, error) {
	for i := range f.Changes {
		if f.Changes[i].Number == number {
			return &f.Changes[i], nil
		}
	}
	return nil, tracker.ErrNotFound
}

func (f *Fake) MarkReady(_ context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ready %d", number)
	c, err := f.change(number)
	if err != nil {
		return err
	}
	c.State = model.ChangeOpen
	c.ReviewReady = true
	return nil
}

func (f *Fake) Merge(_ context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("merge %d", number)
	c, err := f.change(number)
	if err != nil {
		return err
	}
	c.State = model.ChangeMerged
	return nil
}

func (f *Fake) Revert(_ context.Context, number int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("revert %d", number)
	return "", tracker.ErrUnsupported
}
