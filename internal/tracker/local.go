package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"octodeck/internal/model"
)

// Local keeps issues and changes in a JSON file, for repositories
// without a hosted tracker.
type Local struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

type localIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"` // "open" or "closed"
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type localChange struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Branch  string `json:"branch"`
	State   string `json:"state"` // "open", "merged" or "closed"
	IsDraft bool   `json:"is_draft"`
}

type localStore struct {
	Issues          []localIssue  `json:"issues"`
	Changes         []localChange `json:"changes"`
	NextIssueNumber int           `json:"next_issue_number"`
	NextPRNumber    int           `json:"next_pr_number"`
}

// NewLocal returns a tracker backed by the file at path, which is created
// on first write.
func NewLocal(path string) *Local {
	return &Local{path: path, now: time.Now}
}

func (l *Local) Kind() string { return "local" }

// Path is the backing file.
func (l *Local) Path() string { return l.path }

func (l *Local) load() (*localStore, error) {
	st := &localStore{NextIssueNumber: 1, NextPRNumber: 1}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local store: %w", err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode local store %s: %w", l.path, err)
	}
	if st.NextIssueNumber < 1 {
		st.NextIssueNumber = 1
	}
	if st.NextPRNumber < 1 {
		st.NextPRNumber = 1
	}
	return st, nil
}

func (l *Local) save(st *localStore) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create local store dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write local store: %w", err)
	}
	return os.Rename(tmp, l.path)
}

// update loads the store, applies fn and saves the result if fn succeeds.
func (l *Local) update(fn func(*localStore) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, err := l.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return l.save(st)
}

func (l *Local) read() (*localStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Local) ListIssues(_ context.Context, f Filter) ([]model.Issue, error) {
	st, err := l.read()
	if err != nil {
		return nil, err
	}
	var out []model.Issue
	for _, is := range st.Issues {
		if is.State != string(f.state()) {
			continue
		}
		out = append(out, model.Issue{
			Number:    is.Number,
			Title:     is.Title,
			Body:      is.Body,
			State:     model.IssueState(is.State),
			Labels:    is.Labels,
			CreatedAt: is.CreatedAt,
			UpdatedAt: is.UpdatedAt,
		})
	}
	if n := f.limit(); len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (l *Local) CreateIssue(_ context.Context, title, body string) (model.Issue, error) {
	var created model.Issue
	err := l.update(func(st *localStore) error {
		now := l.now()
		is := localIssue{Number: st.NextIssueNumber, Title: title, Body: body, State: "open", CreatedAt: now, UpdatedAt: now}
		st.NextIssueNumber++
		st.Issues = append(st.Issues, is)
		created = model.Issue{Number: is.Number, Title: title, Body: body, State: model.IssueOpen, CreatedAt: now, UpdatedAt: now}
		return nil
	})
	return created, err
}

func (l *Local) CloseIssue(_ context.Context, number int) error {
	return l.update(func(st *localStore) error {
		for i := range st.Issues {
			if st.Issues[i].Number == number {
				st.Issues[i].State = "closed"
				st.Issues[i].UpdatedAt = l.now()
				return nil
			}
		}
		return fmt.Errorf("local issue #%d: %w", number, ErrNotFound)
	})
}

func (l *Local) ListChanges(_ context.Context, f Filter) ([]model.ProposedChange, error) {
	st, err := l.read()
	if err != nil {
		return nil, err
	}
	var out []model.ProposedChange
	for _, ch := range st.Changes {
		switch f.state() {
		case StateOpen:
			if ch.State != "open" {
				continue
			}
		case StateMerged:
			if ch.State != "merged" {
				continue
			}
		case StateClosed:
			if ch.State == "open" {
				continue
			}
		}
		c := model.ProposedChange{
			Number: ch.Number,
			Title:  ch.Title,
			Body:   ch.Body,
			Branch: ch.Branch,
			State:  model.ChangeState(ch.State),
		}
		if ch.State == "open" && ch.IsDraft {
			c.State = model.ChangeDraft
		}
		c.ReviewReady = c.State == model.ChangeOpen
		linkIssue(&c)
		out = append(out, c)
	}
	if n := f.limit(); len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (l *Local) CreateChange(_ context.Context, req ChangeRequest) (model.ProposedChange, error) {
	var created model.ProposedChange
	err := l.update(func(st *localStore) error {
		for _, ch := range st.Changes {
			if ch.Branch == req.Branch && ch.State == "open" {
				return fmt.Errorf("local change #%d already open for %s", ch.Number, req.Branch)
			}
		}
		ch := localChange{Number: st.NextPRNumber, Title: req.Title, Body: req.Body, Branch: req.Branch, State: "open", IsDraft: req.Draft}
		st.NextPRNumber++
		st.Changes = append(st.Changes, ch)
		created = model.ProposedChange{Number: ch.Number, Title: ch.Title, Body: ch.Body, Branch: ch.Branch, State: model.ChangeOpen}
		if ch.IsDraft {
			created.State = model.ChangeDraft
		}
		linkIssue(&created)
		return nil
	})
	return created, err
}

func (l *Local) change(st *localStore, number int) (*localChange, error) {
	for i := range st.Changes {
		if st.Changes[i].Number == number {
			return &st.Changes[i], nil
		}
	}
	return nil, fmt.Errorf("local change #%d: %w", number, ErrNotFound)
}

func (l *Local) MarkReady(_ context.Context, number int) error {
	return l.update(func(st *localStore) error {
		ch, err := l.change(st, number)
		if err != nil {
			return err
		}
		ch.IsDraft = false
		return nil
	})
}

func (l *Local) Merge(_ context.Context, number int) error {
	return l.update(func(st *localStore) error {
		ch, err := l.change(st, number)
		if err != nil {
			return err
		}
		if ch.State == "merged" {
			return fmt.Errorf("local change #%d is already merged", number)
		}
		ch.State = "merged"
		ch.IsDraft = false
		return nil
	})
}

func (l *Local) Revert(context.Context, int) (string, error) {
	return "", fmt.Errorf("revert local change: %w", ErrUnsupported)
}
