package model

import (
	"strconv"
	"time"
)

// IssueState is the open/closed state of an issue.
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// Issue is a repo-scoped tracker issue.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     IssueState
	Assignees []string
	Labels    []string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the identifier shared by everything spawned for this issue.
func (i Issue) Key() string { return KeyForIssue(i.Number) }

// ID is the board identifier of the issue.
func (i Issue) ID() string { return strconv.Itoa(i.Number) }
