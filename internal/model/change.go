package model

import "strconv"

// ChangeState is the lifecycle of a pull/merge request as the forge
// reports it.
type ChangeState string

const (
	ChangeOpen   ChangeState = "open"
	ChangeDraft  ChangeState = "draft"
	ChangeMerged ChangeState = "merged"
	ChangeClosed ChangeState = "closed"
)

// ProposedChange holds pull/merge request metadata fetched from gh, glab
// or the local store.
type ProposedChange struct {
	Number         int // GitLab IID or GitHub PR number
	Title          string
	Body           string
	URL            string
	Branch         string // head/source branch
	State          ChangeState
	ReviewReady    bool   // not draft and no blocking review state
	PipelineStatus string // "success", "failed", "running", "pending", ...
	HasUnresolved  bool   // blocking discussions or review requests open
	IssueKey       string // best-effort link via branch naming; empty if none
}

// ID is the board identifier of the change.
func (c ProposedChange) ID() string { return strconv.Itoa(c.Number) }

// Active reports whether the change is still under review.
func (c ProposedChange) Active() bool {
	return c.State == ChangeOpen || c.State == ChangeDraft
}
