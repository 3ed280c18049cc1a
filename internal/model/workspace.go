package model

import (
	"strconv"
	"strings"

	"octodeck/internal/lifecycle"
)

// BranchPrefix is the naming convention linking branches to issues.
const BranchPrefix = "issue-"

// WorkspaceState is the coarse lifecycle state shown for a workspace.
type WorkspaceState string

const (
	WorkspaceCreating WorkspaceState = "creating"
	WorkspaceReady    WorkspaceState = "ready"
	WorkspaceRemoving WorkspaceState = "removing"
	WorkspaceRemoved  WorkspaceState = "removed"
	WorkspaceFailed   WorkspaceState = "failed"
)

// Workspace is a git worktree created for one issue.
type Workspace struct {
	Key       string // issue number for convention branches, slug otherwise
	Branch    string
	Path      string
	IssueKey  string // empty for worktrees not created from an issue
	Lifecycle lifecycle.State
}

// ID is the board identifier of the workspace.
func (w Workspace) ID() string { return w.Key }

// State collapses the fine-grained lifecycle phase.
func (w Workspace) State() WorkspaceState {
	switch w.Lifecycle.Phase {
	case lifecycle.Requested, lifecycle.CreatingWorkspace, lifecycle.LaunchingSession:
		return WorkspaceCreating
	case lifecycle.Ready, lifecycle.Attaching:
		return WorkspaceReady
	case lifecycle.Removing:
		return WorkspaceRemoving
	case lifecycle.Removed:
		return WorkspaceRemoved
	default:
		return WorkspaceFailed
	}
}

// KeyForIssue derives the workspace/session key from an issue number.
func KeyForIssue(number int) string { return strconv.Itoa(number) }

// BranchForKey returns the branch name used for an issue key.
func BranchForKey(key string) string { return BranchPrefix + key }

// SessionName returns the multiplexer session name for a key.
func SessionName(key string) string { return BranchPrefix + key }

// KeyFromBranch extracts the issue key from a branch following the
// issue-N convention. The last path segment is inspected so that
// "feature/issue-42" links as well.
func KeyFromBranch(branch string) (string, bool) {
	if i := strings.LastIndex(branch, "/"); i >= 0 {
		branch = branch[i+1:]
	}
	branch = strings.TrimPrefix(branch, "local-")
	rest, ok := strings.CutPrefix(branch, BranchPrefix)
	if !ok {
		return "", false
	}
	if j := strings.IndexByte(rest, '-'); j >= 0 {
		rest = rest[:j]
	}
	if _, err := strconv.Atoi(rest); err != nil || rest == "" {
		return "", false
	}
	return rest, true
}

// NormaliseKey accepts either a bare key ("42") or a session/branch name
// ("issue-42") and returns the bare key.
func NormaliseKey(s string) string {
	if k, ok := KeyFromBranch(s); ok {
		return k
	}
	return s
}

// BranchToSlug normalises a branch name into a filesystem/tmux-safe slug.
func BranchToSlug(branch string) string {
	if branch == "" {
		return "unknown"
	}
	s := strings.ToLower(branch)
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

// LessKey orders keys so that issue numbers sort numerically and come
// before slugs of the same length.
func LessKey(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
