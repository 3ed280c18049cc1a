// Package git is the version-control collaborator: worktree creation and
// removal, worktree listing and keeping the main checkout current.
package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
	"octodeck/internal/runner"
)

// ErrConflict marks failures the user can resolve: a dirty worktree, a
// branch checked out elsewhere. Callers leave the workspace as it was.
var ErrConflict = errors.New("worktree conflict")

const commandTimeout = 30 * time.Second

// Repo runs git against one repository's main checkout.
type Repo struct {
	root string
	run  runner.Runner
}

func New(root string, run runner.Runner) *Repo {
	if run == nil {
		run = runner.OSRunner{}
	}
	return &Repo{root: root, run: run}
}

// RepoRoot returns the absolute path of the git repository containing dir.
func RepoRoot(ctx context.Context, run runner.Runner, dir string) (string, error) {
	out, err := run.Run(ctx, dir, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s", runner.Output(out))
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Repo) Root() string { return r.root }

// Name is the repository directory name.
func (r *Repo) Name() string { return filepath.Base(r.root) }

// WorktreePath is the deterministic location of the worktree for key: a
// sibling of the main checkout named <repo>-issue-<key>.
func (r *Repo) WorktreePath(key string) string {
	return filepath.Join(filepath.Dir(r.root), r.Name()+"-"+model.BranchForKey(key))
}

func (r *Repo) git(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return r.run.Run(ctx, r.root, "git", args...)
}

// AddWorktree creates a worktree at path on a new branch, reusing the
// branch if it already exists.
func (r *Repo) AddWorktree(ctx context.Context, path, branch string) error {
	out, err := r.git(ctx, "worktree", "add", path, "-b", branch)
	if err == nil {
		return nil
	}
	msg := runner.Output(out)
	if !strings.Contains(msg, "already exists") || strings.Contains(msg, "'"+path+"'") {
		return fmt.Errorf("git worktree add: %s", msg)
	}
	out, err = r.git(ctx, "worktree", "add", path, branch)
	if err != nil {
		msg = runner.Output(out)
		if isCheckedOutElsewhere(msg) {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		return fmt.Errorf("git worktree add: %s", msg)
	}
	return nil
}

// RemoveWorktree removes the worktree at path and deletes branch. Nothing
// is touched when the branch is checked out in another worktree. A path
// that is no longer a worktree is not an error.
func (r *Repo) RemoveWorktree(ctx context.Context, path, branch string, force bool) error {
	trees, err := r.worktrees(ctx)
	if err != nil {
		return err
	}
	for _, wt := range trees {
		if wt.branch == branch && !samePath(wt.path, path) {
			return fmt.Errorf("%w: branch %s is checked out at %s", ErrConflict, branch, wt.path)
		}
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if out, err := r.git(ctx, args...); err != nil {
		msg := runner.Output(out)
		switch {
		case strings.Contains(msg, "is not a working tree"):
		case isDirty(msg):
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		default:
			return fmt.Errorf("git worktree remove: %s", msg)
		}
	}

	flag := "-d"
	if force {
		flag = "-D"
	}
	if out, err := r.git(ctx, "branch", flag, branch); err != nil {
		msg := runner.Output(out)
		switch {
		case isCheckedOutElsewhere(msg):
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		case strings.Contains(msg, "not found"), strings.Contains(msg, "not fully merged"):
			// best effort: an unmerged branch outlives its worktree
		default:
			return fmt.Errorf("git branch %s: %s", flag, msg)
		}
	}
	return nil
}

// CanRemove reports, without changing anything, whether RemoveWorktree
// would hit a conflict: the branch checked out in another worktree or,
// unless force is set, uncommitted changes in the worktree.
func (r *Repo) CanRemove(ctx context.Context, path, branch string, force bool) error {
	trees, err := r.worktrees(ctx)
	if err != nil {
		return err
	}
	present := false
	for _, wt := range trees {
		if samePath(wt.path, path) {
			present = true
			continue
		}
		if wt.branch == branch {
			return fmt.Errorf("%w: branch %s is checked out at %s", ErrConflict, branch, wt.path)
		}
	}
	if !present || force {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := r.run.Run(ctx, path, "git", "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("git status: %s", runner.Output(out))
	}
	if len(strings.TrimSpace(string(out))) > 0 {
		return fmt.Errorf("%w: %s has uncommitted changes", ErrConflict, path)
	}
	return nil
}

// PullMain fast-forwards the main checkout and returns its branch.
func (r *Repo) PullMain(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s", runner.Output(out))
	}
	branch := strings.TrimSpace(string(out))
	if out, err := r.git(ctx, "pull", "--ff-only"); err != nil {
		return branch, fmt.Errorf("git pull: %s", runner.Output(out))
	}
	return branch, nil
}

// ListWorktrees returns every linked worktree as a Ready workspace. The
// main checkout and bare entries are skipped.
func (r *Repo) ListWorktrees(ctx context.Context) ([]model.Workspace, error) {
	trees, err := r.worktrees(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Workspace
	for _, wt := range trees {
		if wt.bare || samePath(wt.path, r.root) {
			continue
		}
		ws := model.Workspace{
			Branch:    wt.branch,
			Path:      wt.path,
			Lifecycle: lifecycle.State{Phase: lifecycle.Ready},
		}
		if key, ok := model.KeyFromBranch(wt.branch); ok {
			ws.Key = key
			ws.IssueKey = key
		} else {
			ws.Key = model.BranchToSlug(wt.branch)
			if wt.detached {
				ws.Key = model.BranchToSlug(filepath.Base(wt.path))
			}
		}
		out = append(out, ws)
	}
	return out, nil
}

// RemoteURL returns the origin URL.
func (r *Repo) RemoteURL(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("git remote get-url: %s", runner.Output(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Slug turns a remote URL into "owner/name". It understands scp-style
// ssh remotes and http(s) or ssh:// URLs, and returns "" for anything else.
func Slug(remote string) string {
	s := strings.TrimSpace(remote)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		_, s, _ = strings.Cut(s, "/")
	} else if _, path, ok := strings.Cut(s, ":"); ok {
		s = path
	} else {
		return ""
	}
	s = strings.Trim(s, "/")
	if strings.Count(s, "/") < 1 {
		return ""
	}
	return s
}

// DefaultBranch returns the repo's default remote branch (e.g. "main", "master").
// Falls back to "main" if it cannot be determined.
func (r *Repo) DefaultBranch(ctx context.Context) string {
	out, err := r.git(ctx, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err == nil {
		// "origin/main"
		ref := strings.TrimSpace(string(out))
		if _, after, ok := strings.Cut(ref, "/"); ok {
			return after
		}
	}
	return "main"
}

type worktree struct {
	path     string
	branch   string
	bare     bool
	detached bool
}

func (r *Repo) worktrees(ctx context.Context) ([]worktree, error) {
	out, err := r.git(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list: %s", runner.Output(out))
	}
	return parseWorktrees(string(out)), nil
}

func parseWorktrees(raw string) []worktree {
	var trees []worktree
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		if wt, ok := parseBlock(strings.TrimSpace(block)); ok {
			trees = append(trees, wt)
		}
	}
	return trees
}

func parseBlock(block string) (worktree, bool) {
	var wt worktree
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			wt.path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			wt.branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "bare":
			wt.bare = true
		case line == "detached":
			wt.detached = true
		}
	}
	if wt.path == "" {
		return worktree{}, false
	}
	if wt.detached {
		wt.branch = "detached"
	}
	return wt, true
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func isDirty(msg string) bool {
	return strings.Contains(msg, "contains modified or untracked files") ||
		strings.Contains(msg, "is dirty") ||
		strings.Contains(msg, "is locked")
}

func isCheckedOutElsewhere(msg string) bool {
	return strings.Contains(msg, "is already checked out at") ||
		strings.Contains(msg, "checked out at") ||
		strings.Contains(msg, "already used by worktree") ||
		strings.Contains(msg, "used by worktree at")
}
