package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"octodeck/internal/board"
	"octodeck/internal/events"
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
	"octodeck/internal/mux"
)

// Create provisions a worktree for the issue and starts an assistant
// session in it. On success the workspace is Ready and the session is
// Starting. If a step fails after something was created, the partial
// resources are rolled back: a clean rollback evicts the workspace, a
// failed one leaves it Failed for the user to remove.
func (o *Orchestrator) Create(ctx context.Context, is model.Issue) (model.Workspace, error) {
	key := is.Key()
	unlock := o.lock(key)
	defer unlock()

	if ws, ok := o.board.Workspace(key); ok && ws.Lifecycle.Active() {
		return ws, fmt.Errorf("%w: %s (%s)", ErrWorkspaceExists, key, ws.Lifecycle)
	}

	ws := model.Workspace{
		Key:       key,
		Branch:    model.BranchForKey(key),
		Path:      o.vcs.WorktreePath(key),
		IssueKey:  key,
		Lifecycle: lifecycle.New(),
	}
	o.board.PutWorkspace(ws)

	if reason := o.precheck(); reason != "" {
		st, _ := ws.Lifecycle.Fail(reason)
		ws.Lifecycle = st
		o.board.PutWorkspace(ws)
		o.log.Errorf("lifecycle", "cannot create workspace %s: %s", key, reason)
		return ws, errors.New(reason)
	}

	if err := o.advance(&ws, lifecycle.CreatingWorkspace); err != nil {
		return ws, err
	}
	if err := o.vcs.AddWorktree(ctx, ws.Path, ws.Branch); err != nil {
		return o.abort(ctx, ws, fmt.Errorf("add worktree: %w", err), rollback{})
	}
	o.prepareWorktree(ws.Path)

	if err := o.advance(&ws, lifecycle.LaunchingSession); err != nil {
		return ws, err
	}
	prompt, err := o.writePrompt(is)
	if err != nil {
		return o.abort(ctx, ws, err, rollback{worktree: true})
	}
	o.setPrompt(key, prompt)

	cmd := Expand(o.command, Vars{
		PromptFile:   prompt,
		IssueNumber:  is.Number,
		Repo:         o.repo,
		Title:        is.Title,
		Body:         is.Body,
		Branch:       ws.Branch,
		WorktreePath: ws.Path,
	})
	// registered first so the session's own start event is accepted
	o.registry.Register(key)
	err = o.mux.StartSession(ctx, mux.Spec{
		Name:    model.SessionName(key),
		Dir:     ws.Path,
		Command: cmd,
		Env:     map[string]string{events.SessionEnv: key},
	})
	if err != nil {
		return o.abort(ctx, ws, fmt.Errorf("start session: %w", err), rollback{worktree: true, session: true})
	}

	if err := o.advance(&ws, lifecycle.Ready); err != nil {
		return ws, err
	}
	o.log.Infof("lifecycle", "workspace %s ready, session %s started", key, model.SessionName(key))
	o.logger.Info("workspace created", "key", key, "path", ws.Path, "command", cmd)
	return ws, nil
}

// precheck returns why no session could be launched at all, or "".
func (o *Orchestrator) precheck() string {
	if o.unavailable != "" {
		return o.unavailable
	}
	if o.lookPath == nil {
		return ""
	}
	prog := program(Expand(o.command, Vars{}))
	if prog == "" {
		return ""
	}
	if _, err := o.lookPath(prog); err != nil {
		return fmt.Sprintf("assistant %s not found on PATH", prog)
	}
	return ""
}

// prepareWorktree installs the hook settings and trusts the directory.
// Neither is needed for the session to run, so failures only warn.
func (o *Orchestrator) prepareWorktree(path string) {
	if o.hookScript != "" {
		if err := events.WriteWorktreeSettings(path, o.hookScript); err != nil {
			o.log.Warnf("lifecycle", "hook settings for %s: %v", path, err)
		}
	}
	if o.trustConfig != "" {
		if err := events.TrustDirectory(o.trustConfig, path); err != nil {
			o.log.Warnf("lifecycle", "trust %s: %v", path, err)
		}
	}
}

func (o *Orchestrator) writePrompt(is model.Issue) (string, error) {
	dir := o.promptDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create prompt dir: %w", err)
	}
	p := filepath.Join(dir, fmt.Sprintf("prompt-%d-%s.txt", is.Number, uuid.NewString()))
	if err := os.WriteFile(p, []byte(Prompt(o.repo, is)), 0o600); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	return p, nil
}

// rollback lists what a failed Create had already created.
type rollback struct {
	worktree bool
	session  bool
}

// abort marks ws Failed and undoes what the create had done so far.
func (o *Orchestrator) abort(ctx context.Context, ws model.Workspace, cause error, rb rollback) (model.Workspace, error) {
	prev := ws.Lifecycle
	failed, _ := prev.Fail(cause.Error())
	ws.Lifecycle = failed
	o.board.PutWorkspace(ws)

	var errs []string
	if rb.session {
		if err := o.mux.KillSession(ctx, model.SessionName(ws.Key)); err != nil {
			errs = append(errs, fmt.Sprintf("kill session: %v", err))
		}
		o.registry.Forget(ws.Key)
	}
	if rb.worktree {
		if err := o.vcs.RemoveWorktree(ctx, ws.Path, ws.Branch, true); err != nil {
			errs = append(errs, fmt.Sprintf("remove worktree: %v", err))
		}
	}
	if p := o.takePrompt(ws.Key); p != "" {
		_ = os.Remove(p)
	}

	if len(errs) > 0 {
		reason := fmt.Sprintf("%v; rollback failed: %s", cause, strings.Join(errs, "; "))
		ws.Lifecycle, _ = prev.Fail(reason)
		o.board.PutWorkspace(ws)
		o.log.Errorf("lifecycle", "create %s: %s", ws.Key, reason)
		return ws, fmt.Errorf("create workspace %s: %s", ws.Key, reason)
	}
	o.board.Evict(board.Workspaces, ws.Key)
	o.log.Errorf("lifecycle", "create %s failed and was rolled back: %v", ws.Key, cause)
	removing, _ := failed.To(lifecycle.Removing)
	ws.Lifecycle, _ = removing.To(lifecycle.Removed)
	return ws, fmt.Errorf("create workspace %s: %w", ws.Key, cause)
}
