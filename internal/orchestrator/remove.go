package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"

	"octodeck/internal/board"
	"octodeck/internal/git"
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
)

// Remove kills the workspace's session, then removes its worktree and
// branch. Removing a workspace that is already gone succeeds without any
// external call. A conflict (uncommitted changes, branch checked out
// elsewhere) is returned as *ConflictError and leaves the workspace in
// the state it had before; force discards uncommitted changes.
func (o *Orchestrator) Remove(ctx context.Context, key string, force bool) error {
	key = model.NormaliseKey(key)
	unlock := o.lock(key)
	defer unlock()

	ws, ok := o.board.Workspace(key)
	if !ok || ws.Lifecycle.Terminal() {
		return nil
	}
	prior := ws.Lifecycle
	if err := o.advance(&ws, lifecycle.Removing); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	restore := func() {
		ws.Lifecycle = prior
		if prior.Phase == lifecycle.Attaching {
			ws.Lifecycle = lifecycle.State{Phase: lifecycle.Ready}
		}
		o.board.PutWorkspace(ws)
	}

	if err := o.vcs.CanRemove(ctx, ws.Path, ws.Branch, force); err != nil {
		restore()
		return o.removeErr(key, err)
	}

	name := model.SessionName(key)
	if err := o.mux.KillSession(ctx, name); err != nil {
		restore()
		o.log.Errorf("lifecycle", "remove %s: kill session %s: %v", key, name, err)
		return fmt.Errorf("remove %s: kill session: %w", key, err)
	}
	o.registry.MarkExited(key, "removed")

	if err := o.vcs.RemoveWorktree(ctx, ws.Path, ws.Branch, force); err != nil {
		// the session is gone already; the worktree is still usable
		restore()
		return o.removeErr(key, err)
	}

	if err := o.advance(&ws, lifecycle.Removed); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	o.board.Evict(board.Workspaces, key)
	o.registry.Forget(key)
	if p := o.takePrompt(key); p != "" {
		_ = os.Remove(p)
	}
	o.log.Infof("lifecycle", "removed workspace %s", key)
	o.logger.Info("workspace removed", "key", key, "path", ws.Path, "force", force)
	return nil
}

func (o *Orchestrator) removeErr(key string, err error) error {
	if errors.Is(err, git.ErrConflict) {
		o.log.Warnf("lifecycle", "cannot remove %s: %v", key, err)
		return &ConflictError{Key: key, Err: err}
	}
	o.log.Errorf("lifecycle", "remove %s: %v", key, err)
	return fmt.Errorf("remove %s: %w", key, err)
}

// CleanupMerged removes the workspace of a merged change. Conflicts are
// reported, never forced.
func (o *Orchestrator) CleanupMerged(ctx context.Context, key string) error {
	return o.Remove(ctx, key, false)
}

// Attach returns the command that hands the terminal to the workspace's
// session. The workspace is marked Attaching until Detached is called;
// the key lock is not held while the user is attached.
func (o *Orchestrator) Attach(ctx context.Context, key string) (*exec.Cmd, error) {
	key = model.NormaliseKey(key)
	unlock := o.lock(key)
	defer unlock()

	ws, ok := o.board.Workspace(key)
	if !ok {
		return nil, fmt.Errorf("attach %s: no such workspace", key)
	}
	name := model.SessionName(key)
	live, err := o.mux.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", key, err)
	}
	if !slices.Contains(live, name) {
		return nil, fmt.Errorf("attach %s: session %s is not running", key, name)
	}
	if ws.Lifecycle.Phase != lifecycle.Attaching {
		if err := o.advance(&ws, lifecycle.Attaching); err != nil {
			return nil, fmt.Errorf("attach %s: %w", key, err)
		}
	}
	return o.mux.AttachCmd(name), nil
}

// Detached records that the user left the session.
func (o *Orchestrator) Detached(key string) {
	key = model.NormaliseKey(key)
	unlock := o.lock(key)
	defer unlock()

	ws, ok := o.board.Workspace(key)
	if !ok || ws.Lifecycle.Phase != lifecycle.Attaching {
		return
	}
	_ = o.advance(&ws, lifecycle.Ready)
}

// KillSession stops the workspace's session and keeps the worktree.
func (o *Orchestrator) KillSession(ctx context.Context, key string) error {
	key = model.NormaliseKey(key)
	unlock := o.lock(key)
	defer unlock()

	name := model.SessionName(key)
	if err := o.mux.KillSession(ctx, name); err != nil {
		o.log.Errorf("lifecycle", "kill session %s: %v", name, err)
		return fmt.Errorf("kill session %s: %w", name, err)
	}
	if o.registry.MarkExited(key, "killed") {
		o.log.Infof("lifecycle", "killed session %s", name)
	}
	return nil
}
