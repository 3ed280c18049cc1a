// Package orchestrator runs the multi-step workspace operations: create a
// worktree and launch an assistant session in it, attach to it, and tear
// both down again. Every step is recorded on the board as a lifecycle
// transition; failures become a Failed state or a message log entry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"octodeck/internal/board"
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
	"octodeck/internal/msglog"
	"octodeck/internal/mux"
	"octodeck/internal/registry"
	"octodeck/internal/tracker"
)

// ErrWorkspaceExists is returned by Create when the issue already has an
// active workspace.
var ErrWorkspaceExists = errors.New("workspace already exists")

// ConflictError reports a removal blocked by the state of the worktree,
// e.g. uncommitted changes or the branch checked out elsewhere. The
// workspace is left as it was; retrying with force may succeed.
type ConflictError struct {
	Key string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// VCS is the version-control side of the lifecycle.
type VCS interface {
	WorktreePath(key string) string
	AddWorktree(ctx context.Context, path, branch string) error
	CanRemove(ctx context.Context, path, branch string, force bool) error
	RemoveWorktree(ctx context.Context, path, branch string, force bool) error
	PullMain(ctx context.Context) (string, error)
	DefaultBranch(ctx context.Context) string
}

// Options wires the collaborators and the per-repo settings.
type Options struct {
	Board    *board.Store
	Registry *registry.Registry
	VCS      VCS
	Mux      mux.Multiplexer
	Tracker  tracker.Tracker
	Log      *msglog.Log
	Logger   *slog.Logger

	Repo           string
	SessionCommand string // template, see Expand
	DraftChanges   bool

	// HookScript, when set, is installed into every new worktree.
	HookScript string
	// TrustConfig is the assistant's global config file; new worktrees
	// are marked trusted in it when set.
	TrustConfig string
	// PromptDir receives the prompt files handed to sessions.
	PromptDir string

	// Unavailable, when non-empty, makes every Create fail with this
	// reason before touching anything.
	Unavailable string
	// LookPath checks that the session command's program exists. Nil
	// skips the check.
	LookPath func(string) (string, error)
}

// Orchestrator serialises operations per workspace key. Operations on
// different keys run concurrently.
type Orchestrator struct {
	board    *board.Store
	registry *registry.Registry
	vcs      VCS
	mux      mux.Multiplexer
	tracker  tracker.Tracker
	log      *msglog.Log
	logger   *slog.Logger

	repo        string
	command     string
	draft       bool
	hookScript  string
	trustConfig string
	promptDir   string
	unavailable string
	lookPath    func(string) (string, error)

	mu      sync.Mutex
	locks   map[string]*keyLock
	prompts map[string]string // key -> prompt file
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func New(o Options) *Orchestrator {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	command := o.SessionCommand
	if command == "" {
		command = "{claude}"
	}
	return &Orchestrator{
		board:       o.Board,
		registry:    o.Registry,
		vcs:         o.VCS,
		mux:         o.Mux,
		tracker:     o.Tracker,
		log:         o.Log,
		logger:      logger,
		repo:        o.Repo,
		command:     command,
		draft:       o.DraftChanges,
		hookScript:  o.HookScript,
		trustConfig: o.TrustConfig,
		promptDir:   o.PromptDir,
		unavailable: o.Unavailable,
		lookPath:    o.LookPath,
		locks:       map[string]*keyLock{},
		prompts:     map[string]string{},
	}
}

// lock takes the per-key lock and returns its release. Entries are
// reference counted so the map only holds keys with waiters.
func (o *Orchestrator) lock(key string) func() {
	o.mu.Lock()
	l, ok := o.locks[key]
	if !ok {
		l = &keyLock{}
		o.locks[key] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, key)
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) setPrompt(key, path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts[key] = path
}

func (o *Orchestrator) takePrompt(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.prompts[key]
	delete(o.prompts, key)
	return p
}

// advance records the next lifecycle phase of ws on the board.
func (o *Orchestrator) advance(ws *model.Workspace, next lifecycle.Phase) error {
	st, err := ws.Lifecycle.To(next)
	if err != nil {
		return err
	}
	ws.Lifecycle = st
	o.board.PutWorkspace(*ws)
	return nil
}
