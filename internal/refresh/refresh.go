// Package refresh keeps the board in step with the outside world: the
// tracker's issues and changes, git's worktrees and the multiplexer's
// live sessions.
package refresh

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"octodeck/internal/board"
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
	"octodeck/internal/msglog"
	"octodeck/internal/registry"
	"octodeck/internal/tracker"
)

// WorktreeLister is the version-control side of a refresh.
type WorktreeLister interface {
	ListWorktrees(ctx context.Context) ([]model.Workspace, error)
}

// SessionLister is the multiplexer side of a refresh.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]string, error)
}

// Cleaner removes the workspace of a merged change.
type Cleaner interface {
	CleanupMerged(ctx context.Context, key string) error
}

const fetchTimeout = 20 * time.Second

// Reconciler fetches and merges. Concurrent Refresh calls collapse: a
// call arriving while one is running schedules one more pass and returns.
type Reconciler struct {
	board    *board.Store
	tracker  tracker.Tracker
	worktree WorktreeLister
	sessions SessionLister
	registry *registry.Registry
	log      *msglog.Log
	logger   *slog.Logger

	cleaner Cleaner
	trigger chan struct{}

	mu      sync.Mutex
	filter  tracker.Filter
	running bool
	pending bool
	lastErr map[string]string
	tried   map[string]bool // merged cleanups already attempted
}

// Options wires the collaborators. Tracker, Worktrees and Sessions may be
// nil; their columns are then left alone.
type Options struct {
	Board     *board.Store
	Tracker   tracker.Tracker
	Worktrees WorktreeLister
	Sessions  SessionLister
	Registry  *registry.Registry
	Log       *msglog.Log
	Logger    *slog.Logger
	Filter    tracker.Filter
}

func New(o Options) *Reconciler {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		board:    o.Board,
		tracker:  o.Tracker,
		worktree: o.Worktrees,
		sessions: o.Sessions,
		registry: o.Registry,
		log:      o.Log,
		logger:   logger,
		filter:   o.Filter,
		trigger:  make(chan struct{}, 1),
		lastErr:  map[string]string{},
		tried:    map[string]bool{},
	}
}

// SetCleaner enables removal of workspaces whose change was merged.
func (r *Reconciler) SetCleaner(c Cleaner) {
	r.mu.Lock()
	r.cleaner = c
	r.mu.Unlock()
}

// Filter returns the current listing filter.
func (r *Reconciler) Filter() tracker.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter
}

// SetFilter changes what the issue and change columns list. The columns
// are emptied and a refresh is requested.
func (r *Reconciler) SetFilter(f tracker.Filter) {
	r.mu.Lock()
	r.filter = f
	r.mu.Unlock()
	r.board.Reset(board.Issues)
	r.board.Reset(board.Changes)
	r.Trigger()
}

// Trigger requests a refresh from Run without waiting for it.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then every interval and on Trigger, until
// ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	r.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
			ticker.Reset(interval)
		}
		r.Refresh(ctx)
	}
}

// Result describes one Refresh call.
type Result struct {
	Collapsed bool     // another refresh was running; it will run again
	Applied   bool     // the merge was not superseded
	Epoch     uint64
	Exited    []string // sessions found gone from the multiplexer
	Adopted   []string // live sessions picked up without a hook event
	Cleaned   []string // workspaces removed after their change merged
	Errors    []error
}

// Refresh runs a pass now, or collapses into the one already running.
func (r *Reconciler) Refresh(ctx context.Context) Result {
	r.mu.Lock()
	if r.running {
		r.pending = true
		r.mu.Unlock()
		return Result{Collapsed: true}
	}
	r.running = true
	r.mu.Unlock()

	for {
		res := r.once(ctx)
		r.mu.Lock()
		if !r.pending || ctx.Err() != nil {
			r.running = false
			r.pending = false
			r.mu.Unlock()
			return res
		}
		r.pending = false
		r.mu.Unlock()
	}
}

func (r *Reconciler) once(ctx context.Context) Result {
	filter := r.Filter()
	limit := filter.Limit
	if limit <= 0 {
		limit = tracker.DefaultLimit
	}
	epoch := r.board.BeginRefresh()
	res := Result{Epoch: epoch}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		snap    board.Refresh
		merged  []model.ProposedChange
		live    []string
		liveOK  bool
		errs    = map[string]error{}
		errsMu  sync.Mutex
		cleaner = r.cleanerOrNil()
	)
	fail := func(source string, err error) {
		errsMu.Lock()
		errs[source] = err
		errsMu.Unlock()
	}
	if r.tracker != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			items, err := r.tracker.ListIssues(fctx, filter)
			if err != nil {
				fail("issues", err)
				return
			}
			snap.Issues = board.Fetched[model.Issue]{Items: items, OK: true, Truncated: len(items) >= limit}
		}()
		go func() {
			defer wg.Done()
			items, err := r.tracker.ListChanges(fctx, filter)
			if err != nil {
				fail("changes", err)
				return
			}
			snap.Changes = board.Fetched[model.ProposedChange]{Items: items, OK: true, Truncated: len(items) >= limit}
		}()
		if cleaner != nil && filter.State != tracker.StateMerged {
			wg.Add(1)
			go func() {
				defer wg.Done()
				items, err := r.tracker.ListChanges(fctx, tracker.Filter{State: tracker.StateMerged, Limit: limit})
				if err != nil {
					fail("merged changes", err)
					return
				}
				merged = items
			}()
		}
	}
	if r.worktree != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := r.worktree.ListWorktrees(fctx)
			if err != nil {
				fail("worktrees", err)
				return
			}
			snap.Workspaces = board.Fetched[model.Workspace]{Items: items, OK: true}
		}()
	}
	if r.sessions != nil && r.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			names, err := r.sessions.ListSessions(fctx)
			if err != nil {
				fail("sessions", err)
				return
			}
			live, liveOK = names, true
		}()
	}
	wg.Wait()

	res.Applied = r.board.ApplyRefresh(epoch, snap)
	if !res.Applied {
		r.logger.Debug("refresh superseded", "epoch", epoch)
	}
	if liveOK {
		res.Adopted = r.adopt(live)
		res.Exited = r.registry.Reconcile(live)
		for _, id := range res.Exited {
			r.log.Infof("session", "%s exited", model.SessionName(id))
		}
	}
	if cleaner != nil && merged != nil {
		res.Cleaned = r.cleanupMerged(ctx, cleaner, merged)
	}
	r.report(errs, &res)
	return res
}

func (r *Reconciler) cleanerOrNil() Cleaner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleaner
}

// adopt registers live multiplexer sessions that belong to a known
// workspace but that the registry has never heard of, e.g. sessions
// started before a restart.
func (r *Reconciler) adopt(live []string) []string {
	var adopted []string
	for _, name := range live {
		if !strings.HasPrefix(name, model.BranchPrefix) {
			continue
		}
		key := model.NormaliseKey(name)
		if _, ok := r.board.Workspace(key); !ok {
			continue
		}
		if r.registry.Adopt(key) {
			adopted = append(adopted, key)
			r.log.Infof("session", "adopted running session %s", name)
		}
	}
	return adopted
}

// cleanupMerged removes Ready workspaces whose branch was merged. Each
// key is tried once per process so a dirty worktree is not nagged about
// on every pass.
func (r *Reconciler) cleanupMerged(ctx context.Context, c Cleaner, merged []model.ProposedChange) []string {
	var cleaned []string
	for _, ch := range merged {
		key := ch.IssueKey
		if key == "" {
			key = model.BranchToSlug(ch.Branch)
		}
		ws, ok := r.board.Workspace(key)
		if !ok || ws.Lifecycle.Phase != lifecycle.Ready || ws.Branch != ch.Branch {
			continue
		}
		r.mu.Lock()
		done := r.tried[key]
		r.tried[key] = true
		r.mu.Unlock()
		if done {
			continue
		}
		if err := c.CleanupMerged(ctx, key); err != nil {
			r.log.Warnf("cleanup", "workspace %s not removed after merge: %v", key, err)
			continue
		}
		r.log.Infof("cleanup", "removed workspace %s: change #%d merged", key, ch.Number)
		cleaned = append(cleaned, key)
	}
	return cleaned
}

// report logs fetch failures once per distinct message, and notes
// recovery.
func (r *Reconciler) report(errs map[string]error, res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, source := range []string{"issues", "changes", "merged changes", "worktrees", "sessions"} {
		err, failed := errs[source]
		prev, hadErr := r.lastErr[source]
		switch {
		case failed:
			res.Errors = append(res.Errors, err)
			r.logger.Warn("refresh fetch failed", "source", source, "err", err)
			if prev != err.Error() {
				r.log.Errorf("refresh", "fetching %s failed: %v", source, err)
			}
			r.lastErr[source] = err.Error()
		case hadErr:
			delete(r.lastErr, source)
			r.log.Infof("refresh", "fetching %s recovered", source)
		}
	}
}
