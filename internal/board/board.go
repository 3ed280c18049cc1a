// Package board holds the four related collections shown on screen:
// issues, workspaces, sessions and proposed changes. Issues, changes and
// workspaces are owned here; sessions are read from the registry so that
// hook events never pass through the board.
package board

import (
	"sort"
	"strconv"
	"sync"

	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
)

// Column identifies one of the four collections.
type Column int

const (
	Issues Column = iota
	Workspaces
	Sessions
	Changes
)

// NumColumns is the number of board columns.
const NumColumns = 4

func (c Column) String() string {
	switch c {
	case Issues:
		return "issues"
	case Workspaces:
		return "workspaces"
	case Sessions:
		return "sessions"
	case Changes:
		return "changes"
	}
	return "column(" + strconv.Itoa(int(c)) + ")"
}

// SessionSource supplies the sessions column.
type SessionSource interface {
	Snapshot() []model.Session
}

type entityKey struct {
	col Column
	id  string
}

// Store is safe for concurrent use. The render loop reads snapshots;
// the reconciler and the orchestrator write.
type Store struct {
	mu         sync.RWMutex
	sessions   SessionSource
	issues     []model.Issue
	workspaces []model.Workspace
	changes    []model.ProposedChange

	selected [NumColumns]string
	focus    Column

	startEpoch   uint64
	appliedEpoch uint64
	misses       map[entityKey]int
	// guard holds, per entity, the start epoch current when it was last
	// put or evicted locally. Refreshes started at or before that epoch
	// may not change whether the entity exists.
	guard map[entityKey]uint64

	changed chan struct{}
}

func New(sessions SessionSource) *Store {
	return &Store{
		sessions: sessions,
		misses:   map[entityKey]int{},
		guard:    map[entityKey]uint64{},
		changed:  make(chan struct{}, 1),
	}
}

// Changed signals after any mutation; signals coalesce.
func (s *Store) Changed() <-chan struct{} { return s.changed }

func (s *Store) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// View is a consistent copy of the board for rendering.
type View struct {
	Issues     []model.Issue
	Workspaces []model.Workspace
	Sessions   []model.Session
	Changes    []model.ProposedChange
	Selected   [NumColumns]string
	Focus      Column
	Epoch      uint64 // epoch of the last applied refresh
}

// Snapshot copies the board.
func (s *Store) Snapshot() View {
	sessions := s.sessionList()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{
		Issues:     append([]model.Issue(nil), s.issues...),
		Workspaces: append([]model.Workspace(nil), s.workspaces...),
		Sessions:   sessions,
		Changes:    append([]model.ProposedChange(nil), s.changes...),
		Selected:   s.selected,
		Focus:      s.focus,
		Epoch:      s.appliedEpoch,
	}
	v.Selected[Sessions] = pickSelection(s.selected[Sessions], sessionIDs(sessions))
	return v
}

func (s *Store) sessionList() []model.Session {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Snapshot()
}

// Workspace returns the workspace for key.
func (s *Store) Workspace(key string) (model.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.workspaceIndex(key); i >= 0 {
		return s.workspaces[i], true
	}
	return model.Workspace{}, false
}

// Issue returns the issue with number.
func (s *Store) Issue(number int) (model.Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, is := range s.issues {
		if is.Number == number {
			return is, true
		}
	}
	return model.Issue{}, false
}

// Change returns the proposed change with number.
func (s *Store) Change(number int) (model.ProposedChange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.changes {
		if c.Number == number {
			return c, true
		}
	}
	return model.ProposedChange{}, false
}

func (s *Store) workspaceIndex(key string) int {
	for i, w := range s.workspaces {
		if w.Key == key {
			return i
		}
	}
	return -1
}

// PutWorkspace inserts or replaces a workspace on behalf of the
// orchestrator. A refresh that began earlier cannot remove it.
func (s *Store) PutWorkspace(ws model.Workspace) {
	s.mu.Lock()
	if i := s.workspaceIndex(ws.Key); i >= 0 {
		s.workspaces[i] = ws
	} else {
		s.workspaces = append(s.workspaces, ws)
		sortWorkspaces(s.workspaces)
	}
	s.protect(entityKey{Workspaces, ws.Key})
	s.fixSelection(Workspaces)
	s.mu.Unlock()
	s.notify()
}

// SetLifecycle updates the lifecycle state of an existing workspace.
func (s *Store) SetLifecycle(key string, st lifecycle.State) bool {
	s.mu.Lock()
	i := s.workspaceIndex(key)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.workspaces[i].Lifecycle = st
	s.mu.Unlock()
	s.notify()
	return true
}

// PutIssue inserts or replaces an issue after a local action.
func (s *Store) PutIssue(is model.Issue) {
	s.mu.Lock()
	replaced := false
	for i := range s.issues {
		if s.issues[i].Number == is.Number {
			s.issues[i] = is
			replaced = true
		}
	}
	if !replaced {
		s.issues = append(s.issues, is)
		sortIssues(s.issues)
	}
	s.protect(entityKey{Issues, is.ID()})
	s.fixSelection(Issues)
	s.mu.Unlock()
	s.notify()
}

// PutChange inserts or replaces a proposed change after a local action.
func (s *Store) PutChange(c model.ProposedChange) {
	s.mu.Lock()
	replaced := false
	for i := range s.changes {
		if s.changes[i].Number == c.Number {
			s.changes[i] = c
			replaced = true
		}
	}
	if !replaced {
		s.changes = append(s.changes, c)
		sortChanges(s.changes)
	}
	s.protect(entityKey{Changes, c.ID()})
	s.fixSelection(Changes)
	s.mu.Unlock()
	s.notify()
}

// Evict removes an entity after the orchestrator or a user action has
// confirmed it is gone. Refreshes already in flight cannot bring it back.
func (s *Store) Evict(col Column, id string) bool {
	s.mu.Lock()
	removed := false
	switch col {
	case Issues:
		s.issues, removed = removeWhere(s.issues, func(is model.Issue) bool { return is.ID() == id })
	case Workspaces:
		s.workspaces, removed = removeWhere(s.workspaces, func(w model.Workspace) bool { return w.Key == id })
	case Changes:
		s.changes, removed = removeWhere(s.changes, func(c model.ProposedChange) bool { return c.ID() == id })
	}
	if removed {
		k := entityKey{col, id}
		delete(s.misses, k)
		s.protect(k)
		s.fixSelection(col)
	}
	s.mu.Unlock()
	if removed {
		s.notify()
	}
	return removed
}

func (s *Store) protect(k entityKey) {
	s.guard[k] = s.startEpoch
	delete(s.misses, k)
}

func removeWhere[T any](items []T, match func(T) bool) ([]T, bool) {
	out := items[:0]
	removed := false
	for _, it := range items {
		if match(it) {
			removed = true
			continue
		}
		out = append(out, it)
	}
	return out, removed
}

func sortIssues(issues []model.Issue) {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })
}

func sortChanges(changes []model.ProposedChange) {
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Number < changes[j].Number })
}

func sortWorkspaces(ws []model.Workspace) {
	sort.SliceStable(ws, func(i, j int) bool { return model.LessKey(ws[i].Key, ws[j].Key) })
}

// Reset empties col after the user changed what it lists. Sessions are
// not owned here and cannot be reset.
func (s *Store) Reset(col Column) {
	s.mu.Lock()
	switch col {
	case Issues:
		s.issues = nil
	case Workspaces:
		s.workspaces = nil
	case Changes:
		s.changes = nil
	default:
		s.mu.Unlock()
		return
	}
	for k := range s.misses {
		if k.col == col {
			delete(s.misses, k)
		}
	}
	for k := range s.guard {
		if k.col == col {
			delete(s.guard, k)
		}
	}
	s.selected[col] = ""
	s.mu.Unlock()
	s.notify()
}
