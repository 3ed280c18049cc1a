package board

import (
	"octodeck/internal/lifecycle"
	"octodeck/internal/model"
)

// Fetched is the result of fetching one collection. OK is false when the
// fetch failed; Truncated is set when the collaborator returned as many
// items as it was asked for, so absence proves nothing.
type Fetched[T any] struct {
	Items     []T
	OK        bool
	Truncated bool
}

// Complete reports whether absence from Items confirms deletion.
func (f Fetched[T]) Complete() bool { return f.OK && !f.Truncated }

// Refresh is one reconciler pass worth of external data.
type Refresh struct {
	Issues     Fetched[model.Issue]
	Changes    Fetched[model.ProposedChange]
	Workspaces Fetched[model.Workspace]
}

// missLimit is how many consecutive complete fetches must omit an entity
// before it is deleted.
const missLimit = 2

// BeginRefresh allocates the epoch for a fetch about to start.
func (s *Store) BeginRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startEpoch++
	return s.startEpoch
}

// ApplyRefresh merges r, fetched under epoch, into the board. It returns
// false and changes nothing if a refresh with an equal or later epoch has
// already been applied.
func (s *Store) ApplyRefresh(epoch uint64, r Refresh) bool {
	s.mu.Lock()
	if epoch <= s.appliedEpoch {
		s.mu.Unlock()
		return false
	}
	s.appliedEpoch = epoch

	if r.Issues.OK {
		s.issues = merge(s, Issues, epoch, s.issues, r.Issues, model.Issue.ID,
			func(_, fetched model.Issue) model.Issue { return fetched },
			func(model.Issue) bool { return false })
		sortIssues(s.issues)
	}
	if r.Changes.OK {
		s.changes = merge(s, Changes, epoch, s.changes, r.Changes, model.ProposedChange.ID,
			func(_, fetched model.ProposedChange) model.ProposedChange { return fetched },
			func(model.ProposedChange) bool { return false })
		sortChanges(s.changes)
	}
	if r.Workspaces.OK {
		s.workspaces = merge(s, Workspaces, epoch, s.workspaces, r.Workspaces, model.Workspace.ID,
			mergeWorkspace, workspaceExempt)
		sortWorkspaces(s.workspaces)
	}
	for col := Issues; col < NumColumns; col++ {
		if col != Sessions {
			s.fixSelection(col)
		}
	}
	for k, g := range s.guard {
		if epoch > g {
			delete(s.guard, k)
		}
	}
	s.mu.Unlock()

	s.notify()
	return true
}

// mergeWorkspace takes location fields from git and keeps the lifecycle
// state, which only the orchestrator changes.
func mergeWorkspace(local, fetched model.Workspace) model.Workspace {
	local.Branch = fetched.Branch
	local.Path = fetched.Path
	if local.IssueKey == "" {
		local.IssueKey = fetched.IssueKey
	}
	return local
}

// workspaceExempt protects workspaces the orchestrator is working on or
// that await explicit removal.
func workspaceExempt(w model.Workspace) bool {
	return w.Lifecycle.InFlight() || w.Lifecycle.Phase == lifecycle.Failed
}

// merge reconciles one collection. Callers hold s.mu.
func merge[T any](s *Store, col Column, epoch uint64, local []T, f Fetched[T],
	id func(T) string, update func(local, fetched T) T, exempt func(T) bool) []T {

	fetched := make(map[string]T, len(f.Items))
	order := make([]string, 0, len(f.Items))
	for _, it := range f.Items {
		k := id(it)
		if _, dup := fetched[k]; !dup {
			order = append(order, k)
		}
		fetched[k] = it
	}

	out := make([]T, 0, len(local)+len(f.Items))
	seen := make(map[string]bool, len(local))
	for _, it := range local {
		k := id(it)
		seen[k] = true
		ek := entityKey{col, k}
		guarded := s.guarded(ek, epoch)
		if fr, ok := fetched[k]; ok {
			if !guarded {
				it = update(it, fr)
			}
			out = append(out, it)
			delete(s.misses, ek)
			continue
		}
		if !f.Complete() || exempt(it) || guarded {
			out = append(out, it)
			continue
		}
		s.misses[ek]++
		if s.misses[ek] < missLimit {
			out = append(out, it)
			continue
		}
		delete(s.misses, ek)
	}
	for _, k := range order {
		if seen[k] || s.guarded(entityKey{col, k}, epoch) {
			continue
		}
		out = append(out, fetched[k])
	}
	return out
}

func (s *Store) guarded(k entityKey, epoch uint64) bool {
	g, ok := s.guard[k]
	return ok && epoch <= g
}
