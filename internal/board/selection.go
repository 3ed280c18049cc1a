package board

import "octodeck/internal/model"

// Focus returns the focused column.
func (s *Store) Focus() Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focus
}

// SetFocus moves focus to col.
func (s *Store) SetFocus(col Column) {
	if col < 0 || col >= NumColumns {
		return
	}
	s.mu.Lock()
	s.focus = col
	s.mu.Unlock()
	s.notify()
}

// Selected returns the selected entity ID in col.
func (s *Store) Selected(col Column) (string, bool) {
	if col == Sessions {
		ids := sessionIDs(s.sessionList())
		s.mu.RLock()
		id := pickSelection(s.selected[Sessions], ids)
		s.mu.RUnlock()
		return id, id != ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.selected[col]
	return id, id != ""
}

// Select selects id in col if it exists.
func (s *Store) Select(col Column, id string) bool {
	ids := s.ids(col)
	for _, x := range ids {
		if x == id {
			s.mu.Lock()
			s.selected[col] = id
			s.mu.Unlock()
			s.notify()
			return true
		}
	}
	return false
}

// Move shifts the selection in col by delta, clamped to the column.
func (s *Store) Move(col Column, delta int) string {
	ids := s.ids(col)
	if len(ids) == 0 {
		return ""
	}
	s.mu.Lock()
	cur := 0
	for i, x := range ids {
		if x == s.selected[col] {
			cur = i
		}
	}
	cur = min(max(cur+delta, 0), len(ids)-1)
	s.selected[col] = ids[cur]
	id := s.selected[col]
	s.mu.Unlock()
	s.notify()
	return id
}

// ids lists the entity IDs of col in display order.
func (s *Store) ids(col Column) []string {
	if col == Sessions {
		return sessionIDs(s.sessionList())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idsLocked(col)
}

func (s *Store) idsLocked(col Column) []string {
	switch col {
	case Issues:
		return idsOf(s.issues, model.Issue.ID)
	case Workspaces:
		return idsOf(s.workspaces, model.Workspace.ID)
	case Changes:
		return idsOf(s.changes, model.ProposedChange.ID)
	}
	return nil
}

// fixSelection keeps the selection on an existing entity, falling back to
// the first entity or to none. Callers hold s.mu.
func (s *Store) fixSelection(col Column) {
	s.selected[col] = pickSelection(s.selected[col], s.idsLocked(col))
}

func pickSelection(cur string, ids []string) string {
	for _, id := range ids {
		if id == cur {
			return cur
		}
	}
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func idsOf[T any](items []T, id func(T) string) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = id(it)
	}
	return ids
}

func sessionID(x model.Session) string { return x.ID }

func sessionIDs(sessions []model.Session) []string { return idsOf(sessions, sessionID) }
