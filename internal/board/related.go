package board

import "octodeck/internal/model"

// Related lists, per column, the IDs of entities sharing an identifier
// key with the queried entity. The queried column is always empty.
type Related [NumColumns][]string

// Has reports whether id in col is related.
func (r Related) Has(col Column, id string) bool {
	for _, x := range r[col] {
		if x == id {
			return true
		}
	}
	return false
}

// Related follows the shared keys (issue number, workspace key, branch)
// from the entity id in col to the other three columns. It is computed
// from the current contents on every call.
func (s *Store) Related(col Column, id string) Related {
	return s.Snapshot().Related(col, id)
}

// Related is the cross-reference query over a snapshot.
func (v View) Related(col Column, id string) Related {
	var want links
	found := false
	switch col {
	case Issues:
		for _, is := range v.Issues {
			if is.ID() == id {
				want, found = issueLinks(is), true
			}
		}
	case Workspaces:
		for _, w := range v.Workspaces {
			if w.Key == id {
				want, found = workspaceLinks(w), true
			}
		}
	case Sessions:
		for _, ss := range v.Sessions {
			if ss.ID == id {
				want, found = sessionLinks(ss), true
			}
		}
	case Changes:
		for _, c := range v.Changes {
			if c.ID() == id {
				want, found = changeLinks(c), true
			}
		}
	}
	var r Related
	if !found {
		return r
	}
	if col != Issues {
		for _, is := range v.Issues {
			if want.meets(issueLinks(is)) {
				r[Issues] = append(r[Issues], is.ID())
			}
		}
	}
	if col != Workspaces {
		for _, w := range v.Workspaces {
			if want.meets(workspaceLinks(w)) {
				r[Workspaces] = append(r[Workspaces], w.Key)
			}
		}
	}
	if col != Sessions {
		for _, ss := range v.Sessions {
			if want.meets(sessionLinks(ss)) {
				r[Sessions] = append(r[Sessions], ss.ID)
			}
		}
	}
	if col != Changes {
		for _, c := range v.Changes {
			if want.meets(changeLinks(c)) {
				r[Changes] = append(r[Changes], c.ID())
			}
		}
	}
	return r
}

// links are the identifier keys an entity carries. Empty fields never
// match.
type links struct {
	issue     string // issue key
	workspace string // workspace/session key
	branch    string
}

func (a links) meets(b links) bool {
	return (a.issue != "" && a.issue == b.issue) ||
		(a.workspace != "" && a.workspace == b.workspace) ||
		(a.branch != "" && a.branch == b.branch)
}

func issueLinks(is model.Issue) links {
	return links{issue: is.Key()}
}

func workspaceLinks(w model.Workspace) links {
	return links{issue: w.IssueKey, workspace: w.Key, branch: w.Branch}
}

func sessionLinks(s model.Session) links {
	l := links{workspace: s.ID}
	if _, ok := model.KeyFromBranch(model.BranchForKey(s.ID)); ok {
		l.issue = s.ID
	}
	return l
}

func changeLinks(c model.ProposedChange) links {
	return links{issue: c.IssueKey, branch: c.Branch}
}
