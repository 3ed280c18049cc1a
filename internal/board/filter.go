package board

import (
	"github.com/sahilm/fuzzy"

	"octodeck/internal/model"
)

// IssueTitle and its siblings give the text an entity is listed and
// filtered by.
func IssueTitle(is model.Issue) string { return "#" + is.ID() + " " + is.Title }

func WorkspaceTitle(w model.Workspace) string { return w.Branch + " " + w.Path }

func SessionTitle(s model.Session) string {
	return model.SessionName(s.ID) + " " + s.Status.String()
}

func ChangeTitle(c model.ProposedChange) string { return "#" + c.ID() + " " + c.Title + " " + c.Branch }

type titles []string

func (t titles) String(i int) string { return t[i] }
func (t titles) Len() int            { return len(t) }

// Filter returns the IDs in col whose titles fuzzy-match query, best
// match first. An empty query returns every ID in display order.
func (v View) Filter(col Column, query string) []string {
	var ids []string
	var src titles
	switch col {
	case Issues:
		for _, is := range v.Issues {
			ids, src = append(ids, is.ID()), append(src, IssueTitle(is))
		}
	case Workspaces:
		for _, w := range v.Workspaces {
			ids, src = append(ids, w.Key), append(src, WorkspaceTitle(w))
		}
	case Sessions:
		for _, s := range v.Sessions {
			ids, src = append(ids, s.ID), append(src, SessionTitle(s))
		}
	case Changes:
		for _, c := range v.Changes {
			ids, src = append(ids, c.ID()), append(src, ChangeTitle(c))
		}
	}
	if query == "" {
		return ids
	}
	matches := fuzzy.FindFrom(query, src)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = ids[m.Index]
	}
	return out
}
