package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"octodeck/internal/model"
	"octodeck/internal/mux"
)

// Vars are the values a session command template may reference.
type Vars struct {
	PromptFile   string
	IssueNumber  int
	Repo         string
	Title        string
	Body         string
	Branch       string
	WorktreePath string
}

// shortcuts expand to full assistant invocations before any other
// placeholder, so they may themselves use {prompt_file}.
var shortcuts = map[string]string{
	"claude": `claude "$(cat '{prompt_file}')" --allowedTools Read,Edit,Bash`,
	"cursor": `cursor-agent "$(cat '{prompt_file}')"`,
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// lookup returns the value for a placeholder. Text that may come from
// issue authors or the filesystem is shell-quoted; {prompt_file} is our
// own path and appears inside quotes in the shortcuts.
func (v Vars) lookup(name string) string {
	switch name {
	case "prompt_file":
		return v.PromptFile
	case "issue_number":
		if v.IssueNumber > 0 {
			return strconv.Itoa(v.IssueNumber)
		}
	case "repo":
		return quoted(v.Repo)
	case "title":
		return quoted(oneLine(v.Title))
	case "body":
		return quoted(oneLine(v.Body))
	case "branch":
		return quoted(v.Branch)
	case "worktree_path":
		return quoted(v.WorktreePath)
	}
	return ""
}

func quoted(s string) string {
	if s == "" {
		return ""
	}
	return mux.ShellQuote(s)
}

// Expand fills the placeholders in tmpl. Unknown placeholders and those
// whose value is empty are left as written. Each text value becomes a
// single shell word. Values are inserted once;
// a title containing "{body}" is not expanded again.
func Expand(tmpl string, v Vars) string {
	tmpl = placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if s, ok := shortcuts[m[1:len(m)-1]]; ok {
			return s
		}
		return m
	})
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if s := v.lookup(m[1 : len(m)-1]); s != "" {
			return s
		}
		return m
	})
}

// oneLine joins the non-blank lines of s with single spaces.
func oneLine(s string) string {
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// program returns the executable a command line starts with, or "" when
// the line does not start with a plain word (env assignments, subshells).
func program(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	word := fields[0]
	for _, c := range word {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '/':
		default:
			return ""
		}
	}
	return word
}

// Prompt is the instruction handed to the assistant for an issue.
func Prompt(repo string, is model.Issue) string {
	body := oneLine(is.Body)
	if body == "" {
		body = "No description provided."
	}
	return fmt.Sprintf("You are working on issue #%d of %s. Title: %s. %s "+
		"Investigate the codebase and implement a solution. Once you are confident "+
		"the problem is solved, commit your work and open a draft pull request whose "+
		"description explains what changed and why. Reference the issue with "+
		"'Closes #%d' in the description and assign it to yourself.",
		is.Number, repo, oneLine(is.Title), body, is.Number)
}
