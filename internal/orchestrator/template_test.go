package orchestrator

import (
	"strings"
	"testing"

	"octodeck/internal/model"
)

func TestExpand(t *testing.T) {
	vars := Vars{
		PromptFile:   "/tmp/p.txt",
		IssueNumber:  42,
		Repo:         "acme/app",
		Title:        "Fix\nlogin",
		Body:         "line one\n\n  line two  ",
		Branch:       "issue-42",
		WorktreePath: "/src/app-issue-42",
	}
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{"claude shortcut", "{claude}", vars, `claude "$(cat '/tmp/p.txt')" --allowedTools Read,Edit,Bash`},
		{"cursor shortcut", "{cursor}", vars, `cursor-agent "$(cat '/tmp/p.txt')"`},
		{"all fields", "{repo}#{issue_number} {branch} {worktree_path}", vars, "'acme/app'#42 'issue-42' '/src/app-issue-42'"},
		{"collapsed text", "{title}: {body}", vars, "'Fix login': 'line one line two'"},
		{"unknown kept", "aider --model {model} {prompt_file}", vars, "aider --model {model} /tmp/p.txt"},
		{"missing data kept", "{claude} # {issue_number} {title}", Vars{}, `claude "$(cat '{prompt_file}')" --allowedTools Read,Edit,Bash # {issue_number} {title}`},
		{"unbalanced braces", "echo {title", vars, "echo {title"},
		{"values not re-expanded", "{title}", Vars{Title: "about {body}", Body: "x"}, "'about {body}'"},
		{"title stays one word", "claude --title {title}", Vars{Title: "x; touch /tmp/owned #"}, "claude --title 'x; touch /tmp/owned #'"},
		{"quotes escaped", "echo {body}", Vars{Body: "it's $(rm -rf ~)"}, `echo 'it'\''s $(rm -rf ~)'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.tmpl, tt.vars); got != tt.want {
				t.Fatalf("Expand(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestProgram(t *testing.T) {
	tests := map[string]string{
		`claude "$(cat '/p')"`: "claude",
		"  ./bin/agent --x":    "./bin/agent",
		"FOO=1 claude":         "",
		"$(which claude)":      "",
		"":                     "",
		"cursor-agent":         "cursor-agent",
	}
	for in, want := range tests {
		if got := program(in); got != want {
			t.Errorf("program(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt("acme/app", model.Issue{Number: 42, Title: "Fix login"})
	for _, want := range []string{"#42", "acme/app", "Title: Fix login.", "No description provided.", "Closes #42"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q: %s", want, p)
		}
	}
	if strings.Contains(p, "\n") {
		t.Errorf("prompt spans lines: %q", p)
	}
}
