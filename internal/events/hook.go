package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SessionEnv names the environment variable a hook script checks before
// falling back to deriving the session key from its working directory.
const SessionEnv = "OCTODECK_SESSION"

const hookScript = `#!/bin/sh
# octodeck event hook: reports assistant session status to the board.
# Generated file, rewritten on every start.
STATUS="$1"
DETAIL=$(printf '%%s' "$2" | tr -d '\000-\037' | sed -e 's/\\/\\\\/g' -e 's/"/\\"/g')
cat > /dev/null
KEY="$%[2]s"
if [ -z "$KEY" ]; then
	KEY=$(basename "$PWD" | sed -n 's/.*issue-\([0-9][0-9]*\).*/\1/p')
fi
[ -z "$KEY" ] && exit 0
SOCKET='%[1]s'
[ -S "$SOCKET" ] || exit 0
SEQ=$(date +%%s%%N 2>/dev/null)
case "$SEQ" in
	''|*[!0-9]*) SEQ="$(date +%%s)000000000" ;;
esac
MSG=$(printf '{"session_id":"%%s","status":"%%s","detail":"%%s","seq":%%s}' "$KEY" "$STATUS" "$DETAIL" "$SEQ")
if command -v nc >/dev/null 2>&1; then
	printf '%%s\n' "$MSG" | nc -w1 -U "$SOCKET" 2>/dev/null
else
	printf '%%s\n' "$MSG" | python3 -c 'import socket,sys; s=socket.socket(socket.AF_UNIX); s.connect(sys.argv[1]); s.sendall(sys.stdin.buffer.read())' "$SOCKET" 2>/dev/null
fi
exit 0
`

// WriteHookScript writes the hook script for socketPath into dir and
// returns its path.
func WriteHookScript(dir, socketPath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create hook dir: %w", err)
	}
	p := filepath.Join(dir, "event-hook.sh")
	script := fmt.Sprintf(hookScript, socketPath, SessionEnv)
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("write hook script: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(p, 0o755); err != nil {
		return "", fmt.Errorf("chmod hook script: %w", err)
	}
	return p, nil
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Async   bool   `json:"async,omitempty"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

// hookConfig maps assistant hook events to the status they report.
func hookConfig(script string) map[string][]hookMatcher {
	cmd := func(status string, async bool) hookCommand {
		return hookCommand{Type: "command", Command: fmt.Sprintf("'%s' %s", script, status), Async: async}
	}
	return map[string][]hookMatcher{
		"SessionStart":     {{Hooks: []hookCommand{cmd("starting", true)}}},
		"UserPromptSubmit": {{Hooks: []hookCommand{cmd("working", true)}}},
		"PreToolUse":       {{Hooks: []hookCommand{cmd("working", true)}}},
		"Stop":             {{Hooks: []hookCommand{cmd("idle", false)}}},
		"Notification": {
			{Matcher: "permission_prompt", Hooks: []hookCommand{cmd("waiting_permission", true)}},
			{Matcher: "idle_prompt", Hooks: []hookCommand{cmd("idle", true)}},
		},
		"SessionEnd": {{Hooks: []hookCommand{cmd("exited", false)}}},
	}
}

// WriteWorktreeSettings installs the hook configuration into the
// worktree's local assistant settings, preserving any other keys.
func WriteWorktreeSettings(worktree, script string) error {
	dir := filepath.Join(worktree, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create .claude dir: %w", err)
	}
	p := filepath.Join(dir, "settings.local.json")

	settings := map[string]any{}
	if data, err := os.ReadFile(p); err == nil {
		// unreadable settings are replaced rather than blocking the launch
		_ = json.Unmarshal(data, &settings)
		if settings == nil {
			settings = map[string]any{}
		}
	}
	settings["hooks"] = hookConfig(script)

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// TrustDirectory marks path as trusted in the assistant's global config
// at configPath so the first launch does not stop at a trust prompt.
func TrustDirectory(configPath, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	config := map[string]any{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", configPath, err)
	}

	projects, _ := config["projects"].(map[string]any)
	if projects == nil {
		projects = map[string]any{}
	}
	project, _ := projects[abs].(map[string]any)
	if project == nil {
		project = map[string]any{}
	}
	project["hasTrustDialogAccepted"] = true
	projects[abs] = project
	config["projects"] = projects

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", configPath, err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	return nil
}
