// Package config loads octodeck's settings from a JSONC file. Comments
// and trailing commas are allowed; a missing file means defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

const appName = "octodeck"

// DefaultSessionCommand launches Claude with the issue prompt.
const DefaultSessionCommand = "{claude}"

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultMessageLogSize  = 200
	DefaultIssueLimit      = 30
)

// Config is the on-disk configuration. Per-repo maps are keyed by the
// repo slug (owner/name).
type Config struct {
	Repo            string            `json:"repo,omitempty"`
	LocalMode       bool              `json:"local_mode,omitempty"`
	Multiplexer     string            `json:"multiplexer,omitempty"` // "tmux", "screen" or "" for auto
	RefreshInterval Duration          `json:"refresh_interval,omitempty"`
	SocketPath      string            `json:"socket_path,omitempty"`
	MessageLogSize  int               `json:"message_log_size,omitempty"`
	IssueLimit      int               `json:"issue_limit,omitempty"`
	SessionCommands map[string]string `json:"session_commands,omitempty"`
	PRReady         map[string]bool   `json:"pr_ready,omitempty"`
}

// Duration is a time.Duration written as "30s" in the file. Plain numbers
// are read as seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var secs float64
	if err := json.Unmarshal(b, &secs); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RefreshInterval: Duration(DefaultRefreshInterval),
		SocketPath:      DefaultSocketPath(),
		MessageLogSize:  DefaultMessageLogSize,
		IssueLimit:      DefaultIssueLimit,
	}
}

// Dir is the configuration directory, honouring XDG_CONFIG_HOME.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(homeDir(), ".config")
	}
	return filepath.Join(dir, appName)
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string { return filepath.Join(Dir(), "config.jsonc") }

// StateDir holds the history database and the log file.
func StateDir() string {
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, appName)
	}
	return filepath.Join(homeDir(), ".local", "state", appName)
}

// DefaultSocketPath places the event socket under XDG_RUNTIME_DIR when
// the session has one.
func DefaultSocketPath() string {
	if x := os.Getenv("XDG_RUNTIME_DIR"); x != "" {
		return filepath.Join(x, appName, "events.sock")
	}
	return filepath.Join(StateDir(), "events.sock")
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// Load reads the config at path. Unset fields take their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse strips JSONC comments and trailing commas from data and decodes
// it over cfg, then restores defaults for anything left at zero.
func Parse(data []byte, cfg *Config) error {
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	def := Default()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = def.SocketPath
	}
	if cfg.MessageLogSize <= 0 {
		cfg.MessageLogSize = def.MessageLogSize
	}
	if cfg.IssueLimit <= 0 {
		cfg.IssueLimit = def.IssueLimit
	}
	switch cfg.Multiplexer {
	case "", "tmux", "screen":
	default:
		return fmt.Errorf("multiplexer must be \"tmux\" or \"screen\", got %q", cfg.Multiplexer)
	}
	return nil
}

// Save writes cfg as indented JSON, which is valid JSONC.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Interval returns the refresh interval.
func (c Config) Interval() time.Duration { return time.Duration(c.RefreshInterval) }

// SessionCommand returns the session command template for repo.
func (c Config) SessionCommand(repo string) string {
	if cmd := strings.TrimSpace(c.SessionCommands[repo]); cmd != "" {
		return cmd
	}
	return DefaultSessionCommand
}

// DraftChanges reports whether new proposed changes for repo open as
// drafts.
func (c Config) DraftChanges(repo string) bool { return !c.PRReady[repo] }

// LocalStorePath is the JSON file backing the local tracker for repo.
func LocalStorePath(repo string) string {
	slug := strings.ReplaceAll(repo, "/", "--")
	if slug == "" {
		slug = "default"
	}
	return filepath.Join(Dir(), "local", slug, "store.json")
}
