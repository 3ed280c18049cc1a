package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interval() != DefaultRefreshInterval || cfg.MessageLogSize != DefaultMessageLogSize || cfg.IssueLimit != DefaultIssueLimit {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.SocketPath == "" {
		t.Fatal("empty socket path")
	}
}

func TestParseJSONC(t *testing.T) {
	src := []byte(`{
	// the repo on the board
	"repo": "acme/app",
	"refresh_interval": "45s",
	/* block comment */
	"session_commands": {"acme/app": "{cursor}",},
	"pr_ready": {"acme/app": true},
	"message_log_size": 0,
}`)
	var cfg Config
	if err := Parse(src, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Repo != "acme/app" || cfg.Interval() != 45*time.Second {
		t.Fatalf("parsed %+v", cfg)
	}
	if cfg.MessageLogSize != DefaultMessageLogSize {
		t.Fatalf("zero message_log_size not defaulted: %d", cfg.MessageLogSize)
	}
	if got := cfg.SessionCommand("acme/app"); got != "{cursor}" {
		t.Fatalf("SessionCommand = %q", got)
	}
	if got := cfg.SessionCommand("other/repo"); got != DefaultSessionCommand {
		t.Fatalf("default SessionCommand = %q", got)
	}
	if cfg.DraftChanges("acme/app") || !cfg.DraftChanges("other/repo") {
		t.Fatal("pr_ready not honoured")
	}
}

func TestParseNumericInterval(t *testing.T) {
	var cfg Config
	if err := Parse([]byte(`{"refresh_interval": 10}`), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Interval() != 10*time.Second {
		t.Fatalf("interval = %v", cfg.Interval())
	}
}

func TestParseRejectsUnknownMultiplexer(t *testing.T) {
	var cfg Config
	if err := Parse([]byte(`{"multiplexer": "zellij"}`), &cfg); err == nil {
		t.Fatal("unknown multiplexer accepted")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.jsonc")
	want := Default()
	want.Repo = "acme/app"
	want.LocalMode = true
	want.RefreshInterval = Duration(2 * time.Minute)
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Repo != want.Repo || !got.LocalMode || got.Interval() != 2*time.Minute {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestDefaultSocketPathUsesRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultSocketPath(); got != "/run/user/1000/octodeck/events.sock" {
		t.Fatalf("DefaultSocketPath = %q", got)
	}
}

func TestLocalStorePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	if got := LocalStorePath("acme/app"); got != "/cfg/octodeck/local/acme--app/store.json" {
		t.Fatalf("LocalStorePath = %q", got)
	}
}
