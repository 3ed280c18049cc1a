// octodeck is a terminal board for running AI coding sessions against
// issues. Each issue gets its own git worktree and a multiplexer session;
// the assistant reports its status back over a unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"octodeck/internal/board"
	"octodeck/internal/config"
	"octodeck/internal/deps"
	"octodeck/internal/events"
	"octodeck/internal/git"
	"octodeck/internal/history"
	"octodeck/internal/msglog"
	"octodeck/internal/mux"
	"octodeck/internal/orchestrator"
	"octodeck/internal/refresh"
	"octodeck/internal/registry"
	"octodeck/internal/runner"
	"octodeck/internal/tracker"
	"octodeck/internal/tui"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			if msg := err.Error(); msg != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", msg)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitError ends the process with code after printing err, if any.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) ExitCode() int { return e.code }

type options struct {
	repo        string
	configPath  string
	local       bool
	socket      string
	multiplexer string
	refresh     time.Duration
	logFile     string
	check       bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("octodeck", pflag.ContinueOnError)
	flagSet.StringVar(&opts.repo, "repo", "", "repository slug owner/name (default: derived from origin)")
	flagSet.StringVar(&opts.configPath, "config", config.DefaultPath(), "config file")
	flagSet.BoolVar(&opts.local, "local", false, "use the local issue store instead of GitHub or GitLab")
	flagSet.StringVar(&opts.socket, "socket", "", "event socket path")
	flagSet.StringVar(&opts.multiplexer, "multiplexer", "", `"tmux" or "screen" (default: first found)`)
	flagSet.DurationVar(&opts.refresh, "refresh", 0, "refresh interval")
	flagSet.StringVar(&opts.logFile, "log-file", "", "debug log file (default: state dir)")
	flagSet.BoolVar(&opts.check, "check", false, "check external dependencies and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return &exitError{code: 2, err: err}
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return &exitError{code: 2, err: fmt.Errorf("unexpected argument: %s", args[0])}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	exe := runner.OSRunner{}
	report := deps.Checker{LookPath: exec.LookPath, Run: exe}.Check(ctx)
	if opts.check {
		fmt.Println(report.Render())
		if report.Err() != nil {
			return &exitError{code: 1}
		}
		return nil
	}
	if err := report.Err(); err != nil {
		fmt.Fprintln(os.Stderr, report.Render())
		return &exitError{code: 1, err: err}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg, flagSet, opts)

	logger, closeLog, err := openLogger(opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	root, err := git.RepoRoot(ctx, exe, cwd)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	repo := git.New(root, exe)
	slug := cfg.Repo
	if slug == "" {
		if remote, err := repo.RemoteURL(ctx); err == nil {
			slug = git.Slug(remote)
		}
	}
	if slug == "" {
		slug = repo.Name()
	}

	log := msglog.New(cfg.MessageLogSize)
	store, err := history.Open(ctx, filepath.Join(config.StateDir(), "history.db"))
	if err != nil {
		logger.Warn("history unavailable", "error", err)
	} else {
		defer store.Close()
		if recent, err := store.Recent(ctx, cfg.MessageLogSize); err == nil {
			log.Restore(recent)
		}
		log.SetSink(store)
	}

	multiplexer, err := mux.Detect(cfg.Multiplexer, exec.LookPath, exe, config.Dir())
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	reg := registry.New()
	server := events.NewServer(cfg.SocketPath, reg, log, logger)
	if err := server.Listen(); err != nil {
		return &exitError{code: 1, err: err}
	}
	defer server.Close()
	go func() {
		if err := server.Serve(ctx); err != nil {
			logger.Error("event server stopped", "error", err)
		}
	}()

	hookScript, err := events.WriteHookScript(config.Dir(), server.Path())
	if err != nil {
		log.Warnf("events", "hook script not installed: %v", err)
	}

	trk := pickTracker(ctx, cfg, exe, root, slug, report, log)

	b := board.New(reg)
	rec := refresh.New(refresh.Options{
		Board:     b,
		Tracker:   trk,
		Worktrees: repo,
		Sessions:  multiplexer,
		Registry:  reg,
		Log:       log,
		Logger:    logger,
		Filter:    tracker.Filter{Limit: cfg.IssueLimit},
	})

	home, _ := os.UserHomeDir()
	orch := orchestrator.New(orchestrator.Options{
		Board:          b,
		Registry:       reg,
		VCS:            repo,
		Mux:            multiplexer,
		Tracker:        trk,
		Log:            log,
		Logger:         logger,
		Repo:           slug,
		SessionCommand: cfg.SessionCommand(slug),
		DraftChanges:   cfg.DraftChanges(slug),
		HookScript:     hookScript,
		TrustConfig:    filepath.Join(home, ".claude.json"),
		PromptDir:      filepath.Join(config.StateDir(), "prompts"),
		LookPath:       exec.LookPath,
	})
	rec.SetCleaner(orch)
	go rec.Run(ctx, cfg.Interval())

	log.Infof("octodeck", "%s via %s, sessions in %s", slug, trk.Kind(), multiplexer.Name())
	logger.Info("started", "repo", slug, "root", root, "tracker", trk.Kind(), "socket", server.Path())

	model := tui.New(tui.Deps{
		Context:      ctx,
		Board:        b,
		Registry:     reg,
		Orchestrator: orch,
		Refresh:      rec,
		Log:          log,
		Repo:         slug,
		Tracker:      trk.Kind(),
		Multiplexer:  multiplexer.Name(),
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, opts options) {
	if fs.Changed("repo") {
		cfg.Repo = opts.repo
	}
	if fs.Changed("local") {
		cfg.LocalMode = opts.local
	}
	if fs.Changed("socket") {
		cfg.SocketPath = opts.socket
	}
	if fs.Changed("multiplexer") {
		cfg.Multiplexer = opts.multiplexer
	}
	if fs.Changed("refresh") && opts.refresh > 0 {
		cfg.RefreshInterval = config.Duration(opts.refresh)
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = config.DefaultSocketPath()
	}
}

// openLogger writes text records to path, or to octodeck.log in the state
// dir. The terminal belongs to the board.
func openLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		path = filepath.Join(config.StateDir(), "octodeck.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}

// pickTracker prefers the forge behind origin and falls back to the local
// store when local mode is set, the remote is unknown or its CLI is missing.
func pickTracker(ctx context.Context, cfg config.Config, run runner.Runner, root, slug string, report deps.Report, log *msglog.Log) tracker.Tracker {
	local := func() tracker.Tracker { return tracker.NewLocal(config.LocalStorePath(slug)) }
	if cfg.LocalMode {
		return local()
	}
	trk := tracker.Detect(ctx, run, root, slug)
	switch {
	case trk == nil:
		log.Infof("tracker", "no GitHub or GitLab remote, using the local issue store")
		return local()
	case trk.Kind() == "github" && !report.Has("gh"), trk.Kind() == "gitlab" && !report.Has("glab"):
		log.Warnf("tracker", "%s remote found but its CLI is missing, using the local issue store", trk.Kind())
		return local()
	}
	return trk
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `octodeck - a board for AI coding sessions, one worktree per issue.

Run it inside a git repository. Issues come from GitHub (gh) or GitLab
(glab) when the origin remote points there, otherwise from a local store.

Usage:
  octodeck [flags]

Flags:
%s`, flagSet.FlagUsages())
}
