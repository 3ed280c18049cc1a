// Package events runs the local socket that assistant hook scripts report
// session status to, and installs those hook scripts.
package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"octodeck/internal/model"
	"octodeck/internal/msglog"
	"octodeck/internal/registry"
)

const (
	defaultIdleTimeout = 2 * time.Minute
	maxEventBytes      = 64 * 1024
)

// Applier is the registry surface the server writes to.
type Applier interface {
	Apply(ev registry.Event) (model.Session, error)
}

// wireEvent is one line on the socket.
type wireEvent struct {
	SessionID string `json:"session_id"`
	Session   string `json:"session"` // accepted from older hook scripts
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Seq       *int64 `json:"seq"`
}

type Server struct {
	path        string
	reg         Applier
	log         *msglog.Log
	logger      *slog.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	ln       net.Listener
	lockFile *os.File
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	shutdown sync.Once
	closeErr error
}

func NewServer(path string, reg Applier, log *msglog.Log, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:        path,
		reg:         reg,
		log:         log,
		logger:      logger,
		idleTimeout: defaultIdleTimeout,
		conns:       map[net.Conn]struct{}{},
	}
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Listen binds the socket. A stale socket left by a crashed process is
// replaced; a socket held by a live process is refused.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.path); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not a unix socket: %s", s.path)
		}
		if err := os.Remove(s.path); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen unix: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Each connection is handled on its own goroutine; a failure on one never
// affects another.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("event server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Error("accept hook connection", "error", err)
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close() //nolint:errcheck
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	conn.Close() //nolint:errcheck
}

// handleConn reads newline-delimited events. Events that fail validation
// are logged and skipped; bytes that do not decode end the connection.
func (s *Server) handleConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxEventBytes)
	for {
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout)) //nolint:errcheck
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := decodeEvent(line)
		if err != nil {
			s.log.Errorf("hook", "malformed hook event, closing connection: %v", err)
			s.logger.Warn("malformed hook event", "error", err)
			return
		}
		s.apply(ev)
	}
	if err := scanner.Err(); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return
		}
		if errors.Is(err, net.ErrClosed) {
			return
		}
		s.log.Errorf("hook", "hook connection failed: %v", err)
		s.logger.Warn("hook connection read", "error", err)
	}
}

func (s *Server) apply(ev registry.Event) {
	sess, err := s.reg.Apply(ev)
	switch {
	case err == nil:
		s.log.Infof("hook", "session %s: %s", sess.ID, sess.Status)
		s.logger.Debug("hook event applied", "session", sess.ID, "status", sess.Status.String(), "seq", ev.Seq)
	case errors.Is(err, registry.ErrStale):
		// stale events are expected when deliveries race; keep them out of
		// the user-facing log
		s.logger.Debug("hook event dropped", "error", err)
	default:
		s.log.Warnf("hook", "rejected hook event: %v", err)
		s.logger.Info("hook event rejected", "error", err)
	}
}

func decodeEvent(line []byte) (registry.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return registry.Event{}, fmt.Errorf("decode: %w", err)
	}
	id := w.SessionID
	if id == "" {
		id = w.Session
	}
	if id == "" {
		return registry.Event{}, errors.New("missing session_id")
	}
	if w.Seq == nil {
		return registry.Event{}, errors.New("missing seq")
	}
	return registry.Event{
		SessionID: id,
		Status:    w.Status,
		Detail:    w.Detail,
		Seq:       *w.Seq,
	}, nil
}

// Close stops accepting, closes open connections and removes the socket.
func (s *Server) Close() error {
	s.shutdown.Do(func() {
		var errs []error
		s.mu.Lock()
		ln := s.ln
		s.ln = nil
		conns := s.conns
		s.conns = nil
		s.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		for c := range conns {
			c.Close() //nolint:errcheck
		}
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Server) acquireLock() error {
	lockPath := s.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("event socket %s is held by another process", s.path)
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
