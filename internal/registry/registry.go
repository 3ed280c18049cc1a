// Package registry is the authoritative record of live assistant
// sessions. The hook event server writes to it, the board and the render
// loop read consistent snapshots from it, and only the orchestrator
// creates or forgets sessions.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"octodeck/internal/model"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrStale          = errors.New("stale event")
)

// startGrace protects freshly registered sessions from being marked
// exited by a multiplexer listing taken before the launch, whatever
// status their first events already reported.
const startGrace = 10 * time.Second

// Event is a decoded status report for one session.
type Event struct {
	SessionID string
	Status    string
	Detail    string
	Seq       int64
}

type entry struct {
	session    model.Session
	lastSeq    int64
	registered time.Time // zero for adopted sessions
}

// Registry maps session IDs to their live status. Every method holds the
// lock only for field assignment; nothing blocks on I/O inside it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	retired  map[string]int64 // last applied seq of forgotten sessions
	now      func() time.Time
	changed  chan struct{}
}

func New() *Registry {
	return &Registry{
		sessions: map[string]*entry{},
		retired:  map[string]int64{},
		now:      time.Now,
		changed:  make(chan struct{}, 1),
	}
}

// Changed delivers a signal after any mutation. Signals coalesce: a
// reader that falls behind sees one pending signal, never a backlog.
func (r *Registry) Changed() <-chan struct{} { return r.changed }

func (r *Registry) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Register starts a new generation of the session in Starting. The last
// applied sequence number survives re-registration, and Forget, so that
// delayed events from the previous generation stay rejected.
func (r *Registry) Register(id string) model.Session {
	r.mu.Lock()
	e := r.entryFor(id)
	now := r.now()
	e.session = model.Session{ID: id, Status: model.StatusStarting, UpdatedAt: now}
	e.registered = now
	s := e.session
	r.mu.Unlock()

	r.notify()
	return s
}

// entryFor returns the entry for id, creating it with any retired sequence
// number. Callers hold r.mu.
func (r *Registry) entryFor(id string) *entry {
	if e, ok := r.sessions[id]; ok {
		return e
	}
	e := &entry{lastSeq: r.retired[id]}
	delete(r.retired, id)
	r.sessions[id] = e
	return e
}

// Adopt records a session discovered in the multiplexer without a known
// status. Already registered sessions are left alone.
func (r *Registry) Adopt(id string) bool {
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return false
	}
	e := r.entryFor(id)
	e.session = model.Session{ID: id, Status: model.StatusUnknown, UpdatedAt: r.now()}
	r.mu.Unlock()

	r.notify()
	return true
}

// Apply validates ev and, if it is newer than anything applied for the
// session, records its status.
func (r *Registry) Apply(ev Event) (model.Session, error) {
	status, err := model.ParseStatus(ev.Status)
	if err != nil || status == model.StatusUnknown {
		return model.Session{}, fmt.Errorf("%w: %q", ErrInvalidStatus, ev.Status)
	}
	id := model.NormaliseKey(ev.SessionID)

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %q", ErrUnknownSession, ev.SessionID)
	}
	if ev.Seq <= e.lastSeq {
		last := e.lastSeq
		r.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: session %s seq %d <= %d", ErrStale, id, ev.Seq, last)
	}
	e.lastSeq = ev.Seq
	e.session.Status = status
	e.session.Detail = ev.Detail
	e.session.UpdatedAt = r.now()
	s := e.session
	r.mu.Unlock()

	r.notify()
	return s, nil
}

// MarkExited records that the session's process is gone, either because
// the orchestrator killed it or because the multiplexer no longer lists
// it. Sequence bookkeeping is untouched.
func (r *Registry) MarkExited(id, detail string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || e.session.Status == model.StatusExited {
		r.mu.Unlock()
		return false
	}
	e.session.Status = model.StatusExited
	e.session.Detail = detail
	e.session.UpdatedAt = r.now()
	r.mu.Unlock()

	r.notify()
	return true
}

// Forget drops the session. Its last sequence number is kept for the
// next registration under the same ID. Only the orchestrator calls this,
// after the workspace is removed.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		r.retired[id] = e.lastSeq
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		r.notify()
	}
}

// Get returns a copy of one session.
func (r *Registry) Get(id string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return e.session, true
}

// Known reports whether id is registered.
func (r *Registry) Known(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Snapshot returns copies of all sessions ordered by ID.
func (r *Registry) Snapshot() []model.Session {
	r.mu.RLock()
	out := make([]model.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return model.LessKey(out[i].ID, out[j].ID) })
	return out
}

// Reconcile confirms registry state against the multiplexer's session
// list: running sessions that are no longer live become Exited.
// It returns the IDs that changed.
func (r *Registry) Reconcile(live []string) []string {
	alive := make(map[string]bool, len(live))
	for _, name := range live {
		alive[model.NormaliseKey(name)] = true
	}
	r.mu.RLock()
	now := r.now()
	var gone []string
	for id, e := range r.sessions {
		if alive[id] || e.session.Status == model.StatusExited {
			continue
		}
		if !e.registered.IsZero() && now.Sub(e.registered) < startGrace {
			continue
		}
		gone = append(gone, id)
	}
	r.mu.RUnlock()

	sort.Slice(gone, func(i, j int) bool { return model.LessKey(gone[i], gone[j]) })
	var exited []string
	for _, id := range gone {
		if r.MarkExited(id, "session no longer running") {
			exited = append(exited, id)
		}
	}
	return exited
}
