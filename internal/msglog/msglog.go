// Package msglog is the bounded, append-only message log shown beneath the
// board. Hook events, refresh failures and user actions all land here.
package msglog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSize is the number of entries kept in memory.
const DefaultSize = 200

// Level classifies an entry for display.
type Level string

const (
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

// Entry is one log line.
type Entry struct {
	ID     string
	Time   time.Time
	Level  Level
	Source string // "hook", "refresh", "lifecycle", "user", ...
	Text   string
}

// Sink receives every entry after it is appended. Implementations must
// not call back into the Log.
type Sink interface {
	Write(Entry) error
}

// Log is a ring buffer of entries; the oldest entry is dropped first.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
	sink    Sink
	now     func() time.Time
}

// New returns a log holding at most size entries.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{entries: make([]Entry, size), now: time.Now}
}

// SetSink attaches a persistent sink. Entries appended before the call are
// not replayed.
func (l *Log) SetSink(s Sink) {
	l.mu.Lock()
	l.sink = s
	l.mu.Unlock()
}

// Restore seeds the log with previously persisted entries, oldest first.
// The sink is not invoked for restored entries.
func (l *Log) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.push(e)
	}
}

// Append records a message and returns the stored entry.
func (l *Log) Append(level Level, source, text string) Entry {
	l.mu.Lock()
	e := Entry{
		ID:     uuid.NewString(),
		Time:   l.now(),
		Level:  level,
		Source: source,
		Text:   text,
	}
	l.push(e)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		// history is best effort; a failing disk must not stall the board
		_ = sink.Write(e)
	}
	return e
}

// Infof appends an Info entry.
func (l *Log) Infof(source, format string, args ...any) Entry {
	return l.Append(Info, source, fmt.Sprintf(format, args...))
}

// Warnf appends a Warn entry.
func (l *Log) Warnf(source, format string, args ...any) Entry {
	return l.Append(Warn, source, fmt.Sprintf(format, args...))
}

// Errorf appends an Error entry.
func (l *Log) Errorf(source, format string, args ...any) Entry {
	return l.Append(Error, source, fmt.Sprintf(format, args...))
}

func (l *Log) push(e Entry) {
	size := len(l.entries)
	if l.count < size {
		l.entries[(l.start+l.count)%size] = e
		l.count++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % size
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

// Tail returns at most n of the newest entries, oldest first.
func (l *Log) Tail(n int) []Entry {
	all := l.Entries()
	if n >= 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
