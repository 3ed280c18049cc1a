package model

import (
	"fmt"
	"time"
)

// SessionStatus is the activity state of an assistant session.
type SessionStatus int

const (
	StatusUnknown SessionStatus = iota
	StatusStarting
	StatusWorking
	StatusIdle
	StatusWaitingForPermission
	StatusExited
)

// ParseStatus maps a hook wire value to a status. Only the values a hook
// may legitimately send are accepted.
func ParseStatus(s string) (SessionStatus, error) {
	switch s {
	case "starting":
		return StatusStarting, nil
	case "working":
		return StatusWorking, nil
	case "idle":
		return StatusIdle, nil
	case "waiting_permission":
		return StatusWaitingForPermission, nil
	case "exited":
		return StatusExited, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown session status %q", s)
	}
}

func (s SessionStatus) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusWorking:
		return "working"
	case StatusIdle:
		return "idle"
	case StatusWaitingForPermission:
		return "waiting_permission"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Running reports whether the assistant process is believed alive.
func (s SessionStatus) Running() bool {
	switch s {
	case StatusStarting, StatusWorking, StatusIdle, StatusWaitingForPermission:
		return true
	}
	return false
}

// Session is an assistant run inside a multiplexed terminal. Its ID is the
// key of the workspace it runs in.
type Session struct {
	ID        string
	Status    SessionStatus
	UpdatedAt time.Time
	Detail    string // free text from the latest hook event
}

// NeedsInput reports whether the assistant is blocked on the user.
func (s Session) NeedsInput() bool {
	return s.Status == StatusIdle || s.Status == StatusWaitingForPermission
}
