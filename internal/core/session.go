package core

import (
	"time"
)

// SessionID is unique id of one recording interval
type SessionID string

type SessionStatus string

const (
	// SessionPending and SessionCompleted are reserved, no code path
	// enters them: sessions move directly none -> recording -> stopped.
	SessionPending   SessionStatus = "pending"
	SessionRecording SessionStatus = "recording"
	SessionStopped   SessionStatus = "stopped"
	SessionCompleted SessionStatus = "completed"
)

// Session is one continuous recording interval with a single
// start/stop boundary. At most one session is in `recording` status
// system-wide.
type Session struct {
	ID        SessionID     `json:"id" db:"id"`
	EventID   *string       `json:"event_id,omitempty" db:"event_id"`
	MatchID   *string       `json:"match_id,omitempty" db:"match_id"`
	Title     string        `json:"title" db:"title"`
	Profile   string        `json:"profile,omitempty" db:"profile"`
	Status    SessionStatus `json:"status" db:"status"`
	StartedAt time.Time     `json:"started_at" db:"started_at"`
	StoppedAt *time.Time    `json:"stopped_at,omitempty" db:"stopped_at"`
}

func (s *Session) IsRecording() bool {
	return s != nil && s.Status == SessionRecording
}

// Duration returns elapsed recording time, using StoppedAt when the
// session is finished.
func (s *Session) Duration(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	if s.StoppedAt != nil {
		return s.StoppedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
