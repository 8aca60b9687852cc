package core

import "time"

// MarkID is unique id of an incident marker
type MarkID string

// Mark is an operator-flagged point in time during a session requiring
// later review. Immutable once created except for label/note edits.
type Mark struct {
	ID        MarkID    `json:"id" db:"id"`
	SessionID SessionID `json:"session_id" db:"session_id"`
	Ts        time.Time `json:"ts" db:"ts"`
	Label     string    `json:"label" db:"label"`
	Note      *string   `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MarkAck is one peer's acknowledgment of a broadcast mark. The acks
// table is an append-only audit trail: duplicates from the same peer
// are retained, they double as a coarse liveness signal.
type MarkAck struct {
	MarkID     MarkID    `json:"mark_id" db:"mark_id"`
	PeerID     PeerID    `json:"peer_id" db:"peer_id"`
	PeerTs     int64     `json:"peer_ts" db:"peer_ts"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
