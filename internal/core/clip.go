package core

import "time"

// ClipID is unique id of a requested clip
type ClipID string

type ClipStatus string

const (
	ClipPending     ClipStatus = "pending"
	ClipRequested   ClipStatus = "requested"
	ClipReady       ClipStatus = "ready"
	ClipDownloading ClipStatus = "downloading"
	ClipDownloaded  ClipStatus = "downloaded"
	ClipFailed      ClipStatus = "failed"
)

// Clip is a bounded video excerpt around a mark, produced by a specific
// peer and retrieved by the coordinator. One Clip row exists per
// (mark, peer) pair requested.
type Clip struct {
	ID           ClipID     `json:"id" db:"id"`
	SessionID    SessionID  `json:"session_id" db:"session_id"`
	MarkID       MarkID     `json:"mark_id" db:"mark_id"`
	PeerID       PeerID     `json:"peer_id" db:"peer_id"`
	SourceURL    *string    `json:"source_url,omitempty" db:"source_url"`
	LocalPath    *string    `json:"local_path,omitempty" db:"local_path"`
	DurationMs   int64      `json:"duration_ms" db:"duration_ms"`
	SizeBytes    int64      `json:"size_bytes" db:"size_bytes"`
	Status       ClipStatus `json:"status" db:"status"`
	Progress     float64    `json:"progress" db:"progress"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty" db:"downloaded_at"`
}
