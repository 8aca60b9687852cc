package protocol

import "encoding/json"

// RequestClip asks one peer to cut a clip around a mark.
type RequestClipPayload struct {
	ClipID     string `json:"clip_id"`
	MarkID     string `json:"mark_id"`
	PreRollMs  int64  `json:"pre_roll_ms"`
	PostRollMs int64  `json:"post_roll_ms"`
	Quality    string `json:"quality,omitempty"`
}

type RequestClip struct {
	head
	Payload RequestClipPayload `json:"payload"`
}

func NewRequestClip(sessionID string, payload RequestClipPayload) *RequestClip {
	h := newHead(RequestClipKind)
	h.SessionID = sessionID
	return &RequestClip{head: h, Payload: payload}
}

func (m RequestClip) ToJSON() ([]byte, error) { return json.Marshal(m) }

// ClipReady announces that a requested clip file became available on
// the peer's HTTP endpoint. Duration and size are peer-reported and
// trusted as-is.
type ClipReadyPayload struct {
	ClipID     string `json:"clip_id"`
	URL        string `json:"url"`
	DurationMs int64  `json:"duration_ms"`
	SizeBytes  int64  `json:"size_bytes"`
}

type ClipReady struct {
	head
	Payload ClipReadyPayload `json:"payload"`
}

func NewClipReady(peerID string, payload ClipReadyPayload) *ClipReady {
	h := newHead(ClipReadyKind)
	h.PeerID = peerID
	return &ClipReady{head: h, Payload: payload}
}

func (m ClipReady) ToJSON() ([]byte, error) { return json.Marshal(m) }
