package protocol

import "encoding/json"

// Live preview control. The pixel pipeline itself is the peer's
// business; the coordinator only starts/stops it and mirrors the
// advertised stream descriptor.
type StartPreviewPayload struct {
	Quality string `json:"quality,omitempty"`
	MaxFPS  int    `json:"max_fps,omitempty"`
}

type StartPreview struct {
	head
	Payload StartPreviewPayload `json:"payload"`
}

func NewStartPreview(peerID string, payload StartPreviewPayload) *StartPreview {
	h := newHead(StartPreviewKind)
	h.PeerID = peerID
	return &StartPreview{head: h, Payload: payload}
}

func (m StartPreview) ToJSON() ([]byte, error) { return json.Marshal(m) }

type StopPreview struct {
	head
}

func NewStopPreview(peerID string) *StopPreview {
	h := newHead(StopPreviewKind)
	h.PeerID = peerID
	return &StopPreview{head: h}
}

func (m StopPreview) ToJSON() ([]byte, error) { return json.Marshal(m) }

type PreviewStatusPayload struct {
	Active bool   `json:"active"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	FPS    int    `json:"fps,omitempty"`
}

type PreviewStatus struct {
	head
	Payload PreviewStatusPayload `json:"payload"`
}

func NewPreviewStatus(peerID string, payload PreviewStatusPayload) *PreviewStatus {
	h := newHead(PreviewStatusKind)
	h.PeerID = peerID
	return &PreviewStatus{head: h, Payload: payload}
}

func (m PreviewStatus) ToJSON() ([]byte, error) { return json.Marshal(m) }

// Remote playback control of an on-device clip.
type PlaybackControlPayload struct {
	ClipID     string `json:"clip_id"`
	Action     string `json:"action"` // play, pause, seek, stop
	PositionMs int64  `json:"position_ms,omitempty"`
}

type PlaybackControl struct {
	head
	Payload PlaybackControlPayload `json:"payload"`
}

func NewPlaybackControl(peerID string, payload PlaybackControlPayload) *PlaybackControl {
	h := newHead(PlaybackControlKind)
	h.PeerID = peerID
	return &PlaybackControl{head: h, Payload: payload}
}

func (m PlaybackControl) ToJSON() ([]byte, error) { return json.Marshal(m) }

type PlaybackStatusPayload struct {
	ClipID     string `json:"clip_id"`
	State      string `json:"state"`
	PositionMs int64  `json:"position_ms"`
}

type PlaybackStatus struct {
	head
	Payload PlaybackStatusPayload `json:"payload"`
}

func NewPlaybackStatus(peerID string, payload PlaybackStatusPayload) *PlaybackStatus {
	h := newHead(PlaybackStatusKind)
	h.PeerID = peerID
	return &PlaybackStatus{head: h, Payload: payload}
}

func (m PlaybackStatus) ToJSON() ([]byte, error) { return json.Marshal(m) }
