package protocol

import "encoding/json"

// Remote browsing of a peer's on-device recordings. Requests originate
// from the operator console and are forwarded verbatim; the peer's
// reply is relayed back.

type ListSessionsPayload struct {
	Limit int `json:"limit,omitempty"`
}

type ListSessions struct {
	head
	Payload ListSessionsPayload `json:"payload"`
}

func NewListSessions(peerID string, limit int) *ListSessions {
	h := newHead(ListSessionsKind)
	h.PeerID = peerID
	return &ListSessions{head: h, Payload: ListSessionsPayload{Limit: limit}}
}

func (m ListSessions) ToJSON() ([]byte, error) { return json.Marshal(m) }

type RemoteSession struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	StartedAtMs int64  `json:"started_at_ms"`
	SizeBytes   int64  `json:"size_bytes"`
	ClipCount   int    `json:"clip_count"`
}

type SessionsListPayload struct {
	Sessions []RemoteSession `json:"sessions"`
}

type SessionsList struct {
	head
	Payload SessionsListPayload `json:"payload"`
}

func NewSessionsList(peerID string, sessions []RemoteSession) *SessionsList {
	h := newHead(SessionsListKind)
	h.PeerID = peerID
	return &SessionsList{head: h, Payload: SessionsListPayload{Sessions: sessions}}
}

func (m SessionsList) ToJSON() ([]byte, error) { return json.Marshal(m) }

type ListClipsPayload struct {
	SessionID string `json:"session_id"`
}

type ListClips struct {
	head
	Payload ListClipsPayload `json:"payload"`
}

func NewListClips(peerID, sessionID string) *ListClips {
	h := newHead(ListClipsKind)
	h.PeerID = peerID
	return &ListClips{head: h, Payload: ListClipsPayload{SessionID: sessionID}}
}

func (m ListClips) ToJSON() ([]byte, error) { return json.Marshal(m) }

type RemoteClip struct {
	ID         string `json:"id"`
	MarkID     string `json:"mark_id,omitempty"`
	URL        string `json:"url"`
	DurationMs int64  `json:"duration_ms"`
	SizeBytes  int64  `json:"size_bytes"`
}

type ClipsListPayload struct {
	SessionID string       `json:"session_id"`
	Clips     []RemoteClip `json:"clips"`
}

type ClipsList struct {
	head
	Payload ClipsListPayload `json:"payload"`
}

func NewClipsList(peerID string, payload ClipsListPayload) *ClipsList {
	h := newHead(ClipsListKind)
	h.PeerID = peerID
	return &ClipsList{head: h, Payload: payload}
}

func (m ClipsList) ToJSON() ([]byte, error) { return json.Marshal(m) }

type GetThumbnailPayload struct {
	ClipID string `json:"clip_id"`
}

type GetThumbnail struct {
	head
	Payload GetThumbnailPayload `json:"payload"`
}

func NewGetThumbnail(peerID, clipID string) *GetThumbnail {
	h := newHead(GetThumbnailKind)
	h.PeerID = peerID
	return &GetThumbnail{head: h, Payload: GetThumbnailPayload{ClipID: clipID}}
}

func (m GetThumbnail) ToJSON() ([]byte, error) { return json.Marshal(m) }

type ThumbnailReadyPayload struct {
	ClipID string `json:"clip_id"`
	URL    string `json:"url"`
}

type ThumbnailReady struct {
	head
	Payload ThumbnailReadyPayload `json:"payload"`
}

func NewThumbnailReady(peerID, clipID, url string) *ThumbnailReady {
	h := newHead(ThumbnailReadyKind)
	h.PeerID = peerID
	return &ThumbnailReady{head: h, Payload: ThumbnailReadyPayload{ClipID: clipID, URL: url}}
}

func (m ThumbnailReady) ToJSON() ([]byte, error) { return json.Marshal(m) }

type DeleteClipPayload struct {
	ClipID string `json:"clip_id"`
}

type DeleteClip struct {
	head
	Payload DeleteClipPayload `json:"payload"`
}

func NewDeleteClip(peerID, clipID string) *DeleteClip {
	h := newHead(DeleteClipKind)
	h.PeerID = peerID
	return &DeleteClip{head: h, Payload: DeleteClipPayload{ClipID: clipID}}
}

func (m DeleteClip) ToJSON() ([]byte, error) { return json.Marshal(m) }

type DeleteSessionPayload struct {
	SessionID string `json:"session_id"`
}

type DeleteSession struct {
	head
	Payload DeleteSessionPayload `json:"payload"`
}

func NewDeleteSession(peerID, sessionID string) *DeleteSession {
	h := newHead(DeleteSessionKind)
	h.PeerID = peerID
	return &DeleteSession{head: h, Payload: DeleteSessionPayload{SessionID: sessionID}}
}

func (m DeleteSession) ToJSON() ([]byte, error) { return json.Marshal(m) }

type DeleteConfirmPayload struct {
	TargetID string `json:"target_id"`
}

type DeleteConfirm struct {
	head
	Payload DeleteConfirmPayload `json:"payload"`
}

func NewDeleteConfirm(peerID, targetID string) *DeleteConfirm {
	h := newHead(DeleteConfirmKind)
	h.PeerID = peerID
	return &DeleteConfirm{head: h, Payload: DeleteConfirmPayload{TargetID: targetID}}
}

func (m DeleteConfirm) ToJSON() ([]byte, error) { return json.Marshal(m) }

type DeleteFailedPayload struct {
	TargetID string `json:"target_id"`
	Reason   string `json:"reason,omitempty"`
}

type DeleteFailed struct {
	head
	Payload DeleteFailedPayload `json:"payload"`
}

func NewDeleteFailed(peerID, targetID, reason string) *DeleteFailed {
	h := newHead(DeleteFailedKind)
	h.PeerID = peerID
	return &DeleteFailed{head: h, Payload: DeleteFailedPayload{TargetID: targetID, Reason: reason}}
}

func (m DeleteFailed) ToJSON() ([]byte, error) { return json.Marshal(m) }
