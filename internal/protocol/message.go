package protocol

import (
	"encoding/json"
	"errors"
)

// Version is the wire protocol version carried in every envelope.
const Version = 1

// Kind is the message discriminator. The set of kinds is closed: the
// decoder in this package and the dispatch switch in the server cover
// every kind, so adding one is a compile-visible change.
type Kind string

const (
	HelloKind       Kind = "hello"
	PairRequestKind Kind = "pair_request"
	PairAcceptKind  Kind = "pair_accept"
	PairRejectKind  Kind = "pair_reject"
	AuthKind        Kind = "auth"
	AuthOkKind      Kind = "auth_ok"
	AuthFailedKind  Kind = "auth_failed"

	StatusKind           Kind = "status"
	StartRecordKind      Kind = "start_record"
	RecordingStartedKind Kind = "recording_started"
	StopRecordKind       Kind = "stop_record"
	RecordingStoppedKind Kind = "recording_stopped"

	MarkKind    Kind = "mark"
	MarkAckKind Kind = "mark_ack"

	RequestClipKind Kind = "request_clip"
	ClipReadyKind   Kind = "clip_ready"

	PingKind  Kind = "ping"
	PongKind  Kind = "pong"
	ErrorKind Kind = "error"

	StartPreviewKind  Kind = "start_preview"
	StopPreviewKind   Kind = "stop_preview"
	PreviewStatusKind Kind = "preview_status"

	PlaybackControlKind Kind = "playback_control"
	PlaybackStatusKind  Kind = "playback_status"

	ListSessionsKind   Kind = "list_sessions"
	SessionsListKind   Kind = "sessions_list"
	ListClipsKind      Kind = "list_clips"
	ClipsListKind      Kind = "clips_list"
	GetThumbnailKind   Kind = "get_thumbnail"
	ThumbnailReadyKind Kind = "thumbnail_ready"
	DeleteClipKind     Kind = "delete_clip"
	DeleteSessionKind  Kind = "delete_session"
	DeleteConfirmKind  Kind = "delete_confirm"
	DeleteFailedKind   Kind = "delete_failed"
)

// Reject/error codes carried in pair_reject, auth_failed and error
// payloads.
const (
	CodeInvalidToken    = "invalid_token"
	CodeInvalidKey      = "invalid_key"
	CodeNoActiveSession = "no_active_session"
	CodeAlreadyRecord   = "already_recording"
	CodeUnknownClip     = "unknown_clip"
	CodeUnknownMark     = "unknown_mark"
	CodeInternal        = "internal"
)

var (
	ErrUnknownKind      = errors.New("unknown message kind")
	ErrMalformedMessage = errors.New("malformed message")
)

// Message is one decoded wire message. Concrete types live in this
// package, one per kind.
type Message interface {
	GetKind() Kind
	GetPeerID() string
	GetSessionID() string
	ToJSON() ([]byte, error)
}

// head is the common envelope part {type, proto_version, peer_id,
// session_id}. Payload is added by each concrete type.
type head struct {
	Type         Kind   `json:"type"`
	ProtoVersion int    `json:"proto_version"`
	PeerID       string `json:"peer_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

func newHead(kind Kind) head {
	return head{Type: kind, ProtoVersion: Version}
}

func (h head) GetKind() Kind { return h.Type }

func (h head) GetPeerID() string { return h.PeerID }

func (h head) GetSessionID() string { return h.SessionID }

type rawEnvelope struct {
	head
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one wire message into its concrete type. An unknown
// kind yields ErrUnknownKind and an unparseable payload
// ErrMalformedMessage; the caller logs and drops either, the
// connection stays open.
func Decode(data []byte) (Message, error) {
	raw := &rawEnvelope{}
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, ErrMalformedMessage
	}

	build := func(msg Message, payload interface{}) (Message, error) {
		if len(raw.Payload) > 0 {
			if err := json.Unmarshal(raw.Payload, payload); err != nil {
				return nil, ErrMalformedMessage
			}
		}
		return msg, nil
	}

	switch raw.Type {
	case HelloKind:
		m := &Hello{head: raw.head}
		return build(m, &m.Payload)
	case PairRequestKind:
		m := &PairRequest{head: raw.head}
		return build(m, &m.Payload)
	case PairAcceptKind:
		m := &PairAccept{head: raw.head}
		return build(m, &m.Payload)
	case PairRejectKind:
		m := &PairReject{head: raw.head}
		return build(m, &m.Payload)
	case AuthKind:
		m := &Auth{head: raw.head}
		return build(m, &m.Payload)
	case AuthOkKind:
		m := &AuthOk{head: raw.head}
		return build(m, &m.Payload)
	case AuthFailedKind:
		m := &AuthFailed{head: raw.head}
		return build(m, &m.Payload)
	case StatusKind:
		m := &Status{head: raw.head}
		return build(m, &m.Payload)
	case StartRecordKind:
		m := &StartRecord{head: raw.head}
		return build(m, &m.Payload)
	case RecordingStartedKind:
		m := &RecordingStarted{head: raw.head}
		return build(m, &m.Payload)
	case StopRecordKind:
		return &StopRecord{head: raw.head}, nil
	case RecordingStoppedKind:
		m := &RecordingStopped{head: raw.head}
		return build(m, &m.Payload)
	case MarkKind:
		m := &MarkCommand{head: raw.head}
		return build(m, &m.Payload)
	case MarkAckKind:
		m := &MarkAck{head: raw.head}
		return build(m, &m.Payload)
	case RequestClipKind:
		m := &RequestClip{head: raw.head}
		return build(m, &m.Payload)
	case ClipReadyKind:
		m := &ClipReady{head: raw.head}
		return build(m, &m.Payload)
	case PingKind:
		m := &Ping{head: raw.head}
		return build(m, &m.Payload)
	case PongKind:
		m := &Pong{head: raw.head}
		return build(m, &m.Payload)
	case ErrorKind:
		m := &ErrorMessage{head: raw.head}
		return build(m, &m.Payload)
	case StartPreviewKind:
		m := &StartPreview{head: raw.head}
		return build(m, &m.Payload)
	case StopPreviewKind:
		return &StopPreview{head: raw.head}, nil
	case PreviewStatusKind:
		m := &PreviewStatus{head: raw.head}
		return build(m, &m.Payload)
	case PlaybackControlKind:
		m := &PlaybackControl{head: raw.head}
		return build(m, &m.Payload)
	case PlaybackStatusKind:
		m := &PlaybackStatus{head: raw.head}
		return build(m, &m.Payload)
	case ListSessionsKind:
		m := &ListSessions{head: raw.head}
		return build(m, &m.Payload)
	case SessionsListKind:
		m := &SessionsList{head: raw.head}
		return build(m, &m.Payload)
	case ListClipsKind:
		m := &ListClips{head: raw.head}
		return build(m, &m.Payload)
	case ClipsListKind:
		m := &ClipsList{head: raw.head}
		return build(m, &m.Payload)
	case GetThumbnailKind:
		m := &GetThumbnail{head: raw.head}
		return build(m, &m.Payload)
	case ThumbnailReadyKind:
		m := &ThumbnailReady{head: raw.head}
		return build(m, &m.Payload)
	case DeleteClipKind:
		m := &DeleteClip{head: raw.head}
		return build(m, &m.Payload)
	case DeleteSessionKind:
		m := &DeleteSession{head: raw.head}
		return build(m, &m.Payload)
	case DeleteConfirmKind:
		m := &DeleteConfirm{head: raw.head}
		return build(m, &m.Payload)
	case DeleteFailedKind:
		m := &DeleteFailed{head: raw.head}
		return build(m, &m.Payload)
	default:
		return nil, ErrUnknownKind
	}
}
