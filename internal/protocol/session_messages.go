package protocol

import "encoding/json"

// Status is the periodic (~2s) health report from a peer. Zero-valued
// fields are still applied; the registry treats the whole payload as
// the peer's current truth.
type StatusPayload struct {
	Battery        float64 `json:"battery"`
	Temperature    float64 `json:"temperature"`
	FreeSpaceBytes int64   `json:"free_space_bytes"`
	Recording      bool    `json:"recording"`
	SignalDbm      int     `json:"signal_dbm,omitempty"`
}

type Status struct {
	head
	Payload StatusPayload `json:"payload"`
}

func NewStatus(peerID, sessionID string, payload StatusPayload) *Status {
	h := newHead(StatusKind)
	h.PeerID = peerID
	h.SessionID = sessionID
	return &Status{head: h, Payload: payload}
}

func (m Status) ToJSON() ([]byte, error) { return json.Marshal(m) }

// StartRecord fans out to every connected peer when the operator starts
// a session.
type StartRecordPayload struct {
	Profile     string `json:"profile,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	MatchID     string `json:"match_id,omitempty"`
	Title       string `json:"title,omitempty"`
	StartedAtMs int64  `json:"started_at_ms"`
}

type StartRecord struct {
	head
	Payload StartRecordPayload `json:"payload"`
}

func NewStartRecord(sessionID string, payload StartRecordPayload) *StartRecord {
	h := newHead(StartRecordKind)
	h.SessionID = sessionID
	return &StartRecord{head: h, Payload: payload}
}

func (m StartRecord) ToJSON() ([]byte, error) { return json.Marshal(m) }

type RecordingStartedPayload struct {
	TsMs int64 `json:"ts_ms"`
}

type RecordingStarted struct {
	head
	Payload RecordingStartedPayload `json:"payload"`
}

func NewRecordingStarted(peerID, sessionID string, tsMs int64) *RecordingStarted {
	h := newHead(RecordingStartedKind)
	h.PeerID = peerID
	h.SessionID = sessionID
	return &RecordingStarted{head: h, Payload: RecordingStartedPayload{TsMs: tsMs}}
}

func (m RecordingStarted) ToJSON() ([]byte, error) { return json.Marshal(m) }

type StopRecord struct {
	head
}

func NewStopRecord(sessionID string) *StopRecord {
	h := newHead(StopRecordKind)
	h.SessionID = sessionID
	return &StopRecord{head: h}
}

func (m StopRecord) ToJSON() ([]byte, error) { return json.Marshal(m) }

type RecordingStoppedPayload struct {
	TsMs int64 `json:"ts_ms"`
}

type RecordingStopped struct {
	head
	Payload RecordingStoppedPayload `json:"payload"`
}

func NewRecordingStopped(peerID, sessionID string, tsMs int64) *RecordingStopped {
	h := newHead(RecordingStoppedKind)
	h.PeerID = peerID
	h.SessionID = sessionID
	return &RecordingStopped{head: h, Payload: RecordingStoppedPayload{TsMs: tsMs}}
}

func (m RecordingStopped) ToJSON() ([]byte, error) { return json.Marshal(m) }

// MarkCommand broadcasts an incident marker to recording peers.
type MarkPayload struct {
	MarkID string `json:"mark_id"`
	Label  string `json:"label"`
	TsMs   int64  `json:"ts_ms"`
}

type MarkCommand struct {
	head
	Payload MarkPayload `json:"payload"`
}

func NewMarkCommand(sessionID string, payload MarkPayload) *MarkCommand {
	h := newHead(MarkKind)
	h.SessionID = sessionID
	return &MarkCommand{head: h, Payload: payload}
}

func (m MarkCommand) ToJSON() ([]byte, error) { return json.Marshal(m) }

type MarkAckPayload struct {
	MarkID   string `json:"mark_id"`
	PeerTsMs int64  `json:"peer_ts_ms"`
}

type MarkAck struct {
	head
	Payload MarkAckPayload `json:"payload"`
}

func NewMarkAck(peerID, markID string, peerTsMs int64) *MarkAck {
	h := newHead(MarkAckKind)
	h.PeerID = peerID
	return &MarkAck{head: h, Payload: MarkAckPayload{MarkID: markID, PeerTsMs: peerTsMs}}
}

func (m MarkAck) ToJSON() ([]byte, error) { return json.Marshal(m) }

// Ping/Pong provide coarse peer clock offset estimation. The
// coordinator echoes its send time and the peer adds its own clock.
type PingPayload struct {
	SentAtMs int64 `json:"sent_at_ms"`
}

type Ping struct {
	head
	Payload PingPayload `json:"payload"`
}

func NewPing(peerID string, sentAtMs int64) *Ping {
	h := newHead(PingKind)
	h.PeerID = peerID
	return &Ping{head: h, Payload: PingPayload{SentAtMs: sentAtMs}}
}

func (m Ping) ToJSON() ([]byte, error) { return json.Marshal(m) }

type PongPayload struct {
	EchoMs      int64 `json:"echo_ms"`
	PeerClockMs int64 `json:"peer_clock_ms"`
}

type Pong struct {
	head
	Payload PongPayload `json:"payload"`
}

func NewPong(peerID string, echoMs, peerClockMs int64) *Pong {
	h := newHead(PongKind)
	h.PeerID = peerID
	return &Pong{head: h, Payload: PongPayload{EchoMs: echoMs, PeerClockMs: peerClockMs}}
}

func (m Pong) ToJSON() ([]byte, error) { return json.Marshal(m) }

// ErrorMessage is a non-fatal advisory in either direction.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type ErrorMessage struct {
	head
	Payload ErrorPayload `json:"payload"`
}

func NewError(peerID, code, message string) *ErrorMessage {
	h := newHead(ErrorKind)
	h.PeerID = peerID
	return &ErrorMessage{head: h, Payload: ErrorPayload{Code: code, Message: message}}
}

func (m ErrorMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }
