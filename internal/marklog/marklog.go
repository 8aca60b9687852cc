package marklog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrUnknownMark     = errors.New("unknown mark")
)

// SessionSource exposes the orchestrator's current recording session.
type SessionSource interface {
	CurrentRecording() *core.Session
}

type Broadcaster interface {
	BroadcastToRecording(msg protocol.Message)
}

// MarkLog creates timestamped incident markers, broadcasts them to
// recording peers and records per-peer acknowledgments.
type MarkLog struct {
	marks    core.MarksDBStorer
	sessions SessionSource
	peers    Broadcaster

	mu    sync.Mutex
	cache map[core.SessionID][]*core.Mark

	now func() time.Time
}

func NewMarkLog(marks core.MarksDBStorer, sessions SessionSource, peers Broadcaster) *MarkLog {
	return &MarkLog{
		marks:    marks,
		sessions: sessions,
		peers:    peers,
		cache:    make(map[core.SessionID][]*core.Mark),
		now:      time.Now,
	}
}

// Reload warms the in-memory cache for a session, used after a
// coordinator restart while a session was still recording.
func (l *MarkLog) Reload(sessionID core.SessionID) error {
	marks, err := l.marks.BySession(sessionID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cache[sessionID] = marks
	l.mu.Unlock()

	return nil
}

// CreateMark timestamps an incident during the current recording
// session and broadcasts it to every peer whose recording flag is set.
// Late-joining peers simply do not receive this broadcast, there is no
// replay.
func (l *MarkLog) CreateMark(label string, note *string) (*core.Mark, error) {
	session := l.sessions.CurrentRecording()
	if session == nil {
		return nil, ErrNoActiveSession
	}

	now := l.now()

	// the lock spans counting, persisting and appending so two
	// concurrent creates cannot mint the same default label
	l.mu.Lock()
	if label == "" {
		label = fmt.Sprintf("Mark %d", len(l.cache[session.ID])+1)
	}
	mark := &core.Mark{
		ID:        core.MarkID(uuid.NewString()),
		SessionID: session.ID,
		Ts:        now,
		Label:     label,
		Note:      note,
		CreatedAt: now,
	}

	if err := l.marks.Save(mark); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.cache[session.ID] = append(l.cache[session.ID], mark)
	l.mu.Unlock()

	l.peers.BroadcastToRecording(protocol.NewMarkCommand(string(session.ID), protocol.MarkPayload{
		MarkID: string(mark.ID),
		Label:  mark.Label,
		TsMs:   mark.Ts.UnixMilli(),
	}))

	log.Info().Str("service", "marklog").Str("markID", string(mark.ID)).Str("label", mark.Label).Msg("mark created")

	copied := *mark
	return &copied, nil
}

// OnMarkAck appends an audit record. Duplicate acks from the same peer
// are retained, they double as a coarse liveness signal.
func (l *MarkLog) OnMarkAck(markID core.MarkID, peerID core.PeerID, peerTsMs int64) error {
	ack := &core.MarkAck{
		MarkID:     markID,
		PeerID:     peerID,
		PeerTs:     peerTsMs,
		ReceivedAt: l.now(),
	}

	if err := l.marks.AppendAck(ack); err != nil {
		return err
	}

	log.Debug().Str("service", "marklog").Str("markID", string(markID)).Str("peerID", string(peerID)).Msg("mark ack")

	return nil
}

// UpdateMark edits label and note only.
func (l *MarkLog) UpdateMark(id core.MarkID, label string, note *string) (*core.Mark, error) {
	mark, err := l.marks.Find(id)
	if err != nil {
		return nil, err
	}
	if mark == nil {
		return nil, ErrUnknownMark
	}

	if label != "" {
		mark.Label = label
	}
	if note != nil {
		mark.Note = note
	}

	if err := l.marks.Update(mark); err != nil {
		return nil, err
	}

	l.mu.Lock()
	for i, cached := range l.cache[mark.SessionID] {
		if cached.ID == id {
			l.cache[mark.SessionID][i] = mark
			break
		}
	}
	l.mu.Unlock()

	return mark, nil
}

// DeleteMark removes the mark from cache and store. The broadcast
// already sent to peers is not retracted: clip requests referencing the
// mark remain valid.
func (l *MarkLog) DeleteMark(id core.MarkID) error {
	mark, err := l.marks.Find(id)
	if err != nil {
		return err
	}
	if mark == nil {
		return ErrUnknownMark
	}

	if err := l.marks.Delete(id); err != nil {
		return err
	}

	l.mu.Lock()
	cached := l.cache[mark.SessionID]
	for i, m := range cached {
		if m.ID == id {
			l.cache[mark.SessionID] = append(cached[:i], cached[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	return nil
}

func (l *MarkLog) Find(id core.MarkID) (*core.Mark, error) {
	return l.marks.Find(id)
}

func (l *MarkLog) BySession(sessionID core.SessionID) ([]*core.Mark, error) {
	return l.marks.BySession(sessionID)
}

func (l *MarkLog) AcksByMark(id core.MarkID) ([]*core.MarkAck, error) {
	return l.marks.AcksByMark(id)
}
