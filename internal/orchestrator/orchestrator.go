package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/registry"
)

// ErrAlreadyRecording rejects a start while a session is in recording
// status. At most one session records at a time system-wide.
var ErrAlreadyRecording = errors.New("a session is already recording")

// Broadcaster is the registry surface the orchestrator fans commands
// out through.
type Broadcaster interface {
	Broadcast(msg protocol.Message)
	UpdateTelemetry(id core.PeerID, update registry.TelemetryUpdate)
}

type StartRequest struct {
	EventID *string `json:"event_id,omitempty"`
	MatchID *string `json:"match_id,omitempty"`
	Title   string  `json:"title,omitempty"`
	Profile string  `json:"profile,omitempty"`
}

// Orchestrator owns the single current recording session's lifecycle.
// Session status reflects operator intent; per-peer recording flags in
// the registry reflect peer-reported reality. The two may diverge and
// are reconciled only at the presentation layer.
type Orchestrator struct {
	sessions core.SessionsDBStorer
	peers    Broadcaster

	mu         sync.Mutex
	current    *core.Session
	tickCancel chan struct{}

	onTick func(id core.SessionID, elapsed time.Duration)
	now    func() time.Time
}

func NewOrchestrator(sessions core.SessionsDBStorer, peers Broadcaster) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		peers:    peers,
		now:      time.Now,
	}
}

// SetOnTick installs the 1-second duration tick consumer. Must be set
// before the first StartSession.
func (o *Orchestrator) SetOnTick(callback func(id core.SessionID, elapsed time.Duration)) {
	o.onTick = callback
}

// Reload pulls a still-recording session back into memory after a
// coordinator restart. Live peer connections are never reloaded, peers
// re-announce on their own.
func (o *Orchestrator) Reload() error {
	session, err := o.sessions.FindRecording()
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.current = session
	if session != nil {
		o.startTickerLocked()
		log.Info().Str("service", "orchestrator").Str("sessionID", string(session.ID)).Msg("reloaded recording session")
	}

	return nil
}

// Current returns a copy of the active session, nil when none.
func (o *Orchestrator) Current() *core.Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return nil
	}
	copied := *o.current
	return &copied
}

// CurrentRecording returns the active session only while it is in
// recording status.
func (o *Orchestrator) CurrentRecording() *core.Session {
	session := o.Current()
	if session.IsRecording() {
		return session
	}
	return nil
}

// StartSession persists a new recording session and broadcasts the
// start command to every connected peer regardless of pairing recency.
func (o *Orchestrator) StartSession(req StartRequest) (*core.Session, error) {
	o.mu.Lock()

	if o.current.IsRecording() {
		o.mu.Unlock()
		return nil, ErrAlreadyRecording
	}

	now := o.now()
	session := &core.Session{
		ID:        core.SessionID(uuid.NewString()),
		EventID:   req.EventID,
		MatchID:   req.MatchID,
		Title:     req.Title,
		Profile:   req.Profile,
		Status:    core.SessionRecording,
		StartedAt: now,
	}

	if err := o.sessions.Save(session); err != nil {
		o.mu.Unlock()
		return nil, err
	}

	o.current = session
	o.startTickerLocked()
	o.mu.Unlock()

	payload := protocol.StartRecordPayload{
		Profile:     req.Profile,
		Title:       req.Title,
		StartedAtMs: now.UnixMilli(),
	}
	if req.EventID != nil {
		payload.EventID = *req.EventID
	}
	if req.MatchID != nil {
		payload.MatchID = *req.MatchID
	}
	o.peers.Broadcast(protocol.NewStartRecord(string(session.ID), payload))

	log.Info().Str("service", "orchestrator").Str("sessionID", string(session.ID)).Str("title", session.Title).Msg("session started")

	copied := *session
	return &copied, nil
}

// StopSession is a no-op returning nil when nothing is recording.
func (o *Orchestrator) StopSession() (*core.Session, error) {
	o.mu.Lock()

	if !o.current.IsRecording() {
		o.mu.Unlock()
		return nil, nil
	}

	now := o.now()
	o.current.Status = core.SessionStopped
	o.current.StoppedAt = &now

	if err := o.sessions.Stop(o.current.ID, now); err != nil {
		// roll the in-memory state back, the operator will retry
		o.current.Status = core.SessionRecording
		o.current.StoppedAt = nil
		o.mu.Unlock()
		return nil, err
	}

	session := *o.current
	o.stopTickerLocked()
	o.mu.Unlock()

	o.peers.Broadcast(protocol.NewStopRecord(string(session.ID)))

	log.Info().Str("service", "orchestrator").Str("sessionID", string(session.ID)).Msg("session stopped")

	return &session, nil
}

// OnRecordingStarted handles a peer's acknowledgment of the start
// command. It only mirrors peer truth into the registry and never
// gates session state.
func (o *Orchestrator) OnRecordingStarted(peerID core.PeerID, sessionID core.SessionID, tsMs int64) {
	recording := true
	o.peers.UpdateTelemetry(peerID, registry.TelemetryUpdate{
		Recording: &recording,
		SessionID: &sessionID,
	})
	log.Debug().Str("service", "orchestrator").Str("peerID", string(peerID)).Int64("tsMs", tsMs).Msg("peer recording started")
}

func (o *Orchestrator) OnRecordingStopped(peerID core.PeerID, sessionID core.SessionID, tsMs int64) {
	recording := false
	o.peers.UpdateTelemetry(peerID, registry.TelemetryUpdate{
		Recording: &recording,
		SessionID: &sessionID,
	})
	log.Debug().Str("service", "orchestrator").Str("peerID", string(peerID)).Int64("tsMs", tsMs).Msg("peer recording stopped")
}

func (o *Orchestrator) startTickerLocked() {
	o.stopTickerLocked()

	cancel := make(chan struct{})
	o.tickCancel = cancel

	sessionID := o.current.ID
	startedAt := o.current.StartedAt

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-cancel:
				return
			case now := <-ticker.C:
				if o.onTick != nil {
					o.onTick(sessionID, now.Sub(startedAt))
				}
			}
		}
	}()
}

func (o *Orchestrator) stopTickerLocked() {
	if o.tickCancel != nil {
		close(o.tickCancel)
		o.tickCancel = nil
	}
}
