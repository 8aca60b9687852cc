package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/telemetry"
)

// Channel is the transport handle of one live peer connection.
// *melody.Session satisfies it.
type Channel interface {
	Write(msg []byte) error
	Close() error
}

// PeerState is the in-memory live state of one open connection. It is
// never persisted: after a coordinator restart all peers re-announce.
type PeerState struct {
	Identity *core.Peer `json:"identity"`
	State    State      `json:"state"`

	Battery        float64 `json:"battery"`
	Temperature    float64 `json:"temperature"`
	FreeSpaceBytes int64   `json:"free_space_bytes"`
	SignalDbm      int     `json:"signal_dbm"`
	Recording      bool    `json:"recording"`

	SessionID     core.SessionID                 `json:"session_id,omitempty"`
	Preview       *protocol.PreviewStatusPayload `json:"preview,omitempty"`
	ClockOffsetMs int64                          `json:"clock_offset_ms"`

	channel Channel
}

// TelemetryUpdate is a partial update: nil fields leave the live state
// unchanged, last-seen is always refreshed.
type TelemetryUpdate struct {
	Battery        *float64
	Temperature    *float64
	FreeSpaceBytes *int64
	SignalDbm      *int
	Recording      *bool
	SessionID      *core.SessionID
}

// Registry holds the authoritative state of every currently connected
// peer and exposes send/broadcast primitives over their channels. The
// map is guarded by a RWMutex; broadcasts iterate over a snapshot copy
// so a connection closing mid-broadcast cannot disturb the iteration.
type Registry struct {
	peers core.PeersDBStorer

	mu   sync.RWMutex
	live map[core.PeerID]*PeerState
}

func NewRegistry(peers core.PeersDBStorer) *Registry {
	return &Registry{
		peers: peers,
		live:  make(map[core.PeerID]*PeerState),
	}
}

// Register adds a live entry for a connection that just paired or
// re-authenticated. An existing entry for the same peer id is replaced,
// the stale channel is closed.
func (r *Registry) Register(identity *core.Peer, channel Channel) *PeerState {
	r.mu.Lock()
	old, existed := r.live[identity.ID]
	state := &PeerState{
		Identity: identity,
		State:    Paired,
		channel:  channel,
	}
	r.live[identity.ID] = state
	r.mu.Unlock()

	if existed && old.channel != nil && old.channel != channel {
		if err := old.channel.Close(); err != nil {
			log.Debug().Err(err).Str("service", "registry").Msg("closing replaced channel")
		}
	}

	telemetry.PeerConnected()
	log.Info().Str("service", "registry").Str("peerID", string(identity.ID)).Str("name", identity.Name).Msg("peer registered")

	return state
}

// Remove deletes the live entry on transport closure. The entry is
// deleted, not flagged, so a stale state can never masquerade as
// present.
func (r *Registry) Remove(id core.PeerID) {
	r.mu.Lock()
	_, existed := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()

	if existed {
		telemetry.PeerDisconnected()
		log.Info().Str("service", "registry").Str("peerID", string(id)).Msg("peer removed")
	}
}

// Drop forcefully closes a peer's connection and deletes its live
// entry, used when the operator revokes a device.
func (r *Registry) Drop(id core.PeerID) {
	r.mu.Lock()
	state, existed := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()

	if !existed {
		return
	}

	if state.channel != nil {
		if err := state.channel.Close(); err != nil {
			log.Warn().Err(err).Str("service", "registry").Str("peerID", string(id)).Msg("can't close dropped channel")
		}
	}

	telemetry.PeerDisconnected()
	log.Info().Str("service", "registry").Str("peerID", string(id)).Msg("peer dropped")
}

// RemoveIfChannel deletes the live entry only when it still refers to
// the given channel. A reconnect replaces the entry before the stale
// transport reports closure; that late closure must not evict the
// fresh registration.
func (r *Registry) RemoveIfChannel(id core.PeerID, channel Channel) {
	r.mu.Lock()
	state, existed := r.live[id]
	if existed && state.channel != channel {
		r.mu.Unlock()
		return
	}
	delete(r.live, id)
	r.mu.Unlock()

	if existed {
		telemetry.PeerDisconnected()
		log.Info().Str("service", "registry").Str("peerID", string(id)).Msg("peer removed")
	}
}

// clone detaches a live state from the registry. The identity is
// copied too: telemetry and slot writers mutate it under the registry
// mutex, so handing the shared pointer to a lock-free reader would
// race.
func clone(state *PeerState) *PeerState {
	copied := *state
	if state.Identity != nil {
		identity := *state.Identity
		copied.Identity = &identity
	}
	return &copied
}

func (r *Registry) Get(id core.PeerID) (*PeerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.live[id]
	if !ok {
		return nil, false
	}
	return clone(state), true
}

// Snapshot returns detached copies of all live peer states for
// iteration or presentation.
func (r *Registry) Snapshot() []*PeerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*PeerState, 0, len(r.live))
	for _, state := range r.live {
		out = append(out, clone(state))
	}

	return out
}

// RecordingPeerIDs lists the peers whose live recording flag is set,
// the fan-out set for clip requests.
func (r *Registry) RecordingPeerIDs() []core.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []core.PeerID{}
	for id, state := range r.live {
		if state.State == Recording || state.Recording {
			out = append(out, id)
		}
	}

	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.live)
}

// UpdateTelemetry applies a peer's health report. The recording tag is
// a passive mirror of peer-reported truth, it is never set by the
// session orchestrator.
func (r *Registry) UpdateTelemetry(id core.PeerID, update TelemetryUpdate) {
	r.mu.Lock()
	state, ok := r.live[id]
	if ok {
		if update.Battery != nil {
			state.Battery = *update.Battery
		}
		if update.Temperature != nil {
			state.Temperature = *update.Temperature
		}
		if update.FreeSpaceBytes != nil {
			state.FreeSpaceBytes = *update.FreeSpaceBytes
		}
		if update.SignalDbm != nil {
			state.SignalDbm = *update.SignalDbm
		}
		if update.Recording != nil {
			state.Recording = *update.Recording
			if *update.Recording {
				state.State = Recording
			} else {
				state.State = Paired
			}
		}
		if update.SessionID != nil {
			state.SessionID = *update.SessionID
		}
		state.Identity.LastSeenAt = time.Now()
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.peers.Touch(id, time.Now()); err != nil {
		log.Error().Err(err).Str("service", "registry").Str("peerID", string(id)).Msg("refresh last seen")
	}
}

func (r *Registry) SetPreview(id core.PeerID, preview *protocol.PreviewStatusPayload) {
	r.mu.Lock()
	if state, ok := r.live[id]; ok {
		state.Preview = preview
	}
	r.mu.Unlock()
}

func (r *Registry) SetClockOffset(id core.PeerID, offsetMs int64) {
	r.mu.Lock()
	if state, ok := r.live[id]; ok {
		state.ClockOffsetMs = offsetMs
	}
	r.mu.Unlock()
}

// SetSlot persists the slot label and pushes the refreshed identity to
// the live peer.
func (r *Registry) SetSlot(id core.PeerID, slot *string) error {
	if err := r.peers.SetSlot(id, slot); err != nil {
		return err
	}

	r.mu.Lock()
	state, ok := r.live[id]
	var name string
	if ok {
		state.Identity.Slot = slot
		name = state.Identity.Name
	}
	r.mu.Unlock()

	if ok {
		r.Send(id, protocol.NewAuthOk(string(id), name, slot))
	}

	return nil
}

// Send is best-effort: a transport error is logged and swallowed, a
// failed send does not remove the peer. Only transport closure does.
func (r *Registry) Send(id core.PeerID, msg protocol.Message) {
	r.mu.RLock()
	state, ok := r.live[id]
	r.mu.RUnlock()

	if !ok {
		log.Debug().Str("service", "registry").Str("peerID", string(id)).Str("kind", string(msg.GetKind())).Msg("send to unknown peer dropped")
		return
	}

	r.write(state, msg)
}

// Broadcast sends to every connected peer.
func (r *Registry) Broadcast(msg protocol.Message) {
	for _, state := range r.Snapshot() {
		r.write(state, msg)
	}
}

// BroadcastToRecording sends only to peers whose live recording flag is
// set.
func (r *Registry) BroadcastToRecording(msg protocol.Message) {
	for _, state := range r.Snapshot() {
		if state.State != Recording && !state.Recording {
			continue
		}
		r.write(state, msg)
	}
}

func (r *Registry) write(state *PeerState, msg protocol.Message) {
	data, err := msg.ToJSON()
	if err != nil {
		log.Error().Err(err).Str("service", "registry").Str("kind", string(msg.GetKind())).Msg("encode message")
		return
	}

	if err := state.channel.Write(data); err != nil {
		log.Error().Err(err).Str("service", "registry").Str("peerID", string(state.Identity.ID)).Str("kind", string(msg.GetKind())).Msg("send failed")
		return
	}

	telemetry.MessageSent(string(msg.GetKind()))
}
