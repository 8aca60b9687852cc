package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isqad/melody"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/clips"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/marklog"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/orchestrator"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/pairing"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/registry"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/telemetry"
)

const (
	wsPeerIDKey = "peerID"
	wsStateKey  = "connState"
)

func WsHandler(websocket *melody.Melody) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessKeys := make(map[string]interface{})
		sessKeys[wsStateKey] = registry.Connecting

		if err := websocket.HandleRequestWithKeys(w, r, sessKeys); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("can't handle request")
		}
	}
}

func ConnectHandler() func(session *melody.Session) {
	return func(session *melody.Session) {
		log.Debug().Str("service", "ws").Msg("peer connection opened")
	}
}

// DisconnectHandler deletes the live registry entry on transport
// closure. The removal is channel-checked: a stale connection replaced
// by a fresh one for the same peer must not evict the fresh entry.
func DisconnectHandler(reg *registry.Registry) func(session *melody.Session) {
	return func(session *melody.Session) {
		peerID, ok := session.Keys[wsPeerIDKey].(core.PeerID)
		if !ok {
			log.Debug().Str("service", "ws").Msg("unauthenticated connection closed")
			return
		}

		reg.RemoveIfChannel(peerID, session)
	}
}

// Dispatcher routes each decoded wire message to the pairing
// authority, device registry, session orchestrator, mark log or clip
// pipeline.
type Dispatcher struct {
	authority    *pairing.Authority
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	markLog      *marklog.MarkLog
	pipeline     *clips.Pipeline
	peers        core.PeersDBStorer
	relay        *browseRelay

	now func() time.Time
}

func NewDispatcher(
	authority *pairing.Authority,
	reg *registry.Registry,
	orch *orchestrator.Orchestrator,
	markLog *marklog.MarkLog,
	pipeline *clips.Pipeline,
	peers core.PeersDBStorer,
	relay *browseRelay,
) *Dispatcher {
	return &Dispatcher{
		authority:    authority,
		registry:     reg,
		orchestrator: orch,
		markLog:      markLog,
		pipeline:     pipeline,
		peers:        peers,
		relay:        relay,
		now:          time.Now,
	}
}

// HandleMessage is the single dispatch point for inbound peer traffic.
// An unparseable or unrecognized message is logged and dropped, the
// connection stays open.
func (d *Dispatcher) HandleMessage(s *melody.Session, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("service", "ws").Msg("dropping message")
		return
	}

	telemetry.MessageReceived(string(msg.GetKind()))
	peerID := core.PeerID(msg.GetPeerID())

	// Every kind except the handshake ones requires a paired
	// connection. A connection that never authenticated, or failed to,
	// cannot report telemetry or clip availability for any peer id.
	switch msg.(type) {
	case *protocol.Hello, *protocol.PairRequest, *protocol.Auth:
	default:
		if state, ok := s.Keys[wsStateKey].(registry.State); !ok || state != registry.Paired {
			log.Warn().Str("service", "ws").Str("peerID", string(peerID)).Str("kind", string(msg.GetKind())).Msg("dropping message from unpaired connection")
			return
		}
	}

	switch m := msg.(type) {
	case *protocol.Hello:
		log.Info().Str("service", "ws").Str("peerID", string(peerID)).Str("deviceName", m.Payload.DeviceName).Msg("hello")

	case *protocol.PairRequest:
		d.handlePairRequest(s, m)

	case *protocol.Auth:
		d.handleAuth(s, m)

	case *protocol.Status:
		sessionID := core.SessionID(m.GetSessionID())
		d.registry.UpdateTelemetry(peerID, registry.TelemetryUpdate{
			Battery:        &m.Payload.Battery,
			Temperature:    &m.Payload.Temperature,
			FreeSpaceBytes: &m.Payload.FreeSpaceBytes,
			SignalDbm:      &m.Payload.SignalDbm,
			Recording:      &m.Payload.Recording,
			SessionID:      &sessionID,
		})

	case *protocol.RecordingStarted:
		d.orchestrator.OnRecordingStarted(peerID, core.SessionID(m.GetSessionID()), m.Payload.TsMs)

	case *protocol.RecordingStopped:
		d.orchestrator.OnRecordingStopped(peerID, core.SessionID(m.GetSessionID()), m.Payload.TsMs)

	case *protocol.MarkAck:
		if err := d.markLog.OnMarkAck(core.MarkID(m.Payload.MarkID), peerID, m.Payload.PeerTsMs); err != nil {
			log.Error().Err(err).Str("service", "ws").Str("markID", m.Payload.MarkID).Msg("mark ack")
		}

	case *protocol.ClipReady:
		d.pipeline.OnClipReady(peerID, core.ClipID(m.Payload.ClipID), m.Payload.URL, m.Payload.DurationMs, m.Payload.SizeBytes)

	case *protocol.Ping:
		d.registry.Send(peerID, protocol.NewPong(string(peerID), m.Payload.SentAtMs, d.now().UnixMilli()))

	case *protocol.Pong:
		d.handlePong(peerID, m)

	case *protocol.PreviewStatus:
		payload := m.Payload
		if payload.Active {
			d.registry.SetPreview(peerID, &payload)
		} else {
			d.registry.SetPreview(peerID, nil)
		}

	case *protocol.PlaybackStatus:
		log.Debug().Str("service", "ws").Str("peerID", string(peerID)).Str("clipID", m.Payload.ClipID).Str("state", m.Payload.State).Msg("playback status")

	case *protocol.SessionsList, *protocol.ClipsList, *protocol.ThumbnailReady,
		*protocol.DeleteConfirm, *protocol.DeleteFailed:
		d.relay.Fulfill(peerID, msg)

	case *protocol.ErrorMessage:
		log.Warn().Str("service", "ws").Str("peerID", string(peerID)).Str("code", m.Payload.Code).Str("message", m.Payload.Message).Msg("peer error advisory")

	case *protocol.PairAccept, *protocol.PairReject, *protocol.AuthOk, *protocol.AuthFailed,
		*protocol.StartRecord, *protocol.StopRecord, *protocol.MarkCommand, *protocol.RequestClip,
		*protocol.StartPreview, *protocol.StopPreview, *protocol.PlaybackControl,
		*protocol.ListSessions, *protocol.ListClips, *protocol.GetThumbnail,
		*protocol.DeleteClip, *protocol.DeleteSession:
		// coordinator-bound kinds have no business arriving from a peer
		log.Warn().Str("service", "ws").Str("peerID", string(peerID)).Str("kind", string(msg.GetKind())).Msg("dropping message of outbound kind")
	}
}

// handlePairRequest validates the one-time token, mints a credential
// and display name and registers the connection. An invalid, expired
// or used token yields pair_reject and the peer stays in connecting.
func (d *Dispatcher) handlePairRequest(s *melody.Session, m *protocol.PairRequest) {
	peerID := core.PeerID(m.GetPeerID())

	token, err := d.authority.Validate(m.Payload.Token)
	if err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("token validation")
		d.reply(s, protocol.NewPairReject(string(peerID), protocol.CodeInternal, "token validation failed"))
		return
	}
	if token == nil {
		d.reply(s, protocol.NewPairReject(string(peerID), protocol.CodeInvalidToken, "token not found, expired or already used"))
		return
	}

	deviceKey, err := d.authority.IssueCredential()
	if err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("credential mint")
		d.reply(s, protocol.NewPairReject(string(peerID), protocol.CodeInternal, "pairing failed"))
		return
	}

	name, err := d.authority.IssueName()
	if err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("name issue")
		d.reply(s, protocol.NewPairReject(string(peerID), protocol.CodeInternal, "pairing failed"))
		return
	}

	now := d.now()
	identity := &core.Peer{
		ID:           peerID,
		DeviceKey:    deviceKey,
		Name:         name,
		Capabilities: core.Capabilities(m.Payload.Capabilities),
		PairedAt:     now,
		LastSeenAt:   now,
		Active:       true,
	}

	if err := d.peers.Save(identity); err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("persist paired peer")
		d.reply(s, protocol.NewPairReject(string(peerID), protocol.CodeInternal, "pairing failed"))
		return
	}

	// the one-time token burns only once the peer row is durable; any
	// earlier failure leaves the code valid for another attempt
	if err := d.authority.Consume(token.Code); err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("token consume")
		d.reply(s, protocol.NewPairReject(string(peerID), protocol.CodeInternal, "pairing failed"))
		return
	}

	d.registry.Register(identity, s)
	s.Keys[wsPeerIDKey] = peerID
	s.Keys[wsStateKey] = registry.Paired

	d.reply(s, protocol.NewPairAccept(string(peerID), deviceKey, name))
}

// handleAuth is silent re-authentication by device key. Credential
// identity takes precedence over the declared id: a known key arriving
// under a new id re-keys the persisted identity.
func (d *Dispatcher) handleAuth(s *melody.Session, m *protocol.Auth) {
	declaredID := core.PeerID(m.GetPeerID())

	identity, err := d.peers.FindByDeviceKey(m.Payload.DeviceKey)
	if err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("credential lookup")
		d.reply(s, protocol.NewAuthFailed(string(declaredID), protocol.CodeInternal, "authentication failed"))
		s.Keys[wsStateKey] = registry.Failed
		return
	}
	if identity == nil || !identity.Active {
		d.reply(s, protocol.NewAuthFailed(string(declaredID), protocol.CodeInvalidKey, "unknown or revoked device key"))
		s.Keys[wsStateKey] = registry.Failed
		return
	}

	if identity.ID != declaredID {
		log.Info().Str("service", "ws").Str("oldID", string(identity.ID)).Str("newID", string(declaredID)).Msg("re-keying peer identity to new declared id")
		if err := d.peers.Rekey(identity.ID, declaredID); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("re-key")
			d.reply(s, protocol.NewAuthFailed(string(declaredID), protocol.CodeInternal, "authentication failed"))
			s.Keys[wsStateKey] = registry.Failed
			return
		}
		identity.ID = declaredID
	}

	identity.LastSeenAt = d.now()
	if err := d.peers.Touch(identity.ID, identity.LastSeenAt); err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("refresh last seen")
	}

	d.registry.Register(identity, s)
	s.Keys[wsPeerIDKey] = identity.ID
	s.Keys[wsStateKey] = registry.Paired

	d.reply(s, protocol.NewAuthOk(string(identity.ID), identity.Name, identity.Slot))
}

// handlePong stores a coarse clock offset estimate: half the round
// trip is assumed symmetric.
func (d *Dispatcher) handlePong(peerID core.PeerID, m *protocol.Pong) {
	nowMs := d.now().UnixMilli()
	rtt := nowMs - m.Payload.EchoMs
	if rtt < 0 {
		return
	}

	offset := m.Payload.PeerClockMs - (m.Payload.EchoMs + rtt/2)
	d.registry.SetClockOffset(peerID, offset)
}

func (d *Dispatcher) reply(s *melody.Session, msg protocol.Message) {
	data, err := msg.ToJSON()
	if err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("encode reply")
		return
	}
	if err := s.Write(data); err != nil {
		log.Error().Err(err).Str("service", "ws").Msg("write reply")
		return
	}

	telemetry.MessageSent(string(msg.GetKind()))
}
