package camsim

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
)

// Simulator impersonates one camera peer against a running
// coordinator: it pairs or re-authenticates, reports status, answers
// record and mark commands and serves generated clip files from its
// own HTTP listener. Useful for driving the coordinator without real
// hardware in the room.
type Simulator struct {
	coordinatorAddr string
	peerID          string
	token           string
	statusEvery     time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	deviceKey string
	name      string
	recording bool
	sessionID string
	clips     map[string][]byte

	fileListener net.Listener
}

func New(coordinatorAddr, peerID, token, deviceKey string) *Simulator {
	if peerID == "" {
		peerID = uuid.NewString()
	}

	return &Simulator{
		coordinatorAddr: coordinatorAddr,
		peerID:          peerID,
		token:           token,
		deviceKey:       deviceKey,
		statusEvery:     2 * time.Second,
		clips:           make(map[string][]byte),
	}
}

func (sim *Simulator) Close() {
	if sim.fileListener != nil {
		sim.fileListener.Close()
	}
	if sim.conn != nil {
		sim.conn.Close()
	}
}

func (sim *Simulator) Start() error {
	defer sim.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(fmt.Sprintf("ws://%s/ws", sim.coordinatorAddr), nil)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.Body.Close()
	}
	sim.conn = conn

	if err := sim.startFileServer(); err != nil {
		return err
	}

	if err := sim.announce(); err != nil {
		return err
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if err := sim.readMessage(); err != nil {
				log.Error().Err(err).Str("service", "camsim").Msg("read error")
				return
			}
		}
	}()

	statusTicker := time.NewTicker(sim.statusEvery)
	defer statusTicker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-statusTicker.C:
			sim.sendStatus()
		case <-interrupt:
			log.Info().Str("service", "camsim").Msg("interrupt")

			err := sim.writeRaw(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return err
			}

			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		}
	}
}

// announce pairs with the one-time token on first contact, silently
// re-authenticates with the device key afterwards.
func (sim *Simulator) announce() error {
	sim.mu.Lock()
	deviceKey := sim.deviceKey
	sim.mu.Unlock()

	if deviceKey != "" {
		return sim.send(protocol.NewAuth(sim.peerID, deviceKey))
	}

	if err := sim.send(protocol.NewHello(sim.peerID, protocol.HelloPayload{
		DeviceName: "camsim",
		Model:      "virtual",
	})); err != nil {
		return err
	}

	return sim.send(protocol.NewPairRequest(sim.peerID, protocol.PairRequestPayload{
		Token:      sim.token,
		DeviceName: "camsim",
		Model:      "virtual",
	}))
}

func (sim *Simulator) readMessage() error {
	_, data, err := sim.conn.ReadMessage()
	if err != nil {
		return err
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("service", "camsim").Msg("dropping message")
		return nil
	}

	switch m := msg.(type) {
	case *protocol.PairAccept:
		sim.mu.Lock()
		sim.deviceKey = m.Payload.DeviceKey
		sim.name = m.Payload.Name
		sim.mu.Unlock()
		// the key must survive restarts; a real camera persists it
		log.Info().Str("service", "camsim").Str("name", m.Payload.Name).Str("deviceKey", m.Payload.DeviceKey).Msg("paired, save the device key for re-auth")

	case *protocol.PairReject:
		return fmt.Errorf("pairing rejected: %s", m.Payload.Reason)

	case *protocol.AuthOk:
		sim.mu.Lock()
		sim.name = m.Payload.Name
		sim.mu.Unlock()
		log.Info().Str("service", "camsim").Str("name", m.Payload.Name).Msg("authenticated")

	case *protocol.AuthFailed:
		return fmt.Errorf("authentication failed: %s", m.Payload.Reason)

	case *protocol.StartRecord:
		sim.mu.Lock()
		sim.recording = true
		sim.sessionID = m.GetSessionID()
		sim.mu.Unlock()
		log.Info().Str("service", "camsim").Str("sessionID", m.GetSessionID()).Msg("recording started")
		return sim.send(protocol.NewRecordingStarted(sim.peerID, m.GetSessionID(), time.Now().UnixMilli()))

	case *protocol.StopRecord:
		sim.mu.Lock()
		sim.recording = false
		sessionID := sim.sessionID
		sim.mu.Unlock()
		log.Info().Str("service", "camsim").Msg("recording stopped")
		return sim.send(protocol.NewRecordingStopped(sim.peerID, sessionID, time.Now().UnixMilli()))

	case *protocol.MarkCommand:
		return sim.send(protocol.NewMarkAck(sim.peerID, m.Payload.MarkID, time.Now().UnixMilli()))

	case *protocol.RequestClip:
		return sim.produceClip(m)

	case *protocol.Ping:
		return sim.send(protocol.NewPong(sim.peerID, m.Payload.SentAtMs, time.Now().UnixMilli()))

	case *protocol.StartPreview:
		return sim.send(protocol.NewPreviewStatus(sim.peerID, protocol.PreviewStatusPayload{
			Active: true,
			URL:    sim.fileURL("preview"),
			Width:  1920,
			Height: 1080,
			FPS:    30,
		}))

	case *protocol.StopPreview:
		return sim.send(protocol.NewPreviewStatus(sim.peerID, protocol.PreviewStatusPayload{Active: false}))

	case *protocol.PlaybackControl:
		return sim.send(protocol.NewPlaybackStatus(sim.peerID, protocol.PlaybackStatusPayload{
			ClipID:     m.Payload.ClipID,
			State:      m.Payload.Action,
			PositionMs: m.Payload.PositionMs,
		}))

	case *protocol.ListSessions:
		return sim.send(protocol.NewSessionsList(sim.peerID, []protocol.RemoteSession{
			{ID: "local-1", Title: "simulated recording", StartedAtMs: time.Now().Add(-time.Hour).UnixMilli(), SizeBytes: 512 << 20, ClipCount: len(sim.clipIDs())},
		}))

	case *protocol.ListClips:
		clips := []protocol.RemoteClip{}
		for _, id := range sim.clipIDs() {
			clips = append(clips, protocol.RemoteClip{
				ID:         id,
				URL:        sim.fileURL(id),
				DurationMs: 10000,
				SizeBytes:  int64(len(sim.clipData(id))),
			})
		}
		return sim.send(protocol.NewClipsList(sim.peerID, protocol.ClipsListPayload{
			SessionID: m.Payload.SessionID,
			Clips:     clips,
		}))

	case *protocol.GetThumbnail:
		return sim.send(protocol.NewThumbnailReady(sim.peerID, m.Payload.ClipID, sim.fileURL(m.Payload.ClipID)))

	case *protocol.DeleteClip:
		sim.mu.Lock()
		delete(sim.clips, m.Payload.ClipID)
		sim.mu.Unlock()
		return sim.send(protocol.NewDeleteConfirm(sim.peerID, m.Payload.ClipID))

	case *protocol.DeleteSession:
		return sim.send(protocol.NewDeleteConfirm(sim.peerID, m.Payload.SessionID))

	case *protocol.ErrorMessage:
		log.Warn().Str("service", "camsim").Str("code", m.Payload.Code).Msg("coordinator error advisory")

	default:
		log.Debug().Str("service", "camsim").Str("kind", string(msg.GetKind())).Msg("ignoring message")
	}

	return nil
}

// produceClip fabricates clip bytes sized to the requested window and
// announces them on the file listener.
func (sim *Simulator) produceClip(m *protocol.RequestClip) error {
	size := (m.Payload.PreRollMs + m.Payload.PostRollMs) * 256
	if size <= 0 {
		size = 64 << 10
	}
	data := make([]byte, size)
	rand.Read(data)

	sim.mu.Lock()
	sim.clips[m.Payload.ClipID] = data
	sim.mu.Unlock()

	return sim.send(protocol.NewClipReady(sim.peerID, protocol.ClipReadyPayload{
		ClipID:     m.Payload.ClipID,
		URL:        sim.fileURL(m.Payload.ClipID),
		DurationMs: m.Payload.PreRollMs + m.Payload.PostRollMs,
		SizeBytes:  int64(len(data)),
	}))
}

func (sim *Simulator) sendStatus() {
	sim.mu.Lock()
	recording := sim.recording
	sessionID := sim.sessionID
	sim.mu.Unlock()

	status := protocol.NewStatus(sim.peerID, sessionID, protocol.StatusPayload{
		Battery:        0.5 + rand.Float64()/2,
		Temperature:    30 + rand.Float64()*10,
		FreeSpaceBytes: 32 << 30,
		Recording:      recording,
		SignalDbm:      -40,
	})

	if err := sim.send(status); err != nil {
		log.Error().Err(err).Str("service", "camsim").Msg("can't send status")
	}
}

func (sim *Simulator) send(msg protocol.Message) error {
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}
	return sim.writeRaw(websocket.TextMessage, data)
}

func (sim *Simulator) writeRaw(messageType int, data []byte) error {
	sim.writeMu.Lock()
	defer sim.writeMu.Unlock()
	return sim.conn.WriteMessage(messageType, data)
}

// startFileServer opens the listener clips are downloaded from,
// mirroring a camera's on-device HTTP endpoint.
func (sim *Simulator) startFileServer() error {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return err
	}
	sim.fileListener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/clips/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/clips/"), ".mp4")
		data := sim.clipData(id)
		if data == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(data)
	})

	go func() {
		if err := http.Serve(listener, mux); err != nil {
			log.Debug().Err(err).Str("service", "camsim").Msg("file server stopped")
		}
	}()

	log.Info().Str("service", "camsim").Str("address", listener.Addr().String()).Msg("serving clips")

	return nil
}

// fileURL addresses the file listener from the coordinator's side of
// the websocket connection.
func (sim *Simulator) fileURL(clipID string) string {
	host, _, err := net.SplitHostPort(sim.conn.LocalAddr().String())
	if err != nil {
		host = "127.0.0.1"
	}
	_, port, err := net.SplitHostPort(sim.fileListener.Addr().String())
	if err != nil {
		port = "0"
	}
	return fmt.Sprintf("http://%s/clips/%s.mp4", net.JoinHostPort(host, port), clipID)
}

func (sim *Simulator) clipIDs() []string {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	out := make([]string, 0, len(sim.clips))
	for id := range sim.clips {
		out = append(out, id)
	}
	return out
}

func (sim *Simulator) clipData(id string) []byte {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.clips[id]
}
