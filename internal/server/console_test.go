package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/clips"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/config"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/marklog"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/orchestrator"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/pairing"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/registry"
)

// scriptedChannel lets a test play the peer side of a console
// passthrough request.
type scriptedChannel struct {
	onWrite func(data []byte)
}

func (c *scriptedChannel) Write(data []byte) error {
	if c.onWrite != nil {
		go c.onWrite(data)
	}
	return nil
}

func (c *scriptedChannel) Close() error { return nil }

func newConsoleApp(t *testing.T, consoleKey string) (*App, *testEnv, *httptest.Server) {
	env := &testEnv{
		peers:    NewMockPeersStorage(),
		tokens:   NewMockTokensStorage(),
		sessions: NewMockSessionsStorage(),
		marks:    NewMockMarksStorage(),
	}

	env.authority = pairing.NewAuthority(env.tokens, env.peers)
	env.registry = registry.NewRegistry(env.peers)
	env.orchestrator = orchestrator.NewOrchestrator(env.sessions, env.registry)
	env.markLog = marklog.NewMarkLog(env.marks, env.orchestrator, env.registry)
	env.pipeline = clips.NewPipeline(NewMockClipsStorage(), env.orchestrator, env.registry, t.TempDir())
	env.relay = newBrowseRelay()

	app := &App{
		AppOptions: AppOptions{
			Config: &config.Config{
				App: config.AppConfig{
					ConsoleKey:   consoleKey,
					CookieSecret: "test-secret",
				},
			},
		},
	}
	app.peersRepo = env.peers
	app.sessionsRepo = env.sessions
	app.authority = env.authority
	app.registry = env.registry
	app.orchestrator = env.orchestrator
	app.markLog = env.markLog
	app.pipeline = env.pipeline
	app.relay = env.relay
	app.orchestrator.SetOnTick(func(id core.SessionID, elapsed time.Duration) {
		app.elapsedMs.Store(elapsed.Milliseconds())
	})

	ts := httptest.NewServer(app.consoleRouter())
	t.Cleanup(ts.Close)

	return app, env, ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.Nil(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	assert.Nil(t, err)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	assert.Nil(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestConsoleAuthGate(t *testing.T) {
	_, _, ts := newConsoleApp(t, "ringside")

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/peers", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/login", map[string]string{"key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	jar, err := cookiejar.New(nil)
	assert.Nil(t, err)
	client := &http.Client{Jar: jar}

	resp = doJSON(t, client, "POST", ts.URL+"/login", map[string]string{"key": "ringside"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, client, "GET", ts.URL+"/peers", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConsoleOpenWithoutKey(t *testing.T) {
	_, _, ts := newConsoleApp(t, "")

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/peers", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPairingTokenEndpoint(t *testing.T) {
	_, _, ts := newConsoleApp(t, "")

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/pairing/token", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token := core.PairingToken{}
	decodeBody(t, resp, &token)
	assert.Len(t, token.Code, 6)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	// a second request within the TTL returns the same code
	resp = doJSON(t, http.DefaultClient, "GET", ts.URL+"/pairing/token", nil)
	again := core.PairingToken{}
	decodeBody(t, resp, &again)
	assert.Equal(t, token.Code, again.Code)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	_, _, ts := newConsoleApp(t, "")

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/sessions/current", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/sessions", map[string]string{
		"title":   "Bout 4",
		"profile": "1080p30",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	started := core.Session{}
	decodeBody(t, resp, &started)
	assert.Equal(t, core.SessionRecording, started.Status)
	assert.Equal(t, "Bout 4", started.Title)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/sessions", map[string]string{"title": "Bout 5"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, "GET", ts.URL+"/sessions/current", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/sessions/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopped := core.Session{}
	decodeBody(t, resp, &stopped)
	assert.Equal(t, core.SessionStopped, stopped.Status)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/sessions/stop", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkEndpoints(t *testing.T) {
	_, _, ts := newConsoleApp(t, "")

	resp := doJSON(t, http.DefaultClient, "POST", ts.URL+"/marks", map[string]string{"label": "knockdown"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/sessions", map[string]string{"title": "Bout 4"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	session := core.Session{}
	decodeBody(t, resp, &session)

	resp = doJSON(t, http.DefaultClient, "POST", ts.URL+"/marks", map[string]string{"label": "knockdown"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	mark := core.Mark{}
	decodeBody(t, resp, &mark)
	assert.Equal(t, "knockdown", mark.Label)
	assert.Equal(t, session.ID, mark.SessionID)

	resp = doJSON(t, http.DefaultClient, "PATCH", ts.URL+"/marks/"+string(mark.ID), map[string]string{
		"label": "knockdown R2",
		"note":  "left hook",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	updated := core.Mark{}
	decodeBody(t, resp, &updated)
	assert.Equal(t, "knockdown R2", updated.Label)

	resp = doJSON(t, http.DefaultClient, "GET", ts.URL+"/sessions/"+string(session.ID)+"/marks", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	marks := []core.Mark{}
	decodeBody(t, resp, &marks)
	assert.Len(t, marks, 1)

	resp = doJSON(t, http.DefaultClient, "DELETE", ts.URL+"/marks/"+string(mark.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, "PATCH", ts.URL+"/marks/"+string(mark.ID), map[string]string{"label": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPeerSlotEndpoint(t *testing.T) {
	_, env, ts := newConsoleApp(t, "")

	env.peers.Save(&core.Peer{ID: "cam-1", DeviceKey: "key", Name: "Camera 1", Active: true})

	resp := doJSON(t, http.DefaultClient, "PUT", ts.URL+"/peers/cam-1/slot", map[string]string{"slot": "red corner"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	saved, err := env.peers.Find(core.PeerID("cam-1"))
	assert.Nil(t, err)
	if assert.NotNil(t, saved.Slot) {
		assert.Equal(t, "red corner", *saved.Slot)
	}
}

func TestPeerRevokeEndpoint(t *testing.T) {
	_, env, ts := newConsoleApp(t, "")

	peer := &core.Peer{ID: "cam-1", DeviceKey: "key", Name: "Camera 1", Active: true}
	env.peers.Save(peer)
	ch := &scriptedChannel{}
	env.registry.Register(peer, ch)

	resp := doJSON(t, http.DefaultClient, "DELETE", ts.URL+"/peers/cam-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	saved, err := env.peers.Find(core.PeerID("cam-1"))
	assert.Nil(t, err)
	assert.False(t, saved.Active)
	assert.Equal(t, 0, env.registry.Count())
}

func TestRemoteBrowsePassthrough(t *testing.T) {
	_, env, ts := newConsoleApp(t, "")

	peer := &core.Peer{ID: "cam-1", DeviceKey: "key", Name: "Camera 1", Active: true}
	env.peers.Save(peer)

	ch := &scriptedChannel{}
	ch.onWrite = func(data []byte) {
		msg, err := protocol.Decode(data)
		if err != nil {
			return
		}
		if msg.GetKind() != protocol.ListSessionsKind {
			return
		}
		env.relay.Fulfill(core.PeerID("cam-1"), protocol.NewSessionsList("cam-1", []protocol.RemoteSession{
			{ID: "rec-1", Title: "Bout 3"},
		}))
	}
	env.registry.Register(peer, ch)

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/peers/cam-1/recordings", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := protocol.SessionsListPayload{}
	decodeBody(t, resp, &payload)
	if assert.Len(t, payload.Sessions, 1) {
		assert.Equal(t, "rec-1", payload.Sessions[0].ID)
	}
}

func TestRemoteBrowseUnknownPeer(t *testing.T) {
	_, _, ts := newConsoleApp(t, "")

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/peers/ghost/recordings", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemoteDeleteFailureMapsToConflict(t *testing.T) {
	_, env, ts := newConsoleApp(t, "")

	peer := &core.Peer{ID: "cam-1", DeviceKey: "key", Name: "Camera 1", Active: true}
	env.peers.Save(peer)

	ch := &scriptedChannel{}
	ch.onWrite = func(data []byte) {
		msg, err := protocol.Decode(data)
		if err != nil || msg.GetKind() != protocol.DeleteClipKind {
			return
		}
		env.relay.Fulfill(core.PeerID("cam-1"), protocol.NewDeleteFailed("cam-1", "clip-9", "file in use"))
	}
	env.registry.Register(peer, ch)

	resp := doJSON(t, http.DefaultClient, "DELETE", ts.URL+"/peers/cam-1/clips/clip-9", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestClipFileEndpoint(t *testing.T) {
	app, env, ts := newConsoleApp(t, "")

	resp := doJSON(t, http.DefaultClient, "GET", ts.URL+"/clips/ghost/file", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	dir := t.TempDir()
	path := filepath.Join(dir, "c1.mp4")
	assert.Nil(t, os.WriteFile(path, []byte("mp4-bytes"), 0o644))

	clipsRepo := NewMockClipsStorage()
	app.pipeline = clips.NewPipeline(clipsRepo, env.orchestrator, env.registry, dir)

	clipsRepo.Save(&core.Clip{ID: "c1", SessionID: "s1", Status: core.ClipDownloading})
	resp = doJSON(t, http.DefaultClient, "GET", ts.URL+"/clips/c1/file", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	clipsRepo.Save(&core.Clip{ID: "c1", SessionID: "s1", Status: core.ClipDownloaded, LocalPath: &path})
	resp = doJSON(t, http.DefaultClient, "GET", ts.URL+"/clips/c1/file", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	assert.Nil(t, err)
	assert.Equal(t, "mp4-bytes", string(body))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
}

func TestBrowseRelayFulfillMatchesKind(t *testing.T) {
	relay := newBrowseRelay()

	waiter := relay.register(core.PeerID("cam-1"), protocol.SessionsListKind)

	// a reply of another kind is not delivered to this waiter
	relay.Fulfill(core.PeerID("cam-1"), protocol.NewClipsList("cam-1", protocol.ClipsListPayload{}))
	select {
	case <-waiter.ch:
		t.Fatal("waiter received a reply of the wrong kind")
	default:
	}

	relay.Fulfill(core.PeerID("cam-1"), protocol.NewSessionsList("cam-1", nil))
	select {
	case msg := <-waiter.ch:
		assert.Equal(t, protocol.SessionsListKind, msg.GetKind())
	case <-time.After(time.Second):
		t.Fatal("waiter never received the matching reply")
	}

	relay.unregister(core.PeerID("cam-1"), waiter)
}
