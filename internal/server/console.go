package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/clips"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/marklog"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/orchestrator"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/registry"
)

const (
	consoleSessionNameKey = "_varcoord_console"

	// browseTimeout bounds every console request that round-trips
	// through a peer. Peers answer over a LAN hop, seconds not minutes.
	browseTimeout = 10 * time.Second
)

var errBrowseTimeout = errors.New("peer did not answer in time")

// browseRelay matches console-initiated peer requests with the peer's
// asynchronous replies. A waiter is registered per (peer, expected
// kinds) before the request is sent; the dispatcher fulfills it when a
// matching reply arrives on the websocket.
type browseWaiter struct {
	kinds []protocol.Kind
	ch    chan protocol.Message
}

type browseRelay struct {
	mu      sync.Mutex
	waiters map[core.PeerID][]*browseWaiter
}

func newBrowseRelay() *browseRelay {
	return &browseRelay{
		waiters: make(map[core.PeerID][]*browseWaiter),
	}
}

func (b *browseRelay) register(peerID core.PeerID, kinds ...protocol.Kind) *browseWaiter {
	waiter := &browseWaiter{
		kinds: kinds,
		ch:    make(chan protocol.Message, 1),
	}

	b.mu.Lock()
	b.waiters[peerID] = append(b.waiters[peerID], waiter)
	b.mu.Unlock()

	return waiter
}

func (b *browseRelay) unregister(peerID core.PeerID, waiter *browseWaiter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.waiters[peerID]
	for i, w := range list {
		if w == waiter {
			b.waiters[peerID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.waiters[peerID]) == 0 {
		delete(b.waiters, peerID)
	}
}

// Fulfill hands a peer reply to the oldest waiter expecting its kind.
// A reply nobody waits for is logged and dropped.
func (b *browseRelay) Fulfill(peerID core.PeerID, msg protocol.Message) {
	b.mu.Lock()
	list := b.waiters[peerID]
	for i, w := range list {
		for _, kind := range w.kinds {
			if kind != msg.GetKind() {
				continue
			}
			b.waiters[peerID] = append(list[:i], list[i+1:]...)
			b.mu.Unlock()
			w.ch <- msg
			return
		}
	}
	b.mu.Unlock()

	log.Warn().Str("service", "console").Str("peerID", string(peerID)).Str("kind", string(msg.GetKind())).Msg("unsolicited browse reply dropped")
}

// askPeer sends a request to one live peer and blocks until a reply of
// one of the expected kinds arrives or the timeout fires.
func (app *App) askPeer(ctx context.Context, peerID core.PeerID, req protocol.Message, kinds ...protocol.Kind) (protocol.Message, error) {
	waiter := app.relay.register(peerID, kinds...)
	defer app.relay.unregister(peerID, waiter)

	app.registry.Send(peerID, req)

	ctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	select {
	case msg := <-waiter.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, errBrowseTimeout
	}
}

// consoleRouter is the operator-facing JSON API. Every route except
// login requires the console cookie when a console key is configured.
func (app *App) consoleRouter() http.Handler {
	r := chi.NewRouter()
	store := sessions.NewCookieStore([]byte(app.Config.App.CookieSecret))

	r.Post("/login", app.loginHandler(store))

	r.Group(func(r chi.Router) {
		r.Use(app.authenticateConsole(store))

		r.Get("/pairing/token", app.pairingTokenHandler)

		r.Get("/peers", app.peersHandler)
		r.Put("/peers/{id}/slot", app.peerSlotHandler)
		r.Delete("/peers/{id}", app.peerRevokeHandler)

		r.Get("/sessions", app.sessionsHandler)
		r.Post("/sessions", app.sessionStartHandler)
		r.Post("/sessions/stop", app.sessionStopHandler)
		r.Get("/sessions/current", app.sessionCurrentHandler)
		r.Get("/sessions/{id}/marks", app.sessionMarksHandler)
		r.Get("/sessions/{id}/clips", app.sessionClipsHandler)

		r.Post("/marks", app.markCreateHandler)
		r.Patch("/marks/{id}", app.markUpdateHandler)
		r.Delete("/marks/{id}", app.markDeleteHandler)
		r.Get("/marks/{id}/acks", app.markAcksHandler)
		r.Post("/marks/{id}/clips", app.markClipsHandler)

		r.Get("/clips/{id}", app.clipHandler)
		r.Post("/clips/{id}/retry", app.clipRetryHandler)
		r.Get("/clips/{id}/file", app.clipFileHandler)

		r.Post("/peers/{id}/preview/start", app.previewStartHandler)
		r.Post("/peers/{id}/preview/stop", app.previewStopHandler)
		r.Post("/peers/{id}/playback", app.playbackHandler)

		r.Get("/peers/{id}/recordings", app.remoteSessionsHandler)
		r.Get("/peers/{id}/recordings/{sid}/clips", app.remoteClipsHandler)
		r.Delete("/peers/{id}/recordings/{sid}", app.remoteSessionDeleteHandler)
		r.Get("/peers/{id}/clips/{cid}/thumbnail", app.remoteThumbnailHandler)
		r.Delete("/peers/{id}/clips/{cid}", app.remoteClipDeleteHandler)
	})

	return r
}

func (app *App) loginHandler(store *sessions.CookieStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := struct {
			Key string `json:"key"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if app.Config.App.ConsoleKey == "" || params.Key != app.Config.App.ConsoleKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		session, _ := store.Get(r, consoleSessionNameKey)
		session.Values["console"] = true
		if err := session.Save(r, w); err != nil {
			log.Error().Err(err).Str("service", "console").Msg("can't save console cookie")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// authenticateConsole gates the console routes behind the login
// cookie. An empty console key means an unlocked console, typical for
// a laptop that never leaves the scorer's table.
func (app *App) authenticateConsole(store *sessions.CookieStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if app.Config.App.ConsoleKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, _ := store.Get(r, consoleSessionNameKey)
			if ok, _ := session.Values["console"].(bool); !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (app *App) pairingTokenHandler(w http.ResponseWriter, r *http.Request) {
	token, err := app.authority.CurrentToken()
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, token)
}

func (app *App) peersHandler(w http.ResponseWriter, r *http.Request) {
	paired, err := app.peersRepo.GetAllActive()
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, struct {
		Paired []*core.Peer          `json:"paired"`
		Live   []*registry.PeerState `json:"live"`
	}{
		Paired: paired,
		Live:   app.registry.Snapshot(),
	})
}

func (app *App) peerSlotHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))

	params := struct {
		Slot *string `json:"slot"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := app.registry.SetSlot(peerID, params.Slot); err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// peerRevokeHandler deactivates the persisted identity and drops the
// live connection. The device key stops authenticating immediately.
func (app *App) peerRevokeHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))

	if err := app.peersRepo.Deactivate(peerID); err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}
	app.registry.Drop(peerID)

	w.WriteHeader(http.StatusNoContent)
}

func (app *App) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	sessions, err := app.sessionsRepo.GetAll(limit)
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, sessions)
}

func (app *App) sessionStartHandler(w http.ResponseWriter, r *http.Request) {
	req := orchestrator.StartRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	session, err := app.orchestrator.StartSession(req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRecording) {
			app.renderError(w, http.StatusConflict, err)
			return
		}
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	if err := app.markLog.Reload(session.ID); err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusCreated, session)
}

func (app *App) sessionStopHandler(w http.ResponseWriter, r *http.Request) {
	session, err := app.orchestrator.StopSession()
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	app.renderJSON(w, http.StatusOK, session)
}

func (app *App) sessionCurrentHandler(w http.ResponseWriter, r *http.Request) {
	session := app.orchestrator.Current()
	if session == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	app.renderJSON(w, http.StatusOK, struct {
		*core.Session
		ElapsedMs int64 `json:"elapsed_ms"`
	}{
		Session:   session,
		ElapsedMs: app.elapsedMs.Load(),
	})
}

func (app *App) sessionMarksHandler(w http.ResponseWriter, r *http.Request) {
	marks, err := app.markLog.BySession(core.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, marks)
}

func (app *App) sessionClipsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := app.pipeline.BySession(core.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, list)
}

func (app *App) markCreateHandler(w http.ResponseWriter, r *http.Request) {
	params := struct {
		Label string  `json:"label"`
		Note  *string `json:"note"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mark, err := app.markLog.CreateMark(params.Label, params.Note)
	if err != nil {
		if errors.Is(err, marklog.ErrNoActiveSession) {
			app.renderError(w, http.StatusConflict, err)
			return
		}
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusCreated, mark)
}

func (app *App) markUpdateHandler(w http.ResponseWriter, r *http.Request) {
	params := struct {
		Label string  `json:"label"`
		Note  *string `json:"note"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mark, err := app.markLog.UpdateMark(core.MarkID(chi.URLParam(r, "id")), params.Label, params.Note)
	if err != nil {
		if errors.Is(err, marklog.ErrUnknownMark) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, mark)
}

func (app *App) markDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.markLog.DeleteMark(core.MarkID(chi.URLParam(r, "id"))); err != nil {
		if errors.Is(err, marklog.ErrUnknownMark) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (app *App) markAcksHandler(w http.ResponseWriter, r *http.Request) {
	acks, err := app.markLog.AcksByMark(core.MarkID(chi.URLParam(r, "id")))
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}

	app.renderJSON(w, http.StatusOK, acks)
}

// markClipsHandler requests clips around a mark. Without a peer_id the
// request fans out to every currently recording peer.
func (app *App) markClipsHandler(w http.ResponseWriter, r *http.Request) {
	markID := core.MarkID(chi.URLParam(r, "id"))

	params := struct {
		PeerID     *core.PeerID `json:"peer_id"`
		PreRollMs  int64        `json:"pre_roll_ms"`
		PostRollMs int64        `json:"post_roll_ms"`
		Quality    string       `json:"quality"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if params.PeerID != nil {
		clip, err := app.pipeline.RequestClip(markID, *params.PeerID, params.PreRollMs, params.PostRollMs, params.Quality)
		if err != nil {
			app.renderClipError(w, err)
			return
		}
		app.renderJSON(w, http.StatusCreated, []*core.Clip{clip})
		return
	}

	list, err := app.pipeline.RequestFromAllRecordingPeers(markID, params.PreRollMs, params.PostRollMs, params.Quality)
	if err != nil {
		app.renderClipError(w, err)
		return
	}

	app.renderJSON(w, http.StatusCreated, list)
}

func (app *App) clipHandler(w http.ResponseWriter, r *http.Request) {
	clip, err := app.pipeline.Find(core.ClipID(chi.URLParam(r, "id")))
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}
	if clip == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	app.renderJSON(w, http.StatusOK, clip)
}

func (app *App) clipRetryHandler(w http.ResponseWriter, r *http.Request) {
	clipID := core.ClipID(chi.URLParam(r, "id"))

	if err := app.pipeline.RetryDownload(clipID); err != nil {
		app.renderClipError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (app *App) previewStartHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	payload := protocol.StartPreviewPayload{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	app.registry.Send(peerID, protocol.NewStartPreview(string(peerID), payload))
	w.WriteHeader(http.StatusAccepted)
}

func (app *App) previewStopHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	app.registry.Send(peerID, protocol.NewStopPreview(string(peerID)))
	app.registry.SetPreview(peerID, nil)
	w.WriteHeader(http.StatusAccepted)
}

func (app *App) playbackHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	payload := protocol.PlaybackControlPayload{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	app.registry.Send(peerID, protocol.NewPlaybackControl(string(peerID), payload))
	w.WriteHeader(http.StatusAccepted)
}

func (app *App) remoteSessionsHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, _ = strconv.Atoi(limitParam)
	}

	reply, err := app.askPeer(r.Context(), peerID,
		protocol.NewListSessions(string(peerID), limit),
		protocol.SessionsListKind)
	if err != nil {
		app.renderError(w, http.StatusGatewayTimeout, err)
		return
	}

	app.renderJSON(w, http.StatusOK, reply.(*protocol.SessionsList).Payload)
}

func (app *App) remoteClipsHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reply, err := app.askPeer(r.Context(), peerID,
		protocol.NewListClips(string(peerID), chi.URLParam(r, "sid")),
		protocol.ClipsListKind)
	if err != nil {
		app.renderError(w, http.StatusGatewayTimeout, err)
		return
	}

	app.renderJSON(w, http.StatusOK, reply.(*protocol.ClipsList).Payload)
}

func (app *App) remoteThumbnailHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reply, err := app.askPeer(r.Context(), peerID,
		protocol.NewGetThumbnail(string(peerID), chi.URLParam(r, "cid")),
		protocol.ThumbnailReadyKind)
	if err != nil {
		app.renderError(w, http.StatusGatewayTimeout, err)
		return
	}

	app.renderJSON(w, http.StatusOK, reply.(*protocol.ThumbnailReady).Payload)
}

func (app *App) remoteClipDeleteHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reply, err := app.askPeer(r.Context(), peerID,
		protocol.NewDeleteClip(string(peerID), chi.URLParam(r, "cid")),
		protocol.DeleteConfirmKind, protocol.DeleteFailedKind)
	if err != nil {
		app.renderError(w, http.StatusGatewayTimeout, err)
		return
	}

	app.renderDeleteReply(w, reply)
}

func (app *App) remoteSessionDeleteHandler(w http.ResponseWriter, r *http.Request) {
	peerID := core.PeerID(chi.URLParam(r, "id"))
	if _, ok := app.registry.Get(peerID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reply, err := app.askPeer(r.Context(), peerID,
		protocol.NewDeleteSession(string(peerID), chi.URLParam(r, "sid")),
		protocol.DeleteConfirmKind, protocol.DeleteFailedKind)
	if err != nil {
		app.renderError(w, http.StatusGatewayTimeout, err)
		return
	}

	app.renderDeleteReply(w, reply)
}

func (app *App) renderDeleteReply(w http.ResponseWriter, reply protocol.Message) {
	switch m := reply.(type) {
	case *protocol.DeleteConfirm:
		app.renderJSON(w, http.StatusOK, m.Payload)
	case *protocol.DeleteFailed:
		app.renderJSON(w, http.StatusConflict, m.Payload)
	}
}

func (app *App) renderClipError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clips.ErrNoActiveSession):
		app.renderError(w, http.StatusConflict, err)
	case errors.Is(err, clips.ErrUnknownClip):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, clips.ErrNotFailed):
		app.renderError(w, http.StatusConflict, err)
	default:
		app.renderError(w, http.StatusInternalServerError, err)
	}
}

func (app *App) renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("service", "console").Msg("can't encode response")
	}
}

func (app *App) renderError(w http.ResponseWriter, status int, err error) {
	log.Error().Err(err).Str("service", "console").Msg("console request failed")
	app.renderJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
