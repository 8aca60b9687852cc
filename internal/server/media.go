package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
)

// clipFileHandler serves a fully downloaded clip from local storage.
// http.ServeFile gives byte-range support for free, which review UIs
// need for scrubbing.
func (app *App) clipFileHandler(w http.ResponseWriter, r *http.Request) {
	clip, err := app.pipeline.Find(core.ClipID(chi.URLParam(r, "id")))
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, err)
		return
	}
	if clip == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if clip.Status != core.ClipDownloaded || clip.LocalPath == nil {
		w.WriteHeader(http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, *clip.LocalPath)
}
