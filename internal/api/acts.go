package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/giselles-ai/giselle-sub007/internal/services/live"
)

// GET /api/acts/{actID}
func (s *Server) getAct(w http.ResponseWriter, r *http.Request) {
	act, err := s.acts.GetAct(r.Context(), chi.URLParam(r, "actID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// startAct launches the act in the background. Clients follow it through
// GET /api/acts/{actID}/stream.
// POST /api/acts/{actID}/start
func (s *Server) startAct(w http.ResponseWriter, r *http.Request) {
	actID := chi.URLParam(r, "actID")
	act, err := s.acts.GetAct(r.Context(), actID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, act.WorkspaceID) {
		return
	}
	started, err := s.acts.StartAct(r.Context(), actID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

// POST /api/acts/{actID}/cancel
func (s *Server) cancelAct(w http.ResponseWriter, r *http.Request) {
	actID := chi.URLParam(r, "actID")
	act, err := s.acts.GetAct(r.Context(), actID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, act.WorkspaceID) {
		return
	}
	cancelled, err := s.acts.CancelAct(r.Context(), actID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// streamAct relays the live distributor as server-sent events until the
// act settles, the client leaves or the stream times out.
// GET /api/acts/{actID}/stream
func (s *Server) streamAct(w http.ResponseWriter, r *http.Request) {
	actID := chi.URLParam(r, "actID")
	if _, err := s.acts.GetAct(r.Context(), actID); err != nil {
		writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range s.live.Stream(r.Context(), actID) {
		if err := live.WriteSSE(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

// GET /api/generations/{generationID}
func (s *Server) getGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := s.generations.GetGeneration(r.Context(), chi.URLParam(r, "generationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// POST /api/generations/{generationID}/cancel
func (s *Server) cancelGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "generationID")
	gen, err := s.generations.GetGeneration(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, gen.Context.Origin.Workspace()) {
		return
	}
	cancelled, err := s.generations.CancelGeneration(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// getGenerationChunks pages through the message chunk log.
// GET /api/generations/{generationID}/chunks?startByte=N
func (s *Server) getGenerationChunks(w http.ResponseWriter, r *http.Request) {
	var start int64
	if v := r.URL.Query().Get("startByte"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			badRequest(w, r, "startByte must be a non-negative integer")
			return
		}
		start = n
	}
	page, err := s.generations.GetGenerationMessageChunks(r.Context(), chi.URLParam(r, "generationID"), start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
