package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// GET /api/apps/{appID}
func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.apps.GetApp(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// PUT /api/apps/{appID}
func (s *Server) saveApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	var app giselle.App
	if !s.decode(w, r, &app) {
		return
	}
	if !s.authorize(w, r, app.WorkspaceID) {
		return
	}
	prev, err := s.apps.GetApp(r.Context(), id)
	switch {
	case err == nil:
		if prev.WorkspaceID != app.WorkspaceID && !s.authorize(w, r, prev.WorkspaceID) {
			return
		}
	case !errors.Is(err, giselle.ErrNotFound):
		writeError(w, r, err)
		return
	}

	app.ID = id
	saved, err := s.apps.SaveApp(r.Context(), &app)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DELETE /api/apps/{appID}
func (s *Server) deleteApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	app, err := s.apps.GetApp(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, app.WorkspaceID) {
		return
	}
	if err := s.apps.DeleteApp(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type RunAppRequest struct {
	Params map[string]any `json:"params"`
}

// POST /api/apps/{appID}/run
func (s *Server) runApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	app, err := s.apps.GetApp(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, app.WorkspaceID) {
		return
	}
	var req RunAppRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	act, err := s.apps.RunApp(r.Context(), id, req.Params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, act)
}
