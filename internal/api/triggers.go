package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// configureTrigger creates a trigger, or updates it when the body has an id.
// POST /api/triggers
func (s *Server) configureTrigger(w http.ResponseWriter, r *http.Request) {
	var trigger giselle.FlowTrigger
	if !s.decode(w, r, &trigger) {
		return
	}
	if !s.authorize(w, r, trigger.WorkspaceID) {
		return
	}
	if trigger.ID != "" {
		prev, err := s.triggers.GetTrigger(r.Context(), trigger.ID)
		if err == nil && prev.WorkspaceID != trigger.WorkspaceID && !s.authorize(w, r, prev.WorkspaceID) {
			return
		}
	}

	saved, err := s.triggers.ConfigureTrigger(r.Context(), &trigger)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if trigger.ID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, redactTrigger(saved))
}

// GET /api/triggers/{triggerID}
func (s *Server) getTrigger(w http.ResponseWriter, r *http.Request) {
	trigger, err := s.triggers.GetTrigger(r.Context(), chi.URLParam(r, "triggerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redactTrigger(trigger))
}

// DELETE /api/triggers/{triggerID}
func (s *Server) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "triggerID")
	trigger, err := s.triggers.GetTrigger(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, trigger.WorkspaceID) {
		return
	}
	if err := s.triggers.DeleteTrigger(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type FireTriggerRequest struct {
	Params map[string]any `json:"params"`
}

// POST /api/triggers/{triggerID}/fire
func (s *Server) fireTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "triggerID")
	trigger, err := s.triggers.GetTrigger(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.authorize(w, r, trigger.WorkspaceID) {
		return
	}
	var req FireTriggerRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	act, err := s.triggers.FireTrigger(r.Context(), id, req.Params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, act)
}

// redactTrigger hides the sealed webhook secret from responses.
func redactTrigger(t *giselle.FlowTrigger) *giselle.FlowTrigger {
	out := *t
	if gh := t.Configuration.GitHub; gh != nil {
		cfg := *gh
		cfg.Secret = ""
		out.Configuration.GitHub = &cfg
	}
	return &out
}
