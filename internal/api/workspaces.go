package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giselles-ai/giselle-sub007/internal/dag"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/services"
)

// GraphRequest carries a node graph for the stateless workflow endpoints.
type GraphRequest struct {
	NodeID      string               `json:"nodeId"`
	Nodes       []giselle.Node       `json:"nodes" validate:"required"`
	Connections []giselle.Connection `json:"connections"`
}

type SliceResponse struct {
	Nodes       []giselle.Node       `json:"nodes"`
	Connections []giselle.Connection `json:"connections"`
}

// compileWorkflow compiles a graph without storing anything.
// POST /api/workflows/compile
func (s *Server) compileWorkflow(w http.ResponseWriter, r *http.Request) {
	var req GraphRequest
	if !s.decode(w, r, &req) {
		return
	}
	wf, err := dag.Compile(req.NodeID, req.Nodes, req.Connections)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// sliceWorkflow returns the subgraph needed to run from req.NodeID.
// POST /api/workflows/slice
func (s *Server) sliceWorkflow(w http.ResponseWriter, r *http.Request) {
	var req GraphRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.NodeID == "" {
		badRequest(w, r, "nodeId is required")
		return
	}
	nodes, conns := dag.Slice(req.NodeID, req.Nodes, req.Connections)
	if nodes == nil {
		nodes = []giselle.Node{}
	}
	if conns == nil {
		conns = []giselle.Connection{}
	}
	writeJSON(w, http.StatusOK, SliceResponse{Nodes: nodes, Connections: conns})
}

// GET /api/workspaces/{workspaceID}
func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaces.GetWorkspace(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// PUT /api/workspaces/{workspaceID}
func (s *Server) saveWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	if !s.authorize(w, r, id) {
		return
	}
	var ws giselle.Workspace
	if !s.decode(w, r, &ws) {
		return
	}
	ws.ID = id
	saved, err := s.workspaces.SaveWorkspace(r.Context(), &ws)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GET /api/workspaces/{workspaceID}/acts
func (s *Server) listActs(w http.ResponseWriter, r *http.Request) {
	acts, err := s.acts.ListActs(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if acts == nil {
		acts = []*giselle.Act{}
	}
	writeJSON(w, http.StatusOK, acts)
}

// CreateActRequest creates an act from NodeID. Without Nodes the stored
// workspace graph is used. Start launches it right away.
type CreateActRequest struct {
	NodeID      string                           `json:"nodeId" validate:"required"`
	Inputs      []giselle.GenerationContextInput `json:"inputs"`
	Nodes       []giselle.Node                   `json:"nodes"`
	Connections []giselle.Connection             `json:"connections"`
	Start       bool                             `json:"start"`
}

// POST /api/workspaces/{workspaceID}/acts
func (s *Server) createAct(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if !s.authorize(w, r, workspaceID) {
		return
	}
	var req CreateActRequest
	if !s.decode(w, r, &req) {
		return
	}
	act, err := s.acts.CreateAct(r.Context(), services.CreateActInput{
		WorkspaceID: workspaceID,
		NodeID:      req.NodeID,
		Inputs:      req.Inputs,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Start {
		writeJSON(w, http.StatusCreated, act)
		return
	}
	started, err := s.acts.StartAct(r.Context(), act.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

// GET /api/workspaces/{workspaceID}/triggers
func (s *Server) listTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := s.triggers.ListTriggers(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if triggers == nil {
		triggers = []*giselle.FlowTrigger{}
	}
	writeJSON(w, http.StatusOK, triggers)
}

// GET /api/workspaces/{workspaceID}/apps
func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.ListApps(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if apps == nil {
		apps = []*giselle.App{}
	}
	writeJSON(w, http.StatusOK, apps)
}

type AddSecretRequest struct {
	Label string `json:"label" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// POST /api/workspaces/{workspaceID}/secrets
func (s *Server) addSecret(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if !s.authorize(w, r, workspaceID) {
		return
	}
	var req AddSecretRequest
	if !s.decode(w, r, &req) {
		return
	}
	secret, err := s.secrets.AddSecret(r.Context(), workspaceID, req.Label, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, secret)
}

// GET /api/workspaces/{workspaceID}/secrets
func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if !s.authorize(w, r, workspaceID) {
		return
	}
	secrets, err := s.secrets.ListSecrets(r.Context(), workspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, secrets)
}

// DELETE /api/workspaces/{workspaceID}/secrets/{secretID}
func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if !s.authorize(w, r, workspaceID) {
		return
	}
	secretID := chi.URLParam(r, "secretID")
	secret, err := s.secrets.GetSecret(r.Context(), secretID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if secret.WorkspaceID != workspaceID {
		writeError(w, r, giselle.NotFound("secret", secretID))
		return
	}
	if err := s.secrets.DeleteSecret(r.Context(), secretID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
