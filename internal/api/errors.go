package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"

	"github.com/giselles-ai/giselle-sub007/internal/auth"
	"github.com/giselles-ai/giselle-sub007/internal/datamod"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/services"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

const problemMediaType = "application/problem+json"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, typ, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(typ).
		WithDetail(detail)
	w.Header().Set("Content-Type", problemMediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, "validation_error", detail)
}

// writeError maps service errors to problem documents.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cycle      *giselle.GraphCycleError
		conflict   *giselle.ConcurrentRunError
		invalid    *datamod.ValidationError
		transient  *storage.TransientError
		fieldError validator.ValidationErrors
	)
	switch {
	case errors.As(err, &fieldError), errors.Is(err, giselle.ErrInvalidInput):
		badRequest(w, r, err.Error())
	case errors.Is(err, giselle.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &conflict):
		writeProblem(w, r, http.StatusConflict, "concurrent_run", err.Error())
	case errors.Is(err, giselle.ErrInvalidTransition), errors.Is(err, services.ErrActStarted):
		writeProblem(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &cycle):
		writeProblem(w, r, http.StatusUnprocessableEntity, "graph_cycle", err.Error())
	case errors.Is(err, giselle.ErrInvalidGraph), errors.Is(err, giselle.ErrNoWorkflow), errors.Is(err, giselle.ErrOriginMismatch):
		writeProblem(w, r, http.StatusUnprocessableEntity, "invalid_graph", err.Error())
	case errors.As(err, &invalid):
		writeProblem(w, r, http.StatusUnprocessableEntity, "schema_validation", err.Error())
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, services.ErrInvalidSignature):
		writeProblem(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, services.ErrTriggerDisabled):
		writeProblem(w, r, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &transient):
		slog.Warn("api: storage unavailable", "path", r.URL.Path, "err", err)
		writeProblem(w, r, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
	default:
		slog.Error("api: internal error", "path", r.URL.Path, "err", err)
		problem := problems.NewStatusProblem(http.StatusInternalServerError).
			WithInstance(r.URL.Path).
			WithType("internal_error").
			WithError(err)
		w.Header().Set("Content-Type", problemMediaType)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(problem)
	}
}

// decode reads a JSON body into v and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, r, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		badRequest(w, r, err.Error())
		return false
	}
	return true
}

// authorize asserts access to workspaceID and writes the problem when
// access is denied.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, workspaceID string) bool {
	if err := s.authz.AssertWorkspaceAccess(r.Context(), workspaceID); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}
