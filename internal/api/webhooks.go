package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/giselles-ai/giselle-sub007/internal/services"
)

// maxWebhookBody bounds GitHub deliveries; GitHub caps payloads at 25MB.
const maxWebhookBody = 25 << 20

// handleGitHubHook receives a GitHub delivery for one trigger. Deliveries
// that do not match the trigger are acknowledged with 202 and no act.
// POST /api/hooks/github/{triggerID}
func (s *Server) handleGitHubHook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "triggerID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		badRequest(w, r, "failed to read body")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		badRequest(w, r, "missing X-GitHub-Event header")
		return
	}
	if event == "ping" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	}

	act, err := s.triggers.HandleGitHubEvent(r.Context(), id, event, r.Header.Get("X-Hub-Signature-256"), body)
	if errors.Is(err, services.ErrEventIgnored) {
		slog.Info("webhook: delivery ignored", "trigger_id", id, "event", event, "delivery", r.Header.Get("X-GitHub-Delivery"))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, act)
}
