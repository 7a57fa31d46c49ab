package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/auth"
	"github.com/giselles-ai/giselle-sub007/internal/crypto"
	"github.com/giselles-ai/giselle-sub007/internal/engine"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/metrics"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
	"github.com/giselles-ai/giselle-sub007/internal/services"
	"github.com/giselles-ai/giselle-sub007/internal/services/live"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// fixedModel answers every prompt with "ok".
type fixedModel struct{}

func (fixedModel) Stream(context.Context, giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	return func(yield func(giselle.OutputChunk, error) bool) {
		yield(giselle.OutputChunk{Kind: giselle.ChunkKindText, Text: "ok"}, nil)
	}
}

type testEnv struct {
	handler http.Handler
	acts    *services.ActService
	tokens  *auth.Tokens
}

func newTestEnv(t *testing.T, jwtSecret string) *testEnv {
	t.Helper()
	store := storage.New(storage.NewMemoryDriver())
	bus := engine.NewEventBus()
	vault, err := crypto.NewVault(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	gens := services.NewGenerationService(repository.NewGenerationRepository(store), fixedModel{}, bus)
	workspaceRepo := repository.NewWorkspaceRepository(store)
	acts := services.NewActService(repository.NewActRepository(store), workspaceRepo, gens, engine.NewRunner(bus, 0), nil, bus)
	t.Cleanup(acts.Wait)
	distributor := live.New(acts, live.Options{PollInterval: 10 * time.Millisecond, Timeout: 5 * time.Second})

	m := metrics.New(prometheus.NewRegistry(), distributor.Subscribers)
	m.Attach(bus)

	var tokens *auth.Tokens
	if jwtSecret != "" {
		tokens = auth.NewTokens(jwtSecret)
	}
	srv := NewServer(Deps{
		Workspaces:  services.NewWorkspaceService(workspaceRepo),
		Acts:        acts,
		Generations: gens,
		Triggers:    services.NewTriggerService(repository.NewTriggerRepository(store), vault, acts),
		Apps:        services.NewAppService(repository.NewAppRepository(store), acts),
		Secrets:     services.NewSecretService(repository.NewSecretRepository(store), vault),
		Live:        distributor,
		Authorizer:  auth.NewAuthorizer(jwtSecret),
		Tokens:      tokens,
		Metrics:     m,
	})
	return &testEnv{handler: srv.Handler(), acts: acts, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func testWorkspace() *giselle.Workspace {
	trigger := giselle.Node{
		ID:      "nd-trigger",
		Name:    "Manual trigger",
		Type:    giselle.NodeTypeOperation,
		Content: &giselle.TriggerContent{Provider: "manual"},
		Outputs: []giselle.Output{{ID: "otp-topic", Label: "topic"}},
	}
	gen := giselle.Node{
		ID:   "nd-gen",
		Name: "Write",
		Type: giselle.NodeTypeOperation,
		Content: &giselle.TextGenerationContent{
			LLM:    giselle.LanguageModelRef{Provider: "openai", ID: "gpt-4o"},
			Prompt: "write about {{nd-trigger:otp-topic}}",
		},
		Inputs:  []giselle.Input{{ID: "in-1"}},
		Outputs: []giselle.Output{{ID: "otp-text"}},
	}
	return &giselle.Workspace{
		ID:          "wrks-api",
		Name:        "api",
		Nodes:       []giselle.Node{trigger, gen},
		Connections: []giselle.Connection{giselle.Connect("cnnc-1", trigger, "otp-topic", gen, "in-1")},
	}
}

func (e *testEnv) waitTerminal(t *testing.T, actID string) *giselle.Act {
	t.Helper()
	var act *giselle.Act
	require.Eventually(t, func() bool {
		w := e.do(t, "GET", "/api/acts/"+actID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		act = decodeBody[*giselle.Act](t, w)
		return act.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)
	return act
}

func TestCompileWorkflow(t *testing.T) {
	env := newTestEnv(t, "")
	ws := testWorkspace()

	w := env.do(t, "POST", "/api/workflows/compile", GraphRequest{Nodes: ws.Nodes, Connections: ws.Connections})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	wf := decodeBody[map[string]any](t, w)
	assert.Len(t, wf["jobs"], 2)

	a, b := ws.Nodes[1], ws.Nodes[1]
	a.ID, b.ID = "nd-a", "nd-b"
	cyclic := []giselle.Connection{
		giselle.Connect("cnnc-1", a, "otp-text", b, "in-1"),
		giselle.Connect("cnnc-2", b, "otp-text", a, "in-1"),
	}
	w = env.do(t, "POST", "/api/workflows/compile", GraphRequest{Nodes: []giselle.Node{a, b}, Connections: cyclic})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "graph_cycle", decodeBody[map[string]any](t, w)["type"])

	w = env.do(t, "POST", "/api/workflows/compile", map[string]any{"nodeId": "nd-trigger"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSliceWorkflow(t *testing.T) {
	env := newTestEnv(t, "")
	ws := testWorkspace()

	w := env.do(t, "POST", "/api/workflows/slice", GraphRequest{NodeID: "nd-gen", Nodes: ws.Nodes, Connections: ws.Connections})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[map[string][]map[string]any](t, w)
	require.Len(t, got["nodes"], 1)
	assert.Equal(t, "nd-gen", got["nodes"][0]["id"])
	assert.Empty(t, got["connections"])
}

func TestActLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	inputs := []giselle.GenerationContextInput{giselle.Parameters(giselle.ParameterItem{Name: "topic", Type: "string", Value: "otters"})}
	w = env.do(t, "POST", "/api/workspaces/wrks-api/acts", CreateActRequest{NodeID: "nd-trigger", Inputs: inputs})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	act := decodeBody[*giselle.Act](t, w)
	assert.Equal(t, giselle.ActPending, act.Status)

	w = env.do(t, "POST", "/api/acts/"+act.ID+"/start", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	final := env.waitTerminal(t, act.ID)
	assert.Equal(t, giselle.ActSuccess, final.Status)

	w = env.do(t, "POST", "/api/acts/"+act.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "GET", "/api/workspaces/wrks-api/acts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]*giselle.Act](t, w), 1)

	genID := final.Sequences[1].Steps[0].GenerationID
	w = env.do(t, "GET", "/api/generations/"+genID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	gen := decodeBody[map[string]any](t, w)
	assert.Equal(t, "completed", gen["status"])

	w = env.do(t, "GET", "/api/generations/"+genID+"/chunks?startByte=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeBody[services.ChunkPage](t, w)
	assert.NotEmpty(t, page.Chunks)
	assert.Positive(t, page.Range[1])

	w = env.do(t, "GET", "/api/generations/"+genID+"/chunks?startByte=-4", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/acts/act-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `giselle_acts_total{status="success"} 1`)
}

func TestStreamAct(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace()).Code)

	w := env.do(t, "POST", "/api/workspaces/wrks-api/acts", CreateActRequest{NodeID: "nd-trigger", Start: true})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	act := decodeBody[*giselle.Act](t, w)
	env.waitTerminal(t, act.ID)

	w = env.do(t, "GET", "/api/acts/"+act.ID+"/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, frames, 3)
	assert.Equal(t, `data: {"type":"connected"}`, frames[0])
	assert.Contains(t, frames[1], `"type":"data"`)
	assert.Equal(t, `data: {"type":"end","reason":"completed"}`, frames[2])
}

func TestMutatingRoutesRequireWorkspaceAccess(t *testing.T) {
	env := newTestEnv(t, "test-secret")
	other, err := env.tokens.Sign("user-1", []string{"wrks-other"}, time.Hour)
	require.NoError(t, err)
	mine, err := env.tokens.Sign("user-1", []string{"wrks-api"}, time.Hour)
	require.NoError(t, err)

	w := env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace(), "Authorization", "Bearer "+other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace(), "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace(), "Authorization", "Bearer "+mine)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// reads stay open
	w = env.do(t, "GET", "/api/workspaces/wrks-api", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGitHubHook(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace()).Code)

	w := env.do(t, "POST", "/api/triggers", giselle.FlowTrigger{
		WorkspaceID: "wrks-api",
		NodeID:      "nd-trigger",
		Enable:      true,
		Configuration: giselle.TriggerConfiguration{
			Provider: giselle.TriggerGitHub,
			EventID:  "issues.opened",
			GitHub:   &giselle.GitHubTriggerConfig{Secret: "hook-secret"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trigger := decodeBody[*giselle.FlowTrigger](t, w)
	assert.Empty(t, trigger.Configuration.GitHub.Secret)

	body := []byte(`{"action":"opened","issue":{"title":"crash"}}`)
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(body)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	hook := "/api/hooks/github/" + trigger.ID

	w = env.do(t, "POST", hook, body, "X-GitHub-Event", "issues", "X-Hub-Signature-256", "sha256=00")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "POST", hook, body, "X-GitHub-Event", "push", "X-Hub-Signature-256", signature)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ignored", decodeBody[map[string]string](t, w)["status"])

	w = env.do(t, "POST", hook, body, "X-GitHub-Event", "ping")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", hook, body, "X-GitHub-Event", "issues", "X-Hub-Signature-256", signature)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	act := decodeBody[*giselle.Act](t, w)
	assert.Equal(t, giselle.ActSuccess, env.waitTerminal(t, act.ID).Status)

	w = env.do(t, "POST", "/api/hooks/github/fltg-missing", body, "X-GitHub-Event", "issues", "X-Hub-Signature-256", signature)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerRoutes(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace()).Code)

	w := env.do(t, "POST", "/api/triggers", giselle.FlowTrigger{
		WorkspaceID:   "wrks-api",
		NodeID:        "nd-trigger",
		Configuration: giselle.TriggerConfiguration{Provider: giselle.TriggerManual},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trigger := decodeBody[*giselle.FlowTrigger](t, w)

	w = env.do(t, "POST", "/api/triggers/"+trigger.ID+"/fire", FireTriggerRequest{Params: map[string]any{"topic": "owls"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	trigger.Enable = true
	w = env.do(t, "POST", "/api/triggers", trigger)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", "/api/triggers/"+trigger.ID+"/fire", FireTriggerRequest{Params: map[string]any{"topic": "owls"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	env.waitTerminal(t, decodeBody[*giselle.Act](t, w).ID)

	w = env.do(t, "GET", "/api/workspaces/wrks-api/triggers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]*giselle.FlowTrigger](t, w), 1)

	w = env.do(t, "POST", "/api/triggers", giselle.FlowTrigger{WorkspaceID: "wrks-api", Configuration: giselle.TriggerConfiguration{Provider: "ftp"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/api/triggers/"+trigger.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/triggers/"+trigger.ID, nil).Code)
}

func TestAppAndSecretRoutes(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/api/workspaces/wrks-api", testWorkspace()).Code)

	w := env.do(t, "PUT", "/api/apps/app-writer", giselle.App{
		WorkspaceID: "wrks-api",
		EntryNodeID: "nd-trigger",
		Name:        "Writer",
		Parameters:  []giselle.AppParameter{{Name: "topic", Type: "string", Required: true}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", "/api/apps/app-writer/run", RunAppRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/apps/app-writer/run", RunAppRequest{Params: map[string]any{"topic": "owls"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	env.waitTerminal(t, decodeBody[*giselle.Act](t, w).ID)

	w = env.do(t, "GET", "/api/workspaces/wrks-api/apps", nil)
	assert.Len(t, decodeBody[[]*giselle.App](t, w), 1)

	w = env.do(t, "POST", "/api/workspaces/wrks-api/secrets", AddSecretRequest{Label: "token", Value: "s3cr3t"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	secret := decodeBody[*giselle.Secret](t, w)
	assert.Empty(t, secret.Value)

	w = env.do(t, "GET", "/api/workspaces/wrks-api/secrets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "s3cr3t")

	w = env.do(t, "DELETE", "/api/workspaces/wrks-other/secrets/"+secret.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, "DELETE", "/api/workspaces/wrks-api/secrets/"+secret.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/api/apps/app-writer", nil).Code)
}
