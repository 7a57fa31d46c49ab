package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

func collect(t *testing.T, seq iter.Seq2[giselle.OutputChunk, error]) ([]giselle.OutputChunk, error) {
	t.Helper()
	var out []giselle.OutputChunk
	for c, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

type echoModel struct{ got giselle.ModelRequest }

func (m *echoModel) Stream(_ context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	m.got = req
	return func(yield func(giselle.OutputChunk, error) bool) {
		yield(giselle.OutputChunk{Kind: giselle.ChunkKindText, Text: req.Prompt}, nil)
	}
}

func TestRegistry_RoutesByProviderPrefix(t *testing.T) {
	echo := &echoModel{}
	r := NewRegistry()
	r.Register("echo", echo)

	chunks, err := collect(t, r.Stream(context.Background(), giselle.ModelRequest{Model: "echo/tiny", Prompt: "hi"}))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hi", chunks[0].Text)
	assert.Equal(t, "tiny", echo.got.Model)
	assert.Equal(t, []string{"echo"}, r.Names())
}

func TestRegistry_UnknownModel(t *testing.T) {
	r := NewRegistry()
	_, err := collect(t, r.Stream(context.Background(), giselle.ModelRequest{Model: "nope/x"}))
	assert.Error(t, err)

	_, err = collect(t, r.Stream(context.Background(), giselle.ModelRequest{Model: "no-slash"}))
	assert.Error(t, err)
}

func TestBuild_KnownTypesAndFallback(t *testing.T) {
	lm, ok := Build("openai", config.ProviderConfig{Type: "openai", APIKey: "k"})
	assert.True(t, ok)
	assert.IsType(t, &OpenAI{}, lm)

	lm, ok = Build("gemini", config.ProviderConfig{Type: "gemini", APIKey: "k"})
	assert.True(t, ok)
	assert.IsType(t, &Gemini{}, lm)

	lm, ok = Build("local", config.ProviderConfig{Type: "ollama", URL: "http://localhost:11434/v1"})
	assert.True(t, ok)
	assert.IsType(t, &OpenAI{}, lm)

	_, ok = Build("mystery", config.ProviderConfig{Type: "mystery"})
	assert.False(t, ok)
}

func TestFromConfig_SkipsUnknown(t *testing.T) {
	r := FromConfig(map[string]config.ProviderConfig{
		"openai":  {Type: "openai", APIKey: "k"},
		"mystery": {Type: "mystery"},
	})
	assert.Equal(t, []string{"openai"}, r.Names())
}

func sseServer(t *testing.T, events ...any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			b, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func delta(text string) map[string]any {
	return map[string]any{
		"id": "c1", "object": "chat.completion.chunk", "model": "gpt-4o",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": text}}},
	}
}

func TestOpenAI_StreamsTextAndUsage(t *testing.T) {
	srv := sseServer(t,
		delta("Hel"),
		delta("lo"),
		map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "model": "gpt-4o",
			"choices": []map[string]any{},
			"usage":   map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		},
	)
	defer srv.Close()

	lm := NewOpenAI("test-key", WithBaseURL(srv.URL))
	chunks, err := collect(t, lm.Stream(context.Background(), giselle.ModelRequest{Model: "gpt-4o", Prompt: "say hello"}))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].Text)
	assert.Equal(t, "lo", chunks[1].Text)
	assert.Equal(t, giselle.ChunkKindUsage, chunks[2].Kind)
	assert.Equal(t, 5, chunks[2].Usage.TotalTokens)
}

func TestOpenAI_ServerErrorIsYielded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	lm := NewOpenAI("test-key", WithBaseURL(srv.URL))
	_, err := collect(t, lm.Stream(context.Background(), giselle.ModelRequest{Model: "gpt-4o", Prompt: "x"}))
	assert.Error(t, err)
}

func TestBuildRequest_ResolvesReferences(t *testing.T) {
	trigger := giselle.Node{ID: "nd-trg", Type: giselle.NodeTypeOperation, Content: &giselle.TriggerContent{Provider: "manual"}}
	text := giselle.Node{ID: "nd-txt", Type: giselle.NodeTypeVariable, Content: &giselle.TextContent{Text: "the context"}}
	gen := giselle.Node{
		ID:   "nd-gen",
		Type: giselle.NodeTypeOperation,
		Content: &giselle.TextGenerationContent{
			LLM:    giselle.LanguageModelRef{Provider: "openai", ID: "gpt-4o", Configurations: map[string]any{"temperature": 0.2}},
			Prompt: "Topic: {{nd-trg:otp-topic}}\nUse {{ nd-txt:otp-1 }} and {{nd-gone:otp-x}}.",
		},
	}

	req, err := BuildRequest(giselle.GenerationContext{
		OperationNode: gen,
		SourceNodes:   []giselle.Node{trigger, text},
	}, func(nodeID, outputID string) (string, bool) {
		if nodeID == "nd-trg" && outputID == "otp-topic" {
			return "rivers", true
		}
		return "", false
	})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", req.Model)
	assert.Equal(t, "Topic: rivers\nUse the context and .", req.Prompt)
	assert.Equal(t, 0.2, req.Configuration["temperature"])
	assert.False(t, req.Image)
}

func TestBuildRequest_ImageAndVariables(t *testing.T) {
	page := giselle.Node{ID: "nd-web", Type: giselle.NodeTypeVariable, Content: &giselle.WebPageContent{
		WebPages: []giselle.WebPage{{URL: "https://example.com", Title: "Example"}},
	}}
	files := giselle.Node{ID: "nd-file", Type: giselle.NodeTypeVariable, Content: &giselle.FileContent{
		Category: "pdf", Files: []giselle.FileData{{Name: "a.pdf"}, {Name: "b.pdf"}},
	}}
	img := giselle.Node{ID: "nd-img", Type: giselle.NodeTypeOperation, Content: &giselle.ImageGenerationContent{
		LLM:    giselle.LanguageModelRef{Provider: "gemini", ID: "imagen"},
		Prompt: "{{nd-web:o}} / {{nd-file:o}}",
	}}

	req, err := BuildRequest(giselle.GenerationContext{OperationNode: img, SourceNodes: []giselle.Node{page, files}}, nil)
	require.NoError(t, err)
	assert.True(t, req.Image)
	assert.Equal(t, "Example\nhttps://example.com / [pdf files: a.pdf, b.pdf]", req.Prompt)
}

func TestBuildRequest_RejectsNonModelNodes(t *testing.T) {
	_, err := BuildRequest(giselle.GenerationContext{
		OperationNode: giselle.Node{ID: "nd-end", Type: giselle.NodeTypeOperation, Content: &giselle.EndContent{}},
	}, nil)
	assert.Error(t, err)
}
