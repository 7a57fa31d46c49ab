package services

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/giselles-ai/giselle-sub007/internal/engine"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// echoModel answers every prompt with "echo: <prompt>". Prompts containing
// "fail" end with an error instead.
type echoModel struct {
	mu      sync.Mutex
	prompts []string
}

func (m *echoModel) Stream(_ context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	m.mu.Unlock()
	return func(yield func(giselle.OutputChunk, error) bool) {
		if strings.Contains(req.Prompt, "fail") {
			yield(giselle.OutputChunk{}, errors.New("model refused"))
			return
		}
		if !yield(giselle.OutputChunk{Kind: giselle.ChunkKindText, Text: "echo: "}, nil) {
			return
		}
		if !yield(giselle.OutputChunk{Kind: giselle.ChunkKindText, Text: req.Prompt}, nil) {
			return
		}
		yield(giselle.OutputChunk{Kind: giselle.ChunkKindUsage, Usage: &giselle.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}, nil)
	}
}

func (m *echoModel) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// blockingModel streams nothing until its context ends.
type blockingModel struct {
	once    sync.Once
	started chan struct{}
}

func newBlockingModel() *blockingModel {
	return &blockingModel{started: make(chan struct{})}
}

func (m *blockingModel) Stream(ctx context.Context, _ giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	return func(yield func(giselle.OutputChunk, error) bool) {
		m.once.Do(func() { close(m.started) })
		<-ctx.Done()
		yield(giselle.OutputChunk{}, ctx.Err())
	}
}

type harness struct {
	store      *storage.Store
	bus        *engine.EventBus
	genRepo    *repository.StorageGenerationRepository
	actRepo    *repository.StorageActRepository
	workspaces *repository.StorageWorkspaceRepository
	gens       *GenerationService
	acts       *ActService
}

func newHarness(t *testing.T, model ports.LanguageModel) *harness {
	t.Helper()
	store := storage.New(storage.NewMemoryDriver())
	bus := engine.NewEventBus()
	h := &harness{
		store:      store,
		bus:        bus,
		genRepo:    repository.NewGenerationRepository(store),
		actRepo:    repository.NewActRepository(store),
		workspaces: repository.NewWorkspaceRepository(store),
	}
	h.gens = NewGenerationService(h.genRepo, model, bus)
	h.acts = NewActService(h.actRepo, h.workspaces, h.gens, engine.NewRunner(bus, 0), NewRunGuard(), bus)
	t.Cleanup(h.acts.Wait)
	return h
}

func triggerNode(id string) giselle.Node {
	return giselle.Node{
		ID:      id,
		Name:    "Manual trigger",
		Type:    giselle.NodeTypeOperation,
		Content: &giselle.TriggerContent{Provider: "manual"},
		Outputs: []giselle.Output{{ID: "otp-topic", Label: "topic"}},
	}
}

func genNode(id, prompt string) giselle.Node {
	return giselle.Node{
		ID:   id,
		Type: giselle.NodeTypeOperation,
		Content: &giselle.TextGenerationContent{
			LLM:    giselle.LanguageModelRef{Provider: "openai", ID: "gpt-4o"},
			Prompt: prompt,
		},
		Inputs:  []giselle.Input{{ID: "in-1"}},
		Outputs: []giselle.Output{{ID: "otp-text"}},
	}
}

// chainWorkspace is trigger -> gen -> summary.
func chainWorkspace(genPrompt string) *giselle.Workspace {
	trigger := triggerNode("nd-trigger")
	gen := genNode("nd-gen", genPrompt)
	summary := genNode("nd-summary", "summarize {{nd-gen:otp-text}}")
	return &giselle.Workspace{
		ID:    "wrks-test",
		Name:  "test",
		Nodes: []giselle.Node{trigger, gen, summary},
		Connections: []giselle.Connection{
			giselle.Connect("cnnc-1", trigger, "otp-topic", gen, "in-1"),
			giselle.Connect("cnnc-2", gen, "otp-text", summary, "in-1"),
		},
	}
}

func topic(v string) []giselle.GenerationContextInput {
	return []giselle.GenerationContextInput{giselle.Parameters(giselle.ParameterItem{Name: "topic", Type: "string", Value: v})}
}

// newGeneration stores a queued workspace-origin generation for node.
func (h *harness) newGeneration(t *testing.T, node giselle.Node) *giselle.Generation {
	t.Helper()
	gen := &giselle.Generation{
		ID:     giselle.GenerateID(giselle.PrefixGeneration),
		Status: giselle.GenerationQueued,
		Context: giselle.GenerationContext{
			OperationNode: node,
			SourceNodes:   []giselle.Node{},
			Connections:   []giselle.Connection{},
			Origin:        giselle.Origin{Type: giselle.OriginWorkspace, ID: "wrks-test"},
		},
	}
	if err := h.gens.SetGeneration(context.Background(), gen); err != nil {
		t.Fatalf("SetGeneration: %v", err)
	}
	return gen
}

// recorder collects events published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []engine.Event
}

func record(bus *engine.EventBus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e engine.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) ofType(typ engine.EventType) []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
