package provider

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

// Factory creates a language model adapter for a provider name and config.
type Factory func(providerName string, cfg config.ProviderConfig) ports.LanguageModel

var factories = map[string]Factory{}

// RegisterProvider registers a factory for the given provider type string.
// Called from init() in each adapter file.
func RegisterProvider(typeName string, factory Factory) {
	factories[typeName] = factory
}

// Build looks up a registered factory for cfg.Type and calls it.
// If no factory is found but cfg.URL is set, falls back to OpenAI-compat.
func Build(providerName string, cfg config.ProviderConfig) (ports.LanguageModel, bool) {
	if factory, ok := factories[cfg.Type]; ok {
		return factory(providerName, cfg), true
	}
	if cfg.URL != "" {
		return NewOpenAI(cfg.APIKey, WithBaseURL(cfg.URL)), true
	}
	return nil, false
}

var _ ports.LanguageModel = (*Registry)(nil)

// Registry routes "provider/model" requests to the adapter registered under
// the provider name.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ports.LanguageModel
}

func NewRegistry() *Registry {
	return &Registry{models: map[string]ports.LanguageModel{}}
}

// FromConfig builds every configured provider, skipping unknown types.
func FromConfig(providers map[string]config.ProviderConfig) *Registry {
	r := NewRegistry()
	for name, cfg := range providers {
		lm, ok := Build(name, cfg)
		if !ok {
			slog.Warn("unknown provider type, skipping", "provider", name, "type", cfg.Type)
			continue
		}
		r.Register(name, lm)
	}
	return r
}

func (r *Registry) Register(name string, lm ports.LanguageModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = lm
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Stream(ctx context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	providerName, model, ok := strings.Cut(req.Model, "/")
	r.mu.RLock()
	lm, found := r.models[providerName]
	r.mu.RUnlock()

	if !ok || !found {
		return func(yield func(giselle.OutputChunk, error) bool) {
			yield(giselle.OutputChunk{}, fmt.Errorf("unknown model %q", req.Model))
		}
	}
	req.Model = model
	return lm.Stream(ctx, req)
}
