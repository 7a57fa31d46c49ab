package provider

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"google.golang.org/genai"

	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

var _ ports.LanguageModel = (*Gemini)(nil)

// Gemini streams from the Gemini API. The client is created on first use.
type Gemini struct {
	apiKey  string
	baseURL string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGemini(apiKey, baseURL string) *Gemini {
	return &Gemini{apiKey: apiKey, baseURL: baseURL}
}

func init() {
	RegisterProvider("gemini", func(_ string, cfg config.ProviderConfig) ports.LanguageModel {
		return NewGemini(cfg.APIKey, cfg.URL)
	})
}

func (g *Gemini) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      g.apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
		})
	})
	return g.initErr
}

func (g *Gemini) Stream(ctx context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	return func(yield func(giselle.OutputChunk, error) bool) {
		if err := g.ensureClient(ctx); err != nil {
			yield(giselle.OutputChunk{}, fmt.Errorf("gemini: client init failed: %w", err))
			return
		}

		cfg := &genai.GenerateContentConfig{}
		if req.System != "" {
			cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}
		if t, ok := floatConfig(req.Configuration, "temperature"); ok {
			cfg.Temperature = genai.Ptr(float32(t))
		}
		if req.Image {
			cfg.ResponseModalities = []string{string(genai.ModalityText), string(genai.ModalityImage)}
		}

		images := 0
		var usage *giselle.Usage
		for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, genai.Text(req.Prompt), cfg) {
			if err != nil {
				yield(giselle.OutputChunk{}, fmt.Errorf("gemini: %w", err))
				return
			}
			if resp.UsageMetadata != nil {
				usage = &giselle.Usage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			for _, chunk := range geminiChunks(resp, &images) {
				if !yield(chunk, nil) {
					return
				}
			}
		}
		// usage metadata is cumulative, only the last one counts
		if usage != nil {
			yield(giselle.OutputChunk{Kind: giselle.ChunkKindUsage, Usage: usage}, nil)
		}
	}
}

func geminiChunks(resp *genai.GenerateContentResponse, images *int) []giselle.OutputChunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	c := resp.Candidates[0]
	var out []giselle.OutputChunk
	if c.Content != nil {
		for _, part := range c.Content.Parts {
			switch {
			case part.InlineData != nil:
				*images++
				out = append(out, giselle.OutputChunk{Kind: giselle.ChunkKindImage, Image: &giselle.Image{
					Filename:    fmt.Sprintf("image-%d", *images),
					ContentType: part.InlineData.MIMEType,
					Data:        part.InlineData.Data,
				}})
			case part.Text == "":
			case part.Thought:
				out = append(out, giselle.OutputChunk{Kind: giselle.ChunkKindReasoning, Text: part.Text})
			default:
				out = append(out, giselle.OutputChunk{Kind: giselle.ChunkKindText, Text: part.Text})
			}
		}
	}
	if c.GroundingMetadata != nil {
		for _, gc := range c.GroundingMetadata.GroundingChunks {
			if gc == nil || gc.Web == nil {
				continue
			}
			out = append(out, giselle.OutputChunk{Kind: giselle.ChunkKindSource, Source: &giselle.Source{
				SourceType: "url", URL: gc.Web.URI, Title: gc.Web.Title,
			}})
		}
	}
	return out
}
