package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"

	openai "github.com/sashabaranov/go-openai"

	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

var _ ports.LanguageModel = (*OpenAI)(nil)

// OpenAI streams chat completions from any OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
}

type OpenAIOption func(*openai.ClientConfig)

// WithBaseURL points the adapter at an OpenAI-compatible server.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openai.ClientConfig) { c.BaseURL = url }
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	for _, o := range opts {
		o(&cfg)
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

func init() {
	RegisterProvider("openai", func(_ string, cfg config.ProviderConfig) ports.LanguageModel {
		var opts []OpenAIOption
		if cfg.URL != "" {
			opts = append(opts, WithBaseURL(cfg.URL))
		}
		return NewOpenAI(cfg.APIKey, opts...)
	})
}

func (o *OpenAI) Stream(ctx context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	if req.Image {
		return o.image(ctx, req)
	}
	return func(yield func(giselle.OutputChunk, error) bool) {
		creq := openai.ChatCompletionRequest{
			Model:         req.Model,
			Messages:      chatMessages(req),
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}
		if t, ok := floatConfig(req.Configuration, "temperature"); ok {
			creq.Temperature = float32(t)
		}
		if n, ok := floatConfig(req.Configuration, "maxTokens"); ok {
			creq.MaxTokens = int(n)
		}

		stream, err := o.client.CreateChatCompletionStream(ctx, creq)
		if err != nil {
			yield(giselle.OutputChunk{}, fmt.Errorf("openai: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(giselle.OutputChunk{}, fmt.Errorf("openai: %w", err))
				return
			}
			if resp.Usage != nil {
				if !yield(giselle.OutputChunk{Kind: giselle.ChunkKindUsage, Usage: &giselle.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}}, nil) {
					return
				}
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !yield(giselle.OutputChunk{Kind: giselle.ChunkKindText, Text: choice.Delta.Content}, nil) {
					return
				}
			}
		}
	}
}

func (o *OpenAI) image(ctx context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	return func(yield func(giselle.OutputChunk, error) bool) {
		resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
			Prompt:         req.Prompt,
			Model:          req.Model,
			N:              1,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		if err != nil {
			yield(giselle.OutputChunk{}, fmt.Errorf("openai image: %w", err))
			return
		}
		for i, d := range resp.Data {
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				yield(giselle.OutputChunk{}, fmt.Errorf("openai image: decode: %w", err))
				return
			}
			img := &giselle.Image{Filename: fmt.Sprintf("image-%d.png", i), ContentType: "image/png", Data: data}
			if !yield(giselle.OutputChunk{Kind: giselle.ChunkKindImage, Image: img}, nil) {
				return
			}
		}
	}
}

func chatMessages(req giselle.ModelRequest) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
}

func floatConfig(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
