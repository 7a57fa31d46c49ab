package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/provider"
)

type execKind int

const (
	execModel execKind = iota
	execInput
	execAction
	execEnd
	execNone
)

// kindOf picks how an operation node executes.
type kindOf struct{}

func (kindOf) VisitTrigger(*giselle.TriggerContent) execKind                     { return execInput }
func (kindOf) VisitAppEntry(*giselle.AppEntryContent) execKind                   { return execInput }
func (kindOf) VisitEnd(*giselle.EndContent) execKind                             { return execEnd }
func (kindOf) VisitTextGeneration(*giselle.TextGenerationContent) execKind       { return execModel }
func (kindOf) VisitImageGeneration(*giselle.ImageGenerationContent) execKind     { return execModel }
func (kindOf) VisitContentGeneration(*giselle.ContentGenerationContent) execKind { return execModel }
func (kindOf) VisitAction(*giselle.ActionContent) execKind                       { return execAction }
func (kindOf) VisitText(*giselle.TextContent) execKind                           { return execNone }
func (kindOf) VisitFile(*giselle.FileContent) execKind                           { return execNone }
func (kindOf) VisitDataStore(*giselle.DataStoreContent) execKind                 { return execNone }
func (kindOf) VisitWebPage(*giselle.WebPageContent) execKind                     { return execNone }

type execResult struct {
	outputs []giselle.GenerationOutput
	usage   *giselle.Usage
	parts   []giselle.MessagePart
}

func (r execResult) applyTo(g *giselle.Generation) {
	g.Outputs = r.outputs
	g.Usage = r.usage
	if len(r.parts) > 0 {
		g.Messages = append(g.Messages, giselle.Message{ID: g.ID, Role: "assistant", Parts: r.parts})
	}
}

func (s *GenerationService) execute(ctx context.Context, gen *giselle.Generation, log *chunkLog) (execResult, error) {
	node := gen.Context.OperationNode
	if node.Content == nil {
		return execResult{}, fmt.Errorf("node %s has no content", node.ID)
	}
	switch giselle.VisitContent(node.Content, kindOf{}) {
	case execModel:
		return s.executeModel(ctx, gen, log)
	case execInput:
		return execResult{outputs: inputOutputs(node, gen.Context.Inputs)}, nil
	case execAction:
		return s.executeAction(ctx, gen)
	case execEnd:
		return execResult{}, nil
	}
	return execResult{}, fmt.Errorf("node %s (%s) is not executable", node.ID, node.Content.ContentType())
}

func firstOutputID(n giselle.Node) string {
	if len(n.Outputs) == 0 {
		return ""
	}
	return n.Outputs[0].ID
}

func (s *GenerationService) executeModel(ctx context.Context, gen *giselle.Generation, log *chunkLog) (execResult, error) {
	if s.model == nil {
		return execResult{}, fmt.Errorf("no language model configured")
	}
	upstream, err := s.upstream(ctx, gen)
	if err != nil {
		return execResult{}, err
	}
	req, err := provider.BuildRequest(gen.Context, upstream)
	if err != nil {
		return execResult{}, err
	}

	outputID := firstOutputID(gen.Context.OperationNode)
	var (
		res       execResult
		text      strings.Builder
		reasoning strings.Builder
		images    []giselle.Image
		sources   []giselle.Source
	)
	collect := func() execResult {
		if text.Len() > 0 {
			res.outputs = append(res.outputs, giselle.GenerationOutput{Type: giselle.OutputGeneratedText, OutputID: outputID, Content: text.String()})
			res.parts = append(res.parts, giselle.MessagePart{Type: "text", Text: text.String()})
		}
		if reasoning.Len() > 0 {
			res.outputs = append(res.outputs, giselle.GenerationOutput{Type: giselle.OutputReasoning, OutputID: outputID, Content: reasoning.String()})
		}
		if len(images) > 0 {
			res.outputs = append(res.outputs, giselle.GenerationOutput{Type: giselle.OutputGeneratedImage, OutputID: outputID, Contents: images})
		}
		if len(sources) > 0 {
			res.outputs = append(res.outputs, giselle.GenerationOutput{Type: giselle.OutputSource, OutputID: outputID, Sources: sources})
		}
		return res
	}

	for chunk, err := range s.model.Stream(ctx, req) {
		if err != nil {
			return collect(), err
		}
		switch chunk.Kind {
		case giselle.ChunkKindText:
			text.WriteString(chunk.Text)
			err = log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkTextDelta, ID: gen.ID, Delta: chunk.Text})
		case giselle.ChunkKindReasoning:
			reasoning.WriteString(chunk.Text)
			err = log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkReasoningDelta, ID: gen.ID, Delta: chunk.Text})
		case giselle.ChunkKindSource:
			if chunk.Source != nil {
				sources = append(sources, *chunk.Source)
				err = log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkSourceURL, URL: chunk.Source.URL, Title: chunk.Source.Title})
			}
		case giselle.ChunkKindImage:
			if chunk.Image != nil {
				img := *chunk.Image
				img.Path, err = s.repo.SaveImage(ctx, gen.ID, img.Filename, img.Data)
				if err != nil {
					log.err = err
					break
				}
				img.Data = nil
				images = append(images, img)
				res.parts = append(res.parts, giselle.MessagePart{Type: "file", URL: img.Path})
				err = log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkFile, URL: img.Path})
			}
		case giselle.ChunkKindUsage:
			res.usage = chunk.Usage
		}
		if err != nil {
			return collect(), err
		}
	}
	return collect(), nil
}

// upstream resolves outputs of completed generations of the same act.
func (s *GenerationService) upstream(ctx context.Context, gen *giselle.Generation) (provider.Upstream, error) {
	origin := gen.Context.Origin
	if origin.Type != giselle.OriginAct {
		return nil, nil
	}
	gens, err := s.repo.ListByAct(ctx, origin.ID)
	if err != nil {
		return nil, err
	}
	byNode := make(map[string]*giselle.Generation, len(gens))
	for _, g := range gens {
		if g.Status == giselle.GenerationCompleted {
			byNode[g.Context.OperationNode.ID] = g
		}
	}
	return func(nodeID, outputID string) (string, bool) {
		g, ok := byNode[nodeID]
		if !ok {
			return "", false
		}
		for _, o := range g.Outputs {
			if o.Type == giselle.OutputGeneratedText && o.OutputID == outputID {
				return o.Content, true
			}
		}
		if t := g.Text(); t != "" {
			return t, true
		}
		return "", false
	}, nil
}

// executeAction resolves the action's parameters and records them as its
// output. Calling external services is out of scope for the engine.
func (s *GenerationService) executeAction(ctx context.Context, gen *giselle.Generation) (execResult, error) {
	action := gen.Context.OperationNode.Content.(*giselle.ActionContent)
	upstream, err := s.upstream(ctx, gen)
	if err != nil {
		return execResult{}, err
	}
	resolved := make(map[string]any, len(action.Command.Parameters))
	for k, v := range action.Command.Parameters {
		if str, ok := v.(string); ok {
			v = provider.ResolveReferences(str, gen.Context.SourceNodes, upstream)
		}
		resolved[k] = v
	}
	b, err := json.Marshal(map[string]any{
		"provider":   action.Command.Provider,
		"actionId":   action.Command.ActionID,
		"parameters": resolved,
	})
	if err != nil {
		return execResult{}, err
	}
	out := giselle.GenerationOutput{
		Type:     giselle.OutputGeneratedText,
		OutputID: firstOutputID(gen.Context.OperationNode),
		Content:  string(b),
	}
	return execResult{outputs: []giselle.GenerationOutput{out}}, nil
}

// inputOutputs maps the external inputs of an entry node onto its outputs.
// An output selects its value by accessor, falling back to label and id.
func inputOutputs(node giselle.Node, inputs []giselle.GenerationContextInput) []giselle.GenerationOutput {
	var outs []giselle.GenerationOutput
	for _, o := range node.Outputs {
		key := o.Accessor
		if key == "" {
			key = o.Label
		}
		if key == "" {
			key = o.ID
		}
		v, ok := lookupInput(inputs, key)
		if !ok {
			continue
		}
		outs = append(outs, giselle.GenerationOutput{Type: giselle.OutputGeneratedText, OutputID: o.ID, Content: v})
	}
	return outs
}

func lookupInput(inputs []giselle.GenerationContextInput, key string) (string, bool) {
	for _, in := range inputs {
		switch in.Type {
		case giselle.InputParameters:
			for _, item := range in.Items {
				if item.Name == key {
					return stringify(item.Value), true
				}
			}
		case giselle.InputGitHubWebhookEvent:
			if in.WebhookEvent == nil {
				continue
			}
			switch key {
			case "event":
				return in.WebhookEvent.Name, true
			case "action":
				return in.WebhookEvent.Action, true
			}
			if v, ok := lookupPath(in.WebhookEvent.Payload, key); ok {
				return stringify(v), true
			}
		}
	}
	return "", false
}

// lookupPath walks a dotted path such as "issue.title".
func lookupPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
