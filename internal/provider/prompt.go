package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// Upstream resolves the text an upstream operation produced on one of its
// outputs.
type Upstream func(nodeID, outputID string) (string, bool)

// refPattern matches {{nodeId:outputId}} references in a prompt.
var refPattern = regexp.MustCompile(`\{\{\s*([^:{}\s]+):([^:{}\s]+)\s*\}\}`)

// BuildRequest turns the context of a language model generation into a
// model request. References to variable source nodes are replaced by their
// content, references to operation nodes by what upstream returns.
// Unresolved references become empty.
func BuildRequest(gc giselle.GenerationContext, upstream Upstream) (giselle.ModelRequest, error) {
	spec := giselle.VisitContent(gc.OperationNode.Content, requestVisitor{})
	if !spec.ok {
		return giselle.ModelRequest{}, fmt.Errorf("node %s (%s) does not call a language model",
			gc.OperationNode.ID, gc.OperationNode.Content.ContentType())
	}

	return giselle.ModelRequest{
		Model:         spec.llm.Provider + "/" + spec.llm.ID,
		Prompt:        ResolveReferences(spec.prompt, gc.SourceNodes, upstream),
		Configuration: spec.llm.Configurations,
		Image:         spec.image,
	}, nil
}

// ResolveReferences replaces every {{nodeId:outputId}} in text.
func ResolveReferences(text string, sourceNodes []giselle.Node, upstream Upstream) string {
	sources := make(map[string]giselle.Node, len(sourceNodes))
	for _, n := range sourceNodes {
		sources[n.ID] = n
	}
	return refPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := refPattern.FindStringSubmatch(m)
		nodeID, outputID := sub[1], sub[2]
		if n, ok := sources[nodeID]; ok && !n.IsOperation() {
			return giselle.VisitContent(n.Content, variableText{})
		}
		if upstream != nil {
			if s, ok := upstream(nodeID, outputID); ok {
				return s
			}
		}
		return ""
	})
}

type requestSpec struct {
	llm    giselle.LanguageModelRef
	prompt string
	image  bool
	ok     bool
}

type requestVisitor struct{}

func (requestVisitor) VisitTextGeneration(c *giselle.TextGenerationContent) requestSpec {
	return requestSpec{llm: c.LLM, prompt: c.Prompt, ok: true}
}

func (requestVisitor) VisitImageGeneration(c *giselle.ImageGenerationContent) requestSpec {
	return requestSpec{llm: c.LLM, prompt: c.Prompt, image: true, ok: true}
}

func (requestVisitor) VisitContentGeneration(c *giselle.ContentGenerationContent) requestSpec {
	return requestSpec{llm: c.LanguageModel, prompt: c.Prompt, ok: true}
}

func (requestVisitor) VisitTrigger(*giselle.TriggerContent) requestSpec     { return requestSpec{} }
func (requestVisitor) VisitAppEntry(*giselle.AppEntryContent) requestSpec   { return requestSpec{} }
func (requestVisitor) VisitEnd(*giselle.EndContent) requestSpec             { return requestSpec{} }
func (requestVisitor) VisitAction(*giselle.ActionContent) requestSpec       { return requestSpec{} }
func (requestVisitor) VisitText(*giselle.TextContent) requestSpec           { return requestSpec{} }
func (requestVisitor) VisitFile(*giselle.FileContent) requestSpec           { return requestSpec{} }
func (requestVisitor) VisitDataStore(*giselle.DataStoreContent) requestSpec { return requestSpec{} }
func (requestVisitor) VisitWebPage(*giselle.WebPageContent) requestSpec     { return requestSpec{} }

// variableText renders a variable node for inclusion in a prompt.
type variableText struct{}

func (variableText) VisitText(c *giselle.TextContent) string { return c.Text }

func (variableText) VisitFile(c *giselle.FileContent) string {
	names := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("[%s files: %s]", c.Category, strings.Join(names, ", "))
}

func (variableText) VisitDataStore(c *giselle.DataStoreContent) string {
	return fmt.Sprintf("[data store %s/%s]", c.Source.Provider, c.Source.DataStoreID)
}

func (variableText) VisitWebPage(c *giselle.WebPageContent) string {
	var b strings.Builder
	for i, p := range c.WebPages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if p.Title != "" {
			b.WriteString(p.Title + "\n")
		}
		b.WriteString(p.URL)
		if p.Body != "" {
			b.WriteString("\n" + p.Body)
		}
	}
	return b.String()
}

func (variableText) VisitTrigger(*giselle.TriggerContent) string                     { return "" }
func (variableText) VisitAppEntry(*giselle.AppEntryContent) string                   { return "" }
func (variableText) VisitEnd(*giselle.EndContent) string                             { return "" }
func (variableText) VisitTextGeneration(*giselle.TextGenerationContent) string       { return "" }
func (variableText) VisitImageGeneration(*giselle.ImageGenerationContent) string     { return "" }
func (variableText) VisitContentGeneration(*giselle.ContentGenerationContent) string { return "" }
func (variableText) VisitAction(*giselle.ActionContent) string                       { return "" }
