package giselle

import (
	"encoding/json"
	"fmt"
)

type NodeType string

const (
	NodeTypeOperation NodeType = "operation"
	NodeTypeVariable  NodeType = "variable"
)

// ContentType tags the variant carried by Node.Content.
type ContentType string

const (
	ContentTrigger           ContentType = "trigger"
	ContentAppEntry          ContentType = "appEntry"
	ContentEnd               ContentType = "end"
	ContentTextGeneration    ContentType = "textGeneration"
	ContentImageGeneration   ContentType = "imageGeneration"
	ContentContentGeneration ContentType = "contentGeneration"
	ContentAction            ContentType = "action"

	ContentText      ContentType = "text"
	ContentFile      ContentType = "file"
	ContentDataStore ContentType = "dataStore"
	ContentWebPage   ContentType = "webPage"
)

// NodeType reports which node type a content kind belongs to.
func (c ContentType) NodeType() NodeType {
	switch c {
	case ContentText, ContentFile, ContentDataStore, ContentWebPage:
		return NodeTypeVariable
	default:
		return NodeTypeOperation
	}
}

// NodeContent is the closed set of node payloads. Only types in this
// package implement it.
type NodeContent interface {
	ContentType() ContentType
	isNodeContent()
}

type LanguageModelRef struct {
	Provider       string         `json:"provider"`
	ID             string         `json:"id"`
	Configurations map[string]any `json:"configurations,omitempty"`
}

type TriggerContent struct {
	Provider      string `json:"provider"`
	FlowTriggerID string `json:"flowTriggerId,omitempty"`
}

type AppEntryContent struct {
	AppID string `json:"appId,omitempty"`
}

type EndContent struct{}

type TextGenerationContent struct {
	LLM    LanguageModelRef `json:"llm"`
	Prompt string           `json:"prompt,omitempty"`
}

type ImageGenerationContent struct {
	LLM    LanguageModelRef `json:"llm"`
	Prompt string           `json:"prompt,omitempty"`
}

type ContentGenerationContent struct {
	LanguageModel LanguageModelRef `json:"languageModel"`
	Prompt        string           `json:"prompt,omitempty"`
	Tools         []string         `json:"tools,omitempty"`
}

type ActionCommand struct {
	Provider   string         `json:"provider"`
	ActionID   string         `json:"actionId"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type ActionContent struct {
	Command ActionCommand `json:"command"`
}

type TextContent struct {
	Text string `json:"text"`
}

type FileData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Path        string `json:"path,omitempty"`
}

type FileContent struct {
	Category string     `json:"category"`
	Files    []FileData `json:"files"`
}

type DataStoreSource struct {
	Provider    string `json:"provider"`
	DataStoreID string `json:"dataStoreId"`
}

type DataStoreContent struct {
	Source DataStoreSource `json:"source"`
}

type WebPage struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type WebPageContent struct {
	WebPages []WebPage `json:"webpages"`
}

func (*TriggerContent) ContentType() ContentType           { return ContentTrigger }
func (*AppEntryContent) ContentType() ContentType          { return ContentAppEntry }
func (*EndContent) ContentType() ContentType               { return ContentEnd }
func (*TextGenerationContent) ContentType() ContentType    { return ContentTextGeneration }
func (*ImageGenerationContent) ContentType() ContentType   { return ContentImageGeneration }
func (*ContentGenerationContent) ContentType() ContentType { return ContentContentGeneration }
func (*ActionContent) ContentType() ContentType            { return ContentAction }
func (*TextContent) ContentType() ContentType              { return ContentText }
func (*FileContent) ContentType() ContentType              { return ContentFile }
func (*DataStoreContent) ContentType() ContentType         { return ContentDataStore }
func (*WebPageContent) ContentType() ContentType           { return ContentWebPage }

func (*TriggerContent) isNodeContent()           {}
func (*AppEntryContent) isNodeContent()          {}
func (*EndContent) isNodeContent()               {}
func (*TextGenerationContent) isNodeContent()    {}
func (*ImageGenerationContent) isNodeContent()   {}
func (*ContentGenerationContent) isNodeContent() {}
func (*ActionContent) isNodeContent()            {}
func (*TextContent) isNodeContent()              {}
func (*FileContent) isNodeContent()              {}
func (*DataStoreContent) isNodeContent()         {}
func (*WebPageContent) isNodeContent()           {}

// NodeContentVisitor has one method per content variant. Adding a variant
// means adding a method here, which breaks every visitor until it handles it.
type NodeContentVisitor[T any] interface {
	VisitTrigger(*TriggerContent) T
	VisitAppEntry(*AppEntryContent) T
	VisitEnd(*EndContent) T
	VisitTextGeneration(*TextGenerationContent) T
	VisitImageGeneration(*ImageGenerationContent) T
	VisitContentGeneration(*ContentGenerationContent) T
	VisitAction(*ActionContent) T
	VisitText(*TextContent) T
	VisitFile(*FileContent) T
	VisitDataStore(*DataStoreContent) T
	VisitWebPage(*WebPageContent) T
}

// VisitContent dispatches c to the matching visitor method.
func VisitContent[T any](c NodeContent, v NodeContentVisitor[T]) T {
	switch c := c.(type) {
	case *TriggerContent:
		return v.VisitTrigger(c)
	case *AppEntryContent:
		return v.VisitAppEntry(c)
	case *EndContent:
		return v.VisitEnd(c)
	case *TextGenerationContent:
		return v.VisitTextGeneration(c)
	case *ImageGenerationContent:
		return v.VisitImageGeneration(c)
	case *ContentGenerationContent:
		return v.VisitContentGeneration(c)
	case *ActionContent:
		return v.VisitAction(c)
	case *TextContent:
		return v.VisitText(c)
	case *FileContent:
		return v.VisitFile(c)
	case *DataStoreContent:
		return v.VisitDataStore(c)
	case *WebPageContent:
		return v.VisitWebPage(c)
	}
	panic(fmt.Sprintf("giselle: unhandled node content %T", c))
}

// NewContent returns an empty value for the given content type.
func NewContent(t ContentType) (NodeContent, error) {
	switch t {
	case ContentTrigger:
		return &TriggerContent{}, nil
	case ContentAppEntry:
		return &AppEntryContent{}, nil
	case ContentEnd:
		return &EndContent{}, nil
	case ContentTextGeneration:
		return &TextGenerationContent{}, nil
	case ContentImageGeneration:
		return &ImageGenerationContent{}, nil
	case ContentContentGeneration:
		return &ContentGenerationContent{}, nil
	case ContentAction:
		return &ActionContent{}, nil
	case ContentText:
		return &TextContent{}, nil
	case ContentFile:
		return &FileContent{}, nil
	case ContentDataStore:
		return &DataStoreContent{}, nil
	case ContentWebPage:
		return &WebPageContent{}, nil
	}
	return nil, fmt.Errorf("unknown node content type %q", t)
}

// MarshalContent encodes c with its "type" tag folded into the object.
func MarshalContent(c NodeContent) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(c.ContentType())
	fields["type"] = tag
	return json.Marshal(fields)
}

// UnmarshalContent decodes a tagged content object.
func UnmarshalContent(data []byte) (NodeContent, error) {
	var head struct {
		Type ContentType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode node content: %w", err)
	}
	c, err := NewContent(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode %s content: %w", head.Type, err)
	}
	return c, nil
}

type Input struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Accessor string `json:"accessor,omitempty"`
}

type Output struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Accessor string `json:"accessor,omitempty"`
}

type Node struct {
	ID      string      `json:"id"`
	Name    string      `json:"name,omitempty"`
	Type    NodeType    `json:"type"`
	Content NodeContent `json:"-"`
	Inputs  []Input     `json:"inputs"`
	Outputs []Output    `json:"outputs"`
}

// IsOperation reports whether the node executes as a Generation.
func (n Node) IsOperation() bool { return n.Type == NodeTypeOperation }

func (n Node) HasInput(id string) bool {
	for _, in := range n.Inputs {
		if in.ID == id {
			return true
		}
	}
	return false
}

func (n Node) HasOutput(id string) bool {
	for _, out := range n.Outputs {
		if out.ID == id {
			return true
		}
	}
	return false
}

// Reference returns the connection-side view of the node.
func (n Node) Reference() NodeReference {
	ref := NodeReference{ID: n.ID, Type: n.Type}
	if n.Content != nil {
		ref.Content.Type = n.Content.ContentType()
	}
	return ref
}

type nodeJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name,omitempty"`
	Type    NodeType        `json:"type"`
	Content json.RawMessage `json:"content"`
	Inputs  []Input         `json:"inputs"`
	Outputs []Output        `json:"outputs"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	content, err := MarshalContent(n.Content)
	if err != nil {
		return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	inputs, outputs := n.Inputs, n.Outputs
	if inputs == nil {
		inputs = []Input{}
	}
	if outputs == nil {
		outputs = []Output{}
	}
	return json.Marshal(nodeJSON{
		ID:      n.ID,
		Name:    n.Name,
		Type:    n.Type,
		Content: content,
		Inputs:  inputs,
		Outputs: outputs,
	})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := UnmarshalContent(raw.Content)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	if raw.Type != content.ContentType().NodeType() {
		return fmt.Errorf("node %s: content %q is not a %s node", raw.ID, content.ContentType(), raw.Type)
	}
	*n = Node{
		ID:      raw.ID,
		Name:    raw.Name,
		Type:    raw.Type,
		Content: content,
		Inputs:  raw.Inputs,
		Outputs: raw.Outputs,
	}
	return nil
}

// NodeReference identifies a connection endpoint.
type NodeReference struct {
	ID      string   `json:"id"`
	Type    NodeType `json:"type"`
	Content struct {
		Type ContentType `json:"type"`
	} `json:"content"`
}

type Connection struct {
	ID         string        `json:"id"`
	OutputNode NodeReference `json:"outputNode"`
	OutputID   string        `json:"outputId"`
	InputNode  NodeReference `json:"inputNode"`
	InputID    string        `json:"inputId"`
}

// Connect builds a connection from an output of one node to an input of another.
func Connect(id string, from Node, outputID string, to Node, inputID string) Connection {
	return Connection{
		ID:         id,
		OutputNode: from.Reference(),
		OutputID:   outputID,
		InputNode:  to.Reference(),
		InputID:    inputID,
	}
}
