package giselle

import "time"

type GenerationStatus string

const (
	GenerationQueued    GenerationStatus = "queued"
	GenerationRunning   GenerationStatus = "running"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
	GenerationCancelled GenerationStatus = "cancelled"
)

var generationTransitions = map[GenerationStatus][]GenerationStatus{
	GenerationQueued:  {GenerationRunning, GenerationCancelled},
	GenerationRunning: {GenerationCompleted, GenerationFailed, GenerationCancelled},
}

func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationCompleted || s == GenerationFailed || s == GenerationCancelled
}

// CanTransitionTo reports whether s -> next is an edge of the state machine.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	for _, allowed := range generationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OriginType string

const (
	OriginWorkspace OriginType = "workspace"
	OriginAct       OriginType = "act"
)

// Origin is the owning context of a Generation. It never changes once set.
type Origin struct {
	Type        OriginType `json:"type"`
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
}

// Workspace returns the workspace the origin is scoped to.
func (o Origin) Workspace() string {
	if o.Type == OriginWorkspace {
		return o.ID
	}
	return o.WorkspaceID
}

type InputType string

const (
	InputParameters         InputType = "parameters"
	InputGitHubWebhookEvent InputType = "github-webhook-event"
)

type ParameterItem struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type WebhookEvent struct {
	Name    string         `json:"name"`
	Action  string         `json:"action,omitempty"`
	Payload map[string]any `json:"payload"`
}

// GenerationContextInput is the external input handed to an entry
// Generation. Items is set for parameters, WebhookEvent for GitHub events.
type GenerationContextInput struct {
	Type         InputType       `json:"type"`
	Items        []ParameterItem `json:"items,omitempty"`
	WebhookEvent *WebhookEvent   `json:"webhookEvent,omitempty"`
}

// Parameters builds a parameters input.
func Parameters(items ...ParameterItem) GenerationContextInput {
	return GenerationContextInput{Type: InputParameters, Items: items}
}

type GenerationContext struct {
	OperationNode Node                     `json:"operationNode"`
	SourceNodes   []Node                   `json:"sourceNodes"`
	Connections   []Connection             `json:"connections"`
	Origin        Origin                   `json:"origin"`
	Inputs        []GenerationContextInput `json:"inputs,omitempty"`
}

type OutputType string

const (
	OutputGeneratedText  OutputType = "generated-text"
	OutputGeneratedImage OutputType = "generated-image"
	OutputReasoning      OutputType = "reasoning"
	OutputSource         OutputType = "source"
)

type Image struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"`
	// Data carries the raw bytes from a model until they are stored.
	Data []byte `json:"-"`
}

type Source struct {
	SourceType string `json:"sourceType"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
}

type GenerationOutput struct {
	Type     OutputType `json:"type"`
	OutputID string     `json:"outputId"`
	Content  string     `json:"content,omitempty"`
	Contents []Image    `json:"contents,omitempty"`
	Sources  []Source   `json:"sources,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type GenerationError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Message struct {
	ID    string        `json:"id"`
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

type Generation struct {
	ID          string             `json:"id"`
	Status      GenerationStatus   `json:"status"`
	Context     GenerationContext  `json:"context"`
	Outputs     []GenerationOutput `json:"outputs,omitempty"`
	Messages    []Message          `json:"messages,omitempty"`
	Usage       *Usage             `json:"usage,omitempty"`
	Error       *GenerationError   `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	QueuedAt    *time.Time         `json:"queuedAt,omitempty"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	FailedAt    *time.Time         `json:"failedAt,omitempty"`
	CancelledAt *time.Time         `json:"cancelledAt,omitempty"`
}

// Text concatenates every generated-text output.
func (g *Generation) Text() string {
	var s string
	for _, out := range g.Outputs {
		if out.Type == OutputGeneratedText {
			s += out.Content
		}
	}
	return s
}

// UIMessageChunkType tags one record of a generation's message stream.
type UIMessageChunkType string

const (
	ChunkStart          UIMessageChunkType = "start"
	ChunkTextDelta      UIMessageChunkType = "text-delta"
	ChunkReasoningDelta UIMessageChunkType = "reasoning-delta"
	ChunkSourceURL      UIMessageChunkType = "source-url"
	ChunkFile           UIMessageChunkType = "file"
	ChunkFinish         UIMessageChunkType = "finish"
	ChunkError          UIMessageChunkType = "error"
)

type UIMessageChunk struct {
	Type      UIMessageChunkType `json:"type"`
	ID        string             `json:"id,omitempty"`
	Delta     string             `json:"delta,omitempty"`
	URL       string             `json:"url,omitempty"`
	Title     string             `json:"title,omitempty"`
	ErrorText string             `json:"errorText,omitempty"`
}

type ChunkKind string

const (
	ChunkKindText      ChunkKind = "text"
	ChunkKindReasoning ChunkKind = "reasoning"
	ChunkKindImage     ChunkKind = "image"
	ChunkKindSource    ChunkKind = "source"
	ChunkKindUsage     ChunkKind = "usage"
)

// OutputChunk is one item of a language model stream. The final chunk of a
// successful stream usually has kind usage.
type OutputChunk struct {
	Kind   ChunkKind `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Image  *Image    `json:"image,omitempty"`
	Source *Source   `json:"source,omitempty"`
	Usage  *Usage    `json:"usage,omitempty"`
}

// ModelRequest is what a language model adapter receives for one generation.
type ModelRequest struct {
	Model         string         `json:"model"`
	System        string         `json:"system,omitempty"`
	Prompt        string         `json:"prompt"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Image         bool           `json:"image,omitempty"`
}
