package ai

import (
	"context"
	"encoding/json"

	"github.com/aurachat/aura/plugin/ai/tools"
)

// MessageRole is the provider-facing role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// PartKind discriminates the content items inside a ChatMessage.
type PartKind string

const (
	PartText      PartKind = "text"
	PartImageURL  PartKind = "image_url"
	PartFile      PartKind = "file"
	PartReasoning PartKind = "reasoning"
)

// MessagePart is one typed content item of a provider message.
type MessagePart struct {
	Kind PartKind

	// Text carries text and reasoning content.
	Text string

	// ImageURL points at a reachable image for vision models.
	ImageURL string

	// File fields carry inline document payloads.
	Filename string
	MimeType string
	Data     []byte
}

// ChatMessage is one provider-native message produced by the context builder.
type ChatMessage struct {
	Role  MessageRole
	Parts []MessagePart

	// ToolCalls is set on assistant messages that declared tool calls.
	ToolCalls []ToolCall
	// ToolCallID pairs a tool message with its originating call.
	ToolCallID string
}

// Text returns the concatenated text content of the message.
func (m *ChatMessage) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// EventType discriminates the events yielded by a generation stream.
type EventType string

const (
	EventTextDelta      EventType = "text-delta"
	EventReasoningDelta EventType = "reasoning-delta"
	EventToolCall       EventType = "tool-call"
	EventToolResult     EventType = "tool-result"
	EventFile           EventType = "file"
	EventStepFinish     EventType = "step-finish"
	EventUsage          EventType = "usage"
)

// ToolCall is one declared tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResult is the outcome of one executed tool call.
type ToolResult struct {
	ID     string
	Name   string
	Result json.RawMessage
}

// FilePayload carries a generated binary from the provider.
type FilePayload struct {
	MimeType string
	Filename string
	Data     []byte
}

// TokenUsage is the per-step token accounting reported by the provider.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
}

// StreamEvent is one item of the heterogeneous generation event stream.
type StreamEvent struct {
	Type       EventType
	TextDelta  string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	File       *FilePayload
	Usage      *TokenUsage
	Step       int
}

// GenerateRequest describes one multi-step generation.
type GenerateRequest struct {
	Model    *Model
	Messages []ChatMessage
	Tools    map[string]*tools.Definition
}

// ImageRequest describes one image generation.
type ImageRequest struct {
	Model  *Model
	Prompt string
	Size   string
	Count  int
}

// GeneratedImage is one image produced by an image model.
type GeneratedImage struct {
	Data     []byte
	MimeType string
}

// Generator is the uniform generation interface a provider binding exposes.
type Generator interface {
	// StreamGenerate runs a multi-step generation and yields its events on the
	// returned channel. The error channel delivers at most one error; both
	// channels close when generation ends.
	StreamGenerate(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, <-chan error)

	// GenerateImages produces images for the prompt.
	GenerateImages(ctx context.Context, req *ImageRequest) ([]*GeneratedImage, error)

	// Complete performs a single non-streaming completion. Used for background
	// jobs like title generation.
	Complete(ctx context.Context, model string, messages []ChatMessage) (string, error)
}
