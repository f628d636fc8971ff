package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

type PartType string

const (
	PartTypeText           PartType = "text"
	PartTypeReasoning      PartType = "reasoning"
	PartTypeFile           PartType = "file"
	PartTypeToolInvocation PartType = "tool-invocation"
	PartTypeError          PartType = "error"
)

// ToolInvocationState tracks a tool call through its lifecycle. States are
// monotonic per tool call id: partial-call -> call -> result, never back.
type ToolInvocationState string

const (
	ToolStatePartialCall ToolInvocationState = "partial-call"
	ToolStateCall        ToolInvocationState = "call"
	ToolStateResult      ToolInvocationState = "result"
)

// ContentPart is one typed unit in a message's ordered content sequence.
// Only the fields for the part's Type are populated; the rest stay zero and
// are omitted from the persisted JSON.
type ContentPart struct {
	Type PartType `json:"type"`

	// text / reasoning
	Text       string `json:"text,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`

	// file
	MimeType   string `json:"mimeType,omitempty"`
	Filename   string `json:"filename,omitempty"`
	URL        string `json:"url,omitempty"`
	InlineData []byte `json:"inlineData,omitempty"`

	// tool-invocation
	State      ToolInvocationState `json:"state,omitempty"`
	ToolCallID string              `json:"toolCallId,omitempty"`
	ToolName   string              `json:"toolName,omitempty"`
	Args       json.RawMessage     `json:"args,omitempty"`
	Result     json.RawMessage     `json:"result,omitempty"`
	Step       int                 `json:"step,omitempty"`

	// error
	Code         string `json:"code,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

// MessageMetadata is the free-form metadata column of a message. For
// assistant messages it records the generating model, the stream identity and
// the token usage accumulated across every generation step.
type MessageMetadata struct {
	Model            string `json:"model,omitempty"`
	StreamID         string `json:"streamId,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	ReasoningTokens  int    `json:"reasoningTokens,omitempty"`
}

// Message is one turn of a thread. The part sequence is append-only while its
// stream is running and immutable after, except for edit/retry truncation.
type Message struct {
	ID        int32
	UID       string
	ThreadID  int32
	Role      MessageRole
	Parts     []ContentPart
	Metadata  *MessageMetadata
	CreatedTs int64
	UpdatedTs int64
	Edited    bool
	EditedTs  *int64
	RowStatus RowStatus
}

type FindMessage struct {
	ID        *int32
	UID       *string
	ThreadID  *int32
	RowStatus *RowStatus
}

type UpdateMessage struct {
	ID        int32
	Parts     *[]ContentPart
	Metadata  *MessageMetadata
	Edited    *bool
	EditedTs  *int64
	RowStatus *RowStatus
	UpdatedTs *int64
}

type DeleteMessage struct {
	ID       *int32
	ThreadID *int32
}

// MarshalParts serializes a part list for the JSON column.
func MarshalParts(parts []ContentPart) (string, error) {
	if parts == nil {
		parts = []ContentPart{}
	}
	buf, err := json.Marshal(parts)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal content parts")
	}
	return string(buf), nil
}

// UnmarshalParts deserializes the JSON column back into a part list.
func UnmarshalParts(raw string) ([]ContentPart, error) {
	if raw == "" {
		return []ContentPart{}, nil
	}
	var parts []ContentPart
	if err := json.Unmarshal([]byte(raw), &parts); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal content parts")
	}
	return parts, nil
}

// MarshalMetadata serializes message metadata, defaulting to an empty object.
func MarshalMetadata(metadata *MessageMetadata) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal message metadata")
	}
	return string(buf), nil
}

// UnmarshalMetadata deserializes message metadata; "{}" yields nil.
func UnmarshalMetadata(raw string) (*MessageMetadata, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	metadata := &MessageMetadata{}
	if err := json.Unmarshal([]byte(raw), metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message metadata")
	}
	return metadata, nil
}
