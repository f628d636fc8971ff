// Package chat implements the streaming chat-completion pipeline: context
// building, stream orchestration, part accumulation and the thread lifecycle
// bookkeeping behind it.
package chat

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/aurachat/aura/store"
)

// FrameType discriminates the NDJSON records sent to the client.
type FrameType string

const (
	FrameThreadID       FrameType = "thread_id"
	FrameModelName      FrameType = "model_name"
	FrameTextDelta      FrameType = "text-delta"
	FrameReasoningDelta FrameType = "reasoning-delta"
	FrameToolCall       FrameType = "tool_call"
	FrameToolResult     FrameType = "tool_result"
	FrameFile           FrameType = "file"
	FrameAppendMessage  FrameType = "append-message"
	FrameError          FrameType = "error"
	FrameFinish         FrameType = "finish"
)

// ErrorPayload is the terminal error record of a failed stream.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageView is a complete message replayed in one frame.
type MessageView struct {
	UID       string              `json:"uid"`
	Role      string              `json:"role"`
	Parts     []store.ContentPart `json:"parts"`
	CreatedTs int64               `json:"createdTs"`
}

// Frame is one typed NDJSON record of the chat stream.
type Frame struct {
	Type FrameType `json:"type"`

	ThreadID string `json:"threadId,omitempty"`
	Model    string `json:"model,omitempty"`
	Delta    string `json:"delta,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`

	Message *MessageView  `json:"message,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// Sink writes frames to the client connection as newline-delimited JSON,
// flushing after each frame. Write errors are sticky: once the connection
// breaks every further Send reports the same error so callers can keep
// draining their event source without re-hitting the socket.
type Sink struct {
	enc     *json.Encoder
	flusher http.Flusher
	err     error
}

// NewSink creates a sink over the response writer.
func NewSink(w io.Writer) *Sink {
	s := &Sink{enc: json.NewEncoder(w)}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// Send writes one frame. Returns the sticky connection error, if any.
func (s *Sink) Send(frame *Frame) error {
	if s.err != nil {
		return s.err
	}
	if err := s.enc.Encode(frame); err != nil {
		s.err = err
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Err returns the sticky connection error.
func (s *Sink) Err() error {
	return s.err
}
