package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/aurachat/aura/server/ai"
	serrors "github.com/aurachat/aura/server/internal/errors"
	"github.com/aurachat/aura/storage"
	"github.com/aurachat/aura/store"
)

// fakeBlobStore records puts and can be scripted to fail per filename.
type fakeBlobStore struct {
	mu     sync.Mutex
	puts   []string
	failOn map[string]bool
}

func (f *fakeBlobStore) Put(_ context.Context, name string, _ string, _ []byte) (*storage.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[name] {
		return nil, errors.New("disk full")
	}
	f.puts = append(f.puts, name)
	return &storage.Blob{URL: "http://blobs/" + name, Size: 1}, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, _ string) error {
	return nil
}

func TestAccumulatorMergesTextDeltas(t *testing.T) {
	var frames []*Frame
	acc := NewAccumulator(context.Background(), nil, func(f *Frame) { frames = append(frames, f) })

	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: "Hello"})
	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: ", "})
	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: "world"})

	parts := acc.Finish()
	require.Len(t, parts, 1)
	require.Equal(t, store.PartTypeText, parts[0].Type)
	require.Equal(t, "Hello, world", parts[0].Text)
	require.Len(t, frames, 3)
}

func TestAccumulatorSplitsTextAroundToolCall(t *testing.T) {
	acc := NewAccumulator(context.Background(), nil, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: "before"})
	acc.Apply(ai.StreamEvent{Type: ai.EventToolCall, ToolCall: &ai.ToolCall{
		ID: "call-1", Name: "web_search", Args: json.RawMessage(`{"query":"go"}`),
	}})
	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: "after"})

	parts := acc.Finish()
	require.Len(t, parts, 3)
	require.Equal(t, "before", parts[0].Text)
	require.Equal(t, store.PartTypeToolInvocation, parts[1].Type)
	require.Equal(t, "after", parts[2].Text)
}

func TestAccumulatorToolResultTransitionsInPlace(t *testing.T) {
	acc := NewAccumulator(context.Background(), nil, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventToolCall, ToolCall: &ai.ToolCall{
		ID: "call-1", Name: "web_search", Args: json.RawMessage(`{}`),
	}})
	acc.Apply(ai.StreamEvent{Type: ai.EventToolResult, ToolResult: &ai.ToolResult{
		ID: "call-1", Name: "web_search", Result: json.RawMessage(`{"success":true}`),
	}})

	parts := acc.Finish()
	require.Len(t, parts, 1)
	require.Equal(t, store.ToolStateResult, parts[0].State)
	require.JSONEq(t, `{"success":true}`, string(parts[0].Result))
}

func TestAccumulatorIgnoresDuplicateAndUnknownToolResults(t *testing.T) {
	acc := NewAccumulator(context.Background(), nil, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventToolCall, ToolCall: &ai.ToolCall{
		ID: "call-1", Name: "web_search", Args: json.RawMessage(`{}`),
	}})
	acc.Apply(ai.StreamEvent{Type: ai.EventToolResult, ToolResult: &ai.ToolResult{
		ID: "call-1", Result: json.RawMessage(`{"n":1}`),
	}})
	// Duplicate result for the same call and a result for an id that was
	// never announced must both be dropped without disturbing the parts.
	acc.Apply(ai.StreamEvent{Type: ai.EventToolResult, ToolResult: &ai.ToolResult{
		ID: "call-1", Result: json.RawMessage(`{"n":2}`),
	}})
	acc.Apply(ai.StreamEvent{Type: ai.EventToolResult, ToolResult: &ai.ToolResult{
		ID: "call-9", Result: json.RawMessage(`{}`),
	}})

	parts := acc.Finish()
	require.Len(t, parts, 1)
	require.JSONEq(t, `{"n":1}`, string(parts[0].Result))
}

func TestAccumulatorReasoningDuration(t *testing.T) {
	acc := NewAccumulator(context.Background(), nil, nil)
	current := time.Unix(1000, 0)
	acc.now = func() time.Time { return current }

	acc.Apply(ai.StreamEvent{Type: ai.EventReasoningDelta, TextDelta: "thinking"})
	current = current.Add(1500 * time.Millisecond)
	acc.Apply(ai.StreamEvent{Type: ai.EventReasoningDelta, TextDelta: " more"})
	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: "answer"})

	parts := acc.Finish()
	require.Len(t, parts, 2)
	require.Equal(t, store.PartTypeReasoning, parts[0].Type)
	require.Equal(t, "thinking more", parts[0].Text)
	require.Equal(t, int64(1500), parts[0].DurationMs)
	require.Equal(t, "answer", parts[1].Text)
}

func TestAccumulatorSumsUsageAcrossSteps(t *testing.T) {
	acc := NewAccumulator(context.Background(), nil, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventUsage, Usage: &ai.TokenUsage{PromptTokens: 10, CompletionTokens: 5}})
	acc.Apply(ai.StreamEvent{Type: ai.EventUsage, Usage: &ai.TokenUsage{PromptTokens: 20, CompletionTokens: 7, ReasoningTokens: 3}})

	usage := acc.Usage()
	require.Equal(t, 30, usage.PromptTokens)
	require.Equal(t, 12, usage.CompletionTokens)
	require.Equal(t, 3, usage.ReasoningTokens)
}

func TestAccumulatorUploadsResolveURLs(t *testing.T) {
	blob := &fakeBlobStore{}
	acc := NewAccumulator(context.Background(), blob, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventFile, File: &ai.FilePayload{
		Filename: "out.png", MimeType: "image/png", Data: []byte{1, 2, 3},
	}})

	parts := acc.Finish()
	require.Len(t, parts, 1)
	require.Equal(t, store.PartTypeFile, parts[0].Type)
	require.Equal(t, "http://blobs/out.png", parts[0].URL)
	require.Empty(t, parts[0].InlineData)
}

func TestAccumulatorUploadFailureKeepsFilePart(t *testing.T) {
	blob := &fakeBlobStore{failOn: map[string]bool{"bad.png": true}}
	acc := NewAccumulator(context.Background(), blob, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventFile, File: &ai.FilePayload{
		Filename: "bad.png", MimeType: "image/png", Data: []byte{1},
	}})
	acc.Apply(ai.StreamEvent{Type: ai.EventTextDelta, TextDelta: "done"})

	parts := acc.Finish()
	require.Len(t, parts, 3)
	require.Equal(t, store.PartTypeFile, parts[0].Type)
	require.Empty(t, parts[0].URL)
	require.Equal(t, store.PartTypeError, parts[1].Type)
	require.Equal(t, string(serrors.ErrCodeUploadError), parts[1].Code)
	require.Equal(t, "done", parts[2].Text)
}

func TestAccumulatorInlineDataWithoutBlobStore(t *testing.T) {
	acc := NewAccumulator(context.Background(), nil, nil)

	acc.Apply(ai.StreamEvent{Type: ai.EventFile, File: &ai.FilePayload{
		MimeType: "image/png", Data: []byte{9, 9},
	}})

	parts := acc.Finish()
	require.Len(t, parts, 1)
	require.Equal(t, []byte{9, 9}, parts[0].InlineData)
	require.NotEmpty(t, parts[0].Filename)
}
