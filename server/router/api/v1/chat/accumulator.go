package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aurachat/aura/server/ai"
	serrors "github.com/aurachat/aura/server/internal/errors"
	"github.com/aurachat/aura/storage"
	"github.com/aurachat/aura/store"
)

// uploadSlot receives the outcome of one background file upload. Slots are
// written by upload goroutines and read only after the group is waited on.
type uploadSlot struct {
	partIndex int
	url       string
	err       error
}

// Accumulator folds the provider event stream into an ordered part list and
// forwards one wire frame per event. All part mutation goes through Apply so
// the ordering invariant holds in one place.
type Accumulator struct {
	parts []store.ContentPart
	usage ai.TokenUsage
	emit  func(*Frame)

	blob      storage.BlobStore
	uploads   errgroup.Group
	slots     []*uploadSlot
	uploadCtx context.Context

	reasoningActive bool
	reasoningStart  time.Time
	reasoningIndex  int

	now func() time.Time
}

// NewAccumulator creates an accumulator. Uploads run on uploadCtx, which must
// outlive the stream; emit receives one frame per visible event.
func NewAccumulator(uploadCtx context.Context, blob storage.BlobStore, emit func(*Frame)) *Accumulator {
	if emit == nil {
		emit = func(*Frame) {}
	}
	return &Accumulator{
		emit:      emit,
		blob:      blob,
		uploadCtx: uploadCtx,
		now:       time.Now,
	}
}

// Apply folds one event into the part list. Must be called from a single
// goroutine in event order.
func (a *Accumulator) Apply(event ai.StreamEvent) {
	if event.Type != ai.EventReasoningDelta {
		a.closeReasoning()
	}

	switch event.Type {
	case ai.EventTextDelta:
		a.appendText(store.PartTypeText, event.TextDelta)
		a.emit(&Frame{Type: FrameTextDelta, Delta: event.TextDelta})

	case ai.EventReasoningDelta:
		if !a.reasoningActive {
			a.reasoningActive = true
			a.reasoningStart = a.now()
		}
		a.appendText(store.PartTypeReasoning, event.TextDelta)
		a.reasoningIndex = len(a.parts) - 1
		a.emit(&Frame{Type: FrameReasoningDelta, Delta: event.TextDelta})

	case ai.EventToolCall:
		a.parts = append(a.parts, store.ContentPart{
			Type:       store.PartTypeToolInvocation,
			State:      store.ToolStateCall,
			ToolCallID: event.ToolCall.ID,
			ToolName:   event.ToolCall.Name,
			Args:       event.ToolCall.Args,
			Step:       event.Step,
		})
		a.emit(&Frame{
			Type:       FrameToolCall,
			ToolCallID: event.ToolCall.ID,
			ToolName:   event.ToolCall.Name,
			Args:       event.ToolCall.Args,
		})

	case ai.EventToolResult:
		a.resolveToolCall(event.ToolResult)

	case ai.EventFile:
		a.scheduleUpload(event.File)

	case ai.EventUsage:
		a.usage.PromptTokens += event.Usage.PromptTokens
		a.usage.CompletionTokens += event.Usage.CompletionTokens
		a.usage.ReasoningTokens += event.Usage.ReasoningTokens

	case ai.EventStepFinish:
		// Step boundaries carry no part of their own.
	}
}

// appendText merges into the trailing part of the same kind or starts a new
// one.
func (a *Accumulator) appendText(kind store.PartType, delta string) {
	if n := len(a.parts); n > 0 && a.parts[n-1].Type == kind {
		a.parts[n-1].Text += delta
		return
	}
	a.parts = append(a.parts, store.ContentPart{Type: kind, Text: delta})
}

// resolveToolCall transitions the matching invocation to result state in
// place. An unknown call id is logged, never fatal.
func (a *Accumulator) resolveToolCall(result *ai.ToolResult) {
	for i := range a.parts {
		part := &a.parts[i]
		if part.Type != store.PartTypeToolInvocation || part.ToolCallID != result.ID {
			continue
		}
		if part.State == store.ToolStateResult {
			slog.Warn("duplicate tool result ignored", slog.String("tool_call_id", result.ID))
			return
		}
		part.State = store.ToolStateResult
		part.Result = result.Result
		a.emit(&Frame{
			Type:       FrameToolResult,
			ToolCallID: result.ID,
			ToolName:   result.Name,
			Result:     result.Result,
		})
		return
	}
	slog.Warn("tool result for unknown call id", slog.String("tool_call_id", result.ID))
}

// scheduleUpload appends a file part immediately and resolves its URL from a
// background upload. The stream never waits on storage.
func (a *Accumulator) scheduleUpload(file *ai.FilePayload) {
	filename := file.Filename
	if filename == "" {
		filename = fmt.Sprintf("generated-%s%s", shortuuid.New(), extensionFor(file.MimeType))
	}

	part := store.ContentPart{
		Type:     store.PartTypeFile,
		MimeType: file.MimeType,
		Filename: filename,
	}
	if a.blob == nil {
		// No durable store configured; keep the payload inline.
		part.InlineData = file.Data
		a.parts = append(a.parts, part)
		a.emit(&Frame{Type: FrameFile, MimeType: file.MimeType, Filename: filename})
		return
	}

	a.parts = append(a.parts, part)
	slot := &uploadSlot{partIndex: len(a.parts) - 1}
	a.slots = append(a.slots, slot)

	data := file.Data
	mimeType := file.MimeType
	a.uploads.Go(func() error {
		blob, err := a.blob.Put(a.uploadCtx, filename, mimeType, data)
		if err != nil {
			slot.err = err
			return nil
		}
		slot.url = blob.URL
		return nil
	})

	a.emit(&Frame{Type: FrameFile, MimeType: file.MimeType, Filename: filename})
}

// closeReasoning stamps the elapsed duration on the active reasoning part.
func (a *Accumulator) closeReasoning() {
	if !a.reasoningActive {
		return
	}
	a.reasoningActive = false
	if a.reasoningIndex < len(a.parts) && a.parts[a.reasoningIndex].Type == store.PartTypeReasoning {
		a.parts[a.reasoningIndex].DurationMs = a.now().Sub(a.reasoningStart).Milliseconds()
	}
}

// AppendError appends an error part. Used by the orchestrator for inline
// failures.
func (a *Accumulator) AppendError(code serrors.ErrorCode, message string) {
	a.closeReasoning()
	a.parts = append(a.parts, store.ContentPart{
		Type:         store.PartTypeError,
		Code:         string(code),
		ErrorMessage: message,
	})
}

// Finish waits for outstanding uploads, applies their outcomes and returns
// the final part list. A failed upload leaves the file part in place and
// records one error part after it.
func (a *Accumulator) Finish() []store.ContentPart {
	a.closeReasoning()
	a.uploads.Wait()

	if len(a.slots) == 0 {
		return a.parts
	}

	final := make([]store.ContentPart, 0, len(a.parts)+len(a.slots))
	failed := map[int]*uploadSlot{}
	for _, slot := range a.slots {
		if slot.err != nil {
			failed[slot.partIndex] = slot
			continue
		}
		a.parts[slot.partIndex].URL = slot.url
	}

	for i, part := range a.parts {
		final = append(final, part)
		if slot, ok := failed[i]; ok {
			slog.Warn("file upload failed",
				slog.String("filename", part.Filename),
				slog.String("error", slot.err.Error()))
			final = append(final, store.ContentPart{
				Type:         store.PartTypeError,
				Code:         string(serrors.ErrCodeUploadError),
				ErrorMessage: fmt.Sprintf("failed to store %s", part.Filename),
			})
		}
	}

	a.parts = final
	return a.parts
}

// Parts returns the current part list. Valid snapshots exist only between
// Apply calls.
func (a *Accumulator) Parts() []store.ContentPart {
	return a.parts
}

// Usage returns the summed token usage across all steps.
func (a *Accumulator) Usage() ai.TokenUsage {
	return a.usage
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
