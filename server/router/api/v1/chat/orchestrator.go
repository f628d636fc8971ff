package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/aurachat/aura/plugin/ai/tools"
	"github.com/aurachat/aura/server/ai"
	serrors "github.com/aurachat/aura/server/internal/errors"
	"github.com/aurachat/aura/server/internal/observability"
	"github.com/aurachat/aura/storage"
	"github.com/aurachat/aura/store"
)

// EditMode selects how a turn relates to existing history.
type EditMode string

const (
	EditModeNormal EditMode = "normal"
	EditModeEdit   EditMode = "edit"
	EditModeRetry  EditMode = "retry"
)

// TurnRequest is one validated chat turn.
type TurnRequest struct {
	UserID       int32
	ThreadUID    string
	Parts        []store.ContentPart
	ModelID      string
	EnabledTools []string
	EditFromUID  string
	EditMode     EditMode
	ImageSize    string
	StreamID     string
}

// Orchestrator drives one turn end to end: resolve the thread, build the
// context, generate, and finalize the assistant message.
type Orchestrator struct {
	store     Store
	builder   *ContextBuilder
	registry  *tools.Registry
	generator ai.Generator
	lifecycle *Lifecycle
	blob      storage.BlobStore
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(s Store, builder *ContextBuilder, registry *tools.Registry, generator ai.Generator, lifecycle *Lifecycle, blob storage.BlobStore) *Orchestrator {
	return &Orchestrator{
		store:     s,
		builder:   builder,
		registry:  registry,
		generator: generator,
		lifecycle: lifecycle,
		blob:      blob,
	}
}

// turnState carries the resolved thread and placeholder through the states.
type turnState struct {
	thread    *store.Thread
	assistant *store.Message
	history   []*store.Message
	newThread bool
}

// Run executes the turn, emitting wire frames as it goes. An error return
// means the turn failed before any frame was written and the handler may
// still answer with a plain HTTP status; once frames flow, failures become
// terminal error frames and Run returns nil.
func (o *Orchestrator) Run(ctx context.Context, req *TurnRequest, emit func(*Frame)) error {
	model := ai.LookupModel(req.ModelID)
	if model == nil {
		return serrors.BadRequest("unknown model: " + req.ModelID)
	}
	if req.EditFromUID != "" && req.ThreadUID == "" {
		return serrors.BadRequest("editFromMessageId requires threadId")
	}
	if req.StreamID == "" {
		req.StreamID = shortuuid.New()
	}

	reqCtx := observability.NewRequestContextWithID(slog.Default(), req.StreamID, req.ModelID, req.UserID)
	metrics := observability.GlobalMetrics()
	metrics.RecordStream(req.ModelID)

	state, err := o.resolve(ctx, req)
	if err != nil {
		metrics.RecordFailure(req.ModelID)
		return err
	}

	emit(&Frame{Type: FrameThreadID, ThreadID: state.thread.UID})
	emit(&Frame{Type: FrameModelName, Model: model.ID})

	if err := o.lifecycle.SetLive(ctx, state.thread.ID, req.StreamID); err != nil {
		// The turn can still run; resume just won't see it as live.
		reqCtx.Warn("failed to set live flag", slog.String("error", err.Error()))
	}

	var failure *serrors.ChatError
	var parts []store.ContentPart
	var usage ai.TokenUsage

	if model.IsImageModel() {
		parts, failure = o.generateImage(ctx, req, state, emit)
	} else {
		parts, usage, failure = o.generateText(ctx, req, model, state, emit)
	}

	o.finalize(ctx, reqCtx, req, state, parts, usage, failure, emit)

	if failure != nil {
		metrics.RecordFailure(req.ModelID)
	}
	metrics.RecordDuration(req.ModelID, reqCtx.Duration())
	return nil
}

// resolve loads or creates the thread and the assistant placeholder.
func (o *Orchestrator) resolve(ctx context.Context, req *TurnRequest) (*turnState, error) {
	now := time.Now().Unix()

	if req.ThreadUID == "" {
		thread := &store.Thread{
			UID:       shortuuid.New(),
			CreatorID: req.UserID,
			Title:     titlePlaceholder,
			CreatedTs: now,
			UpdatedTs: now,
			RowStatus: store.RowStatusNormal,
		}
		userMsg := &store.Message{
			UID:       shortuuid.New(),
			Role:      store.MessageRoleUser,
			Parts:     req.Parts,
			CreatedTs: now,
			UpdatedTs: now,
			RowStatus: store.RowStatusNormal,
		}
		assistant := &store.Message{
			UID:       shortuuid.New(),
			Role:      store.MessageRoleAssistant,
			Parts:     []store.ContentPart{},
			CreatedTs: now,
			UpdatedTs: now,
			RowStatus: store.RowStatusNormal,
		}
		thread, err := o.store.CreateThreadWithFirstTurn(ctx, thread, userMsg, assistant)
		if err != nil {
			return nil, serrors.Wrap(err, serrors.ErrCodeStreamFatal, "failed to create thread")
		}
		return &turnState{
			thread:    thread,
			assistant: assistant,
			history:   []*store.Message{userMsg},
			newThread: true,
		}, nil
	}

	thread, err := o.store.GetThread(ctx, &store.FindThread{UID: &req.ThreadUID})
	if err != nil {
		return nil, serrors.Wrap(err, serrors.ErrCodeStreamFatal, "failed to load thread")
	}
	if thread == nil {
		return nil, serrors.NotFound("thread not found")
	}
	if thread.CreatorID != req.UserID {
		return nil, serrors.Forbidden("thread belongs to another user")
	}
	// The live flag has a single writer. A turn against a streaming thread
	// would race it, so it is rejected instead.
	if thread.IsLive {
		return nil, serrors.BadRequest("thread has a response in flight")
	}

	var assistant *store.Message
	switch req.EditMode {
	case EditModeEdit, EditModeRetry:
		if req.EditFromUID == "" {
			return nil, serrors.BadRequest("editMode requires editFromMessageId")
		}
		var overwrite []store.ContentPart
		if req.EditMode == EditModeEdit {
			overwrite = req.Parts
		}
		assistant, err = o.lifecycle.Truncate(ctx, thread.ID, req.EditFromUID, overwrite)
		if err != nil {
			return nil, serrors.Wrap(err, serrors.ErrCodeNotFound, "failed to truncate thread")
		}
	default:
		userMsg := &store.Message{
			UID:       shortuuid.New(),
			ThreadID:  thread.ID,
			Role:      store.MessageRoleUser,
			Parts:     req.Parts,
			CreatedTs: now,
			UpdatedTs: now,
			RowStatus: store.RowStatusNormal,
		}
		if _, err := o.store.CreateMessage(ctx, userMsg); err != nil {
			return nil, serrors.Wrap(err, serrors.ErrCodeStreamFatal, "failed to create user message")
		}
	}

	if assistant == nil {
		assistant = &store.Message{
			UID:       shortuuid.New(),
			ThreadID:  thread.ID,
			Role:      store.MessageRoleAssistant,
			Parts:     []store.ContentPart{},
			CreatedTs: now,
			UpdatedTs: now,
			RowStatus: store.RowStatusNormal,
		}
		if assistant, err = o.store.CreateMessage(ctx, assistant); err != nil {
			return nil, serrors.Wrap(err, serrors.ErrCodeStreamFatal, "failed to create assistant placeholder")
		}
	}

	normal := store.RowStatusNormal
	history, err := o.store.ListMessages(ctx, &store.FindMessage{
		ThreadID:  &thread.ID,
		RowStatus: &normal,
	})
	if err != nil {
		return nil, serrors.Wrap(err, serrors.ErrCodeStreamFatal, "failed to load history")
	}
	// Drop the placeholder itself from the prompt history.
	trimmed := make([]*store.Message, 0, len(history))
	for _, msg := range history {
		if msg.ID != assistant.ID {
			trimmed = append(trimmed, msg)
		}
	}

	return &turnState{thread: thread, assistant: assistant, history: trimmed}, nil
}

// generateText runs the multi-step text generation through the accumulator.
func (o *Orchestrator) generateText(ctx context.Context, req *TurnRequest, model *ai.Model, state *turnState, emit func(*Frame)) ([]store.ContentPart, ai.TokenUsage, *serrors.ChatError) {
	messages := o.builder.Build(ctx, state.history, model)

	toolCtx := &tools.Context{
		UserID:       req.UserID,
		ThreadUID:    state.thread.UID,
		EnabledTools: req.EnabledTools,
	}
	var toolDefs map[string]*tools.Definition
	if model.Abilities.Has(ai.AbilityFunctionCalling) {
		toolDefs = o.registry.Resolve(toolCtx)
	}

	acc := NewAccumulator(ctx, o.blob, emit)

	genCtx, cancel := context.WithCancel(ctx)
	events, errc := o.generator.StreamGenerate(genCtx, &ai.GenerateRequest{
		Model:    model,
		Messages: messages,
		Tools:    toolDefs,
	})

	for event := range events {
		acc.Apply(event)
	}
	// The stream is exhausted; release any lingering provider resources.
	cancel()

	var failure *serrors.ChatError
	if err := <-errc; err != nil {
		failure = serrors.StreamFatal("generation failed", err)
		acc.AppendError(serrors.ErrCodeStreamFatal, "The response was interrupted.")
	}

	return acc.Finish(), acc.Usage(), failure
}

// generateImage runs the image-model branch. The synthetic tool invocation is
// persisted before generation so a reconnecting client sees progress, and it
// is always rewritten, never dropped.
func (o *Orchestrator) generateImage(ctx context.Context, req *TurnRequest, state *turnState, emit func(*Frame)) ([]store.ContentPart, *serrors.ChatError) {
	prompt := latestUserText(state.history)
	if prompt == "" {
		return []store.ContentPart{{
			Type:         store.PartTypeError,
			Code:         string(serrors.ErrCodeBadRequest),
			ErrorMessage: "Image generation needs a text prompt.",
		}}, serrors.BadRequest("image generation needs a text prompt")
	}

	callID := shortuuid.New()
	args, _ := json.Marshal(map[string]string{"prompt": prompt, "size": req.ImageSize})
	invocation := store.ContentPart{
		Type:       store.PartTypeToolInvocation,
		State:      store.ToolStateCall,
		ToolCallID: callID,
		ToolName:   tools.ImageGenerationTool,
		Args:       args,
	}
	parts := []store.ContentPart{invocation}
	if err := o.patchAssistant(ctx, state.assistant.ID, parts, nil); err != nil {
		slog.Warn("failed to persist image call part", slog.String("error", err.Error()))
	}
	emit(&Frame{Type: FrameToolCall, ToolCallID: callID, ToolName: tools.ImageGenerationTool, Args: args})

	urls, err := o.generateAndStoreImages(ctx, req, prompt)
	if err != nil {
		result, _ := json.Marshal(map[string]any{"success": false, "error": err.Error()})
		parts[0].State = store.ToolStateResult
		parts[0].Result = result
		emit(&Frame{Type: FrameToolResult, ToolCallID: callID, ToolName: tools.ImageGenerationTool, Result: result})
		return parts, serrors.ToolError("image generation failed", err)
	}

	result, _ := json.Marshal(map[string]any{"success": true, "urls": urls})
	parts[0].State = store.ToolStateResult
	parts[0].Result = result
	emit(&Frame{Type: FrameToolResult, ToolCallID: callID, ToolName: tools.ImageGenerationTool, Result: result})

	for _, url := range urls {
		parts = append(parts, store.ContentPart{
			Type:     store.PartTypeFile,
			MimeType: "image/png",
			URL:      url,
		})
		emit(&Frame{Type: FrameFile, MimeType: "image/png", URL: url})
	}

	return parts, nil
}

func (o *Orchestrator) generateAndStoreImages(ctx context.Context, req *TurnRequest, prompt string) ([]string, error) {
	model := ai.LookupModel(req.ModelID)
	images, err := o.generator.GenerateImages(ctx, &ai.ImageRequest{
		Model:  model,
		Prompt: prompt,
		Size:   req.ImageSize,
	})
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		name := "generated-" + shortuuid.New() + extensionFor(img.MimeType)
		blob, err := o.blob.Put(ctx, name, img.MimeType, img.Data)
		if err != nil {
			return nil, err
		}
		urls = append(urls, blob.URL)
	}
	return urls, nil
}

// finalize persists the outcome, clears the live flag and emits the terminal
// frame. Partial progress is persisted even on failure.
func (o *Orchestrator) finalize(ctx context.Context, reqCtx *observability.RequestContext, req *TurnRequest, state *turnState, parts []store.ContentPart, usage ai.TokenUsage, failure *serrors.ChatError, emit func(*Frame)) {
	if len(parts) == 0 {
		parts = []store.ContentPart{{
			Type:         store.PartTypeError,
			Code:         string(serrors.ErrCodeNoResponse),
			ErrorMessage: "The model produced no response.",
		}}
		if failure == nil {
			failure = serrors.NoResponse("model produced no parts")
		}
	}

	metadata := &store.MessageMetadata{
		Model:            req.ModelID,
		StreamID:         req.StreamID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		ReasoningTokens:  usage.ReasoningTokens,
	}
	if err := o.patchAssistant(ctx, state.assistant.ID, parts, metadata); err != nil {
		reqCtx.Error("failed to persist assistant message", err)
		if failure == nil {
			failure = serrors.StreamFatal("failed to persist response", err)
		}
	}

	if err := o.lifecycle.ClearLive(ctx, state.thread.ID); err != nil {
		reqCtx.Error("failed to clear live flag", err)
	}

	if failure != nil {
		emit(&Frame{Type: FrameError, Error: &ErrorPayload{
			Code:    string(failure.Code),
			Message: failure.Message,
		}})
	} else {
		if state.newThread {
			o.lifecycle.GenerateTitleAsync(state.thread.ID, latestUserText(state.history))
		}
		emit(&Frame{Type: FrameFinish})
	}

	reqCtx.Info("turn finished",
		slog.String(observability.LogFieldThreadID, state.thread.UID),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		slog.Bool("failed", failure != nil))
}

func (o *Orchestrator) patchAssistant(ctx context.Context, id int32, parts []store.ContentPart, metadata *store.MessageMetadata) error {
	now := time.Now().Unix()
	update := &store.UpdateMessage{
		ID:        id,
		Parts:     &parts,
		UpdatedTs: &now,
	}
	if metadata != nil {
		update.Metadata = metadata
	}
	_, err := o.store.UpdateMessage(ctx, update)
	return err
}

// latestUserText returns the newest user text in the history.
func latestUserText(history []*store.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != store.MessageRoleUser {
			continue
		}
		for _, part := range history[i].Parts {
			if part.Type == store.PartTypeText && part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}
