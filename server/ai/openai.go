package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/aurachat/aura/plugin/ai/tools"
)

// maxGenerationSteps bounds the model->tool->model loop per request.
const maxGenerationSteps = 8

// Config holds the provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		APIKey:     "",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// Provider binds the OpenAI-compatible API to the Generator interface.
type Provider struct {
	client   *openai.Client
	config   *Config
	executor *tools.Executor
}

// NewProvider creates a new provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:   openai.NewClientWithConfig(clientConfig),
		config:   cfg,
		executor: tools.NewExecutor(),
	}, nil
}

// StreamGenerate runs a multi-step generation, executing tool calls between
// steps, and yields every event on the returned channel.
func (p *Provider) StreamGenerate(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		history := convertMessages(req.Messages)
		toolDefs := convertTools(req.Tools)

		for step := 1; step <= maxGenerationSteps; step++ {
			calls, err := p.runStep(ctx, req.Model.ID, history, toolDefs, step, events)
			if err != nil {
				errc <- err
				return
			}
			if !emit(ctx, events, StreamEvent{Type: EventStepFinish, Step: step}) {
				return
			}
			if len(calls) == 0 {
				return
			}
			if step == maxGenerationSteps {
				slog.Warn("generation hit step ceiling with pending tool calls",
					slog.String("model", req.Model.ID),
					slog.Int("pending", len(calls)))
				return
			}

			// Declare the calls, execute them, and feed results back for the
			// next step.
			assistantMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, call := range calls {
				assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Args),
					},
				})
			}
			history = append(history, assistantMsg)

			for _, call := range calls {
				result := p.executeCall(ctx, req.Tools, call)
				if !emit(ctx, events, StreamEvent{
					Type:       EventToolResult,
					ToolResult: &ToolResult{ID: call.ID, Name: call.Name, Result: result},
					Step:       step,
				}) {
					return
				}
				history = append(history, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: call.ID,
					Content:    string(result),
				})
			}
		}
	}()

	return events, errc
}

// runStep streams one completion and returns the tool calls it declared.
func (p *Provider) runStep(ctx context.Context, model string, history []openai.ChatCompletionMessage, toolDefs []openai.Tool, step int, events chan<- StreamEvent) ([]*ToolCall, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: history,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(toolDefs) > 0 {
		req.Tools = toolDefs
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	pending := map[int]*pendingCall{}

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("completion stream broke: %w", err)
		}

		if resp.Usage != nil {
			usage := &TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}
			if resp.Usage.CompletionTokensDetails != nil {
				usage.ReasoningTokens = resp.Usage.CompletionTokensDetails.ReasoningTokens
			}
			if !emit(ctx, events, StreamEvent{Type: EventUsage, Usage: usage, Step: step}) {
				return nil, ctx.Err()
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			if !emit(ctx, events, StreamEvent{Type: EventTextDelta, TextDelta: delta.Content, Step: step}) {
				return nil, ctx.Err()
			}
		}
		if delta.ReasoningContent != "" {
			if !emit(ctx, events, StreamEvent{Type: EventReasoningDelta, TextDelta: delta.ReasoningContent, Step: step}) {
				return nil, ctx.Err()
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &pendingCall{}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args.WriteString(tc.Function.Arguments)
		}
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]*ToolCall, 0, len(pending))
	for _, idx := range indexes {
		pc := pending[idx]
		call := &ToolCall{ID: pc.id, Name: pc.name, Args: []byte(pc.args.String())}
		calls = append(calls, call)
		if !emit(ctx, events, StreamEvent{Type: EventToolCall, ToolCall: call, Step: step}) {
			return nil, ctx.Err()
		}
	}

	return calls, nil
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// executeCall runs one tool call. The result payload always carries the
// structured success/error envelope, so a missing or broken tool degrades to
// an error the model and client both see.
func (p *Provider) executeCall(ctx context.Context, defs map[string]*tools.Definition, call *ToolCall) []byte {
	def, ok := defs[call.Name]
	if !ok {
		return []byte(fmt.Sprintf(`{"success":false,"error":"unknown tool: %s"}`, call.Name))
	}
	return p.executor.Execute(ctx, def, call.Args)
}

// GenerateImages produces images for the prompt via the images API.
func (p *Provider) GenerateImages(ctx context.Context, req *ImageRequest) ([]*GeneratedImage, error) {
	count := req.Count
	if count <= 0 {
		count = 1
	}
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}

	var resp openai.ImageResponse
	err := p.doWithRetry(ctx, func() error {
		var err error
		resp, err = p.client.CreateImage(ctx, openai.ImageRequest{
			Model:          req.Model.ID,
			Prompt:         req.Prompt,
			N:              count,
			Size:           size,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate images: %w", err)
	}

	images := make([]*GeneratedImage, 0, len(resp.Data))
	for _, item := range resp.Data {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode generated image: %w", err)
		}
		images = append(images, &GeneratedImage{Data: data, MimeType: "image/png"})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("empty image response")
	}

	return images, nil
}

// Complete performs a single non-streaming completion.
func (p *Provider) Complete(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	var result string
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: convertMessages(messages),
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}

	return result, nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("provider request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

// convertMessages maps provider-native messages to the SDK form.
func convertMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Args),
				},
			})
		}

		if simple, ok := simpleText(msg.Parts); ok {
			converted.Content = simple
		} else {
			for _, part := range msg.Parts {
				switch part.Kind {
				case PartText:
					converted.MultiContent = append(converted.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				case PartImageURL:
					converted.MultiContent = append(converted.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    part.ImageURL,
							Detail: openai.ImageURLDetailAuto,
						},
					})
				case PartFile:
					// The chat API has no first-class document part. Inline
					// the payload as tagged base64 so pdf-capable models can
					// still read it.
					converted.MultiContent = append(converted.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf("<document name=%q mime_type=%q encoding=\"base64\">\n%s\n</document>",
							part.Filename, part.MimeType, base64.StdEncoding.EncodeToString(part.Data)),
					})
				case PartReasoning:
					converted.ReasoningContent += part.Text
				}
			}
		}
		out = append(out, converted)
	}
	return out
}

// simpleText returns the message content as a plain string when every part is
// text. Plain content keeps tool and system messages in the shape the API
// requires.
func simpleText(parts []MessagePart) (string, bool) {
	var sb strings.Builder
	for _, part := range parts {
		if part.Kind != PartText {
			return "", false
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), true
}

// convertTools maps tool definitions to the SDK form.
func convertTools(defs map[string]*tools.Definition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]openai.Tool, 0, len(defs))
	for _, name := range names {
		def := defs[name]
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// emit sends the event unless the context is done.
func emit(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
