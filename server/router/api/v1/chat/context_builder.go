package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aurachat/aura/server/ai"
	"github.com/aurachat/aura/store"
)

// maxInlineAttachmentBytes bounds how much of a document gets inlined into
// the context.
const maxInlineAttachmentBytes = 256 * 1024

// interruptedToolResult pairs a dangling tool call so the provider always
// sees call/result pairs.
const interruptedToolResult = `{"success":false,"error":"tool execution was interrupted"}`

// ContextBuilder maps persisted message history to the provider-native
// message list under the target model's ability set.
type ContextBuilder struct {
	client *http.Client
}

// NewContextBuilder creates a builder. A nil client gets a default with a
// short timeout.
func NewContextBuilder(client *http.Client) *ContextBuilder {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ContextBuilder{client: client}
}

// Build converts the oldest-first history into provider messages. Attachment
// failures degrade to inline markers; Build itself never fails.
func (b *ContextBuilder) Build(ctx context.Context, history []*store.Message, model *ai.Model) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(history))

	for _, msg := range history {
		switch msg.Role {
		case store.MessageRoleUser:
			if converted := b.buildUserMessage(ctx, msg, model); len(converted.Parts) > 0 {
				out = append(out, converted)
			}
		case store.MessageRoleAssistant:
			out = append(out, b.buildAssistantMessages(msg, model)...)
		default:
			// Tool turns are reconstructed from assistant tool-invocation
			// parts, never read back directly.
		}
	}

	return mergeAdjacent(out)
}

func (b *ContextBuilder) buildUserMessage(ctx context.Context, msg *store.Message, model *ai.Model) ai.ChatMessage {
	converted := ai.ChatMessage{Role: ai.RoleUser}
	for _, part := range msg.Parts {
		switch part.Type {
		case store.PartTypeText:
			if part.Text != "" {
				converted.Parts = append(converted.Parts, ai.MessagePart{Kind: ai.PartText, Text: part.Text})
			}
		case store.PartTypeFile:
			converted.Parts = append(converted.Parts, b.buildFilePart(ctx, &part, model))
		}
	}
	return converted
}

// buildFilePart maps one stored file part under the model's abilities. Any
// failure becomes an inline marker instead of aborting the build.
func (b *ContextBuilder) buildFilePart(ctx context.Context, part *store.ContentPart, model *ai.Model) ai.MessagePart {
	switch {
	case strings.HasPrefix(part.MimeType, "image/") && model.Abilities.Has(ai.AbilityVision):
		if part.URL != "" {
			return ai.MessagePart{Kind: ai.PartImageURL, ImageURL: part.URL}
		}
		if len(part.InlineData) > 0 {
			return ai.MessagePart{
				Kind:     ai.PartImageURL,
				ImageURL: fmt.Sprintf("data:%s;base64,%s", part.MimeType, base64.StdEncoding.EncodeToString(part.InlineData)),
			}
		}
		return fileMarker(part)

	case isTextLike(part.MimeType):
		content, err := b.fetchAttachment(ctx, part)
		if err != nil {
			slog.Warn("failed to inline attachment",
				slog.String("filename", part.Filename),
				slog.String("error", err.Error()))
			return fileMarker(part)
		}
		return ai.MessagePart{
			Kind: ai.PartText,
			Text: fmt.Sprintf("<attachment name=%q>\n%s\n</attachment>", part.Filename, string(content)),
		}

	case part.MimeType == "application/pdf" && model.Abilities.Has(ai.AbilityPDF):
		data, err := b.fetchAttachment(ctx, part)
		if err != nil {
			slog.Warn("failed to fetch pdf attachment",
				slog.String("filename", part.Filename),
				slog.String("error", err.Error()))
			return fileMarker(part)
		}
		return ai.MessagePart{
			Kind:     ai.PartFile,
			Filename: part.Filename,
			MimeType: part.MimeType,
			Data:     data,
		}

	default:
		return fileMarker(part)
	}
}

// buildAssistantMessages splits an assistant turn into its tool call/result
// pairs followed by the assistant content. Reasoning survives only on models
// that accept it.
func (b *ContextBuilder) buildAssistantMessages(msg *store.Message, model *ai.Model) []ai.ChatMessage {
	var out []ai.ChatMessage
	content := ai.ChatMessage{Role: ai.RoleAssistant}

	for _, part := range msg.Parts {
		switch part.Type {
		case store.PartTypeText:
			if part.Text != "" {
				content.Parts = append(content.Parts, ai.MessagePart{Kind: ai.PartText, Text: part.Text})
			}
		case store.PartTypeReasoning:
			if model.Abilities.Has(ai.AbilityReasoning) && part.Text != "" {
				content.Parts = append(content.Parts, ai.MessagePart{Kind: ai.PartReasoning, Text: part.Text})
			}
		case store.PartTypeToolInvocation:
			call := ai.ToolCall{ID: part.ToolCallID, Name: part.ToolName, Args: part.Args}
			result := part.Result
			if part.State != store.ToolStateResult || len(result) == 0 {
				result = json.RawMessage(interruptedToolResult)
			}
			out = append(out,
				ai.ChatMessage{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{call}},
				ai.ChatMessage{
					Role:       ai.RoleTool,
					ToolCallID: part.ToolCallID,
					Parts:      []ai.MessagePart{{Kind: ai.PartText, Text: string(result)}},
				},
			)
		}
	}

	if len(content.Parts) > 0 {
		out = append(out, content)
	}
	return out
}

func (b *ContextBuilder) fetchAttachment(ctx context.Context, part *store.ContentPart) ([]byte, error) {
	if len(part.InlineData) > 0 {
		return part.InlineData, nil
	}
	if part.URL == "" {
		return nil, fmt.Errorf("attachment has no url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, part.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxInlineAttachmentBytes))
}

// mergeAdjacent folds consecutive messages of the same role into one
// provider message. Tool call and tool result messages are never merged.
func mergeAdjacent(messages []ai.ChatMessage) []ai.ChatMessage {
	merged := make([]ai.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Role == msg.Role &&
				len(last.ToolCalls) == 0 && len(msg.ToolCalls) == 0 &&
				last.ToolCallID == "" && msg.ToolCallID == "" {
				last.Parts = append(last.Parts, msg.Parts...)
				continue
			}
		}
		merged = append(merged, msg)
	}
	return merged
}

func fileMarker(part *store.ContentPart) ai.MessagePart {
	return ai.MessagePart{
		Kind: ai.PartText,
		Text: fmt.Sprintf("[Unsupported or unfetchable file: %s (%s)]", part.Filename, part.MimeType),
	}
}

func isTextLike(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/x-yaml",
		"application/javascript", "application/typescript":
		return true
	}
	return false
}
