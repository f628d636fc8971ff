package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/aurachat/aura/plugin/ai/tools"
)

func TestConvertMessagesSimpleText(t *testing.T) {
	converted := convertMessages([]ChatMessage{
		{Role: RoleSystem, Parts: []MessagePart{{Kind: PartText, Text: "be terse"}}},
		{Role: RoleUser, Parts: []MessagePart{{Kind: PartText, Text: "hi "}, {Kind: PartText, Text: "there"}}},
	})

	require.Len(t, converted, 2)
	require.Equal(t, "system", converted[0].Role)
	require.Equal(t, "be terse", converted[0].Content)
	require.Equal(t, "hi there", converted[1].Content)
	require.Empty(t, converted[1].MultiContent)
}

func TestConvertMessagesMultiContent(t *testing.T) {
	converted := convertMessages([]ChatMessage{
		{Role: RoleUser, Parts: []MessagePart{
			{Kind: PartText, Text: "what is this"},
			{Kind: PartImageURL, ImageURL: "http://blobs/cat.png"},
		}},
	})

	require.Len(t, converted, 1)
	require.Empty(t, converted[0].Content)
	require.Len(t, converted[0].MultiContent, 2)
	require.Equal(t, openai.ChatMessagePartTypeText, converted[0].MultiContent[0].Type)
	require.Equal(t, openai.ChatMessagePartTypeImageURL, converted[0].MultiContent[1].Type)
	require.Equal(t, "http://blobs/cat.png", converted[0].MultiContent[1].ImageURL.URL)
}

func TestConvertMessagesInlinesDocuments(t *testing.T) {
	payload := []byte("%PDF-1.4 content")
	converted := convertMessages([]ChatMessage{
		{Role: RoleUser, Parts: []MessagePart{
			{Kind: PartText, Text: "summarize"},
			{Kind: PartFile, Filename: "paper.pdf", MimeType: "application/pdf", Data: payload},
		}},
	})

	require.Len(t, converted[0].MultiContent, 2)
	doc := converted[0].MultiContent[1]
	require.Equal(t, openai.ChatMessagePartTypeText, doc.Type)
	require.Contains(t, doc.Text, `name="paper.pdf"`)
	require.Contains(t, doc.Text, base64.StdEncoding.EncodeToString(payload))
}

func TestConvertMessagesToolCallsAndResults(t *testing.T) {
	converted := convertMessages([]ChatMessage{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "web_search", Args: json.RawMessage(`{"query":"go"}`)}}},
		{Role: RoleTool, ToolCallID: "call-1", Parts: []MessagePart{{Kind: PartText, Text: `{"success":true}`}}},
	})

	require.Len(t, converted, 2)
	require.Len(t, converted[0].ToolCalls, 1)
	require.Equal(t, "call-1", converted[0].ToolCalls[0].ID)
	require.Equal(t, "web_search", converted[0].ToolCalls[0].Function.Name)
	require.Equal(t, "call-1", converted[1].ToolCallID)
	require.Equal(t, `{"success":true}`, converted[1].Content)
}

func TestSimpleText(t *testing.T) {
	text, ok := simpleText([]MessagePart{{Kind: PartText, Text: "a"}, {Kind: PartText, Text: "b"}})
	require.True(t, ok)
	require.Equal(t, "ab", text)

	_, ok = simpleText([]MessagePart{{Kind: PartImageURL, ImageURL: "http://x"}})
	require.False(t, ok)
}

func TestConvertToolsSortedByName(t *testing.T) {
	defs := map[string]*tools.Definition{
		"zeta":  {Name: "zeta", Description: "last"},
		"alpha": {Name: "alpha", Description: "first", Parameters: json.RawMessage(`{"type":"object"}`)},
	}

	converted := convertTools(defs)
	require.Len(t, converted, 2)
	require.Equal(t, "alpha", converted[0].Function.Name)
	require.Equal(t, "zeta", converted[1].Function.Name)

	require.Nil(t, convertTools(nil))
}

func TestExecuteCallUnknownTool(t *testing.T) {
	provider, err := NewProvider(DefaultConfig())
	require.NoError(t, err)

	result := provider.executeCall(context.Background(), map[string]*tools.Definition{}, &ToolCall{Name: "missing"})
	require.JSONEq(t, `{"success":false,"error":"unknown tool: missing"}`, string(result))
}

func TestExecuteCallRunsDefinition(t *testing.T) {
	provider, err := NewProvider(DefaultConfig())
	require.NoError(t, err)

	defs := map[string]*tools.Definition{
		"echo": {
			Name: "echo",
			Execute: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
				return args, nil
			},
		},
	}
	result := provider.executeCall(context.Background(), defs, &ToolCall{Name: "echo", Args: json.RawMessage(`{"x":1}`)})

	var envelope tools.ExecutionResult
	require.NoError(t, json.Unmarshal(result, &envelope))
	require.True(t, envelope.Success)
	require.JSONEq(t, `{"x":1}`, string(envelope.Output))
}
