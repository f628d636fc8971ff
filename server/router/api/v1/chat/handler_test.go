package chat

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/aurachat/aura/server/ai"
	"github.com/aurachat/aura/store"
)

func newTestHandler(fs *fakeStore, gen *fakeGenerator) *Handler {
	return NewHandler(fs, newTestOrchestrator(fs, gen, &fakeBlobStore{}))
}

func newChatRequest(t *testing.T, payload any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return c, rec
}

func decodeFrames(t *testing.T, body string) []*Frame {
	t.Helper()
	var frames []*Frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f Frame
		require.NoError(t, json.Unmarshal([]byte(line), &f))
		frames = append(frames, &f)
	}
	return frames
}

func requireHTTPError(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, status, httpErr.Code)
}

func TestStreamRequiresAuth(t *testing.T) {
	h := newTestHandler(newFakeStore(), &fakeGenerator{})
	c, _ := newChatRequest(t, turnPayload{Model: "gpt-4o"})

	requireHTTPError(t, h.Stream(c), http.StatusUnauthorized)
}

func TestStreamValidatesPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload turnPayload
	}{
		{"missing model", turnPayload{Message: messageInput{Text: "hi"}}},
		{"edit without thread", turnPayload{
			Model:             "gpt-4o",
			Message:           messageInput{Text: "hi"},
			EditFromMessageID: "u-1",
		}},
		{"empty message", turnPayload{Model: "gpt-4o"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(newFakeStore(), &fakeGenerator{})
			c, _ := newChatRequest(t, tt.payload)
			c.Set(UserIDContextKey, int32(1))

			requireHTTPError(t, h.Stream(c), http.StatusBadRequest)
		})
	}
}

func TestStreamWritesNDJSONFrames(t *testing.T) {
	fs := newFakeStore()
	gen := &fakeGenerator{
		events: []ai.StreamEvent{
			{Type: ai.EventTextDelta, TextDelta: "hello "},
			{Type: ai.EventTextDelta, TextDelta: "there"},
		},
		completion: "Greetings Thread",
	}
	h := newTestHandler(fs, gen)

	c, rec := newChatRequest(t, turnPayload{
		Model:   "gpt-4o",
		Message: messageInput{Text: "hi"},
	})
	c.Set(UserIDContextKey, int32(1))

	require.NoError(t, h.Stream(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/x-ndjson", rec.Header().Get(echo.HeaderContentType))

	frames := decodeFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)
	require.Equal(t, FrameThreadID, frames[0].Type)
	require.NotEmpty(t, frames[0].ThreadID)
	require.Equal(t, FrameFinish, frames[len(frames)-1].Type)
}

func TestStreamRateLimitsPerUser(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs, &fakeGenerator{})

	var last error
	for i := 0; i < 6; i++ {
		// An invalid payload keeps each attempt cheap; the limiter is
		// consulted before validation.
		c, _ := newChatRequest(t, turnPayload{})
		c.Set(UserIDContextKey, int32(7))
		last = h.Stream(c)
	}
	requireHTTPError(t, last, http.StatusTooManyRequests)

	// A different user has an independent budget.
	c, _ := newChatRequest(t, turnPayload{})
	c.Set(UserIDContextKey, int32(8))
	requireHTTPError(t, h.Stream(c), http.StatusBadRequest)
}

func newResumeRequest(chatID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat?chatId="+chatID, nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return c, rec
}

func TestResumeValidation(t *testing.T) {
	fs := newFakeStore()
	fs.addThread(&store.Thread{UID: "t-1", CreatorID: 2})
	h := newTestHandler(fs, &fakeGenerator{})

	c, _ := newResumeRequest("t-1")
	requireHTTPError(t, h.Resume(c), http.StatusUnauthorized)

	c, _ = newResumeRequest("")
	c.Set(UserIDContextKey, int32(1))
	requireHTTPError(t, h.Resume(c), http.StatusBadRequest)

	c, _ = newResumeRequest("missing")
	c.Set(UserIDContextKey, int32(1))
	requireHTTPError(t, h.Resume(c), http.StatusNotFound)

	c, _ = newResumeRequest("t-1")
	c.Set(UserIDContextKey, int32(1))
	requireHTTPError(t, h.Resume(c), http.StatusForbidden)
}

func TestResumeLiveThreadReplaysNothing(t *testing.T) {
	fs := newFakeStore()
	fs.addThread(&store.Thread{UID: "t-1", CreatorID: 1, IsLive: true})
	h := newTestHandler(fs, &fakeGenerator{})

	c, rec := newResumeRequest("t-1")
	c.Set(UserIDContextKey, int32(1))

	require.NoError(t, h.Resume(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeFrames(t, rec.Body.String()))
}

func TestResumeReplaysFinalAssistantMessage(t *testing.T) {
	fs := newFakeStore()
	thread := fs.addThread(&store.Thread{UID: "t-1", CreatorID: 1})
	fs.addMessage(&store.Message{
		UID:      "u-1",
		ThreadID: thread.ID,
		Role:     store.MessageRoleUser,
		Parts:    textParts("hi"),
	})
	fs.addMessage(&store.Message{
		UID:      "a-1",
		ThreadID: thread.ID,
		Role:     store.MessageRoleAssistant,
		Parts:    textParts("hello there"),
	})
	h := newTestHandler(fs, &fakeGenerator{})

	c, rec := newResumeRequest("t-1")
	c.Set(UserIDContextKey, int32(1))

	require.NoError(t, h.Resume(c))

	frames := decodeFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	require.Equal(t, FrameAppendMessage, frames[0].Type)
	require.Equal(t, "a-1", frames[0].Message.UID)
	require.Equal(t, "assistant", frames[0].Message.Role)
	require.Equal(t, "hello there", frames[0].Message.Parts[0].Text)
}

func TestResumeLastMessageNotAssistant(t *testing.T) {
	fs := newFakeStore()
	thread := fs.addThread(&store.Thread{UID: "t-1", CreatorID: 1})
	fs.addMessage(&store.Message{
		UID:      "u-1",
		ThreadID: thread.ID,
		Role:     store.MessageRoleUser,
		Parts:    textParts("hi"),
	})
	h := newTestHandler(fs, &fakeGenerator{})

	c, rec := newResumeRequest("t-1")
	c.Set(UserIDContextKey, int32(1))

	require.NoError(t, h.Resume(c))
	require.Empty(t, decodeFrames(t, rec.Body.String()))
}
