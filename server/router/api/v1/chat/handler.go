package chat

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	serrors "github.com/aurachat/aura/server/internal/errors"
	"github.com/aurachat/aura/server/internal/observability"
	"github.com/aurachat/aura/server/middleware"
	"github.com/aurachat/aura/store"
)

// UserIDContextKey is where the auth middleware stores the caller id.
const UserIDContextKey = "user-id"

const frameBuffer = 256

// turnPayload is the POST body of one chat turn.
type turnPayload struct {
	ThreadID          string       `json:"threadId"`
	Message           messageInput `json:"message"`
	Model             string       `json:"model"`
	EnabledTools      []string     `json:"enabledTools"`
	EditFromMessageID string       `json:"editFromMessageId"`
	EditMode          string       `json:"editMode"`
	ImageSize         string       `json:"imageSize"`
}

type messageInput struct {
	Text  string      `json:"text"`
	Files []fileInput `json:"files"`
}

type fileInput struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Handler exposes the streaming chat endpoints.
type Handler struct {
	store        Store
	orchestrator *Orchestrator
	limiter      *middleware.RateLimiter
}

// NewHandler creates the chat handler.
func NewHandler(s Store, orchestrator *Orchestrator) *Handler {
	return &Handler{
		store:        s,
		orchestrator: orchestrator,
		// One turn every two seconds sustained, short bursts allowed.
		limiter: middleware.NewRateLimiter(rate.Limit(0.5), 5),
	}
}

// RegisterRoutes mounts the chat endpoints on the group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/chat", h.Stream)
	g.GET("/chat", h.Resume)
}

// Stream handles one chat turn as a chunked NDJSON stream.
func (h *Handler) Stream(c echo.Context) error {
	userID, ok := c.Get(UserIDContextKey).(int32)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	if !h.limiter.Allow(strconv.FormatInt(int64(userID), 10)) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many chat requests")
	}

	var payload turnPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if payload.Model == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model is required")
	}
	if payload.EditFromMessageID != "" && payload.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "editFromMessageId requires threadId")
	}

	parts := buildParts(&payload.Message)
	if len(parts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message is empty")
	}

	req := &TurnRequest{
		UserID:       userID,
		ThreadUID:    payload.ThreadID,
		Parts:        parts,
		ModelID:      payload.Model,
		EnabledTools: payload.EnabledTools,
		EditFromUID:  payload.EditFromMessageID,
		EditMode:     EditMode(payload.EditMode),
		ImageSize:    payload.ImageSize,
	}
	if req.EditMode == "" {
		req.EditMode = EditModeNormal
	}

	// Generation is decoupled from the client connection: a disconnect must
	// not abort the turn, so persisted state stays consistent.
	genCtx := context.WithoutCancel(c.Request().Context())

	frames := make(chan *Frame, frameBuffer)
	runErr := make(chan error, 1)
	go func() {
		defer close(frames)
		runErr <- h.orchestrator.Run(genCtx, req, func(f *Frame) {
			frames <- f
		})
	}()

	sink := NewSink(c.Response())
	metrics := observability.GlobalMetrics()
	wrote := false
	for frame := range frames {
		if !wrote {
			c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
			c.Response().WriteHeader(http.StatusOK)
			wrote = true
		}
		// A broken connection makes Send a sticky no-op; keep draining so
		// the generation goroutine never blocks on the frame channel.
		if sink.Send(frame) == nil {
			metrics.RecordFrame()
		}
	}

	if err := <-runErr; err != nil && !wrote {
		return httpError(err)
	}
	return nil
}

// Resume replays the final assistant message of a finished turn.
func (h *Handler) Resume(c echo.Context) error {
	userID, ok := c.Get(UserIDContextKey).(int32)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	chatID := c.QueryParam("chatId")
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chatId is required")
	}

	ctx := c.Request().Context()
	thread, err := h.store.GetThread(ctx, &store.FindThread{UID: &chatID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load thread")
	}
	if thread == nil {
		return echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	if thread.CreatorID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "thread belongs to another user")
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	sink := NewSink(c.Response())

	// A live thread, or one whose last turn is not an assistant message yet,
	// replays nothing.
	if thread.IsLive {
		return nil
	}
	normal := store.RowStatusNormal
	messages, err := h.store.ListMessages(ctx, &store.FindMessage{
		ThreadID:  &thread.ID,
		RowStatus: &normal,
	})
	if err != nil || len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	if last.Role != store.MessageRoleAssistant {
		return nil
	}

	sink.Send(&Frame{
		Type: FrameAppendMessage,
		Message: &MessageView{
			UID:       last.UID,
			Role:      string(last.Role),
			Parts:     last.Parts,
			CreatedTs: last.CreatedTs,
		},
	})
	return nil
}

// buildParts converts the submitted message into stored content parts.
func buildParts(msg *messageInput) []store.ContentPart {
	var parts []store.ContentPart
	if msg.Text != "" {
		parts = append(parts, store.ContentPart{Type: store.PartTypeText, Text: msg.Text})
	}
	for _, f := range msg.Files {
		if f.URL == "" {
			continue
		}
		parts = append(parts, store.ContentPart{
			Type:     store.PartTypeFile,
			MimeType: f.MimeType,
			Filename: f.Filename,
			URL:      f.URL,
		})
	}
	return parts
}

// httpError maps a pipeline error to an HTTP status.
func httpError(err error) error {
	switch serrors.GetCodeFromError(err, serrors.ErrCodeStreamFatal) {
	case serrors.ErrCodeBadRequest:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case serrors.ErrCodeUnauthorized:
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case serrors.ErrCodeForbidden:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case serrors.ErrCodeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case serrors.ErrCodeRateLimitExceeded:
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
