package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/aurachat/aura/server/ai"
	"github.com/aurachat/aura/store"
)

const (
	titleMaxLen      = 60
	titleGenTimeout  = 30 * time.Second
	titlePlaceholder = "New Chat"
)

// Store is the narrow persistence surface the chat pipeline needs.
type Store interface {
	GetThread(ctx context.Context, find *store.FindThread) (*store.Thread, error)
	UpdateThread(ctx context.Context, update *store.UpdateThread) (*store.Thread, error)
	CreateThreadWithFirstTurn(ctx context.Context, thread *store.Thread, userMsg *store.Message, assistantMsg *store.Message) (*store.Thread, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	GetMessage(ctx context.Context, find *store.FindMessage) (*store.Message, error)
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error)
}

// Lifecycle owns the thread bookkeeping around a stream: the live flag,
// truncation for edit/retry, and the background title job.
type Lifecycle struct {
	store      Store
	generator  ai.Generator
	titleModel string
}

// NewLifecycle creates the lifecycle helper.
func NewLifecycle(s Store, generator ai.Generator, titleModel string) *Lifecycle {
	return &Lifecycle{store: s, generator: generator, titleModel: titleModel}
}

// SetLive marks the thread as streaming with the given stream identity.
func (l *Lifecycle) SetLive(ctx context.Context, threadID int32, streamID string) error {
	_, err := l.store.UpdateThread(ctx, &store.UpdateThread{
		ID: threadID,
		SetLive: &store.ThreadStream{
			StartedTs: time.Now().Unix(),
			StreamID:  streamID,
		},
	})
	return errors.Wrap(err, "failed to set live flag")
}

// ClearLive marks the thread idle. Clearing an already-idle thread is a
// no-op.
func (l *Lifecycle) ClearLive(ctx context.Context, threadID int32) error {
	_, err := l.store.UpdateThread(ctx, &store.UpdateThread{
		ID:        threadID,
		ClearLive: true,
	})
	return errors.Wrap(err, "failed to clear live flag")
}

// Truncate archives every message after the target and prepares the thread
// for a regenerated turn. When the messages being archived start with an
// assistant message, that message is revived as the new placeholder so the
// client keeps a stable assistant id across edits and retries. When
// overwriteParts is non-nil the target message's own parts are replaced (the
// edit case).
func (l *Lifecycle) Truncate(ctx context.Context, threadID int32, targetUID string, overwriteParts []store.ContentPart) (*store.Message, error) {
	normal := store.RowStatusNormal
	history, err := l.store.ListMessages(ctx, &store.FindMessage{
		ThreadID:  &threadID,
		RowStatus: &normal,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list thread messages")
	}

	targetIndex := -1
	for i, msg := range history {
		if msg.UID == targetUID {
			targetIndex = i
			break
		}
	}
	if targetIndex < 0 {
		return nil, errors.Errorf("message %s not found in thread", targetUID)
	}
	target := history[targetIndex]

	now := time.Now().Unix()
	archived := store.RowStatusArchived
	var reuse *store.Message
	for _, msg := range history[targetIndex+1:] {
		if reuse == nil && msg.Role == store.MessageRoleAssistant {
			reuse = msg
			continue
		}
		if _, err := l.store.UpdateMessage(ctx, &store.UpdateMessage{
			ID:        msg.ID,
			RowStatus: &archived,
			UpdatedTs: &now,
		}); err != nil {
			return nil, errors.Wrap(err, "failed to archive message")
		}
	}

	if overwriteParts != nil {
		edited := true
		if _, err := l.store.UpdateMessage(ctx, &store.UpdateMessage{
			ID:        target.ID,
			Parts:     &overwriteParts,
			Edited:    &edited,
			EditedTs:  &now,
			UpdatedTs: &now,
		}); err != nil {
			return nil, errors.Wrap(err, "failed to overwrite edited message")
		}
	}

	if reuse == nil {
		return nil, nil
	}

	// Reset the revived assistant placeholder to an empty part list.
	empty := []store.ContentPart{}
	reset, err := l.store.UpdateMessage(ctx, &store.UpdateMessage{
		ID:        reuse.ID,
		Parts:     &empty,
		Metadata:  &store.MessageMetadata{},
		UpdatedTs: &now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to reset assistant placeholder")
	}
	return reset, nil
}

// GenerateTitleAsync fires the title job for a freshly completed first turn.
// It never blocks the caller and never affects the request outcome.
func (l *Lifecycle) GenerateTitleAsync(threadID int32, userText string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("title generation panicked", slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), titleGenTimeout)
		defer cancel()

		title, err := l.generateTitle(ctx, userText)
		if err != nil {
			slog.Warn("title generation failed",
				slog.Int64("thread_id", int64(threadID)),
				slog.String("error", err.Error()))
			return
		}

		now := time.Now().Unix()
		if _, err := l.store.UpdateThread(ctx, &store.UpdateThread{
			ID:        threadID,
			Title:     &title,
			UpdatedTs: &now,
		}); err != nil {
			slog.Warn("failed to save generated title",
				slog.Int64("thread_id", int64(threadID)),
				slog.String("error", err.Error()))
		}
	}()
}

func (l *Lifecycle) generateTitle(ctx context.Context, userText string) (string, error) {
	raw, err := l.generator.Complete(ctx, l.titleModel, []ai.ChatMessage{
		{
			Role: ai.RoleSystem,
			Parts: []ai.MessagePart{{
				Kind: ai.PartText,
				Text: "Generate a short title for the conversation. Answer with the title only: no quotes, no punctuation at the end, at most six words.",
			}},
		},
		{
			Role:  ai.RoleUser,
			Parts: []ai.MessagePart{{Kind: ai.PartText, Text: userText}},
		},
	})
	if err != nil {
		return "", err
	}

	title := normalizeTitle(raw)
	if title == "" {
		title = fallbackTitle(userText)
	}
	return title, nil
}

// normalizeTitle strips the decorations models like to add and bounds the
// length.
func normalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)

	if len(title) > titleMaxLen {
		runes := []rune(title)
		if len(runes) > titleMaxLen {
			title = string(runes[:titleMaxLen])
		}
	}
	return title
}

// fallbackTitle derives a title from the user's own text.
func fallbackTitle(userText string) string {
	text := strings.TrimSpace(userText)
	if text == "" {
		return titlePlaceholder
	}
	words := strings.Fields(text)
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	if len(title) > titleMaxLen {
		runes := []rune(title)
		if len(runes) > titleMaxLen {
			title = string(runes[:titleMaxLen])
		}
	}
	return title
}
