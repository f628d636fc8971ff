package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aurachat/aura/store"
)

// threadView is the JSON shape of a thread.
type threadView struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Pinned    bool   `json:"pinned"`
	IsLive    bool   `json:"isLive"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

// messageView is the JSON shape of a message.
type messageView struct {
	UID       string                 `json:"uid"`
	Role      string                 `json:"role"`
	Parts     []store.ContentPart    `json:"parts"`
	Metadata  *store.MessageMetadata `json:"metadata,omitempty"`
	Edited    bool                   `json:"edited,omitempty"`
	CreatedTs int64                  `json:"createdTs"`
}

type updateThreadPayload struct {
	Title  *string `json:"title"`
	Pinned *bool   `json:"pinned"`
}

func (s *APIV1Service) registerThreadRoutes(g *echo.Group) {
	g.GET("/threads", s.listThreads)
	g.GET("/threads/:uid", s.getThread)
	g.PATCH("/threads/:uid", s.updateThread)
	g.DELETE("/threads/:uid", s.deleteThread)
	g.GET("/threads/:uid/messages", s.listThreadMessages)
}

// listThreads lists the caller's threads, optionally narrowed by a CEL
// filter expression over title, pinned, is_live and the timestamps.
func (s *APIV1Service) listThreads(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	normal := store.RowStatusNormal
	threads, err := s.Store.ListThreads(c.Request().Context(), &store.FindThread{
		CreatorID: &userID,
		RowStatus: &normal,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list threads")
	}

	if expr := c.QueryParam("filter"); expr != "" {
		filter, err := store.CompileThreadFilter(expr)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid filter: "+err.Error())
		}
		threads, err = store.FilterThreads(threads, filter)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to evaluate filter: "+err.Error())
		}
	}

	views := make([]*threadView, 0, len(threads))
	for _, t := range threads {
		views = append(views, toThreadView(t))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *APIV1Service) getThread(c echo.Context) error {
	thread, httpErr := s.findOwnedThread(c)
	if httpErr != nil {
		return httpErr
	}
	return c.JSON(http.StatusOK, toThreadView(thread))
}

func (s *APIV1Service) updateThread(c echo.Context) error {
	thread, httpErr := s.findOwnedThread(c)
	if httpErr != nil {
		return httpErr
	}

	var payload updateThreadPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if payload.Title == nil && payload.Pinned == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}

	updated, err := s.Store.UpdateThread(c.Request().Context(), &store.UpdateThread{
		ID:     thread.ID,
		Title:  payload.Title,
		Pinned: payload.Pinned,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update thread")
	}
	return c.JSON(http.StatusOK, toThreadView(updated))
}

func (s *APIV1Service) deleteThread(c echo.Context) error {
	thread, httpErr := s.findOwnedThread(c)
	if httpErr != nil {
		return httpErr
	}

	if err := s.Store.DeleteThread(c.Request().Context(), &store.DeleteThread{ID: thread.ID}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete thread")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listThreadMessages(c echo.Context) error {
	thread, httpErr := s.findOwnedThread(c)
	if httpErr != nil {
		return httpErr
	}

	normal := store.RowStatusNormal
	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{
		ThreadID:  &thread.ID,
		RowStatus: &normal,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	views := make([]*messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, &messageView{
			UID:       m.UID,
			Role:      string(m.Role),
			Parts:     m.Parts,
			Metadata:  m.Metadata,
			Edited:    m.Edited,
			CreatedTs: m.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, views)
}

// findOwnedThread loads the thread in the path and enforces ownership.
func (s *APIV1Service) findOwnedThread(c echo.Context) (*store.Thread, error) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	uid := c.Param("uid")
	if uid == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "thread uid is required")
	}

	thread, err := s.Store.GetThread(c.Request().Context(), &store.FindThread{UID: &uid})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load thread")
	}
	if thread == nil || thread.RowStatus != store.RowStatusNormal {
		return nil, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	if thread.CreatorID != userID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "thread belongs to another user")
	}
	return thread, nil
}

func toThreadView(t *store.Thread) *threadView {
	return &threadView{
		UID:       t.UID,
		Title:     t.Title,
		Pinned:    t.Pinned,
		IsLive:    t.IsLive,
		CreatedTs: t.CreatedTs,
		UpdatedTs: t.UpdatedTs,
	}
}
