package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/aurachat/aura/server/router/api/v1/chat"
	"github.com/aurachat/aura/store"
)

func seedThread(t *testing.T, s *APIV1Service, uid string, creatorID int32, title string, pinned bool) *store.Thread {
	t.Helper()
	thread, err := s.Store.CreateThread(context.Background(), &store.Thread{
		UID:       uid,
		CreatorID: creatorID,
		Title:     title,
		Pinned:    pinned,
		CreatedTs: 100,
		UpdatedTs: 100,
		RowStatus: store.RowStatusNormal,
	})
	require.NoError(t, err)
	return thread
}

func threadRequest(method, target, body string, userID int32) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if userID != 0 {
		c.Set(chat.UserIDContextKey, userID)
	}
	return c, rec
}

func withThreadParam(c echo.Context, uid string) echo.Context {
	c.SetPath("/threads/:uid")
	c.SetParamNames("uid")
	c.SetParamValues(uid)
	return c
}

func TestListThreads(t *testing.T) {
	s := newTestService(t)
	seedThread(t, s, "t-1", 1, "Garden planning", false)
	seedThread(t, s, "t-2", 1, "Trip ideas", true)
	seedThread(t, s, "t-3", 2, "Someone else", false)

	c, rec := threadRequest(http.MethodGet, "/api/v1/threads", "", 1)
	require.NoError(t, s.listThreads(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []*threadView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	// Pinned threads sort first.
	require.Equal(t, "t-2", views[0].UID)
	require.Equal(t, "t-1", views[1].UID)
}

func TestListThreadsWithFilter(t *testing.T) {
	s := newTestService(t)
	seedThread(t, s, "t-1", 1, "Garden planning", false)
	seedThread(t, s, "t-2", 1, "Trip ideas", true)

	c, rec := threadRequest(http.MethodGet, "/api/v1/threads?filter=pinned", "", 1)
	require.NoError(t, s.listThreads(c))

	var views []*threadView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "t-2", views[0].UID)
}

func TestListThreadsRejectsInvalidFilter(t *testing.T) {
	s := newTestService(t)
	seedThread(t, s, "t-1", 1, "Garden planning", false)

	c, _ := threadRequest(http.MethodGet, "/api/v1/threads?filter=no_such_field", "", 1)
	err := s.listThreads(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestGetThreadOwnership(t *testing.T) {
	s := newTestService(t)
	seedThread(t, s, "t-1", 2, "Someone else", false)

	c, _ := threadRequest(http.MethodGet, "/api/v1/threads/t-1", "", 1)
	err := s.getThread(withThreadParam(c, "t-1"))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusForbidden, httpErr.Code)

	c, _ = threadRequest(http.MethodGet, "/api/v1/threads/missing", "", 1)
	err = s.getThread(withThreadParam(c, "missing"))
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.Code)

	c, _ = threadRequest(http.MethodGet, "/api/v1/threads/t-1", "", 0)
	err = s.getThread(withThreadParam(c, "t-1"))
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestUpdateThread(t *testing.T) {
	s := newTestService(t)
	seedThread(t, s, "t-1", 1, "untitled", false)

	c, rec := threadRequest(http.MethodPatch, "/api/v1/threads/t-1", `{"title":"Renamed","pinned":true}`, 1)
	require.NoError(t, s.updateThread(withThreadParam(c, "t-1")))

	var view threadView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "Renamed", view.Title)
	require.True(t, view.Pinned)

	c, _ = threadRequest(http.MethodPatch, "/api/v1/threads/t-1", `{}`, 1)
	err := s.updateThread(withThreadParam(c, "t-1"))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestDeleteThread(t *testing.T) {
	s := newTestService(t)
	thread := seedThread(t, s, "t-1", 1, "untitled", false)
	_, err := s.Store.CreateMessage(context.Background(), &store.Message{
		UID:       "u-1",
		ThreadID:  thread.ID,
		Role:      store.MessageRoleUser,
		Parts:     []store.ContentPart{{Type: store.PartTypeText, Text: "hi"}},
		CreatedTs: 100,
		UpdatedTs: 100,
		RowStatus: store.RowStatusNormal,
	})
	require.NoError(t, err)

	c, rec := threadRequest(http.MethodDelete, "/api/v1/threads/t-1", "", 1)
	require.NoError(t, s.deleteThread(withThreadParam(c, "t-1")))
	require.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = threadRequest(http.MethodGet, "/api/v1/threads/t-1", "", 1)
	getErr := s.getThread(withThreadParam(c, "t-1"))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, getErr, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.Code)

	messages, err := s.Store.ListMessages(context.Background(), &store.FindMessage{ThreadID: &thread.ID})
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestListThreadMessagesSkipsArchived(t *testing.T) {
	s := newTestService(t)
	thread := seedThread(t, s, "t-1", 1, "untitled", false)
	for _, m := range []*store.Message{
		{UID: "u-1", Role: store.MessageRoleUser, Parts: []store.ContentPart{{Type: store.PartTypeText, Text: "hi"}}, RowStatus: store.RowStatusNormal},
		{UID: "a-1", Role: store.MessageRoleAssistant, Parts: []store.ContentPart{{Type: store.PartTypeText, Text: "old answer"}}, RowStatus: store.RowStatusArchived},
		{UID: "a-2", Role: store.MessageRoleAssistant, Parts: []store.ContentPart{{Type: store.PartTypeText, Text: "answer"}}, RowStatus: store.RowStatusNormal},
	} {
		m.ThreadID = thread.ID
		m.CreatedTs, m.UpdatedTs = 100, 100
		_, err := s.Store.CreateMessage(context.Background(), m)
		require.NoError(t, err)
	}

	c, rec := threadRequest(http.MethodGet, "/api/v1/threads/t-1/messages", "", 1)
	require.NoError(t, s.listThreadMessages(withThreadParam(c, "t-1")))

	var views []*messageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	require.Equal(t, "u-1", views[0].UID)
	require.Equal(t, "a-2", views[1].UID)
}
