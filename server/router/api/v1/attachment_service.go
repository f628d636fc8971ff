package v1

import (
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/aurachat/aura/store"
)

// maxUploadBytes bounds one attachment upload.
const maxUploadBytes = 32 << 20

// attachmentView is the JSON shape of an attachment.
type attachmentView struct {
	UID          string `json:"uid"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	CreatedTs    int64  `json:"createdTs"`
}

func (s *APIV1Service) registerAttachmentRoutes(g *echo.Group) {
	g.POST("/attachments", s.createAttachment)
	g.GET("/attachments", s.listAttachments)
	g.DELETE("/attachments/:uid", s.deleteAttachment)
}

// createAttachment stores one multipart file upload in the blob store and
// records it for the caller.
func (s *APIV1Service) createAttachment(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	if int64(len(data)) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	uid := shortuuid.New()
	storedName := uid + filepath.Ext(fileHeader.Filename)
	blob, err := s.Blob.Put(c.Request().Context(), storedName, mimeType, data)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store file")
	}

	attachment, err := s.Store.CreateAttachment(c.Request().Context(), &store.Attachment{
		UID:          uid,
		CreatorID:    userID,
		Filename:     fileHeader.Filename,
		MimeType:     mimeType,
		Size:         blob.Size,
		URL:          blob.URL,
		ThumbnailURL: blob.ThumbnailURL,
		CreatedTs:    time.Now().Unix(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record attachment")
	}

	return c.JSON(http.StatusOK, toAttachmentView(attachment))
}

func (s *APIV1Service) listAttachments(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	attachments, err := s.Store.ListAttachments(c.Request().Context(), &store.FindAttachment{
		CreatorID: &userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list attachments")
	}

	views := make([]*attachmentView, 0, len(attachments))
	for _, a := range attachments {
		views = append(views, toAttachmentView(a))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *APIV1Service) deleteAttachment(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	uid := c.Param("uid")

	attachment, err := s.Store.ListAttachments(c.Request().Context(), &store.FindAttachment{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load attachment")
	}
	if len(attachment) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
	}
	if attachment[0].CreatorID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "attachment belongs to another user")
	}

	if err := s.Blob.Delete(c.Request().Context(), attachment[0].URL); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete file")
	}
	if err := s.Store.DeleteAttachment(c.Request().Context(), &store.DeleteAttachment{ID: attachment[0].ID}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete attachment")
	}
	return c.NoContent(http.StatusNoContent)
}

func toAttachmentView(a *store.Attachment) *attachmentView {
	return &attachmentView{
		UID:          a.UID,
		Filename:     a.Filename,
		MimeType:     a.MimeType,
		Size:         a.Size,
		URL:          a.URL,
		ThumbnailURL: a.ThumbnailURL,
		CreatedTs:    a.CreatedTs,
	}
}
