// Package recordings serves meeting recordings stored in S3.
package recordings

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/meetings"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/response"
	"github.com/fincoach/backend/pkg/storage"
)

// ObjectStore is the recordings bucket.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	ObjectURL(key string) string
}

var _ ObjectStore = (*storage.S3)(nil)

// MeetingAccess checks who may touch a meeting's recording and records its URL.
type MeetingAccess interface {
	AuthorizeCreator(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error)
	AuthorizeParticipant(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error)
	Update(ctx context.Context, id uuid.UUID, patch meetings.UpdateInput, ident *auth.Identity) (*models.Meeting, error)
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	meetings MeetingAccess
	store    ObjectStore
	logger   *zap.Logger
}

// NewHandler creates a recordings handler. A nil store answers 503 on every route.
func NewHandler(m MeetingAccess, store ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{meetings: m, store: store, logger: logger}
}

// Register mounts the recording routes on the meetings group.
func (h *Handler) Register(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.POST("/:id/recording/upload-url", requireAuth, h.UploadURL)
	rg.PUT("/:id/recording", requireAuth, h.Upload)
	rg.GET("/:id/recording/download-url", requireAuth, h.DownloadURL)
	rg.DELETE("/:id/recording", requireAuth, h.Delete)
}

func (h *Handler) available(c *gin.Context) bool {
	if h.store == nil {
		response.ServiceUnavailable(c, "recording storage not configured")
		return false
	}
	return true
}

func (h *Handler) setRecordingURL(c *gin.Context, id uuid.UUID, url string) error {
	_, err := h.meetings.Update(c.Request.Context(), id, meetings.UpdateInput{RecordingURL: &url}, auth.IdentityFrom(c))
	return err
}

// UploadURL handles POST /api/meetings/:id/recording/upload-url (creator only).
// The meeting's recordingUrl points at the object from now on.
func (h *Handler) UploadURL(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := meetings.ParseID(c)
	if !ok {
		return
	}
	if _, err := h.meetings.AuthorizeCreator(c.Request.Context(), id, auth.IdentityFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	key := storage.RecordingKey(id.String())
	url, err := h.store.PresignUpload(c.Request.Context(), key, storage.RecordingContentType)
	if err != nil {
		h.logger.Error("presign recording upload failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to generate upload URL")
		return
	}
	objectURL := h.store.ObjectURL(key)
	if err := h.setRecordingURL(c, id, objectURL); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"uploadUrl":    url,
		"recordingUrl": objectURL,
		"key":          key,
		"contentType":  storage.RecordingContentType,
		"expiresIn":    int(h.store.PresignExpire().Seconds()),
	})
}

// Upload handles PUT /api/meetings/:id/recording (creator only). The request
// body is streamed to the bucket.
func (h *Handler) Upload(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := meetings.ParseID(c)
	if !ok {
		return
	}
	if _, err := h.meetings.AuthorizeCreator(c.Request.Context(), id, auth.IdentityFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	contentType := c.ContentType()
	if !strings.HasPrefix(contentType, "video/") {
		response.BadRequest(c, "recording must be a video")
		return
	}
	key := storage.RecordingKey(id.String())
	url, err := h.store.Upload(c.Request.Context(), key, contentType, c.Request.Body, c.Request.ContentLength)
	if err != nil {
		h.logger.Error("upload recording failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to upload recording")
		return
	}
	if err := h.setRecordingURL(c, id, url); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"recordingUrl": url})
}

// DownloadURL handles GET /api/meetings/:id/recording/download-url (creator or registrant).
func (h *Handler) DownloadURL(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := meetings.ParseID(c)
	if !ok {
		return
	}
	m, err := h.meetings.AuthorizeParticipant(c.Request.Context(), id, auth.IdentityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if m.RecordingURL == "" {
		response.BadRequest(c, "no recording for this meeting")
		return
	}
	key := storage.RecordingKey(id.String())
	exists, err := h.store.Exists(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("check recording failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	if !exists {
		response.NotFound(c, "recording not uploaded yet")
		return
	}
	url, err := h.store.PresignDownload(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("presign recording download failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"downloadUrl": url, "expiresIn": int(h.store.PresignExpire().Seconds())})
}

// Delete handles DELETE /api/meetings/:id/recording (creator only).
func (h *Handler) Delete(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := meetings.ParseID(c)
	if !ok {
		return
	}
	if _, err := h.meetings.AuthorizeCreator(c.Request.Context(), id, auth.IdentityFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.store.Delete(c.Request.Context(), storage.RecordingKey(id.String())); err != nil {
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	if err := h.setRecordingURL(c, id, ""); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
