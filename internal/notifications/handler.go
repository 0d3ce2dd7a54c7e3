package notifications

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/meetings"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/response"
)

// CreatorAuthorizer loads a meeting the caller created.
type CreatorAuthorizer interface {
	AuthorizeCreator(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error)
}

// Handler serves email logs to meeting creators.
type Handler struct {
	meetings CreatorAuthorizer
	logs     LogStore
	logger   *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(m CreatorAuthorizer, logs LogStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{meetings: m, logs: logs, logger: logger}
}

// ListByMeeting handles GET /api/meetings/:id/emails (creator only).
func (h *Handler) ListByMeeting(c *gin.Context) {
	id, ok := meetings.ParseID(c)
	if !ok {
		return
	}
	if _, err := h.meetings.AuthorizeCreator(c.Request.Context(), id, auth.IdentityFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.logs.ListByMeeting(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list email logs", zap.String("meeting_id", id.String()), zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
