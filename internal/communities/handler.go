package communities

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/response"
)

// Handler handles community HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a community handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the community routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.POST("", requireAuth, h.Create)
	rg.DELETE("/:id", requireAuth, h.Delete)
	rg.POST("/:id/join", requireAuth, h.Join)
	rg.POST("/:id/leave", requireAuth, h.Leave)
	rg.GET("/:id/messages", requireAuth, h.Messages)
	rg.POST("/:id/messages", requireAuth, h.PostMessage)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Community not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	if apperrors.HTTPStatus(err) >= 500 {
		h.logger.Error("community request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

// List handles GET /api/communities.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /api/communities.
func (h *Handler) Create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	community, err := h.svc.Create(c.Request.Context(), in, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, community)
}

// Join handles POST /api/communities/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	community, err := h.svc.Join(c.Request.Context(), id, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, community)
}

// Leave handles POST /api/communities/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	community, err := h.svc.Leave(c.Request.Context(), id, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, community)
}

// Delete handles DELETE /api/communities/:id (owner only).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, auth.IdentityFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

// Messages handles GET /api/communities/:id/messages.
func (h *Handler) Messages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	list, err := h.svc.Messages(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// PostMessage handles POST /api/communities/:id/messages.
func (h *Handler) PostMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in MessageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.svc.PostMessage(c.Request.Context(), id, in, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, msg)
}
