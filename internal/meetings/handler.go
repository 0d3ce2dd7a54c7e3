package meetings

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/response"
)

// Handler handles meeting HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a meeting handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the meeting routes on rg. requireAuth guards every route
// that needs a verified caller.
func (h *Handler) Register(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.GET("/upcoming", h.ListUpcoming)
	rg.GET("/live", h.GetLive)
	rg.GET("/archived", h.ListArchived)
	rg.GET("/user/registrations", requireAuth, h.ListUserRegistrations)
	rg.GET("/:id", h.GetByID)

	rg.POST("", requireAuth, h.Create)
	rg.PUT("/:id", requireAuth, h.Update)
	rg.DELETE("/:id", requireAuth, h.Delete)
	rg.POST("/:id/live", requireAuth, h.GoLive)

	rg.POST("/:id/register", requireAuth, h.RegisterForMeeting)
	rg.POST("/:id/join", requireAuth, h.Join)
	rg.POST("/:id/leave", requireAuth, h.Leave)
	rg.GET("/:id/attendees", requireAuth, h.GetAttendees)
}

// ParseID reads the :id path parameter. Malformed ids answer 404 like unknown ones.
func ParseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Meeting not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	if apperrors.HTTPStatus(err) >= 500 {
		h.logger.Error("meeting request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, err)
}

func views(list []*models.Meeting) []models.MeetingView {
	out := make([]models.MeetingView, 0, len(list))
	for _, m := range list {
		out = append(out, m.View())
	}
	return out
}

func listFilter(c *gin.Context) ListFilter {
	f := ListFilter{
		Language: c.Query("language"),
		Type:     models.MeetingType(c.Query("type")),
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Page, _ = strconv.Atoi(c.Query("page"))
	return f
}

// ListUpcoming handles GET /api/meetings/upcoming.
func (h *Handler) ListUpcoming(c *gin.Context) {
	list, err := h.svc.ListUpcoming(c.Request.Context(), listFilter(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, views(list))
}

// ListArchived handles GET /api/meetings/archived.
func (h *Handler) ListArchived(c *gin.Context) {
	list, err := h.svc.ListArchived(c.Request.Context(), listFilter(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, views(list))
}

// GetLive handles GET /api/meetings/live. No live meeting answers an empty object.
func (h *Handler) GetLive(c *gin.Context) {
	m, err := h.svc.GetLive(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if m == nil {
		response.OK(c, gin.H{})
		return
	}
	response.OK(c, m.View())
}

// GetByID handles GET /api/meetings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	m, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m.View())
}

// Create handles POST /api/meetings.
func (h *Handler) Create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.Create(c.Request.Context(), in, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, m.View())
}

// Update handles PUT /api/meetings/:id (creator only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var patch UpdateInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.Update(c.Request.Context(), id, patch, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m.View())
}

// Delete handles DELETE /api/meetings/:id (creator only).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, auth.IdentityFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

// GoLive handles POST /api/meetings/:id/live (creator only).
func (h *Handler) GoLive(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	m, err := h.svc.GoLive(c.Request.Context(), id, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m.View())
}

// RegisterForMeeting handles POST /api/meetings/:id/register.
func (h *Handler) RegisterForMeeting(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var in RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.svc.Register(c.Request.Context(), id, in, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, reg)
}

// Join handles POST /api/meetings/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	res, err := h.svc.Join(c.Request.Context(), id, auth.IdentityFrom(c), JoinMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// Leave handles POST /api/meetings/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	a, err := h.svc.Leave(c.Request.Context(), id, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, a)
}

// GetAttendees handles GET /api/meetings/:id/attendees (creator only).
func (h *Handler) GetAttendees(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	list, err := h.svc.GetAttendees(c.Request.Context(), id, auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// ListUserRegistrations handles GET /api/meetings/user/registrations.
func (h *Handler) ListUserRegistrations(c *gin.Context) {
	list, err := h.svc.ListRegistrationsForUser(c.Request.Context(), auth.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}
