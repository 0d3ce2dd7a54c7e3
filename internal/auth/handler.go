package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/response"
)

// ContextIdentity is the gin context key holding the verified *Identity.
const ContextIdentity = "identity"

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"fullName" binding:"required"`
	Role     string `json:"role"` // optional, defaults to member
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo       UserStore
	jwt        *JWTService
	cookieName string
	logger     *zap.Logger
}

// NewHandler creates an auth handler. Successful logins also set the token in cookieName.
func NewHandler(repo UserStore, jwt *JWTService, cookieName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, cookieName: cookieName, logger: logger}
}

// IdentityFrom returns the verified identity set by the authentication middleware, or nil.
func IdentityFrom(c *gin.Context) *Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil
	}
	ident, _ := v.(*Identity)
	return ident
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleMember
	switch models.Role(req.Role) {
	case "":
	case models.RoleMember, models.RoleExpert:
		role = models.Role(req.Role)
	default:
		response.BadRequest(c, "invalid role")
		return
	}

	hash, err := HashPassword(req.Password)
	if errors.Is(err, errPasswordTooLong) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), strings.TrimSpace(req.Email), hash, strings.TrimSpace(req.FullName), role)
	if err != nil {
		if apperrors.HTTPStatus(err) == http.StatusConflict {
			response.BadRequest(c, "email already registered")
			return
		}
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.setCookie(c, token)
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			h.logger.Error("lookup user", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.setCookie(c, token)
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Logout handles POST /auth/logout by clearing the token cookie.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	ident := IdentityFrom(c)
	if ident == nil {
		response.Unauthorized(c, "authentication required")
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), ident.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}

// List handles GET /auth/users (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

func (h *Handler) setCookie(c *gin.Context, token string) {
	if h.cookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.jwt.TTL().Seconds()), "/", "", false, true)
}
