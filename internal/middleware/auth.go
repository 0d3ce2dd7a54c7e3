package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/pkg/response"
)

// Authenticate resolves the caller from the token cookie or a Bearer header and
// stores the verified identity in the context. Requests without a valid token
// continue anonymously; routes that need a caller add RequireAuth.
func Authenticate(jwtService *auth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && cookieName != "" {
			token, _ = c.Cookie(cookieName)
		}
		if token != "" {
			if claims, err := jwtService.Validate(token); err == nil {
				c.Set(auth.ContextIdentity, claims.Identity())
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests that carry no verified identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.IdentityFrom(c) == nil {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
