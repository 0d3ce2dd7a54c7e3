package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/response"
)

// RequireRole lets through only verified callers whose token carries one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		ident := auth.IdentityFrom(c)
		if ident == nil {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		if _, ok := allowed[ident.Role]; !ok {
			response.Forbidden(c, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
