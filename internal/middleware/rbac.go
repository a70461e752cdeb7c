package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

// RequireRoles lets the request through only when the authenticated user
// holds one of roles. Missing claims yield 401, a wrong role 403.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}
