package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/response"
)

// RequirePlatformRoles only lets through tokens carrying one of the given platform roles.
// Course level permissions are checked by the services.
func RequirePlatformRoles(roles ...models.PlatformRole) gin.HandlerFunc {
	allowed := make(map[models.PlatformRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrPermissionDenied, "platform administrator role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
