package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/shulehub/discipline-api/internal/models"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
	"github.com/shulehub/discipline-api/pkg/response"
)

// RequireRoles allows only the listed roles. Superusers always pass.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Superuser {
			c.Next()
			return
		}
		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequirePermission allows only actors holding the named grant.
func RequirePermission(codename string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.HasPermission(codename) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission "+codename))
			c.Abort()
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
