package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/shulehub/discipline-api/internal/middleware"
	"github.com/shulehub/discipline-api/internal/models"
)

// currentClaims extracts the authenticated JWT claims set by the JWT
// middleware. Handlers behind the middleware can assume presence.
func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}

// requestMeta captures caller network details for audit trails.
func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
