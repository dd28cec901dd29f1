package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/acadflow/docflow-api/internal/middleware"
	"github.com/acadflow/docflow-api/internal/models"
)

// claimsFromContext pulls the verified claims the JWT middleware stored, or
// nil on unauthenticated routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.JWTClaims); ok {
		return claims
	}
	return nil
}
