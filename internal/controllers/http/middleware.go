package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/domain"
)

const principalKey = "principal"

// Authenticate trusts the identity headers stamped by the verifying edge
// (authentication itself is an external collaborator). The role claim is
// normalized to the canonical enum here, once.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.GetHeader("X-User-Id"), 10, 64)
		if err != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid identity"})
			return
		}

		role, ok := domain.ParseRole(c.GetHeader("X-User-Role"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid role"})
			return
		}

		c.Set(principalKey, domain.Principal{UserID: userID, Role: role})
		c.Next()
	}
}

func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if principalFrom(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) domain.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(domain.Principal)
	return principal
}
