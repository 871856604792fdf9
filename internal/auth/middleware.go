package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKey is the gin context key holding the resolved *store.Admin.
const AdminKey = "admin"

// RequireAdmin returns gin middleware that rejects requests without a live
// admin session cookie. The resolved admin is stored in the context.
func (s *Service) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(s.cookieName)
		admin, err := s.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Set(AdminKey, admin)
		c.Next()
	}
}
