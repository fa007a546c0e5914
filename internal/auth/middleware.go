package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workshop-tracker-backend/internal/model"
)

const claimsKey = "auth.claims"

// Middleware attaches session claims to the gin context when a valid session
// cookie is present. It never rejects; RequireAuth does that.
func (s *Sessions) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := s.Parse(c); ok {
			c.Set(claimsKey, claims)
		}
		c.Next()
	}
}

// RequireAuth aborts with 401 when the request carries no valid session.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := FromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the session user is an admin.
// RequireAuth must run first.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if claims.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// RequireRoles aborts with 403 unless the session user carries one of the
// given roles. Admins always pass.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if claims.Role != model.RoleAdmin {
			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
				return
			}
		}
		c.Next()
	}
}

// FromContext returns the session claims stored by Middleware.
func FromContext(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
