package auth

import (
	"github.com/gin-gonic/gin"
)

// ContextUserID is the key for user ID in gin context
const ContextUserID = "user_id"

// DefaultUser attaches a fixed user id to every request. The API has a
// single seeded account; a real login flow would replace this middleware.
func DefaultUser(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// GetUserID retrieves the user ID from the gin context, 0 when unset
func GetUserID(c *gin.Context) int64 {
	if userID, exists := c.Get(ContextUserID); exists {
		if id, ok := userID.(int64); ok {
			return id
		}
	}
	return 0
}
