package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voice-notes-ai/backend/internal/auth"
	"github.com/voice-notes-ai/backend/pkg/response"
)

// ContextTokenID is the key for the validated token's jti in gin context.
const ContextTokenID = "token_id"

// JWT returns a middleware that requires a valid operator bearer token.
// A nil service disables the check.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtService == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextTokenID, claims.ID)
		c.Next()
	}
}
