package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/core"
	"github.com/restobook/realtime-server/internal/store"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyRole is the context key for storing the freshly resolved role.
	ContextKeyRole = "role"
)

// AuthMiddleware resolves the bearer credential with the same rules as the
// main socket namespace: valid token, known user, not suspended.
func AuthMiddleware(main *core.MainChannel, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := main.Authenticate(c.Request.Context(), bearerToken(c.Request))
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rest auth failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: rejectionReason(err)})
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyRole, user.Role)

		c.Next()
	}
}

// RequireStaff lets only employees and admins through. Must run after AuthMiddleware.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextKeyRole)
		if r, ok := role.(store.Role); !ok || !r.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
