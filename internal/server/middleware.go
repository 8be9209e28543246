package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sheetseries/internal/auth"
	obscontext "github.com/smallbiznis/sheetseries/internal/observability/context"
	"github.com/smallbiznis/sheetseries/internal/observability/logger"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// AdminTokenRequired admits requests carrying the admin bearer token.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if err := s.adminVerifier.Verify(header[len(bearerPrefix):]); err != nil {
			if errors.Is(err, auth.ErrTokenNotConfigured) {
				logger.FromContext(c.Request.Context()).Warn("admin request rejected, no admin token configured")
			}
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "admin", "token")
		c.Request = c.Request.WithContext(ctx)
		logger.FromContext(ctx).Debug("admin request authorized", zap.String("route", c.FullPath()))
		c.Next()
	}
}
