package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stockflow/backend/internal/infrastructure/auth"
	"github.com/stockflow/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Trigger auth context keys
const (
	TriggerClaimsKey  = "trigger_claims"
	TriggerSubjectKey = "trigger_subject"
	AuthHeaderKey     = "Authorization"
	BearerPrefix      = "Bearer "
)

// TriggerAuth requires a valid trigger token in the Authorization header. When the token
// service has no secret the protected routes answer 404, so a deployment without a secret
// does not expose them.
func TriggerAuth(tokens *auth.TriggerTokenService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if !tokens.Enabled() {
			abortWithError(c, dto.ErrCodeTriggerDisabled, "Not found")
			return
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			abortWithError(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if tokenString == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing token")
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("Trigger authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString("request_id")),
			)
			if errors.Is(err, auth.ErrExpiredToken) {
				abortWithError(c, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		c.Set(TriggerClaimsKey, claims)
		c.Set(TriggerSubjectKey, claims.Subject)
		c.Next()
	}
}

// GetTriggerSubject returns the subject of the authenticated trigger token
func GetTriggerSubject(c *gin.Context) string {
	return c.GetString(TriggerSubjectKey)
}

func abortWithError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(
		code, message, c.GetString("request_id"),
	))
}
