package middleware

import (
	"net/http"
	"time"

	"eventhub/internal/shared/utils/response"
	"eventhub/pkg/idempotency"
	"eventhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by the gateway middlewares
const (
	CorrelationIDKey = "correlation_id"
	SessionIDKey     = "session_id"
	UserIDKey        = "user_id"
	UserRolesKey     = "user_roles"

	CorrelationIDHeader = "X-Correlation-ID"
	SessionIDHeader     = "X-Session-ID"
)

// RequestLogger logs every request once it has been served
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
	}
}

// CorrelationID echoes the caller's correlation id or issues a new one
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = idempotency.NewCorrelationID()
		}
		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// RequireSessionID rejects requests without a well formed X-Session-ID
func RequireSessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionIDHeader)
		if id == "" {
			response.RespondJSON(c, "error", http.StatusBadRequest, "X-Session-ID header is required", nil, nil)
			c.Abort()
			return
		}
		if _, err := uuid.Parse(id); err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "X-Session-ID must be a session id issued by POST /session", nil, nil)
			c.Abort()
			return
		}
		c.Set(SessionIDKey, id)
		c.Next()
	}
}

// RequireRoles checks the session user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(UserRolesKey)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "You are not logged in.", nil, gin.H{
				"redirect": "/login",
			})
			c.Abort()
			return
		}

		roles, _ := value.([]string)
		for _, have := range roles {
			for _, want := range requiredRoles {
				if have == want {
					c.Next()
					return
				}
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}
