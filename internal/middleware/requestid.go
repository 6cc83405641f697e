package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation ID between the frontend, any
	// proxies, and this service.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key holding the request ID.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with a correlation ID. An inbound
// X-Request-ID is reused so retries keep their identity across hops; otherwise
// a fresh UUID is generated. The ID is stored in the context for the request
// logger and echoed on the response so callers can quote it when reporting a
// failed save.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
