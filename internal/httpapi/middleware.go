package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Haleralex/eventbus/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns a request id from the incoming header, or
// generates one, and stamps it on the response header and the
// request's logging context, mirroring the teacher's
// middleware/request_id.go.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithCorrelationID(c.Request.Context(), id))
		c.Set(requestIDHeader, id)
		c.Next()
	}
}

// Logging logs one structured line per request after it completes,
// the same fields (method, path, status, latency) the teacher's
// middleware/logging.go records.
func Logging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Recovery catches panics in downstream handlers, logs the stack, and
// responds 500 instead of crashing the admin server — adapted from
// the teacher's middleware/recovery.go.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in http handler",
					"error", r,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, apiResponse{
					Success: false,
					Error:   "internal server error",
				})
			}
		}()
		c.Next()
	}
}
