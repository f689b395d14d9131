package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// requestLogger logs one line per request, at a level chosen by the status
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zapPath(c),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if user := c.Param("user"); user != "" {
			fields = append(fields, zap.String("user_id", user))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}

// recovery turns a handler panic into a 500 envelope
func recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered",
					zapPath(c),
					zap.String("method", c.Request.Method),
					zap.Any("error", r),
					zap.Stack("stack"))
				Error(c, http.StatusInternalServerError, "internal error", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}

func zapPath(c *gin.Context) zap.Field {
	return zap.String("path", c.Request.URL.Path)
}

func retryAfter(rl *core.RateLimitError) string {
	secs := int(rl.Window.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
