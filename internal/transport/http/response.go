package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// Response is the envelope of every API answer
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Success writes a 200 envelope
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Msg:  "ok",
		Data: data,
	})
}

// Error writes an error envelope with the given status
func Error(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Response{
		Code: status,
		Msg:  msg,
		Data: data,
	})
}

// StatusFor maps the core error taxonomy onto HTTP status codes
func StatusFor(err error) int {
	var (
		validation *core.ValidationError
		notFound   *core.NotFoundError
		invalid    *core.InvalidStateError
		limited    *core.RateLimitError
		provider   *core.ProviderError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusConflict
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &provider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err using StatusFor. Internal failures are logged and answered
// with a generic message; data is still attached so a failed run stays visible.
func (h *Handler) fail(c *gin.Context, err error, data any) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("user_id", c.Param("user")),
			zap.Error(err))
		msg = "internal error"
	}
	if status == http.StatusTooManyRequests {
		var rl *core.RateLimitError
		if errors.As(err, &rl) && rl.Window > 0 {
			c.Header("Retry-After", retryAfter(rl))
		}
	}
	Error(c, status, msg, data)
}
