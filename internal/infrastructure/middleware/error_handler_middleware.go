package middleware

import (
	"net/http"

	"livepush/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns errors attached to the gin context into
// JSON responses. AppErrors keep their code and status; anything else
// becomes an opaque 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if appErr := errors.GetAppError(err); appErr != nil {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"context", appErr.Context,
			)
			writeError(c, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Context)
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		writeError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "internal server error", nil)
	}
}

// RecoveryMiddleware converts panics into 500 responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"panic", r,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				writeError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "internal server error", nil)
				c.Abort()
			}
		}()

		c.Next()
	}
}

func writeError(c *gin.Context, status int, code errors.ErrorCode, message string, details map[string]interface{}) {
	body := gin.H{
		"error":   string(code),
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	c.JSON(status, body)
}
