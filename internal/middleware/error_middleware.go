package middleware

import (
	"huddle-chat/internal/transport/httpdto"
	"huddle-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler reports handler-attached errors that were not already
// translated into a response.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.ErrorfCtx(c.Request.Context(), "request error: %s", err.Error())
		}
		if !c.Writer.Written() {
			c.JSON(c.Writer.Status(), httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
		}
	}
}
