package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"resumind/internal/shared/server/respond"
	"resumind/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 and logs the stack with the
// resume and stage being handled, if any.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"panic":      rec,
				"stack":      string(debug.Stack()),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
			}
			if id := c.GetString(ResumeIDKey); id != "" {
				fields["resume_id"] = id
			}
			if stage := c.GetString(StageKey); stage != "" {
				fields["stage"] = stage
			}
			telemetry.Error("http.panic", fields)
			if c.Writer.Written() {
				// a stream already started; the status line is gone
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
