package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// AuditRecorder persists mutation trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Audit records action on resource once the handler has answered with a
// non-error status. A nil recorder disables the trail.
func Audit(recorder AuditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 || c.IsAborted() {
			return
		}

		entry := models.AuditEntry{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
		}
		if value, ok := c.Get(ContextUserKey); ok {
			if claims, ok := value.(*models.JWTClaims); ok {
				userID := claims.UserID
				entry.UserID = &userID
			}
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}

		details := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if studentID := c.Param("studentId"); studentID != "" {
			details["student_id"] = studentID
		}
		entry.Details, _ = json.Marshal(details)

		recorder.Record(c.Request.Context(), entry)
	}
}
