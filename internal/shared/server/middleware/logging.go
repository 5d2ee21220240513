package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"admissions-portal/internal/shared/metrics"
	"admissions-portal/internal/shared/telemetry"
)

// Logging emits a structured log per request and records its latency.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		durationMs := float64(latency.Microseconds()) / 1000.0
		metrics.ObserveRequest(c.Request.Method, c.FullPath(), strconv.Itoa(status), durationMs)

		userID, _ := c.Get(userIDKey)
		isGuest, _ := c.Get("isGuest")
		applicationID, _ := c.Get("applicationId")
		documentID, _ := c.Get("documentId")
		statusTransition := ""
		if raw, ok := c.Get("statusTransition"); ok {
			if s, ok := raw.(string); ok {
				statusTransition = s
			}
		}

		telemetry.Info("request.complete", map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             c.FullPath(),
			"status":            status,
			"status_transition": statusTransition,
			"duration_ms":       durationMs,
			"user_id":           userID,
			"application_id":    applicationID,
			"document_id":       documentID,
			"is_guest":          isGuest,
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
