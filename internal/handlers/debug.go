package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"club-chat-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints that only exist when the debug
// flag is set.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/audit-test", auditTest(emitter))
}

// auditTest emits one audit envelope so the pipeline can be verified
// end to end without touching chat traffic.
func auditTest(emitter *telemetry.AuditEmitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}

		requestID := requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), "INFO", "audit self-test", requestID, userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID})
	}
}
