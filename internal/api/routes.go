package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/gt06/registry"
)

// RegisterReadOnlyRoutes registers the session read-only query routes
// (no auth — operator-internal use only).
func RegisterReadOnlyRoutes(r *gin.Engine, reg *registry.Registry, logger *zap.Logger) {
	if r == nil || reg == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewReadOnlyHandler(reg, logger)

	admin := r.Group("/admin")
	admin.GET("/sessions", handler.ListSessions)
	admin.GET("/sessions/:imei", handler.GetSessionByIMEI)

	logger.Info("admin readonly routes registered", zap.Int("endpoints", 2))
}
