package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	readiness []func() error
}

// NewHealthHandler 创建健康检查处理器
// checks 为就绪探测项（Mongo/Redis 连通性），可为空
func NewHealthHandler(checks ...func() error) *HealthHandler {
	return &HealthHandler{readiness: checks}
}

// Health 健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready 就绪检查，任一依赖不可用返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	for _, check := range h.readiness {
		if err := check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}
