package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/flashops/internal/database"
)

// Health 健康检查；未配置审计库时 database 为 disabled
func Health(c *gin.Context) {
	if database.GetDB() == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "disabled", "time": time.Now().Format(time.RFC3339)})
		return
	}
	if err := database.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error(), "time": time.Now().Format(time.RFC3339)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "ok", "time": time.Now().Format(time.RFC3339)})
}
