package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/rconbridge/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": util.AppName,
		"version": util.Version,
	})
}

// handleInfo returns gateway and host information.
func (s *Server) handleInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()

	c.JSON(http.StatusOK, gin.H{
		"service":            util.AppName,
		"version":            util.Version,
		"uptime_sec":         int64(time.Since(s.startedAt).Seconds()),
		"total_servers":      s.manager.Total(),
		"connected_sessions": s.manager.ConnectedCount(),
		"hostname":           sysInfo.Hostname,
		"platform":           sysInfo.Platform,
		"cpu_cores":          sysInfo.CPUCores,
		"events":             s.eventBus.Stats(),
	})
}

// handleMetrics exposes Prometheus metrics.
func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.Status(http.StatusOK)
	s.manager.Metrics().WritePrometheus(c.Writer)
}
