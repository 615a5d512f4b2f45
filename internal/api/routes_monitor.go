package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/status"
	"github.com/energizer-project/rconbridge/internal/util"
)

const maxHistoryLimit = 500

// handleListServers returns the state of every session.
func (s *Server) handleListServers(c *gin.Context) {
	servers := s.manager.Info()
	c.JSON(http.StatusOK, gin.H{
		"servers":   servers,
		"total":     len(servers),
		"connected": s.manager.ConnectedCount(),
	})
}

// handleGetServer returns the state of one session.
func (s *Server) handleGetServer(c *gin.Context) {
	sess, err := s.manager.Session(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// handleServerStatus runs the read-only "status" command and returns the
// parsed reply.
func (s *Server) handleServerStatus(c *gin.Context) {
	name := c.Param("name")
	result, err := s.manager.Execute(c.Request.Context(), name, status.Command)
	if err != nil {
		c.JSON(executeStatus(err), gin.H{"error": err.Error(), "server": name})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server":      name,
		"status":      status.Parse(result.Response.Body),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// handleHistory returns recent commands, optionally for one server.
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command history is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	name := c.Query("server")
	if name != "" {
		if _, err := s.manager.Session(name); err != nil {
			writeError(c, err)
			return
		}
	}

	entries, err := s.history.Recent(name, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleSystem returns host information and load.
func (s *Server) handleSystem(c *gin.Context) {
	usage, err := util.GetResourceUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"system": util.GetSystemInfo(),
		"usage":  usage,
	})
}

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, server.ErrUnknownServer):
		return http.StatusNotFound
	case errors.Is(err, server.ErrServerDisabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
