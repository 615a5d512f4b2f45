package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/rconbridge/internal/rcon"
	"github.com/energizer-project/rconbridge/internal/server"
)

type executeRequest struct {
	Command    string `json:"command" binding:"required"`
	TimeoutSec int    `json:"timeout_sec" binding:"min=0,max=300"`
}

// handleExecute runs one command on a server.
func (s *Server) handleExecute(c *gin.Context) {
	var body executeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if body.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(body.TimeoutSec)*time.Second)
		defer cancel()
	}

	name := c.Param("name")
	result, err := s.manager.Execute(ctx, name, body.Command)
	if err != nil {
		c.JSON(executeStatus(err), gin.H{
			"error":  err.Error(),
			"id":     result.ID,
			"server": name,
		})
		return
	}

	s.logger.Info().
		Str("server", name).
		Str("command", body.Command).
		Str("id", result.ID).
		Msg("API: command executed")

	c.JSON(http.StatusOK, gin.H{
		"id":            result.ID,
		"server":        result.Server,
		"command":       result.Command,
		"response_id":   result.Response.ID,
		"response_type": result.Response.Type,
		"body":          result.Response.Body,
		"duration_ms":   result.Duration.Milliseconds(),
		"executed_at":   result.ExecutedAt,
	})
}

// handleDisconnect closes a server's session.
func (s *Server) handleDisconnect(c *gin.Context) {
	name := c.Param("name")
	if err := s.manager.Disconnect(c.Request.Context(), name); err != nil {
		c.JSON(executeStatus(err), gin.H{"error": err.Error()})
		return
	}

	s.logger.Info().Str("server", name).Msg("API: session disconnected")
	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "server": name})
}

// executeStatus maps exchange errors to HTTP status codes. Failures on the
// game server side are reported as a bad gateway.
func executeStatus(err error) int {
	switch {
	case errors.Is(err, server.ErrUnknownServer), errors.Is(err, server.ErrServerDisabled):
		return statusFor(err)
	case errors.Is(err, server.ErrAuthFailed), rcon.IsConnectionError(err), rcon.IsDecodeError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
