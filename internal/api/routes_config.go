package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/db"
	"github.com/energizer-project/rconbridge/internal/events"
)

const redacted = "********"

// handleGetConfig returns the current configuration with secrets masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	rconData := s.cfg.GetRCONData()
	for i := range rconData.Servers {
		if rconData.Servers[i].Password != "" {
			rconData.Servers[i].Password = redacted
		}
	}

	appData := s.cfg.GetApplicationData()
	if appData.MQTT.Password != "" {
		appData.MQTT.Password = redacted
	}
	if appData.Notify.WebhookURL != "" {
		appData.Notify.WebhookURL = redacted
	}

	c.JSON(http.StatusOK, gin.H{
		"rcon_data":        rconData,
		"application_data": appData,
	})
}

// handleUpsertServer adds or replaces a server target. An omitted password
// keeps the stored one.
func (s *Server) handleUpsertServer(c *gin.Context) {
	var target config.ServerTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, found := s.cfg.Target(target.Name)
	if found && (target.Password == "" || target.Password == redacted) {
		target.Password = existing.Password
	}

	previous := s.cfg.GetRCONData()
	s.cfg.UpsertTarget(target)

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetRCONData(previous)
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Err().Error()})
		return
	}

	if !s.saveAndNotify(c, "rcon_data", target.Name) {
		return
	}

	status := http.StatusCreated
	if found {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"status": "saved", "server": target.Name})
}

// handleRemoveServer deletes a server target.
func (s *Server) handleRemoveServer(c *gin.Context) {
	name := c.Param("name")

	previous := s.cfg.GetRCONData()
	if !s.cfg.RemoveTarget(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown server: " + name})
		return
	}

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetRCONData(previous)
		c.JSON(http.StatusConflict, gin.H{"error": result.Err().Error()})
		return
	}

	if !s.saveAndNotify(c, "rcon_data", name) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed", "server": name})
}

// saveAndNotify persists the configuration and lets the manager resync.
func (s *Server) saveAndNotify(c *gin.Context, section, key string) bool {
	if err := s.cfg.Save(); err != nil {
		s.logger.Error().Err(err).Msg("failed to save config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return false
	}

	event := events.Event{
		Type:    events.EventConfigChanged,
		Source:  "api",
		Payload: events.ConfigChangedPayload{Section: section, Key: key},
	}
	if s.eventBus != nil {
		if err := s.eventBus.EmitSync(c.Request.Context(), event); err != nil {
			s.logger.Warn().Err(err).Msg("config change handler failed")
		}
	} else {
		s.manager.Sync(c.Request.Context())
	}

	s.logger.Info().Str("section", section).Str("key", key).Msg("API: configuration updated")
	return true
}

type createTokenRequest struct {
	Name       string `json:"name" binding:"required"`
	Permission string `json:"permission" binding:"required"`
}

// handleListTokens lists API tokens without their secrets.
func (s *Server) handleListTokens(c *gin.Context) {
	if !s.requireTokens(c) {
		return
	}
	tokens, err := s.tokens.ListTokens()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// handleCreateToken creates a token; the secret is returned only here.
func (s *Server) handleCreateToken(c *gin.Context) {
	if !s.requireTokens(c) {
		return
	}

	var body createTokenRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	perm, err := db.ParsePermission(body.Permission)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret, err := s.tokens.CreateToken(body.Name, perm)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"name":       body.Name,
		"permission": perm,
		"token":      secret,
	})
}

// handleRevokeToken deletes a token by name.
func (s *Server) handleRevokeToken(c *gin.Context) {
	if !s.requireTokens(c) {
		return
	}

	name := c.Param("name")
	if err := s.tokens.RevokeToken(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrTokenNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked", "name": name})
}

func (s *Server) requireTokens(c *gin.Context) bool {
	if s.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token database unavailable"})
		return false
	}
	return true
}
