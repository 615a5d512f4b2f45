// Package health runs periodic checks against the configured RCON servers:
// session probes, idle session reaping and the telemetry heartbeat.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/status"
	"github.com/energizer-project/rconbridge/internal/util"
)

// Manager runs periodic health checks.
type Manager struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	serverMgr *server.Manager
	logger    zerolog.Logger
}

// NewManager creates a new health check manager. eventBus may be nil.
func NewManager(cfg *config.Config, eventBus *events.EventBus, serverMgr *server.Manager) *Manager {
	return &Manager{
		cfg:       cfg,
		eventBus:  eventBus,
		serverMgr: serverMgr,
		logger:    util.ComponentLogger("health"),
	}
}

// Start launches every check with its own ticker and blocks until ctx is
// cancelled. Checks with a non-positive interval are skipped.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetApplicationData().Timers

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"probe", timers.HealthCheckIntervalSec, m.probeServers},
		{"idle_sessions", idleCheckInterval(timers.SessionIdleTimeoutSec), m.closeIdleSessions},
		{"heartbeat", timers.HeartbeatIntervalSec, m.heartbeat},
	}

	var wg sync.WaitGroup
	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			m.logger.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	wg.Wait()
	m.logger.Info().Msg("health check manager stopped")
}

// idleCheckInterval reaps idle sessions twice per timeout, at most every
// minute.
func idleCheckInterval(timeoutSec int) int {
	if timeoutSec <= 0 {
		return 0
	}
	return max(1, min(timeoutSec/2, 60))
}

// probeServers checks every enabled server concurrently and emits one
// health_probe event per server.
func (m *Manager) probeServers(ctx context.Context) {
	timers := m.cfg.GetApplicationData().Timers

	var wg sync.WaitGroup
	for _, info := range m.serverMgr.Info() {
		if !info.Enabled {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.emit(ctx, events.EventHealthProbe, "health", m.probe(ctx, info.Name, timers.ProbeCommand))
		}()
	}
	wg.Wait()
}

// probe runs one probe. An empty command only checks that a session can
// be opened and authenticated. A "status" probe also reports the map and
// the number of human players.
func (m *Manager) probe(ctx context.Context, name, command string) events.HealthPayload {
	start := time.Now()

	var (
		err  error
		body string
	)
	if command == "" {
		err = m.serverMgr.Probe(ctx, name, "")
	} else {
		var res server.CommandResult
		res, err = m.serverMgr.Execute(ctx, name, command)
		body = res.Response.Body
	}

	result := events.HealthPayload{
		Server:    name,
		Healthy:   err == nil,
		Latency:   time.Since(start),
		CheckedAt: start,
	}
	if err == nil && command == status.Command {
		info := status.Parse(body)
		result.Map = info.Map
		result.Players = info.Humans
	}
	if err != nil {
		result.Error = err.Error()
		if ctx.Err() == nil {
			m.logger.Warn().Err(err).Str("server", name).Msg("health probe failed")
		}
	} else {
		m.logger.Trace().Str("server", name).Dur("latency", result.Latency).Msg("health probe ok")
	}
	return result
}

func (m *Manager) closeIdleSessions(_ context.Context) {
	timeout := time.Duration(m.cfg.GetApplicationData().Timers.SessionIdleTimeoutSec) * time.Second
	if timeout <= 0 {
		return
	}
	if closed := m.serverMgr.CloseIdle(timeout); closed > 0 {
		m.logger.Info().Int("closed", closed).Msg("closed idle sessions")
	}
}

// heartbeat publishes gateway status through MQTT.
func (m *Manager) heartbeat(ctx context.Context) {
	m.emit(ctx, events.EventNotifyMQTT, "heartbeat", heartbeatPayload(m.serverMgr))
}

func heartbeatPayload(serverMgr *server.Manager) events.NotifyPayload {
	return events.NotifyPayload{
		Topic: "status",
		Data: map[string]interface{}{
			"type":          "heartbeat",
			"total_servers": serverMgr.Total(),
			"connected":     serverMgr.ConnectedCount(),
			"timestamp":     time.Now().Unix(),
		},
	}
}

func (m *Manager) emit(ctx context.Context, eventType events.EventType, source string, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(ctx, events.Event{
		Type:    eventType,
		Source:  source,
		Payload: payload,
	})
}
