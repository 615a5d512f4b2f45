package server

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics holds the Prometheus series of the session manager.
type Metrics struct {
	set       *metrics.Set
	connected atomic.Int64
}

// NewMetrics creates an isolated metric set.
func NewMetrics() *Metrics {
	m := &Metrics{set: metrics.NewSet()}
	m.set.NewGauge("rcon_sessions_connected", func() float64 {
		return float64(m.connected.Load())
	})
	return m
}

func commandsName(server, status string) string {
	return fmt.Sprintf("rcon_commands_total{server=%q,status=%q}", server, status)
}

func (m *Metrics) commandDone(server, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(commandsName(server, status)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf("rcon_exchange_duration_seconds{server=%q}", server)).Update(d.Seconds())
}

func (m *Metrics) authFailed(server string) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf("rcon_auth_failures_total{server=%q}", server)).Inc()
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.connected.Add(1)
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.connected.Add(-1)
	}
}

// CommandCount returns rcon_commands_total for server and status.
func (m *Metrics) CommandCount(server, status string) uint64 {
	return m.set.GetOrCreateCounter(commandsName(server, status)).Get()
}

// Connected returns the number of open sessions.
func (m *Metrics) Connected() int64 {
	return m.connected.Load()
}

// WritePrometheus writes the manager series plus Go process metrics.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
