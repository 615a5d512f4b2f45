package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/rcon"
)

// CommandResult is the outcome of Manager.Execute. ID matches the history
// entry recorded for the command.
type CommandResult struct {
	ID         string        `json:"id"`
	Server     string        `json:"server"`
	Command    string        `json:"command"`
	Response   rcon.Response `json:"response"`
	Duration   time.Duration `json:"duration"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// Manager is the registry of sessions, one per configured target.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	metrics  *Metrics
	dial     DialFunc
	sessions *xsync.MapOf[string, *Session]
	logger   zerolog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces rcon.Dial.
func WithDialer(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithMetrics shares a metric set with the caller.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager builds sessions for every configured target. No connection
// is opened until a session is used. eventBus may be nil.
func NewManager(cfg *config.Config, eventBus *events.EventBus, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		dial:     rcon.Dial,
		sessions: xsync.NewMapOf[string, *Session](),
		logger:   log.With().Str("component", "manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics()
	}

	m.Sync(context.Background())

	if eventBus != nil {
		eventBus.Subscribe(events.EventConfigChanged, "manager.configChanged", m.onConfigChanged)
		eventBus.Subscribe(events.EventShutdown, "manager.shutdown", m.onShutdown)
	}

	return m
}

// Metrics returns the manager's metric set.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Sync reconciles sessions with the configuration: new targets get a
// session, removed or changed ones are disconnected and replaced.
func (m *Manager) Sync(ctx context.Context) {
	data := m.cfg.GetRCONData()
	wanted := make(map[string]config.ServerTarget, len(data.Servers))
	for _, t := range data.Servers {
		wanted[t.Name] = t
	}

	var stale []*Session
	m.sessions.Range(func(name string, s *Session) bool {
		t, ok := wanted[name]
		if !ok || t != s.Target() || s.rconCfg.MaxBodySize != data.MaxBodySize {
			m.sessions.Delete(name)
			stale = append(stale, s)
		}
		return true
	})
	for _, s := range stale {
		if err := s.Disconnect(ctx, "configuration changed"); err != nil {
			m.logger.Warn().Err(err).Str("server", s.Name()).Msg("failed to close stale session")
		}
	}

	for name, t := range wanted {
		if _, loaded := m.sessions.LoadOrStore(name,
			newSession(t, data.MaxBodySize, m.dial, m.eventBus, m.metrics)); !loaded {
			m.logger.Debug().Str("server", name).Str("address", t.Address).Bool("enabled", t.Enabled).Msg("session registered")
		}
	}
}

// Session returns the named session.
func (m *Manager) Session(name string) (*Session, error) {
	s, ok := m.sessions.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	return s, nil
}

// Names returns the registered server names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, m.sessions.Size())
	m.sessions.Range(func(name string, _ *Session) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Info returns a snapshot of every session, sorted by name.
func (m *Manager) Info() []SessionInfo {
	info := make([]SessionInfo, 0, m.sessions.Size())
	m.sessions.Range(func(_ string, s *Session) bool {
		info = append(info, s.Info())
		return true
	})
	sort.Slice(info, func(i, j int) bool {
		return info[i].Name < info[j].Name
	})
	return info
}

// Execute runs command on the named server and publishes the outcome on
// the event bus.
func (m *Manager) Execute(ctx context.Context, name, command string) (CommandResult, error) {
	result := CommandResult{
		ID:         uuid.NewString(),
		Server:     name,
		Command:    command,
		ExecutedAt: time.Now(),
	}

	s, err := m.Session(name)
	if err != nil {
		return result, err
	}

	resp, err := s.Execute(ctx, command)
	result.Duration = time.Since(result.ExecutedAt)
	result.Response = resp

	payload := events.CommandPayload{
		ID:           result.ID,
		Server:       name,
		Command:      command,
		ResponseID:   resp.ID,
		ResponseType: resp.Type,
		Body:         resp.Body,
		Duration:     result.Duration,
		ExecutedAt:   result.ExecutedAt,
	}

	logger := m.logger.With().Str("server", name).Str("command", command).Logger()

	if err != nil {
		payload.Error = err.Error()
		m.metrics.commandDone(name, statusOf(err), result.Duration)
		m.emit(events.EventCommandFailed, payload)
		logger.Warn().Err(err).Dur("duration", result.Duration).Msg("command failed")
		return result, err
	}

	m.metrics.commandDone(name, "ok", result.Duration)
	m.emit(events.EventCommandExecuted, payload)
	logger.Debug().
		Int32("response_id", resp.ID).
		Int("body_len", len(resp.Body)).
		Dur("duration", result.Duration).
		Msg("command executed")
	return result, nil
}

// Probe checks that the named server accepts a session. A non-empty
// command is executed as well.
func (m *Manager) Probe(ctx context.Context, name, command string) error {
	if command != "" {
		_, err := m.Execute(ctx, name, command)
		return err
	}
	s, err := m.Session(name)
	if err != nil {
		return err
	}
	return s.Connect(ctx)
}

// Disconnect closes the named session's connection.
func (m *Manager) Disconnect(ctx context.Context, name string) error {
	s, err := m.Session(name)
	if err != nil {
		return err
	}
	return s.Disconnect(ctx, "requested")
}

// CloseIdle disconnects sessions unused for longer than timeout and
// returns how many were closed.
func (m *Manager) CloseIdle(timeout time.Duration) int {
	closed := 0
	m.sessions.Range(func(_ string, s *Session) bool {
		if s.closeIfIdle(timeout) {
			closed++
		}
		return true
	})
	return closed
}

// CloseAll disconnects every session.
func (m *Manager) CloseAll(ctx context.Context) {
	m.sessions.Range(func(name string, s *Session) bool {
		if err := s.Disconnect(ctx, "shutdown"); err != nil {
			m.logger.Warn().Err(err).Str("server", name).Msg("failed to close session")
		}
		return true
	})
	m.logger.Info().Msg("all sessions closed")
}

// ConnectedCount returns the number of open sessions.
func (m *Manager) ConnectedCount() int {
	n := 0
	m.sessions.Range(func(_ string, s *Session) bool {
		if s.Connected() {
			n++
		}
		return true
	})
	return n
}

// Total returns the number of registered sessions.
func (m *Manager) Total() int {
	return m.sessions.Size()
}

func (m *Manager) emit(t events.EventType, payload events.CommandPayload) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(context.Background(), events.Event{Type: t, Source: "manager", Payload: payload})
}

func (m *Manager) onConfigChanged(ctx context.Context, event events.Event) error {
	m.logger.Info().Msg("configuration changed, syncing sessions")
	m.Sync(ctx)
	return nil
}

func (m *Manager) onShutdown(ctx context.Context, event events.Event) error {
	m.CloseAll(ctx)
	return nil
}

// statusOf maps an error to the status label of rcon_commands_total.
func statusOf(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case rcon.IsDecodeError(err):
		return "decode_error"
	case rcon.IsConnectionError(err):
		return "connection_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
