// Package server keeps one RCON session per configured game server and
// runs commands through them for the API, the CLI console and the
// scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/rcon"
)

var (
	// ErrAuthFailed is returned when the server rejects the rcon password.
	ErrAuthFailed = errors.New("rcon authentication failed")
	// ErrUnknownServer is returned for names missing from the configuration.
	ErrUnknownServer = errors.New("unknown server")
	// ErrServerDisabled is returned for targets with enabled set to false.
	ErrServerDisabled = errors.New("server disabled")
)

// DialFunc opens a client for cfg. Tests replace it to inject fakes.
type DialFunc func(cfg rcon.Config) (*rcon.Client, error)

// SessionInfo is a snapshot of a session for the API and the CLI.
type SessionInfo struct {
	Name        string              `json:"name"`
	Address     string              `json:"address"`
	Enabled     bool                `json:"enabled"`
	State       events.SessionState `json:"state"`
	ConnectedAt *time.Time          `json:"connected_at,omitempty"`
	LastUsed    *time.Time          `json:"last_used,omitempty"`
	Commands    uint64              `json:"commands"`
	Failures    uint64              `json:"failures"`
	LastError   string              `json:"last_error,omitempty"`
}

// Session owns at most one authenticated client for one target. Exchanges
// are serialized: the client is not safe for concurrent use.
type Session struct {
	target  config.ServerTarget
	rconCfg rcon.Config
	dial    DialFunc
	bus     *events.EventBus
	metrics *Metrics
	logger  zerolog.Logger

	// sem is held for the whole of an exchange, including dial and
	// authentication. A channel lets waiters give up on ctx.
	sem    chan struct{}
	client *rcon.Client
	nextID int32

	mu          sync.RWMutex
	state       events.SessionState
	connectedAt time.Time
	lastUsed    time.Time
	commands    uint64
	failures    uint64
	lastError   string
}

func newSession(target config.ServerTarget, maxBody int, dial DialFunc, bus *events.EventBus, m *Metrics) *Session {
	cfg := target.RCONConfig()
	cfg.MaxBodySize = maxBody
	return &Session{
		target:  target,
		rconCfg: cfg,
		dial:    dial,
		bus:     bus,
		metrics: m,
		logger: log.With().
			Str("component", "session").
			Str("server", target.Name).
			Str("address", target.Address).
			Logger(),
		sem: make(chan struct{}, 1),
	}
}

// Name returns the configured server name.
func (s *Session) Name() string {
	return s.target.Name
}

// Target returns the configuration the session was built from.
func (s *Session) Target() config.ServerTarget {
	return s.target
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.sem
}

// Execute runs one command, dialing and authenticating first when the
// session has no client. A failed exchange drops the client so the next
// call dials again; nothing is retried within a call.
func (s *Session) Execute(ctx context.Context, command string) (rcon.Response, error) {
	if !s.target.Enabled {
		return rcon.Response{}, fmt.Errorf("%w: %s", ErrServerDisabled, s.target.Name)
	}
	if err := s.acquire(ctx); err != nil {
		return rcon.Response{}, err
	}
	defer s.release()

	if err := s.ensureConnected(ctx); err != nil {
		s.recordFailure(err)
		return rcon.Response{}, err
	}

	req := rcon.NewCommand(s.allocateID(), command)
	resp, err := s.client.Execute(req)
	if err != nil {
		// The framing position is unknown after any failed exchange.
		s.dropClient(err.Error())
		s.recordFailure(err)
		return rcon.Response{}, err
	}

	s.mu.Lock()
	s.commands++
	s.lastUsed = time.Now()
	s.lastError = ""
	s.mu.Unlock()

	if resp.ID != req.ID {
		s.logger.Debug().Int32("request_id", req.ID).Int32("response_id", resp.ID).Msg("response id differs from request id")
	}
	return resp, nil
}

// Connect dials and authenticates unless a client is already open.
func (s *Session) Connect(ctx context.Context) error {
	if !s.target.Enabled {
		return fmt.Errorf("%w: %s", ErrServerDisabled, s.target.Name)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.ensureConnected(ctx); err != nil {
		s.recordFailure(err)
		return err
	}
	return nil
}

// ensureConnected must be called with sem held.
func (s *Session) ensureConnected(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := s.dial(s.rconCfg)
	if err != nil {
		return err
	}

	auth, err := client.Authenticate(rcon.NewAuthRequest(s.target.Password))
	if err != nil {
		client.Close()
		return err
	}
	if !auth.IsSuccess() {
		client.Close()
		s.setState(events.SessionAuthFailed)
		s.metrics.authFailed(s.target.Name)
		s.emit(events.EventAuthFailed, "password rejected")
		return fmt.Errorf("%w: %s", ErrAuthFailed, s.target.Name)
	}

	s.client = client
	s.nextID = 0

	s.mu.Lock()
	s.state = events.SessionConnected
	s.connectedAt = time.Now()
	s.lastUsed = s.connectedAt
	s.mu.Unlock()

	s.metrics.sessionOpened()
	s.logger.Info().Msg("rcon session opened")
	s.emit(events.EventSessionOpened, "")
	return nil
}

// allocateID returns the next request id, staying positive so it can never
// collide with the -1 auth failure marker.
func (s *Session) allocateID() int32 {
	if s.nextID == math.MaxInt32 {
		s.nextID = 0
	}
	s.nextID++
	return s.nextID
}

// dropClient must be called with sem held.
func (s *Session) dropClient(reason string) {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close failed")
	}
	s.client = nil
	s.setState(events.SessionDisconnected)
	s.metrics.sessionClosed()
	s.logger.Info().Str("reason", reason).Msg("rcon session closed")
	s.emit(events.EventSessionClosed, reason)
}

// Disconnect closes the client once any running exchange has finished.
func (s *Session) Disconnect(ctx context.Context, reason string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.dropClient(reason)
	return nil
}

// closeIfIdle disconnects when the session has been unused for longer than
// timeout. A session busy with an exchange is not idle.
func (s *Session) closeIfIdle(timeout time.Duration) bool {
	select {
	case s.sem <- struct{}{}:
	default:
		return false
	}
	defer s.release()

	if s.client == nil {
		return false
	}
	s.mu.RLock()
	idle := time.Since(s.lastUsed)
	s.mu.RUnlock()
	if idle < timeout {
		return false
	}
	s.dropClient("idle")
	return true
}

// Connected reports whether the session holds an open client.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == events.SessionConnected
}

// Info returns a snapshot without waiting for a running exchange.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		Name:      s.target.Name,
		Address:   s.target.Address,
		Enabled:   s.target.Enabled,
		State:     s.state,
		Commands:  s.commands,
		Failures:  s.failures,
		LastError: s.lastError,
	}
	if s.state == events.SessionConnected {
		t := s.connectedAt
		info.ConnectedAt = &t
	}
	if !s.lastUsed.IsZero() {
		t := s.lastUsed
		info.LastUsed = &t
	}
	return info
}

func (s *Session) setState(state events.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) recordFailure(err error) {
	s.mu.Lock()
	s.failures++
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *Session) emit(t events.EventType, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(context.Background(), events.Event{
		Type:   t,
		Source: "session",
		Payload: events.SessionPayload{
			Server:  s.target.Name,
			Address: s.target.Address,
			Reason:  reason,
		},
	})
}
