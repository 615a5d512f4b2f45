// Package network implements the connection provider used by the RCON
// client: dialing game server consoles and enforcing read/write timeouts
// on the resulting stream.
package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout applies to connect, read and write when none is configured.
const DefaultTimeout = 30 * time.Second

// DialOptions configures a new connection. Zero durations fall back to
// DefaultTimeout.
type DialOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (o DialOptions) withDefaults() DialOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultTimeout
	}
	return o
}

// Connection wraps a TCP connection to a game server console.
// The read and write timeouts are fixed at dial time; every Read and Write
// arms a fresh deadline so each blocking call is bounded on its own.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	opts   DialOptions
	logger zerolog.Logger
	closed bool
}

// Dial opens a TCP connection to address ("host:port").
func Dial(address string, opts DialOptions) (*Connection, error) {
	opts = opts.withDefaults()

	conn, err := net.DialTimeout("tcp", address, opts.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	c := NewConnection(conn, opts)
	c.logger.Debug().
		Dur("read_timeout", opts.ReadTimeout).
		Dur("write_timeout", opts.WriteTimeout).
		Msg("connection established")
	return c, nil
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn, opts DialOptions) *Connection {
	return &Connection{
		conn:   conn,
		opts:   opts.withDefaults(),
		logger: log.With().Str("component", "connection").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// Read reads from the connection, failing once the read timeout elapses.
func (c *Connection) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}

	return c.conn.Read(p)
}

// Write writes p in full, failing once the write timeout elapses.
func (c *Connection) Write(p []byte) (int, error) {
	if c.IsClosed() {
		return 0, fmt.Errorf("connection is closed")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set write deadline: %w", err)
	}

	return c.conn.Write(p)
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
