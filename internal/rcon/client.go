// Package rcon implements a Source RCON client: a single persistent TCP
// connection used to authenticate and then run console commands.
//
// A Client owns its connection for its whole lifetime and runs one exchange
// at a time. It is not safe for concurrent use; callers that share a
// connection must serialize access themselves.
package rcon

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconbridge/internal/network"
	"github.com/energizer-project/rconbridge/internal/protocol"
)

// Client is a connection to one RCON endpoint.
type Client struct {
	cfg    Config
	conn   io.ReadWriteCloser
	logger zerolog.Logger
}

// Dial connects to cfg.Address with the configured timeouts.
func Dial(cfg Config) (*Client, error) {
	conn, err := network.Dial(cfg.Address, cfg.dialOptions())
	if err != nil {
		return nil, connectionError("dial", err)
	}
	return NewClient(conn, cfg), nil
}

// NewClient wraps an already open stream. Timeouts in cfg are not applied;
// the stream is expected to enforce its own.
func NewClient(conn io.ReadWriteCloser, cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		conn:   conn,
		logger: log.With().Str("component", "rcon").Str("address", cfg.Address).Logger(),
	}
}

// Authenticate sends the rcon password. A rejected password is not an
// error: check AuthResponse.IsSuccess.
func (c *Client) Authenticate(req AuthRequest) (AuthResponse, error) {
	resp, err := exchange(c.conn, protocol.Packet{
		ID:   req.ID,
		Type: req.Type,
		Body: req.Password,
	}, c.cfg.maxBodySize(), c.logger)
	if err != nil {
		return AuthResponse{}, err
	}

	auth := AuthResponse{ID: resp.ID, Type: resp.Type}
	if !auth.IsSuccess() {
		c.logger.Warn().Int32("request_id", req.ID).Msg("authentication rejected")
	}
	return auth, nil
}

// Execute sends one command and returns the server's reply as is.
func (c *Client) Execute(req Request) (Response, error) {
	return exchange(c.conn, protocol.Packet{
		ID:   req.ID,
		Type: req.Type,
		Body: req.Body,
	}, c.cfg.maxBodySize(), c.logger)
}

// Address returns the address the client was configured with.
func (c *Client) Address() string {
	return c.cfg.Address
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
