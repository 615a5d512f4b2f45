package rcon

import (
	"time"

	"github.com/energizer-project/rconbridge/internal/network"
)

// DefaultMaxBodySize caps the declared body length of a reply.
const DefaultMaxBodySize = 1 << 20

// Config describes how to reach one RCON endpoint.
// Zero timeouts fall back to network.DefaultTimeout (30s).
type Config struct {
	Address        string        `json:"address"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// MaxBodySize bounds the reply body a server may declare. A reply
	// declaring more is rejected with a decode error before any body byte
	// is read; it is never truncated. Zero means DefaultMaxBodySize.
	MaxBodySize int `json:"max_body_size"`
}

func (c Config) dialOptions() network.DialOptions {
	return network.DialOptions{
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
	}
}

func (c Config) maxBodySize() int {
	if c.MaxBodySize <= 0 {
		return DefaultMaxBodySize
	}
	return c.MaxBodySize
}
