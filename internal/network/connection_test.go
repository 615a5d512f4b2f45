package network

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestDialDefaults(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(50 * time.Millisecond)
		}
	}()

	c, err := Dial(ln.Addr().String(), DialOptions{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DialOptions{
		ConnectTimeout: DefaultTimeout,
		ReadTimeout:    DefaultTimeout,
		WriteTimeout:   DefaultTimeout,
	}, c.opts)
}

func TestDialRefused(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	ln.Close()

	_, err := Dial(addr, DialOptions{ConnectTimeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestReadTimeout(t *testing.T) {
	ln := listen(t)
	release := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			<-release
			conn.Close()
		}
	}()
	defer close(release)

	c, err := Dial(ln.Addr().String(), DialOptions{ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Read(make([]byte, 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func TestReadWriteAndClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := NewConnection(client, DialOptions{ReadTimeout: time.Second, WriteTimeout: time.Second})

	go func() {
		buf := make([]byte, 4)
		n, _ := server.Read(buf)
		server.Write(buf[:n])
	}()

	_, err := c.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())

	_, err = c.Write([]byte("x"))
	assert.Error(t, err)
}
