// Package rcontest provides an in-process RCON server for tests.
package rcontest

import (
	"net"
	"sync"
	"testing"

	"github.com/energizer-project/rconbridge/internal/protocol"
)

// HandlerFunc answers one console command.
type HandlerFunc func(command string) string

// Server is a minimal Source RCON server listening on 127.0.0.1.
type Server struct {
	Password string
	Handler  HandlerFunc

	// Reply, when set, replaces the normal reply with raw bytes so tests can
	// send malformed or truncated packets. A nil result closes the
	// connection without replying.
	Reply func(req protocol.Packet) []byte

	ln    net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns []net.Conn
	seen  []protocol.Packet
	dials int
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB, password string, handler HandlerFunc) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("rcontest: listen: %v", err)
	}

	s := &Server{Password: password, Handler: handler, ln: ln}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the "host:port" the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Requests returns every packet received so far.
func (s *Server) Requests() []protocol.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Packet, len(s.seen))
	copy(out, s.seen)
	return out
}

// Dials returns how many connections were accepted.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// DropConnections closes every open client connection.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

// Close stops the listener and all connections.
func (s *Server) Close() {
	s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.dials++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		req, err := protocol.ReadPacket(conn, 0)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.seen = append(s.seen, req)
		reply := s.Reply
		s.mu.Unlock()

		if reply != nil {
			raw := reply(req)
			if raw == nil {
				return
			}
			if _, err := conn.Write(raw); err != nil {
				return
			}
			continue
		}

		if err := protocol.WritePacket(conn, s.answer(req)); err != nil {
			return
		}
	}
}

func (s *Server) answer(req protocol.Packet) protocol.Packet {
	if req.Type == protocol.TypeAuth {
		id := req.ID
		if req.Body != s.Password {
			id = protocol.AuthFailedID
		}
		return protocol.Packet{ID: id, Type: protocol.TypeAuthResponse}
	}

	body := ""
	if s.Handler != nil {
		body = s.Handler(req.Body)
	}
	return protocol.Packet{ID: req.ID, Type: protocol.TypeResponseValue, Body: body}
}

// SetReply swaps the raw reply hook while the server is running.
func (s *Server) SetReply(fn func(req protocol.Packet) []byte) {
	s.mu.Lock()
	s.Reply = fn
	s.mu.Unlock()
}
