package rcon

import (
	"math/rand/v2"

	"github.com/energizer-project/rconbridge/internal/protocol"
)

// AuthRequest authenticates a connection with the rcon password.
type AuthRequest struct {
	ID       int32  `json:"id"`
	Type     int32  `json:"type"`
	Password string `json:"-"`
}

// NewAuthRequest returns an AuthRequest with a random non-negative id.
func NewAuthRequest(password string) AuthRequest {
	return AuthRequest{
		ID:       rand.Int32(),
		Type:     protocol.TypeAuth,
		Password: password,
	}
}

// AuthResponse is the server's reply to an AuthRequest.
type AuthResponse struct {
	ID   int32 `json:"id"`
	Type int32 `json:"type"`
}

// IsSuccess reports whether the server accepted the password.
// Servers echo id -1 when authentication fails.
func (r AuthResponse) IsSuccess() bool {
	return r.ID != protocol.AuthFailedID
}

// Request is a console command.
type Request struct {
	ID   int32  `json:"id"`
	Type int32  `json:"type"`
	Body string `json:"body"`
}

// NewCommand returns an exec-command Request.
func NewCommand(id int32, command string) Request {
	return Request{ID: id, Type: protocol.TypeExecCommand, Body: command}
}

// Response is the server's reply to a Request.
type Response struct {
	ID   int32  `json:"id"`
	Type int32  `json:"type"`
	Body string `json:"body"`
}
