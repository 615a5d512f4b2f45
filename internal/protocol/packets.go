// Package protocol implements the Source RCON wire framing used between
// rconbridge and game server consoles. Every packet is a little-endian
// 4-byte length prefix followed by id, type, body and two null bytes.
package protocol

// Packet types for the Source RCON protocol.
const (
	// Outgoing to game server
	TypeAuth        int32 = 3 // Authenticate with the rcon password
	TypeExecCommand int32 = 2 // Execute a console command

	// Incoming from game server
	TypeAuthResponse  int32 = 2 // Reply to TypeAuth, id is -1 on failure
	TypeResponseValue int32 = 0 // Command output
)

const (
	// FieldSize is the size of every integer field on the wire.
	FieldSize = 4

	// TerminatorSize is the two trailing null bytes after the body.
	TerminatorSize = 2

	// LengthOverhead is what the length field counts besides the body:
	// id, type and the terminator.
	LengthOverhead = 2*FieldSize + TerminatorSize
)

// AuthFailedID is the id a server echoes when the password is rejected.
const AuthFailedID int32 = -1

// Packet is one decoded RCON frame.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// Size returns the encoded size of the packet including the length prefix.
func (p Packet) Size() int {
	return FieldSize + LengthOverhead + len(p.Body)
}
