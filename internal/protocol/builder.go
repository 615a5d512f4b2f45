package protocol

import (
	"bytes"
	"encoding/binary"
)

// PacketBuilder constructs binary RCON packets for sending to game servers.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// WriteInt32 writes an int32 in little-endian order.
func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteString writes the raw UTF-8 bytes of s without any terminator.
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.buf.WriteString(s)
	return b
}

// WriteTerminator writes the two null bytes that close every packet.
func (b *PacketBuilder) WriteTerminator() *PacketBuilder {
	b.buf.Write([]byte{0x00, 0x00})
	return b
}

// Build returns the constructed packet bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// EncodePacket builds the complete wire form of p: N+14 bytes for an N-byte
// body, the length prefix itself not counted in the declared N+10.
// Format: [length:4][id:4][type:4][body:N][0x00 0x00].
func EncodePacket(p Packet) []byte {
	b := NewPacketBuilder()
	b.buf.Grow(p.Size())
	b.WriteInt32(int32(len(p.Body) + LengthOverhead))
	b.WriteInt32(p.ID)
	b.WriteInt32(p.Type)
	b.WriteString(p.Body)
	b.WriteTerminator()
	return b.Build()
}
