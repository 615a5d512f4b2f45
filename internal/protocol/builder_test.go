package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePacketFraming(t *testing.T) {
	bodies := []string{"", "status", "say héllo wörld", "日本語のコマンド", string(make([]byte, 4096))}

	for _, body := range bodies {
		data := EncodePacket(Packet{ID: 7, Type: TypeExecCommand, Body: body})

		n := len(body)
		require.Len(t, data, n+14, "length prefix plus the N+10 bytes it declares")
		assert.Equal(t, int32(n+10), int32(binary.LittleEndian.Uint32(data[0:4])))
		assert.Equal(t, int32(7), int32(binary.LittleEndian.Uint32(data[4:8])))
		assert.Equal(t, TypeExecCommand, int32(binary.LittleEndian.Uint32(data[8:12])))
		assert.Equal(t, body, string(data[12:12+n]))
		assert.Equal(t, []byte{0x00, 0x00}, data[len(data)-2:])
	}
}

func TestEncodePacketKnownVector(t *testing.T) {
	data := EncodePacket(Packet{ID: 42, Type: TypeExecCommand, Body: "info"})
	assert.Equal(t, "0e0000002a00000002000000696e666f0000", hex.EncodeToString(data))
}

func TestEncodePacketNegativeID(t *testing.T) {
	data := EncodePacket(Packet{ID: AuthFailedID, Type: TypeAuthResponse})
	assert.Equal(t, "0a000000ffffffff020000000000", hex.EncodeToString(data))
}

func TestPacketSize(t *testing.T) {
	p := Packet{ID: 1, Type: TypeAuth, Body: "hunter2"}
	assert.Equal(t, len(EncodePacket(p)), p.Size())
}

func TestEncodePacketDeclaredLengthMatchesRemainder(t *testing.T) {
	for _, body := range []string{"", "status", "say hi"} {
		data := EncodePacket(Packet{ID: 1, Type: TypeAuth, Body: body})
		declared := int(binary.LittleEndian.Uint32(data[0:4]))
		assert.Equal(t, len(data)-FieldSize, declared)
	}
}

func TestPacketBuilderChaining(t *testing.T) {
	data := NewPacketBuilder().WriteInt32(1).WriteString("x").WriteTerminator().Build()
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00, 'x', 0x00, 0x00}, data)
}
