package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ReadExact reads exactly n bytes from r or fails. A stream that closes or
// times out before n bytes arrive is an error; nothing partial is returned.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes: %w", n, err)
	}
	return buf, nil
}

// ReadInt32 reads one exact little-endian int32 field.
func ReadInt32(r io.Reader) (int32, error) {
	buf, err := ReadExact(r, FieldSize)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

// ReadAvailable reads up to n bytes from r, tolerating a short stream.
//
// The loop stops at the first zero-byte read, EOF or error and returns what
// was read so far. The returned error is the read error that cut the loop
// short (never io.EOF); callers decide whether to surface it. The result is
// never padded to n.
func ReadAvailable(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	filled := 0
	for filled < n {
		read, err := r.Read(buf[filled:])
		filled += read
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return buf[:filled], err
		}
		if read == 0 {
			break
		}
	}
	return buf[:filled], nil
}

// ReadHeader reads the three fixed header fields of a reply.
func ReadHeader(r io.Reader) (length, id, typ int32, err error) {
	if length, err = ReadInt32(r); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read packet length: %w", err)
	}
	if id, err = ReadInt32(r); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read packet id: %w", err)
	}
	if typ, err = ReadInt32(r); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read packet type: %w", err)
	}
	return length, id, typ, nil
}

// ReadPacket reads one complete, well-formed packet from r. Unlike the client
// exchange it is strict about the body and terminator, which makes it the
// right reader for the serving side of a connection.
func ReadPacket(r io.Reader, maxBody int) (Packet, error) {
	length, id, typ, err := ReadHeader(r)
	if err != nil {
		return Packet{}, err
	}

	bodyLen := int(length) - LengthOverhead
	if bodyLen < 0 {
		return Packet{}, fmt.Errorf("invalid packet length: %d", length)
	}
	if maxBody > 0 && bodyLen > maxBody {
		return Packet{}, fmt.Errorf("packet too large: %d bytes (max %d)", bodyLen, maxBody)
	}

	body, err := ReadExact(r, bodyLen+TerminatorSize)
	if err != nil {
		return Packet{}, fmt.Errorf("failed to read packet body: %w", err)
	}

	return Packet{ID: id, Type: typ, Body: string(body[:bodyLen])}, nil
}

// WritePacket encodes p and writes it to w in a single call.
func WritePacket(w io.Writer, p Packet) error {
	if _, err := w.Write(EncodePacket(p)); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}
