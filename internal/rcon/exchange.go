package rcon

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/energizer-project/rconbridge/internal/protocol"
)

// exchange performs one request/response round trip on rw: encode and write
// the request, then read and decode exactly one reply.
//
// The 12-byte header is read strictly because its length field decides how
// much body follows. The body and the terminator are read leniently on
// purpose: some game servers deliver short or fragmented replies, so a short
// or failed read there keeps whatever arrived and is only logged.
func exchange(rw io.ReadWriter, req protocol.Packet, maxBody int, logger zerolog.Logger) (Response, error) {
	if _, err := rw.Write(protocol.EncodePacket(req)); err != nil {
		return Response{}, connectionError("write request", err)
	}

	length, id, typ, err := protocol.ReadHeader(rw)
	if err != nil {
		return Response{}, connectionError("read response header", err)
	}

	bodyLen := int(length) - protocol.LengthOverhead
	if bodyLen < 0 {
		return Response{}, decodeError("read response body",
			fmt.Errorf("declared length %d is below the %d-byte minimum", length, protocol.LengthOverhead))
	}
	if bodyLen > maxBody {
		return Response{}, decodeError("read response body",
			fmt.Errorf("declared body of %d bytes exceeds limit of %d", bodyLen, maxBody))
	}

	// Lenient decoding, not a bug: keep what the transport delivered.
	body, err := protocol.ReadAvailable(rw, bodyLen)
	if err != nil {
		logger.Warn().
			Err(err).
			Int32("id", id).
			Int("declared", bodyLen).
			Int("received", len(body)).
			Msg("response body read failed, using partial body")
	} else if len(body) < bodyLen {
		logger.Warn().
			Int32("id", id).
			Int("declared", bodyLen).
			Int("received", len(body)).
			Msg("response body shorter than declared")
	}

	if !utf8.Valid(body) {
		return Response{}, decodeError("decode response body", errors.New("body is not valid UTF-8"))
	}

	// Lenient decoding, not a bug: a missing terminator does not fail the call.
	if _, err := protocol.ReadExact(rw, protocol.TerminatorSize); err != nil {
		logger.Warn().
			Err(err).
			Int32("id", id).
			Msg("response terminator missing")
	}

	logger.Trace().
		Int32("request_id", req.ID).
		Int32("request_type", req.Type).
		Int32("id", id).
		Int32("type", typ).
		Int("body_len", len(body)).
		Msg("exchange complete")

	return Response{ID: id, Type: typ, Body: string(body)}, nil
}
