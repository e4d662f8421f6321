// Package wire implements the length-prefixed frame format used on both the
// remote-robot TCP stream and, reused here, as the mental model for partial
// reads elsewhere in the daemon.
//
// Frame layout: [type:u8][len:u16 little-endian][payload:len bytes].
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Frame is one decoded wire message: a type tag plus its raw payload bytes.
// Payload is nil (never a zero-length non-nil slice) for an empty body.
type Frame struct {
	Type    byte
	Payload []byte
}

const maxPayloadLen = 0xFFFF

// Encode writes a frame header and payload verbatim. It never truncates:
// a payload longer than 65535 bytes is a hard error.
func Encode(frameType byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadLen {
		return nil, fmt.Errorf("wire: payload too large: %d bytes (max %d)", len(payload), maxPayloadLen)
	}
	buf := make([]byte, 3+len(payload))
	buf[0] = frameType
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[3:], payload)
	return buf, nil
}

// tryParse attempts to split exactly one frame off the front of buf.
// ok is false when buf does not yet hold a complete frame; consumed is
// only meaningful when ok is true.
func tryParse(buf []byte) (frame *Frame, consumed int, ok bool) {
	if len(buf) < 3 {
		return nil, 0, false
	}
	length := int(binary.LittleEndian.Uint16(buf[1:3]))
	if len(buf) < 3+length {
		return nil, 0, false
	}
	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		copy(payload, buf[3:3+length])
	}
	return &Frame{Type: buf[0], Payload: payload}, 3 + length, true
}

// IsWouldBlock reports whether err is a read timeout used to signal "no
// data currently available" on a socket put in non-blocking mode via
// SetReadDeadline. Such errors carry no information and must never be
// logged as real failures.
func IsWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// DecodeStream concatenates leftover with whatever r currently has to
// offer and attempts to parse exactly one frame. It returns at most one
// frame per call; the returned rest is the new leftover to pass on the
// next call, regardless of whether a frame was produced.
//
// r.Read returning a would-block error (see IsWouldBlock) is treated as
// "no progress, keep leftover" rather than a failure — the caller is
// expected to retry. A genuine read error (closed connection, etc.) is
// returned as err; rest still holds whatever bytes were accumulated so
// far so no partial data is lost if the caller chooses to keep going.
func DecodeStream(r io.Reader, leftover []byte) (frame *Frame, rest []byte, err error) {
	chunk := make([]byte, 4096)
	n, rerr := r.Read(chunk)

	buf := leftover
	if n > 0 {
		buf = make([]byte, 0, len(leftover)+n)
		buf = append(buf, leftover...)
		buf = append(buf, chunk[:n]...)
	}

	if f, consumed, ok := tryParse(buf); ok {
		return f, buf[consumed:], nil
	}

	if rerr != nil {
		if IsWouldBlock(rerr) {
			return nil, buf, nil
		}
		return nil, buf, rerr
	}

	return nil, buf, nil
}
