package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Frame is one decoded wire frame: a message kind plus its raw (already
// decompressed) payload bytes.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// WriteFrame writes MAGIC ‖ VERSION ‖ LEN ‖ PAYLOAD to w. kind is prepended
// to payload as its first byte before any compression, matching ReadFrame's
// expectations. Blocks/Tx payloads are snappy-compressed; everything else is
// sent as-is, since handshakes and headers are already small.
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	if compressedKind(kind) {
		payload = snappy.Encode(nil, payload)
	}

	body := make([]byte, 0, 1+len(payload))
	body = append(body, byte(kind))
	body = append(body, payload...)

	maxLen := MaxHandshakePayload
	if kind != KindHandshake {
		maxLen = MaxBodyPayload
	}
	if len(body) > maxLen {
		return fmt.Errorf("%w: %s frame is %d bytes, max %d", errTooLarge, kind, len(body), maxLen)
	}
	if len(body) > 0xFFFF {
		return fmt.Errorf("%w: %s frame is %d bytes, exceeds u16 length field", errTooLarge, kind, len(body))
	}

	header := make([]byte, 0, len(Magic)+1+2)
	header = append(header, Magic[:]...)
	header = append(header, Version)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	header = append(header, lenBuf[:]...)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: writing frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads and validates one frame from r. A version mismatch or bad
// magic is returned as an error the caller should treat as grounds to drop
// the connection (spec.md §4.11).
func ReadFrame(r io.Reader) (Frame, error) {
	var preamble [len(Magic) + 1 + 2]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return Frame{}, fmt.Errorf("wire: reading frame header: %w", err)
	}

	var magic [9]byte
	copy(magic[:], preamble[:9])
	if magic != Magic {
		return Frame{}, errBadMagic
	}
	version := preamble[9]
	if version != Version {
		return Frame{}, fmt.Errorf("%w: have %d want %d", errBadVersion, version, Version)
	}
	length := binary.BigEndian.Uint16(preamble[10:12])

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, fmt.Errorf("wire: reading frame body: %w", err)
		}
	}
	if len(body) == 0 {
		return Frame{}, errShortBuffer
	}

	kind := Kind(body[0])
	payload := body[1:]
	if compressedKind(kind) {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return Frame{}, fmt.Errorf("wire: decompressing %s payload: %w", kind, err)
		}
		payload = decoded
	}

	return Frame{Kind: kind, Payload: payload}, nil
}
