package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewNodeNonce generates a fresh handshake node_nonce (spec.md §4.11
// "anti-replay"). It is the first 8 bytes of a random UUIDv4, read
// big-endian; the UUID itself is not kept or logged.
func NewNodeNonce() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
