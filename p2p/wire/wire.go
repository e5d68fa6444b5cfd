// Package wire implements the node-to-node framing and message encoding for
// the peer-to-peer protocol (spec.md §4.11/§6). Every TCP frame is
// MAGIC ‖ VERSION ‖ LEN(u16 BE) ‖ PAYLOAD, and PAYLOAD is a one-byte message
// Kind followed by that message's deterministic binary encoding. Nothing in
// this package does network I/O beyond reading/writing an io.Reader/Writer;
// dial/handshake/idle deadlines are the caller's responsibility (p2p/server
// sets them from p2p/peermanager's timeouts).
package wire

import "errors"

// Magic is the 9-byte frame preamble, frozen by spec.md §4.11.
var Magic = [9]byte{'V', 'I', 'S', 'I', 'O', 'N', '-', 'P', '2'}

// Version is the current protocol version. A peer announcing a lower
// version is dropped; a peer announcing a higher, unrecognized version is
// also dropped (spec.md §4.11 "unknown higher version ⇒ drop").
const Version uint8 = 3

// MaxHandshakePayload bounds the handshake frame (spec.md §4.11).
const MaxHandshakePayload = 10_000

// MaxBodyPayload bounds Blocks/Tx frames, which carry full transaction and
// block data and so need a much larger ceiling than a handshake.
const MaxBodyPayload = 16 * 1024 * 1024

// Kind identifies the message carried by a frame's payload.
type Kind uint8

const (
	KindHandshake Kind = iota + 1
	KindAnnounceBlock
	KindGetHeaders
	KindHeaders
	KindGetBlocks
	KindBlocks
	KindInvTx
	KindGetData
	KindTx
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "Handshake"
	case KindAnnounceBlock:
		return "AnnounceBlock"
	case KindGetHeaders:
		return "GetHeaders"
	case KindHeaders:
		return "Headers"
	case KindGetBlocks:
		return "GetBlocks"
	case KindBlocks:
		return "Blocks"
	case KindInvTx:
		return "InvTx"
	case KindGetData:
		return "GetData"
	case KindTx:
		return "Tx"
	default:
		return "Unknown"
	}
}

// compressedKinds are the frame kinds large enough to benefit from snappy
// compression (spec.md DOMAIN STACK: "Blocks/Tx frame payloads").
func compressedKind(k Kind) bool {
	return k == KindBlocks || k == KindTx
}

var (
	errBadMagic     = errors.New("wire: bad magic")
	errShortBuffer  = errors.New("wire: short buffer")
	errTooLarge     = errors.New("wire: payload too large")
	errBadVersion   = errors.New("wire: unsupported version")
	errTrailingData = errors.New("wire: trailing bytes after message")
)
