package chaintypes

import (
	"encoding/binary"
	"fmt"
)

// TransferPayload is the one concrete payload kind this module interprets:
// a plain value transfer to a recipient address. spec.md §3 treats
// Transaction.Payload as opaque ("full fee/gas semantics belong to an
// external collaborator"), but a node has to apply something to produce
// state_root/receipts_root, and original-implementation receipts (from/to/
// amount) show transfers are the concrete case that exists in practice.
// Any other payload shape is simply not a transfer and is applied as a
// no-op debit of the fee alone.
type TransferPayload struct {
	To     []byte
	Amount uint64
}

// EncodeTransferPayload produces the wire form of a transfer payload.
func EncodeTransferPayload(to []byte, amount uint64) []byte {
	out := make([]byte, 0, 8+4+len(to))
	out = appendUint64(out, amount)
	out = appendLenPrefixed(out, to)
	return out
}

// DecodeTransferPayload parses a transfer payload, or reports ok=false if
// payload isn't shaped like one.
func DecodeTransferPayload(payload []byte) (tp TransferPayload, ok bool, err error) {
	if len(payload) < 8+4 {
		return TransferPayload{}, false, nil
	}
	amount := binary.LittleEndian.Uint64(payload[0:8])
	toLen := binary.LittleEndian.Uint32(payload[8:12])
	if int(toLen) > len(payload)-12 {
		return TransferPayload{}, false, fmt.Errorf("chaintypes: truncated transfer payload")
	}
	to := append([]byte(nil), payload[12:12+int(toLen)]...)
	return TransferPayload{To: to, Amount: amount}, true, nil
}
