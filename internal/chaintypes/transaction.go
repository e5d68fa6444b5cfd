package chaintypes

// Transaction is an opaque signed payload. spec.md §3 treats validation as a
// capability check ("canonical encoding exists; signature verifies; sender's
// nonce equals expected next; fee >= minimum") rather than mandating full
// fee/gas semantics, which belong to an external collaborator.
type Transaction struct {
	Sender    []byte // public key or address bytes of the sender
	Nonce     uint64
	Fee       uint64
	Weight    uint64 // opaque size/complexity unit the fee is charged against
	Payload   []byte
	Signature []byte

	// FirstSeenNS is the local monotonic-ish arrival timestamp, used only for
	// the mempool's deterministic tie-break (spec.md §4.5) — it is never part
	// of any on-wire or on-disk encoding that must match across nodes.
	FirstSeenNS int64
}

// ID is the transaction identifier: the hash of its canonical encoding.
// Unlike block identity, tx identity has no memory-hard requirement, so a
// cheap hash is appropriate here.
func (tx *Transaction) ID() Hash {
	return hashBytes(tx.canonicalEncoding())
}

// FeePerWeight is the primary mempool ordering key (spec.md §4.5).
func (tx *Transaction) FeePerWeight() float64 {
	if tx.Weight == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(tx.Weight)
}

func (tx *Transaction) canonicalEncoding() []byte {
	out := make([]byte, 0, 8+8+8+len(tx.Sender)+len(tx.Payload)+len(tx.Signature))
	out = appendUint64(out, tx.Nonce)
	out = appendUint64(out, tx.Fee)
	out = appendUint64(out, tx.Weight)
	out = appendLenPrefixed(out, tx.Sender)
	out = appendLenPrefixed(out, tx.Payload)
	out = appendLenPrefixed(out, tx.Signature)
	return out
}

// SigningPayload is what Signature is a signature over: every field except
// Signature itself (a transaction obviously cannot sign over its own
// signature bytes).
func (tx *Transaction) SigningPayload() []byte {
	out := make([]byte, 0, 8+8+8+len(tx.Sender)+len(tx.Payload))
	out = appendUint64(out, tx.Nonce)
	out = appendUint64(out, tx.Fee)
	out = appendUint64(out, tx.Weight)
	out = appendLenPrefixed(out, tx.Sender)
	out = appendLenPrefixed(out, tx.Payload)
	return out
}

// Account is the opaque per-address state record kept in the Chain Store's
// `state` tree.
type Account struct {
	Address []byte
	Balance uint64
	Nonce   uint64
}

// Receipt records the outcome of applying one transaction. No receipt is
// written for a reorg.
type Receipt struct {
	ID     string // monotonic key, spec.md §6: 20-digit ns ts + 6-digit counter
	Kind   string // "transfer" | "opaque" (non-transfer payload, fee only)
	TxID   Hash
	From   []byte
	To     []byte
	Amount uint64
	Fee    uint64
	OK     bool
	Note   string
}
