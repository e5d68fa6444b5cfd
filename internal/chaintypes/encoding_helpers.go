package chaintypes

import (
	"crypto/sha256"
	"encoding/binary"
)

func appendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

func appendLenPrefixed(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

func hashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// MerkleRoot computes a simple binary Merkle root over leaf hashes. Used for
// tx_root (commitment over a block's transaction list) and receipts_root
// (commitment over a block's execution receipts). An empty leaf set roots to
// the zero hash.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, hashPair(level[i], level[i]))
			} else {
				next = append(next, hashPair(level[i], level[i+1]))
			}
		}
		level = next
	}
	return level[0]
}

func hashPair(a, b Hash) Hash {
	buf := make([]byte, 0, HashLength*2)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return hashBytes(buf)
}

// TxRoot computes the commitment over a block's transaction list.
func TxRoot(txs []*Transaction) Hash {
	leaves := make([]Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.ID()
	}
	return MerkleRoot(leaves)
}

// ReceiptsRoot computes the commitment over a block's execution receipts.
// Deliberately excludes Receipt.ID: that field is a local journal key
// (wall-clock timestamp plus a process-local counter, see core/receipts),
// not a consensus value, so two honest nodes validating the same block
// must reach the same root despite assigning different journal entries.
func ReceiptsRoot(receipts []*Receipt) Hash {
	leaves := make([]Hash, len(receipts))
	for i, r := range receipts {
		leaves[i] = hashBytes(r.canonicalEncoding())
	}
	return MerkleRoot(leaves)
}

func (r *Receipt) canonicalEncoding() []byte {
	out := make([]byte, 0, HashLength+len(r.From)+len(r.To)+len(r.Kind))
	out = append(out, r.TxID[:]...)
	out = appendLenPrefixed(out, []byte(r.Kind))
	out = appendLenPrefixed(out, r.From)
	out = appendLenPrefixed(out, r.To)
	out = appendUint64(out, r.Amount)
	out = appendUint64(out, r.Fee)
	if r.OK {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func (a *Account) canonicalEncoding() []byte {
	out := make([]byte, 0, 8+8+len(a.Address))
	out = appendLenPrefixed(out, a.Address)
	out = appendUint64(out, a.Balance)
	out = appendUint64(out, a.Nonce)
	return out
}

// AccountsRoot computes the commitment over the full account state,
// matching header.state_root (spec.md §4.6). Callers must pass accounts
// sorted by address for the root to be reproducible across nodes;
// core/chainstore's accountPrefix iteration already yields that order.
func AccountsRoot(accounts []*Account) Hash {
	leaves := make([]Hash, len(accounts))
	for i, a := range accounts {
		leaves[i] = hashBytes(a.canonicalEncoding())
	}
	return MerkleRoot(leaves)
}
