// Package chaintypes defines the wire and storage representation of blocks,
// headers, transactions, receipts and accounts shared across every other
// package in this module.
package chaintypes

import (
	"encoding/binary"
	"fmt"
)

// HashLength is the size in bytes of a block id / tx root / state root.
const HashLength = 32

// Hash is a 32-byte digest, used for block ids, tx roots, state roots and
// parent links.
type Hash [HashLength]byte

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// BytesToHash truncates/pads b to a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Header is the block header. ParentHash..Miner are the fields that enter the
// PoW pre-image (spec.md §4.1); the remaining fields are post-mining and
// MUST NOT affect the PoW digest.
type Header struct {
	ParentHash Hash
	Number     uint64
	Timestamp  uint64
	Difficulty uint64
	Nonce      uint64
	TxRoot     Hash
	Miner      []byte

	// Post-mining fields. Never part of the PoW pre-image.
	StateRoot      Hash
	ReceiptsRoot   Hash
	DACommitment   *Hash
	BaseFeePerGas  uint64
}

// Block pairs a header with its transaction list. ID is the block's
// proof-of-work digest (spec.md §4.1: "pow_hash is a derived view of the
// block; it is recomputed from the PoW pre-image, never trusted from the
// wire"). It is populated by consensus/powengine whenever a block is mined
// or validated, and is deliberately NOT a method on Header: recomputing it
// requires the memory-hard mix against the epoch dataset, which is far too
// expensive to invoke implicitly on every map lookup or equality check.
// Everywhere else in this module treats Block.ID as an opaque, already-
// verified cache key.
type Block struct {
	Header *Header
	Txs    []*Transaction
	ID     Hash
}

// preImageMagic and preImageVersion are frozen: changing either is a hard fork.
var preImageMagic = [4]byte{'V', 'P', 'O', 'W'}

const preImageVersion uint32 = 1

// EncodePreImage produces the canonical byte layout that determines block
// identity (spec.md §4.1 / §6 "PoW Wire Format"):
//
//	MAGIC(4) || VERSION(u32 LE) || parent_hash(32) || number(u64 LE) ||
//	timestamp(u64 LE) || difficulty(u64 LE) || nonce(u64 BE) || tx_root(32) ||
//	miner_len(u32 LE) || miner_bytes
//
// The nonce is big-endian by design: it matches the scanning order used
// historically by the reference miner. state_root, receipts_root and the fee
// fields never enter this encoding — they are post-mining values.
func (h *Header) EncodePreImage() []byte {
	out := make([]byte, 0, 4+4+32+8+8+8+8+32+4+len(h.Miner))
	out = append(out, preImageMagic[:]...)

	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], preImageVersion)
	out = append(out, versionBuf[:]...)

	out = append(out, h.ParentHash[:]...)

	var u64Buf [8]byte
	binary.LittleEndian.PutUint64(u64Buf[:], h.Number)
	out = append(out, u64Buf[:]...)

	binary.LittleEndian.PutUint64(u64Buf[:], h.Timestamp)
	out = append(out, u64Buf[:]...)

	binary.LittleEndian.PutUint64(u64Buf[:], h.Difficulty)
	out = append(out, u64Buf[:]...)

	binary.BigEndian.PutUint64(u64Buf[:], h.Nonce)
	out = append(out, u64Buf[:]...)

	out = append(out, h.TxRoot[:]...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(h.Miner)))
	out = append(out, lenBuf[:]...)
	out = append(out, h.Miner...)

	return out
}

// DecodePreImage is the inverse of EncodePreImage, used by tests and by any
// component that must recover header fields from raw pre-image bytes (e.g.
// forensic tooling). Post-mining fields are not recoverable from the
// pre-image by construction and are left zero.
func DecodePreImage(b []byte) (*Header, error) {
	const minLen = 4 + 4 + 32 + 8 + 8 + 8 + 8 + 32 + 4
	if len(b) < minLen {
		return nil, fmt.Errorf("chaintypes: pre-image too short: %d bytes", len(b))
	}
	if string(b[0:4]) != string(preImageMagic[:]) {
		return nil, fmt.Errorf("chaintypes: bad magic %x", b[0:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != preImageVersion {
		return nil, fmt.Errorf("chaintypes: unsupported pre-image version %d", v)
	}
	h := &Header{}
	off := 8
	copy(h.ParentHash[:], b[off:off+32])
	off += 32
	h.Number = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.Timestamp = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.Difficulty = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.Nonce = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	copy(h.TxRoot[:], b[off:off+32])
	off += 32
	minerLen := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	if off+int(minerLen) > len(b) {
		return nil, fmt.Errorf("chaintypes: truncated miner field")
	}
	h.Miner = append([]byte(nil), b[off:off+int(minerLen)]...)
	return h, nil
}
