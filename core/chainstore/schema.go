package chainstore

import "encoding/binary"

// Key-prefix layout, one prefix per logical tree named in spec.md §4.4
// ("blocks", "headers_by_number", "state", "receipts", "meta", "orphans").
// A package-private prefix variable plus an exported Read/Write/Delete pair
// per tree, never raw key bytes outside this file.
var (
	blockPrefix          = []byte("b")  // blockPrefix + block_id(32) -> RLP(storedBlock)
	canonicalPrefix      = []byte("n")  // canonicalPrefix + number(u64 BE) -> block_id(32)
	accountPrefix        = []byte("s")  // accountPrefix + address -> RLP(storedAccount)
	receiptPrefix        = []byte("r")  // receiptPrefix + receipt_key -> RLP(storedReceipt)
	receiptByTxPrefix    = []byte("x")  // receiptByTxPrefix + tx_id(32) -> receipt_key
	deltaPrefix          = []byte("d")  // deltaPrefix + block_id(32) -> RLP(storedDeltaLog), undo log for reorg
	orphanPrefix         = []byte("o")  // orphanPrefix + block_id(32) -> RLP(storedBlock)
	cumulativeWorkPrefix = []byte("w")  // cumulativeWorkPrefix + block_id(32) -> work(u64 big-endian, 8 bytes)

	metaTipKey = []byte("m-tip") // -> block_id(32) of the current canonical head
)

func blockKey(id [32]byte) []byte {
	return append(append([]byte{}, blockPrefix...), id[:]...)
}

func canonicalKey(number uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return append(append([]byte{}, canonicalPrefix...), buf[:]...)
}

func accountKey(address []byte) []byte {
	return append(append([]byte{}, accountPrefix...), address...)
}

func receiptKey(id string) []byte {
	return append(append([]byte{}, receiptPrefix...), []byte(id)...)
}

func receiptByTxKey(txID [32]byte) []byte {
	return append(append([]byte{}, receiptByTxPrefix...), txID[:]...)
}

func deltaKey(blockID [32]byte) []byte {
	return append(append([]byte{}, deltaPrefix...), blockID[:]...)
}

func orphanKey(blockID [32]byte) []byte {
	return append(append([]byte{}, orphanPrefix...), blockID[:]...)
}

func cumulativeWorkKey(blockID [32]byte) []byte {
	return append(append([]byte{}, cumulativeWorkPrefix...), blockID[:]...)
}
