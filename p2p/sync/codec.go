package sync

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// Wire block bodies (wire.BlockEnvelope.Raw) are RLP-encoded with the same
// pointer-flattening trick core/chainstore/codec.go uses for persistence:
// DACommitment sits before BaseFeePerGas, so RLP (which only special-cases a
// nil pointer as "optional" in tail position) can't represent it directly.

type wireHeader struct {
	ParentHash    chaintypes.Hash
	Number        uint64
	Timestamp     uint64
	Difficulty    uint64
	Nonce         uint64
	TxRoot        chaintypes.Hash
	Miner         []byte
	StateRoot     chaintypes.Hash
	ReceiptsRoot  chaintypes.Hash
	HasDACommit   bool
	DACommitment  chaintypes.Hash
	BaseFeePerGas uint64
}

type wireTransaction struct {
	Sender      []byte
	Nonce       uint64
	Fee         uint64
	Weight      uint64
	Payload     []byte
	Signature   []byte
	FirstSeenNS uint64
}

type wireBlock struct {
	Header *wireHeader
	Txs    []*wireTransaction
	ID     chaintypes.Hash
}

// EncodeBlock renders a full block (header + transactions) for transfer as
// a wire.BlockEnvelope's Raw payload (spec.md §4.12 step 3/4).
func EncodeBlock(b *chaintypes.Block) ([]byte, error) {
	wh := &wireHeader{
		ParentHash:    b.Header.ParentHash,
		Number:        b.Header.Number,
		Timestamp:     b.Header.Timestamp,
		Difficulty:    b.Header.Difficulty,
		Nonce:         b.Header.Nonce,
		TxRoot:        b.Header.TxRoot,
		Miner:         b.Header.Miner,
		StateRoot:     b.Header.StateRoot,
		ReceiptsRoot:  b.Header.ReceiptsRoot,
		BaseFeePerGas: b.Header.BaseFeePerGas,
	}
	if b.Header.DACommitment != nil {
		wh.HasDACommit = true
		wh.DACommitment = *b.Header.DACommitment
	}
	wb := &wireBlock{Header: wh, ID: b.ID}
	for _, tx := range b.Txs {
		wb.Txs = append(wb.Txs, &wireTransaction{
			Sender:      tx.Sender,
			Nonce:       tx.Nonce,
			Fee:         tx.Fee,
			Weight:      tx.Weight,
			Payload:     tx.Payload,
			Signature:   tx.Signature,
			FirstSeenNS: uint64(tx.FirstSeenNS),
		})
	}
	return rlp.EncodeToBytes(wb)
}

// DecodeBlock reverses EncodeBlock.
func DecodeBlock(raw []byte) (*chaintypes.Block, error) {
	var wb wireBlock
	if err := rlp.DecodeBytes(raw, &wb); err != nil {
		return nil, err
	}
	h := &chaintypes.Header{
		ParentHash:    wb.Header.ParentHash,
		Number:        wb.Header.Number,
		Timestamp:     wb.Header.Timestamp,
		Difficulty:    wb.Header.Difficulty,
		Nonce:         wb.Header.Nonce,
		TxRoot:        wb.Header.TxRoot,
		Miner:         wb.Header.Miner,
		StateRoot:     wb.Header.StateRoot,
		ReceiptsRoot:  wb.Header.ReceiptsRoot,
		BaseFeePerGas: wb.Header.BaseFeePerGas,
	}
	if wb.Header.HasDACommit {
		commit := wb.Header.DACommitment
		h.DACommitment = &commit
	}
	b := &chaintypes.Block{Header: h, ID: wb.ID}
	for _, t := range wb.Txs {
		b.Txs = append(b.Txs, &chaintypes.Transaction{
			Sender:      t.Sender,
			Nonce:       t.Nonce,
			Fee:         t.Fee,
			Weight:      t.Weight,
			Payload:     t.Payload,
			Signature:   t.Signature,
			FirstSeenNS: int64(t.FirstSeenNS),
		})
	}
	return b, nil
}
