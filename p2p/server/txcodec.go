package server

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// wireTx mirrors p2p/sync's wireTransaction: a standalone RLP encoding for a
// single transaction, used by Tx/GetData relay (spec.md §4.13) rather than
// the block-body path.
type wireTx struct {
	Sender      []byte
	Nonce       uint64
	Fee         uint64
	Weight      uint64
	Payload     []byte
	Signature   []byte
	FirstSeenNS uint64
}

// encodeTx renders tx for a wire.Tx payload.
func encodeTx(tx *chaintypes.Transaction) ([]byte, error) {
	return rlp.EncodeToBytes(&wireTx{
		Sender:      tx.Sender,
		Nonce:       tx.Nonce,
		Fee:         tx.Fee,
		Weight:      tx.Weight,
		Payload:     tx.Payload,
		Signature:   tx.Signature,
		FirstSeenNS: uint64(tx.FirstSeenNS),
	})
}

// decodeTx reverses encodeTx.
func decodeTx(raw []byte) (*chaintypes.Transaction, error) {
	var wt wireTx
	if err := rlp.DecodeBytes(raw, &wt); err != nil {
		return nil, err
	}
	return &chaintypes.Transaction{
		Sender:      wt.Sender,
		Nonce:       wt.Nonce,
		Fee:         wt.Fee,
		Weight:      wt.Weight,
		Payload:     wt.Payload,
		Signature:   wt.Signature,
		FirstSeenNS: int64(wt.FirstSeenNS),
	}, nil
}
