package chainstore

import "github.com/vision-project/vision-node/internal/chaintypes"

// Storage representations mirror their chaintypes counterparts but avoid
// pointer fields in non-tail position, which RLP (github.com/ethereum/
// go-ethereum/rlp) only special-cases as "optional" when they are the last
// field(s) of a struct. chaintypes.Header.DACommitment sits before
// BaseFeePerGas, so it is flattened into a presence flag here instead.

type storedHeader struct {
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

func toStoredHeader(h *chaintypes.Header) storedHeader {
	sh := storedHeader{
		ParentHash:    h.ParentHash,
		Number:        h.Number,
		Timestamp:     h.Timestamp,
		Difficulty:    h.Difficulty,
		Nonce:         h.Nonce,
		TxRoot:        h.TxRoot,
		Miner:         h.Miner,
		StateRoot:     h.StateRoot,
		ReceiptsRoot:  h.ReceiptsRoot,
		BaseFeePerGas: h.BaseFeePerGas,
	}
	if h.DACommitment != nil {
		sh.HasDACommit = true
		sh.DACommitment = *h.DACommitment
	}
	return sh
}

func (sh storedHeader) toHeader() *chaintypes.Header {
	h := &chaintypes.Header{
		ParentHash:    sh.ParentHash,
		Number:        sh.Number,
		Timestamp:     sh.Timestamp,
		Difficulty:    sh.Difficulty,
		Nonce:         sh.Nonce,
		TxRoot:        sh.TxRoot,
		Miner:         sh.Miner,
		StateRoot:     sh.StateRoot,
		ReceiptsRoot:  sh.ReceiptsRoot,
		BaseFeePerGas: sh.BaseFeePerGas,
	}
	if sh.HasDACommit {
		commit := sh.DACommitment
		h.DACommitment = &commit
	}
	return h
}

type storedTransaction struct {
	Sender      []byte
	Nonce       uint64
	Fee         uint64
	Weight      uint64
	Payload     []byte
	Signature   []byte
	FirstSeenNS uint64 // chaintypes.Transaction.FirstSeenNS is int64; RLP only encodes unsigned integers.
}

func toStoredTransaction(tx *chaintypes.Transaction) storedTransaction {
	return storedTransaction{
		Sender:      tx.Sender,
		Nonce:       tx.Nonce,
		Fee:         tx.Fee,
		Weight:      tx.Weight,
		Payload:     tx.Payload,
		Signature:   tx.Signature,
		FirstSeenNS: uint64(tx.FirstSeenNS),
	}
}

func (st storedTransaction) toTransaction() *chaintypes.Transaction {
	return &chaintypes.Transaction{
		Sender:      st.Sender,
		Nonce:       st.Nonce,
		Fee:         st.Fee,
		Weight:      st.Weight,
		Payload:     st.Payload,
		Signature:   st.Signature,
		FirstSeenNS: int64(st.FirstSeenNS),
	}
}

type storedBlock struct {
	Header *storedHeader
	Txs    []*storedTransaction
	ID     chaintypes.Hash
}

func toStoredBlock(b *chaintypes.Block) *storedBlock {
	sh := toStoredHeader(b.Header)
	sb := &storedBlock{Header: &sh, ID: b.ID}
	for _, tx := range b.Txs {
		st := toStoredTransaction(tx)
		sb.Txs = append(sb.Txs, &st)
	}
	return sb
}

func (sb *storedBlock) toBlock() *chaintypes.Block {
	b := &chaintypes.Block{Header: sb.Header.toHeader(), ID: sb.ID}
	for _, st := range sb.Txs {
		b.Txs = append(b.Txs, st.toTransaction())
	}
	return b
}

type storedAccount struct {
	Address []byte
	Balance uint64
	Nonce   uint64
}

func toStoredAccount(a *chaintypes.Account) *storedAccount {
	return &storedAccount{Address: a.Address, Balance: a.Balance, Nonce: a.Nonce}
}

func (sa *storedAccount) toAccount() *chaintypes.Account {
	return &chaintypes.Account{Address: sa.Address, Balance: sa.Balance, Nonce: sa.Nonce}
}

type storedReceipt struct {
	ID     string
	Kind   string
	TxID   chaintypes.Hash
	From   []byte
	To     []byte
	Amount uint64
	Fee    uint64
	OK     bool
	Note   string
}

func toStoredReceipt(r *chaintypes.Receipt) *storedReceipt {
	return &storedReceipt{
		ID: r.ID, Kind: r.Kind, TxID: r.TxID, From: r.From, To: r.To,
		Amount: r.Amount, Fee: r.Fee, OK: r.OK, Note: r.Note,
	}
}

func (sr *storedReceipt) toReceipt() *chaintypes.Receipt {
	return &chaintypes.Receipt{
		ID: sr.ID, Kind: sr.Kind, TxID: sr.TxID, From: sr.From, To: sr.To,
		Amount: sr.Amount, Fee: sr.Fee, OK: sr.OK, Note: sr.Note,
	}
}

// AccountDelta records an account's state immediately before a block's
// effects were applied, so a reorg can undo the block without
// re-executing it (spec.md §4.4 "store inverse-delta logs").
type AccountDelta struct {
	Address []byte
	Existed bool
	Before  chaintypes.Account
}

type storedDeltaLog struct {
	Deltas []AccountDelta
}
