package chainstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeBlock(number uint64, parent chaintypes.Hash, difficulty uint64, nonce uint64) *chaintypes.Block {
	h := &chaintypes.Header{
		ParentHash: parent,
		Number:     number,
		Timestamp:  1_700_000_000 + number*15,
		Difficulty: difficulty,
		Nonce:      nonce,
		TxRoot:     chaintypes.Hash{},
		Miner:      []byte("miner"),
	}
	id := chaintypes.BytesToHash(h.EncodePreImage())
	return &chaintypes.Block{Header: h, ID: id}
}

func TestOpenLocksDataDir(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	defer s1.Close()

	_, err = Open(dir)
	require.Error(t, err, "a second Open on the same directory must fail")
}

func TestApplyBlockThenReadBackAndTip(t *testing.T) {
	s := openTestStore(t)
	genesis := makeBlock(0, chaintypes.Hash{}, 1, 0)

	err := s.ApplyBlock(genesis, nil, nil, nil)
	require.NoError(t, err)

	got, ok, err := s.ReadBlock(genesis.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.Header.Number, got.Header.Number)

	tip, ok, err := s.ReadTip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.ID, tip)

	canon, ok, err := s.ReadCanonicalHash(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.ID, canon)
}

func TestApplyBlockTracksCumulativeWork(t *testing.T) {
	s := openTestStore(t)
	genesis := makeBlock(0, chaintypes.Hash{}, 10, 0)
	require.NoError(t, s.ApplyBlock(genesis, nil, nil, nil))

	b1 := makeBlock(1, genesis.ID, 20, 0)
	require.NoError(t, s.ApplyBlock(b1, nil, nil, nil))

	work, ok, err := s.ReadCumulativeWork(b1.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(30), work)
}

func TestAccountAndReceiptRoundTrip(t *testing.T) {
	s := openTestStore(t)
	genesis := makeBlock(0, chaintypes.Hash{}, 1, 0)

	acct := &chaintypes.Account{Address: []byte("addr-1"), Balance: 500, Nonce: 3}
	receipt := &chaintypes.Receipt{
		ID: "00000000000000000001-000000", Kind: "transfer", TxID: chaintypes.BytesToHash([]byte("tx-1")),
		From: []byte("addr-1"), To: []byte("addr-2"), Amount: 100, Fee: 1, OK: true,
	}

	require.NoError(t, s.ApplyBlock(genesis, []*chaintypes.Account{acct}, nil, []*chaintypes.Receipt{receipt}))

	gotAcct, ok, err := s.ReadAccount([]byte("addr-1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, acct.Balance, gotAcct.Balance)

	gotReceipt, ok, err := s.ReadReceipt(receipt.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, receipt.Amount, gotReceipt.Amount)

	byTx, ok, err := s.ReadReceiptByTx(receipt.TxID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, receipt.ID, byTx.ID)
}

func TestRevertBlockUndoesAccountChanges(t *testing.T) {
	s := openTestStore(t)
	genesis := makeBlock(0, chaintypes.Hash{}, 1, 0)
	before := chaintypes.Account{Address: []byte("addr-1"), Balance: 1000, Nonce: 0}
	require.NoError(t, s.ApplyBlock(genesis, []*chaintypes.Account{&before}, nil, nil))

	b1 := makeBlock(1, genesis.ID, 1, 0)
	after := &chaintypes.Account{Address: []byte("addr-1"), Balance: 900, Nonce: 1}
	deltas := []AccountDelta{{Address: []byte("addr-1"), Existed: true, Before: before}}
	require.NoError(t, s.ApplyBlock(b1, []*chaintypes.Account{after}, deltas, nil))

	gotAfter, _, err := s.ReadAccount([]byte("addr-1"))
	require.NoError(t, err)
	require.Equal(t, uint64(900), gotAfter.Balance)

	require.NoError(t, s.RevertBlock(b1))

	gotReverted, _, err := s.ReadAccount([]byte("addr-1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1000), gotReverted.Balance)

	tip, _, err := s.ReadTip()
	require.NoError(t, err)
	require.Equal(t, genesis.ID, tip)

	_, stillCanonical, err := s.ReadCanonicalHash(1)
	require.NoError(t, err)
	require.False(t, stillCanonical)
}

type stubApplier struct {
	invalid map[chaintypes.Hash]bool
}

func (a *stubApplier) Validate(block *chaintypes.Block) error {
	if a.invalid[block.ID] {
		return errors.New("stub: block marked invalid")
	}
	return nil
}

func (a *stubApplier) Effects(block *chaintypes.Block) ([]*chaintypes.Account, []AccountDelta, []*chaintypes.Receipt, error) {
	return nil, nil, nil, nil
}

func TestReorgSwitchesToHeavierChain(t *testing.T) {
	s := openTestStore(t)
	genesis := makeBlock(0, chaintypes.Hash{}, 10, 0)
	require.NoError(t, s.ApplyBlock(genesis, nil, nil, nil))

	oldB1 := makeBlock(1, genesis.ID, 10, 1)
	require.NoError(t, s.ApplyBlock(oldB1, nil, nil, nil))

	newB1 := makeBlock(1, genesis.ID, 10, 2)
	newB2 := makeBlock(2, newB1.ID, 15, 0)

	// Candidate blocks must exist in the store for ancestor-chain walking to
	// find them before Reorg can validate/apply them.
	require.NoError(t, WriteBlock(s.db, newB1))
	require.NoError(t, WriteBlock(s.db, newB2))

	applier := &stubApplier{invalid: map[chaintypes.Hash]bool{}}
	err := s.Reorg(newB2.ID, applier)
	require.NoError(t, err)

	tip, _, err := s.ReadTip()
	require.NoError(t, err)
	require.Equal(t, newB2.ID, tip)

	canon1, _, err := s.ReadCanonicalHash(1)
	require.NoError(t, err)
	require.Equal(t, newB1.ID, canon1)
}

func TestReorgRejectsLighterCandidate(t *testing.T) {
	s := openTestStore(t)
	genesis := makeBlock(0, chaintypes.Hash{}, 100, 0)
	require.NoError(t, s.ApplyBlock(genesis, nil, nil, nil))

	b1 := makeBlock(1, genesis.ID, 100, 0)
	require.NoError(t, s.ApplyBlock(b1, nil, nil, nil))

	lighter := makeBlock(1, genesis.ID, 1, 9)
	require.NoError(t, WriteBlock(s.db, lighter))

	err := s.Reorg(lighter.ID, &stubApplier{})
	require.ErrorIs(t, err, ErrNotMoreWork)
}

func TestOrphanRoundTrip(t *testing.T) {
	s := openTestStore(t)
	orphan := makeBlock(5, chaintypes.BytesToHash([]byte("unknown-parent")), 1, 0)

	batch := s.NewBatch()
	require.NoError(t, WriteOrphan(batch, orphan))
	require.NoError(t, commit(batch))

	got, ok, err := s.ReadOrphan(orphan.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, orphan.Header.Number, got.Header.Number)

	batch2 := s.NewBatch()
	require.NoError(t, DeleteOrphan(batch2, orphan.ID))
	require.NoError(t, commit(batch2))

	_, ok, err = s.ReadOrphan(orphan.ID)
	require.NoError(t, err)
	require.False(t, ok)
}
