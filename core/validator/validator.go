package validator

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/consensus/difficulty"
	"github.com/vision-project/vision-node/consensus/powengine"
	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/core/receipts"
	"github.com/vision-project/vision-node/internal/chaintypes"
)

// maxSkewSeconds bounds how far into the future a header's timestamp may
// claim to be (spec.md §4.7 step 2).
const maxSkewSeconds = 120

// powEngine is the subset of consensus/powengine.Engine validate_block
// depends on. Accepting the interface rather than the concrete type lets
// tests exercise every other validation step with a cheap stub, instead of
// paying for a real memory-hard proof-of-work search per test block.
type powEngine interface {
	Verify(header *chaintypes.Header) (chaintypes.Hash, bool, error)
}

var _ powEngine = (*powengine.Engine)(nil)

// Validator runs validate_block against a chain store and PoW engine. It
// satisfies chainstore.BlockApplier, so core/chainstore.Reorg can drive it
// directly.
type Validator struct {
	store   *chainstore.Store
	engine  powEngine
	journal *receipts.Journal
	now     func() uint64
}

// New creates a Validator bound to store, engine, and the receipt journal
// that assigns IDs to the receipts state application produces.
func New(store *chainstore.Store, engine *powengine.Engine, journal *receipts.Journal) *Validator {
	return &Validator{
		store:   store,
		engine:  engine,
		journal: journal,
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

var _ chainstore.BlockApplier = (*Validator)(nil)

// Validate runs every step of validate_block against block, using its
// parent (looked up by ParentHash) as context. It never mutates the store.
func (v *Validator) Validate(block *chaintypes.Block) error {
	if block.Header == nil {
		return newErr(InvalidEncoding, "nil header")
	}
	if len(block.Header.Miner) == 0 {
		return newErr(InvalidEncoding, "empty miner field")
	}

	parent, ok, err := v.store.ReadBlock(block.Header.ParentHash)
	if err != nil {
		return newErr(DatasetError, fmt.Sprintf("reading parent: %v", err))
	}
	if !ok {
		return newErr(UnknownParent, block.Header.ParentHash.String())
	}

	if err := v.checkTimestamp(block.Header, parent.Header); err != nil {
		return err
	}
	if err := v.checkDifficulty(block.Header, parent); err != nil {
		return err
	}
	if err := v.checkProofOfWork(block.Header, block.ID); err != nil {
		return err
	}
	if err := v.checkTxRoot(block); err != nil {
		return err
	}
	accountsBefore, err := v.loadAccounts(block.Txs, block.Header.Miner)
	if err != nil {
		return newErr(DatasetError, err.Error())
	}
	if err := v.checkTxCapabilities(block.Txs, accountsBefore); err != nil {
		return err
	}
	accountsAfter, _, receipts, err := v.applyTxs(block, accountsBefore)
	if err != nil {
		return newErr(DatasetError, err.Error())
	}
	if err := v.checkReceiptsRoot(block, receipts); err != nil {
		return err
	}
	if err := v.checkStateRoot(block, accountsAfter, parent); err != nil {
		return err
	}

	log.Debug("Block validated", "id", block.ID, "number", block.Header.Number, "txs", len(block.Txs))
	return nil
}

// ValidateHeader runs the subset of validate_block that depends only on a
// header and its already-accepted parent: timestamp skew, the difficulty
// retarget, and the PoW digest (spec.md §4.7 steps 2-4, the "context-free"
// half safe to run before a block's transaction list has even arrived). It
// is what the Sync Engine calls against a Headers response before queuing
// bodies; full Validate still runs once a body is in hand. wantID is the
// hash the peer claims for h; it is checked against the recomputed digest,
// never trusted outright.
func (v *Validator) ValidateHeader(h *chaintypes.Header, wantID chaintypes.Hash) error {
	parent, ok, err := v.store.ReadBlock(h.ParentHash)
	if err != nil {
		return newErr(DatasetError, fmt.Sprintf("reading parent: %v", err))
	}
	if !ok {
		return newErr(UnknownParent, h.ParentHash.String())
	}
	if err := v.checkTimestamp(h, parent.Header); err != nil {
		return err
	}
	if err := v.checkDifficulty(h, parent); err != nil {
		return err
	}
	return v.checkProofOfWork(h, wantID)
}

// Effects computes the account states, undo deltas, and receipts produced
// by applying block's transactions. Only meaningful once Validate has
// already accepted the block.
func (v *Validator) Effects(block *chaintypes.Block) ([]*chaintypes.Account, []chainstore.AccountDelta, []*chaintypes.Receipt, error) {
	_, ok, err := v.store.ReadBlock(block.Header.ParentHash)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, fmt.Errorf("validator: parent %s not found", block.Header.ParentHash)
	}
	accountsBefore, err := v.loadAccounts(block.Txs, block.Header.Miner)
	if err != nil {
		return nil, nil, nil, err
	}
	accountsAfter, deltas, receipts, err := v.applyTxs(block, accountsBefore)
	if err != nil {
		return nil, nil, nil, err
	}
	return accountsAfter, deltas, receipts, nil
}

func (v *Validator) checkTimestamp(h, parent *chaintypes.Header) error {
	if h.Timestamp <= parent.Timestamp {
		return newErr(BadTimestamp, fmt.Sprintf("timestamp %d does not exceed parent timestamp %d", h.Timestamp, parent.Timestamp))
	}
	if h.Timestamp > v.now()+maxSkewSeconds {
		return newErr(BadTimestamp, fmt.Sprintf("timestamp %d exceeds now+skew", h.Timestamp))
	}
	return nil
}

func (v *Validator) checkDifficulty(h *chaintypes.Header, parent *chaintypes.Block) error {
	timestamps, err := v.collectTimestamps(parent, difficulty.Window+1)
	if err != nil {
		return newErr(DatasetError, err.Error())
	}
	expected := difficulty.Next(timestamps, parent.Header.Difficulty)
	if h.Difficulty != expected {
		return newErr(BadDifficulty, fmt.Sprintf("have %d want %d", h.Difficulty, expected))
	}
	return nil
}

func (v *Validator) collectTimestamps(tip *chaintypes.Block, count int) ([]uint64, error) {
	ts := []uint64{tip.Header.Timestamp}
	cur := tip
	for len(ts) < count {
		if cur.Header.Number == 0 {
			break
		}
		parent, ok, err := v.store.ReadBlock(cur.Header.ParentHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		ts = append([]uint64{parent.Header.Timestamp}, ts...)
		cur = parent
	}
	return ts, nil
}

// checkProofOfWork recomputes the PoW digest from h's pre-image and
// requires it to match wantID exactly (spec.md §3 "pow_hash ... recomputed
// from the PoW pre-image, never trusted from the wire"): block_id is never
// taken at face value, only ever the recomputed digest.
func (v *Validator) checkProofOfWork(h *chaintypes.Header, wantID chaintypes.Hash) error {
	digest, ok, err := v.engine.Verify(h)
	if err != nil {
		return newErr(DatasetError, err.Error())
	}
	if !ok {
		return newErr(InsufficientWork, fmt.Sprintf("digest %s exceeds target for difficulty %d", digest, h.Difficulty))
	}
	if digest != wantID {
		return newErr(InsufficientWork, fmt.Sprintf("claimed block id %s does not match recomputed digest %s", wantID, digest))
	}
	return nil
}

func (v *Validator) checkTxRoot(block *chaintypes.Block) error {
	want := chaintypes.TxRoot(block.Txs)
	if block.Header.TxRoot != want {
		return newErr(BadTxRoot, fmt.Sprintf("have %s want %s", block.Header.TxRoot, want))
	}
	return nil
}

func (v *Validator) checkReceiptsRoot(block *chaintypes.Block, receipts []*chaintypes.Receipt) error {
	want := chaintypes.ReceiptsRoot(receipts)
	if block.Header.ReceiptsRoot != want {
		return newErr(BadReceiptsRoot, fmt.Sprintf("have %s want %s", block.Header.ReceiptsRoot, want))
	}
	return nil
}

func (v *Validator) checkStateRoot(block *chaintypes.Block, accountsAfter []*chaintypes.Account, parent *chaintypes.Block) error {
	want, err := v.ComputeStateRoot(accountsAfter)
	if err != nil {
		return newErr(DatasetError, err.Error())
	}
	if block.Header.StateRoot != want {
		return newErr(BadStateRoot, fmt.Sprintf("have %s want %s", block.Header.StateRoot, want))
	}
	return nil
}

// ComputeStateRoot combines the accounts a block's transactions touched
// with every other account already in the store, sorted by address, and
// returns the resulting full-state commitment. Exposed so the Miner can
// compute a candidate block's state_root before handing it to Validate —
// the same computation checkStateRoot performs internally.
func (v *Validator) ComputeStateRoot(touched []*chaintypes.Account) (chaintypes.Hash, error) {
	merged, err := v.mergeWithUntouched(touched)
	if err != nil {
		return chaintypes.Hash{}, err
	}
	return chaintypes.AccountsRoot(merged), nil
}

// mergeWithUntouched combines touched accounts with every other account
// already in the store, sorted by address, so AccountsRoot commits to the
// full state rather than just the delta.
func (v *Validator) mergeWithUntouched(touched []*chaintypes.Account) ([]*chaintypes.Account, error) {
	all, err := v.store.AllAccounts()
	if err != nil {
		return nil, err
	}
	byAddr := make(map[string]*chaintypes.Account, len(all)+len(touched))
	for _, a := range all {
		byAddr[string(a.Address)] = a
	}
	for _, a := range touched {
		byAddr[string(a.Address)] = a
	}
	merged := make([]*chaintypes.Account, 0, len(byAddr))
	for _, a := range byAddr {
		merged = append(merged, a)
	}
	sortAccounts(merged)
	return merged, nil
}
