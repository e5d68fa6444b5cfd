package chainstore

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// ApplyBlock performs the single atomic batch that constitutes "apply block
// B" (spec.md §4.4): write the block body, extend the canonical height
// index, apply the resulting account states, write receipts, record the
// undo log, and move the tip — or none of it, if anything fails before
// Commit. accountsAfter is the full post-block state of every account the
// block touched; deltas is their pre-block state, used only to undo this
// block later.
func (s *Store) ApplyBlock(block *chaintypes.Block, accountsAfter []*chaintypes.Account, deltas []AccountDelta, receipts []*chaintypes.Receipt) error {
	parentWork, _, err := s.ReadCumulativeWork(block.Header.ParentHash)
	if err != nil {
		return err
	}
	work := parentWork + block.Header.Difficulty

	batch := s.NewBatch()
	defer batch.Close()

	if err := WriteBlock(batch, block); err != nil {
		return err
	}
	if err := WriteCanonicalHash(batch, block.Header.Number, block.ID); err != nil {
		return err
	}
	for _, acc := range accountsAfter {
		if err := WriteAccount(batch, acc); err != nil {
			return err
		}
	}
	for _, r := range receipts {
		if err := WriteReceipt(batch, r); err != nil {
			return err
		}
	}
	if err := WriteDeltaLog(batch, block.ID, deltas); err != nil {
		return err
	}
	if err := WriteCumulativeWork(batch, block.ID, work); err != nil {
		return err
	}
	if err := WriteTip(batch, block.ID); err != nil {
		return err
	}

	if err := commit(batch); err != nil {
		return fmt.Errorf("chainstore: apply block %s: %w", block.ID, err)
	}
	log.Debug("Applied block", "id", block.ID, "number", block.Header.Number, "txs", len(block.Txs))
	s.tipFeed.Send(block)
	return nil
}

// RevertBlock undoes exactly the effects ApplyBlock committed for block,
// restoring each touched account to its pre-block state and moving the tip
// to the block's parent. It is one atomic batch, per spec.md §4.4's
// requirement that a reorg revert each block in its own batch.
func (s *Store) RevertBlock(block *chaintypes.Block) error {
	deltas, ok, err := s.ReadDeltaLog(block.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("chainstore: no undo log for block %s, cannot revert", block.ID)
	}

	batch := s.NewBatch()
	defer batch.Close()

	for _, d := range deltas {
		if !d.Existed {
			if err := DeleteAccount(batch, d.Address); err != nil {
				return err
			}
			continue
		}
		before := d.Before
		if err := WriteAccount(batch, &before); err != nil {
			return err
		}
	}
	if err := DeleteCanonicalHash(batch, block.Header.Number); err != nil {
		return err
	}
	if err := WriteTip(batch, block.Header.ParentHash); err != nil {
		return err
	}

	if err := commit(batch); err != nil {
		return fmt.Errorf("chainstore: revert block %s: %w", block.ID, err)
	}
	log.Debug("Reverted block", "id", block.ID, "number", block.Header.Number)

	parent, ok, err := s.ReadBlock(block.Header.ParentHash)
	if err == nil && ok {
		s.tipFeed.Send(parent)
	}
	return nil
}
