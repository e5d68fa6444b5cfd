package chainstore

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// readRLP fetches key and RLP-decodes it into out. It reports (false, nil)
// on a clean miss: data == nil means not found, not an error.
func readRLP(db pebble.Reader, key []byte, out interface{}) (bool, error) {
	data, closer, err := db.Get(key)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("chainstore: get %x: %w", key, err)
	}
	decodeErr := rlp.DecodeBytes(data, out)
	_ = closer.Close()
	if decodeErr != nil {
		return false, fmt.Errorf("chainstore: decode %x: %w", key, decodeErr)
	}
	return true, nil
}

func writeRLP(w pebble.Writer, key []byte, value interface{}) error {
	enc, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("chainstore: encode %x: %w", key, err)
	}
	if err := w.Set(key, enc, nil); err != nil {
		return fmt.Errorf("chainstore: set %x: %w", key, err)
	}
	return nil
}

// ReadBlock returns the block stored under id, or (nil, false, nil) if absent.
func (s *Store) ReadBlock(id chaintypes.Hash) (*chaintypes.Block, bool, error) {
	var sb storedBlock
	ok, err := readRLP(s.db, blockKey(id), &sb)
	if !ok || err != nil {
		return nil, ok, err
	}
	return sb.toBlock(), true, nil
}

// WriteBlock stores block in the batch under its own ID. Callers apply the
// canonical index and tip pointer separately as part of the same batch.
func WriteBlock(w pebble.Writer, block *chaintypes.Block) error {
	return writeRLP(w, blockKey(block.ID), toStoredBlock(block))
}

// DeleteBlock removes a block's body. Used when pruning orphans that never
// became canonical.
func DeleteBlock(w pebble.Writer, id chaintypes.Hash) error {
	if err := w.Delete(blockKey(id), nil); err != nil {
		return fmt.Errorf("chainstore: delete block %s: %w", id, err)
	}
	return nil
}

// ReadCanonicalHash returns the block id canonical at height number.
func (s *Store) ReadCanonicalHash(number uint64) (chaintypes.Hash, bool, error) {
	data, closer, err := s.db.Get(canonicalKey(number))
	if isNotFound(err) {
		return chaintypes.Hash{}, false, nil
	}
	if err != nil {
		return chaintypes.Hash{}, false, fmt.Errorf("chainstore: read canonical height %d: %w", number, err)
	}
	id := chaintypes.BytesToHash(data)
	_ = closer.Close()
	return id, true, nil
}

// WriteCanonicalHash marks id as canonical at height number.
func WriteCanonicalHash(w pebble.Writer, number uint64, id chaintypes.Hash) error {
	if err := w.Set(canonicalKey(number), id.Bytes(), nil); err != nil {
		return fmt.Errorf("chainstore: write canonical height %d: %w", number, err)
	}
	return nil
}

// DeleteCanonicalHash removes the canonical mapping at height number, used
// when reverting blocks during a reorg.
func DeleteCanonicalHash(w pebble.Writer, number uint64) error {
	if err := w.Delete(canonicalKey(number), nil); err != nil {
		return fmt.Errorf("chainstore: delete canonical height %d: %w", number, err)
	}
	return nil
}

// ReadAccount returns the account state stored for address.
func (s *Store) ReadAccount(address []byte) (*chaintypes.Account, bool, error) {
	var sa storedAccount
	ok, err := readRLP(s.db, accountKey(address), &sa)
	if !ok || err != nil {
		return nil, ok, err
	}
	return sa.toAccount(), true, nil
}

// WriteAccount stores the account state for address.
func WriteAccount(w pebble.Writer, account *chaintypes.Account) error {
	return writeRLP(w, accountKey(account.Address), toStoredAccount(account))
}

// DeleteAccount removes an account's state entirely (used when reverting to
// a point before the account ever existed).
func DeleteAccount(w pebble.Writer, address []byte) error {
	if err := w.Delete(accountKey(address), nil); err != nil {
		return fmt.Errorf("chainstore: delete account %x: %w", address, err)
	}
	return nil
}

// ReadReceipt returns the receipt stored under its monotonic journal key.
func (s *Store) ReadReceipt(id string) (*chaintypes.Receipt, bool, error) {
	var sr storedReceipt
	ok, err := readRLP(s.db, receiptKey(id), &sr)
	if !ok || err != nil {
		return nil, ok, err
	}
	return sr.toReceipt(), true, nil
}

// ReadReceiptByTx looks up a receipt via its transaction id secondary index.
func (s *Store) ReadReceiptByTx(txID chaintypes.Hash) (*chaintypes.Receipt, bool, error) {
	data, closer, err := s.db.Get(receiptByTxKey(txID))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("chainstore: read receipt index for tx %s: %w", txID, err)
	}
	key := append([]byte{}, data...)
	_ = closer.Close()
	return s.ReadReceipt(string(key))
}

// WriteReceipt stores a receipt under its monotonic key and indexes it by
// transaction id.
func WriteReceipt(w pebble.Writer, r *chaintypes.Receipt) error {
	if err := writeRLP(w, receiptKey(r.ID), toStoredReceipt(r)); err != nil {
		return err
	}
	if err := w.Set(receiptByTxKey(r.TxID), []byte(r.ID), nil); err != nil {
		return fmt.Errorf("chainstore: index receipt %s by tx %s: %w", r.ID, r.TxID, err)
	}
	return nil
}

// ReadTip returns the current canonical head's block id.
func (s *Store) ReadTip() (chaintypes.Hash, bool, error) {
	data, closer, err := s.db.Get(metaTipKey)
	if isNotFound(err) {
		return chaintypes.Hash{}, false, nil
	}
	if err != nil {
		return chaintypes.Hash{}, false, fmt.Errorf("chainstore: read tip: %w", err)
	}
	id := chaintypes.BytesToHash(data)
	_ = closer.Close()
	return id, true, nil
}

// WriteTip sets the current canonical head.
func WriteTip(w pebble.Writer, id chaintypes.Hash) error {
	if err := w.Set(metaTipKey, id.Bytes(), nil); err != nil {
		return fmt.Errorf("chainstore: write tip: %w", err)
	}
	return nil
}

// ReadCumulativeWork returns the total difficulty accumulated from genesis
// through id.
func (s *Store) ReadCumulativeWork(id chaintypes.Hash) (uint64, bool, error) {
	data, closer, err := s.db.Get(cumulativeWorkKey(id))
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("chainstore: read cumulative work for %s: %w", id, err)
	}
	work := binary.BigEndian.Uint64(data[len(data)-8:])
	_ = closer.Close()
	return work, true, nil
}

// WriteCumulativeWork stores the total difficulty accumulated through id.
func WriteCumulativeWork(w pebble.Writer, id chaintypes.Hash, work uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], work)
	if err := w.Set(cumulativeWorkKey(id), buf[:], nil); err != nil {
		return fmt.Errorf("chainstore: write cumulative work for %s: %w", id, err)
	}
	return nil
}

// WriteDeltaLog stores the undo log for a block's state-changing effects.
func WriteDeltaLog(w pebble.Writer, blockID chaintypes.Hash, deltas []AccountDelta) error {
	return writeRLP(w, deltaKey(blockID), &storedDeltaLog{Deltas: deltas})
}

// ReadDeltaLog returns the undo log written for blockID by WriteDeltaLog.
func (s *Store) ReadDeltaLog(blockID chaintypes.Hash) ([]AccountDelta, bool, error) {
	var log storedDeltaLog
	ok, err := readRLP(s.db, deltaKey(blockID), &log)
	if !ok || err != nil {
		return nil, ok, err
	}
	return log.Deltas, true, nil
}

// DeleteDeltaLog removes a block's undo log once it can no longer be
// reverted (beyond any supported reorg depth).
func DeleteDeltaLog(w pebble.Writer, blockID chaintypes.Hash) error {
	if err := w.Delete(deltaKey(blockID), nil); err != nil {
		return fmt.Errorf("chainstore: delete delta log for %s: %w", blockID, err)
	}
	return nil
}

// ReadOrphan returns a block held pending its parent's arrival.
func (s *Store) ReadOrphan(id chaintypes.Hash) (*chaintypes.Block, bool, error) {
	var sb storedBlock
	ok, err := readRLP(s.db, orphanKey(id), &sb)
	if !ok || err != nil {
		return nil, ok, err
	}
	return sb.toBlock(), true, nil
}

// WriteOrphan stores a block that cannot yet be applied because its parent
// is unknown.
func WriteOrphan(w pebble.Writer, block *chaintypes.Block) error {
	return writeRLP(w, orphanKey(block.ID), toStoredBlock(block))
}

// DeleteOrphan removes a pending block, typically once its parent has
// arrived and it has been promoted into the main block tree.
func DeleteOrphan(w pebble.Writer, id chaintypes.Hash) error {
	if err := w.Delete(orphanKey(id), nil); err != nil {
		return fmt.Errorf("chainstore: delete orphan %s: %w", id, err)
	}
	return nil
}
