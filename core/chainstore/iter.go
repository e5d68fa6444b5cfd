package chainstore

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// prefixUpperBound returns the smallest key that is greater than every key
// beginning with prefix, for use as a pebble.IterOptions.UpperBound.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte{}, prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes; no upper bound needed
}

// AllAccounts returns every account in the state tree, ordered by address
// (pebble's key-ordered iteration over accountPrefix already yields this
// order, since keys are accountPrefix+address). Used by the validator to
// compute the full-state commitment after applying a block.
func (s *Store) AllAccounts() ([]*chaintypes.Account, error) {
	opts := &pebble.IterOptions{LowerBound: accountPrefix, UpperBound: prefixUpperBound(accountPrefix)}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("chainstore: iterating accounts: %w", err)
	}
	defer iter.Close()

	var accounts []*chaintypes.Account
	for iter.First(); iter.Valid(); iter.Next() {
		var sa storedAccount
		if err := rlp.DecodeBytes(iter.Value(), &sa); err != nil {
			return nil, fmt.Errorf("chainstore: decoding account at %x: %w", iter.Key(), err)
		}
		accounts = append(accounts, sa.toAccount())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("chainstore: account iteration: %w", err)
	}
	return accounts, nil
}

// LatestReceipts returns up to limit receipts, most recent first. Receipt
// keys are ts_ns-then-counter strings (core/receipts.Journal), so pebble's
// natural key order is also chronological order.
func (s *Store) LatestReceipts(limit int) ([]*chaintypes.Receipt, error) {
	opts := &pebble.IterOptions{LowerBound: receiptPrefix, UpperBound: prefixUpperBound(receiptPrefix)}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("chainstore: iterating receipts: %w", err)
	}
	defer iter.Close()

	var receipts []*chaintypes.Receipt
	for iter.Last(); iter.Valid() && len(receipts) < limit; iter.Prev() {
		var sr storedReceipt
		if err := rlp.DecodeBytes(iter.Value(), &sr); err != nil {
			return nil, fmt.Errorf("chainstore: decoding receipt at %x: %w", iter.Key(), err)
		}
		receipts = append(receipts, sr.toReceipt())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("chainstore: receipt iteration: %w", err)
	}
	return receipts, nil
}
