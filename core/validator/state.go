package validator

import (
	"fmt"
	"sort"

	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/core/receipts"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/internal/identity"
)

const minFee = 1

// loadAccounts reads every account a block's application can touch — each
// transaction's sender, every transfer recipient, and the block's miner —
// from the store as it stands before the block is applied. Accounts that
// don't exist yet are represented as a zero-value Account (Existed is
// tracked separately by applyTxs' delta bookkeeping), so a miner or
// recipient appearing for the first time is never confused with one whose
// balance is genuinely zero.
func (v *Validator) loadAccounts(txs []*chaintypes.Transaction, minerAddress []byte) (map[string]*chaintypes.Account, error) {
	out := make(map[string]*chaintypes.Account)
	fetch := func(address []byte) error {
		key := string(address)
		if _, ok := out[key]; ok {
			return nil
		}
		acct, ok, err := v.store.ReadAccount(address)
		if err != nil {
			return err
		}
		if !ok {
			acct = &chaintypes.Account{Address: append([]byte(nil), address...)}
		}
		out[key] = acct
		return nil
	}
	for _, tx := range txs {
		if err := fetch(tx.Sender); err != nil {
			return nil, fmt.Errorf("validator: loading sender %x: %w", tx.Sender, err)
		}
		if tp, ok, err := chaintypes.DecodeTransferPayload(tx.Payload); err == nil && ok {
			if err := fetch(tp.To); err != nil {
				return nil, fmt.Errorf("validator: loading recipient %x: %w", tp.To, err)
			}
		}
	}
	if len(minerAddress) > 0 {
		if err := fetch(minerAddress); err != nil {
			return nil, fmt.Errorf("validator: loading miner %x: %w", minerAddress, err)
		}
	}
	return out, nil
}

// checkTxCapabilities runs the per-transaction pre-checks that spec.md
// §4.7 step 6 requires before any state is touched: canonical encoding
// exists, signature verifies, sender's nonce equals expected next, and fee
// meets the minimum. It does NOT check balance sufficiency for the
// transfer amount itself — that is a runtime outcome recorded in the
// receipt (OK: false), not a block-rejection condition.
func (v *Validator) checkTxCapabilities(txs []*chaintypes.Transaction, accounts map[string]*chaintypes.Account) error {
	expectedNonce := make(map[string]uint64)
	for i, tx := range txs {
		if len(tx.Sender) == 0 || len(tx.Signature) == 0 {
			return newTxErr(i, "missing sender or signature")
		}
		if !identity.Verify(tx.Sender, tx.SigningPayload(), tx.Signature) {
			return newTxErr(i, "signature does not verify")
		}
		if tx.Fee < minFee {
			return newTxErr(i, fmt.Sprintf("fee %d below minimum %d", tx.Fee, minFee))
		}
		key := string(tx.Sender)
		next, seen := expectedNonce[key]
		if !seen {
			next = accounts[key].Nonce
		}
		if tx.Nonce != next {
			return newTxErr(i, fmt.Sprintf("nonce %d does not match expected %d", tx.Nonce, next))
		}
		expectedNonce[key] = next + 1
	}
	return nil
}

// applyTxs runs every transaction in block against a private copy of
// accountsBefore, returning the resulting account set, an undo log of every
// first-touched account's prior state, and one receipt per transaction. The
// miner is credited the sum of included fees; spec.md defines no block
// subsidy, so mining income is fee revenue only.
func (v *Validator) applyTxs(block *chaintypes.Block, accountsBefore map[string]*chaintypes.Account) ([]*chaintypes.Account, []chainstore.AccountDelta, []*chaintypes.Receipt, error) {
	working := make(map[string]*chaintypes.Account, len(accountsBefore))
	var deltas []chainstore.AccountDelta
	var lookupErr error
	touch := func(address []byte) *chaintypes.Account {
		key := string(address)
		if a, ok := working[key]; ok {
			return a
		}
		before, hadOne := accountsBefore[key]
		_, wasPresent, err := v.store.ReadAccount(address)
		if err != nil && lookupErr == nil {
			lookupErr = err
		}
		var beforeCopy chaintypes.Account
		if hadOne {
			beforeCopy = *before
		} else {
			beforeCopy = chaintypes.Account{Address: append([]byte(nil), address...)}
		}
		deltas = append(deltas, chainstore.AccountDelta{
			Address: append([]byte(nil), address...),
			Existed: wasPresent,
			Before:  beforeCopy,
		})
		a := beforeCopy
		working[key] = &a
		return working[key]
	}

	var receipts []*chaintypes.Receipt
	var totalFees uint64
	for _, tx := range block.Txs {
		sender := touch(tx.Sender)
		sender.Balance -= minOf(sender.Balance, tx.Fee) // fee is always charged, clamped at zero if the sender can't fully cover it
		sender.Nonce++
		totalFees += tx.Fee

		r := &chaintypes.Receipt{
			ID:   v.journal.NextID(),
			TxID: tx.ID(),
			From: tx.Sender,
			Fee:  tx.Fee,
			Kind: "transfer",
		}

		tp, ok, decodeErr := chaintypes.DecodeTransferPayload(tx.Payload)
		switch {
		case decodeErr != nil || !ok:
			r.Kind = "opaque"
			r.OK = true
			r.Note = "non-transfer payload applied as fee-only"
		case sender.Balance < tp.Amount:
			r.To = tp.To
			r.Amount = tp.Amount
			r.OK = false
			r.Note = "insufficient balance for transfer amount"
		default:
			recipient := touch(tp.To)
			sender.Balance -= tp.Amount
			recipient.Balance += tp.Amount
			r.To = tp.To
			r.Amount = tp.Amount
			r.OK = true
		}
		receipts = append(receipts, r)
	}

	if totalFees > 0 && len(block.Header.Miner) > 0 {
		miner := touch(block.Header.Miner)
		miner.Balance += totalFees
	}
	if lookupErr != nil {
		return nil, nil, nil, fmt.Errorf("validator: reading prior account state: %w", lookupErr)
	}

	accountsAfter := make([]*chaintypes.Account, 0, len(working))
	for _, a := range working {
		accountsAfter = append(accountsAfter, a)
	}
	sortAccounts(accountsAfter)

	return accountsAfter, deltas, receipts, nil
}

func minOf(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func sortAccounts(accounts []*chaintypes.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return string(accounts[i].Address) < string(accounts[j].Address)
	})
}
