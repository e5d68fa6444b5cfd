package main

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
)

// storeAccountView adapts chainstore.Store's ReadAccount (which also
// returns an error) to the two-value mempool.Validator.Account contract:
// a storage error is logged and treated the same as "account not found",
// since the mempool has no error return of its own to propagate it through.
type storeAccountView struct {
	store *chainstore.Store
}

func (v *storeAccountView) Account(address []byte) (*chaintypes.Account, bool) {
	acct, ok, err := v.store.ReadAccount(address)
	if err != nil {
		log.Error("Mempool account lookup failed", "err", err)
		return nil, false
	}
	return acct, ok
}
