// Package powengine implements the memory-hard proof-of-work function used
// to derive and verify block identity (spec.md §4.1-§4.2). It is consumed by
// the miner worker pool, the block validator, and p2p/sync's header
// pre-filter, all of
// which rely on Digest/Verify never trusting a pow_hash carried on the wire.
package powengine

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// ErrZeroDifficulty is returned when a header claims a difficulty of zero,
// which no valid block can ever have.
var ErrZeroDifficulty = errors.New("powengine: header difficulty is zero")

// Engine binds a dataset cache to a specific chain, so it can answer Mine
// and Verify for any header belonging to that chain.
type Engine struct {
	chainID        string
	genesisPowHash [32]byte
	datasets       *DatasetCache
}

// New creates an Engine for the given chain identity.
func New(chainID string, genesisPowHash [32]byte) *Engine {
	return &Engine{
		chainID:        chainID,
		genesisPowHash: genesisPowHash,
		datasets:       NewDatasetCache(chainID, genesisPowHash),
	}
}

// Verify recomputes the PoW digest for header and reports whether it meets
// header's own declared difficulty. It never trusts a block_id carried on
// the wire (spec.md §4.1); callers that need the digest for storage keying
// should take it from the returned value, not from header.
func (e *Engine) Verify(header *chaintypes.Header) (digest chaintypes.Hash, ok bool, err error) {
	if header.Difficulty == 0 {
		return chaintypes.Hash{}, false, ErrZeroDifficulty
	}
	ds := e.datasets.Get(Epoch(header.Number))
	preimage := header.EncodePreImage()
	raw := Digest(ds, preimage, header.Nonce)
	target := Target(header.Difficulty)
	return chaintypes.Hash(raw), MeetsTarget(raw, target), nil
}

// Mine searches nonces in [start, start+count) for one whose digest meets
// header's declared difficulty, returning the winning nonce and digest. It
// returns ok=false if no nonce in the range qualifies, or if stop reports
// true before one is found. The miner worker pool calls this once per
// assigned sub-range per polling batch (mineRound in miner/miner.go).
func (e *Engine) Mine(header *chaintypes.Header, start, count uint64, stop func() bool) (nonce uint64, digest chaintypes.Hash, ok bool) {
	if header.Difficulty == 0 {
		return 0, chaintypes.Hash{}, false
	}
	ds := e.datasets.Get(Epoch(header.Number))
	preimage := header.EncodePreImage()
	target := Target(header.Difficulty)

	const pollEvery = 1024
	for i := uint64(0); i < count; i++ {
		if i%pollEvery == 0 && stop != nil && stop() {
			return 0, chaintypes.Hash{}, false
		}
		n := start + i
		raw := Digest(ds, preimage, n)
		if MeetsTarget(raw, target) {
			return n, chaintypes.Hash(raw), true
		}
	}
	return 0, chaintypes.Hash{}, false
}

// DigestValue exposes a digest as a uint256 for callers that want to compare
// it against a target directly (e.g. logging the margin by which a block
// beat its target).
func DigestValue(digest chaintypes.Hash) *uint256.Int {
	var v uint256.Int
	v.SetBytes(digest[:])
	return &v
}
