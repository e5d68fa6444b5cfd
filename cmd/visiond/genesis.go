package main

import (
	"encoding/hex"
	"fmt"

	"github.com/vision-project/vision-node/consensus/difficulty"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/internal/config"
)

// genesisHash parses the chain's genesis_pow_hash (spec.md §4.2's epoch seed
// input, also genesis block identity) from its configured hex form.
func genesisHash(sc config.StaticConfig) (chaintypes.Hash, error) {
	raw, err := hex.DecodeString(sc.GenesisPowHash)
	if err != nil {
		return chaintypes.Hash{}, fmt.Errorf("genesis_pow_hash %q is not valid hex: %w", sc.GenesisPowHash, err)
	}
	if len(raw) != chaintypes.HashLength {
		return chaintypes.Hash{}, fmt.Errorf("genesis_pow_hash %q must decode to %d bytes, got %d", sc.GenesisPowHash, chaintypes.HashLength, len(raw))
	}
	return chaintypes.BytesToHash(raw), nil
}

// buildGenesisBlock assembles the chain's block 0. Unlike every later
// block, genesis is axiomatic: its id is the configured genesis_pow_hash
// itself, not a hash the network has to search a nonce to reach, since
// there is no parent difficulty to target yet.
func buildGenesisBlock(sc config.StaticConfig) (*chaintypes.Block, error) {
	hash, err := genesisHash(sc)
	if err != nil {
		return nil, err
	}
	header := &chaintypes.Header{
		Number:     0,
		Timestamp:  0,
		Difficulty: difficulty.BootstrapDifficulty,
	}
	return &chaintypes.Block{Header: header, ID: hash}, nil
}
