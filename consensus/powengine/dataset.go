package powengine

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Dataset is the epoch-indexed, deterministically expanded byte array the
// memory-hard mix function reads from (spec.md §4.2).
type Dataset struct {
	Epoch uint64
	Words []uint64
}

// EpochSeed derives the seed for a dataset deterministically from
// (chain_id, genesis_pow_hash, epoch) only — never from any post-genesis
// block — so nodes on different forks still agree on the dataset for any
// given epoch (spec.md §4.2). SHA-256 with the domain-separation tag
// "EPOCH_SEED_V1" named in spec.md §4.2 verbatim.
func EpochSeed(chainID string, genesisPowHash [32]byte, epoch uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte("EPOCH_SEED_V1"))
	h.Write([]byte(chainID))
	h.Write(genesisPowHash[:])
	var epochLE [8]byte
	binary.LittleEndian.PutUint64(epochLE[:], epoch)
	h.Write(epochLE[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BuildDataset deterministically expands seed into DatasetWords 64-bit words
// using a simple counter-mode SHA-256 stream. Any change to this expansion
// is a hard fork (spec.md §4.2).
func BuildDataset(epoch uint64, seed [32]byte) *Dataset {
	words := make([]uint64, DatasetWords)
	var counter uint64
	for i := 0; i < len(words); i += 4 {
		var counterLE [8]byte
		binary.LittleEndian.PutUint64(counterLE[:], counter)
		h := sha256.New()
		h.Write(seed[:])
		h.Write(counterLE[:])
		block := h.Sum(nil) // 32 bytes = 4 words
		for j := 0; j < 4 && i+j < len(words); j++ {
			words[i+j] = binary.LittleEndian.Uint64(block[j*8 : j*8+8])
		}
		counter++
	}
	return &Dataset{Epoch: epoch, Words: words}
}

// DatasetCache caches the dataset for the current and previous epoch (LRU
// size 2, spec.md §4.2 "Dataset cache"), amortizing construction cost across
// validations within the same epoch.
type DatasetCache struct {
	chainID        string
	genesisPowHash [32]byte
	cache          *lru.Cache[uint64, *Dataset]
}

// NewDatasetCache creates a cache bound to a specific chain and genesis, so
// datasets from different networks never collide under the same epoch key.
func NewDatasetCache(chainID string, genesisPowHash [32]byte) *DatasetCache {
	c, _ := lru.New[uint64, *Dataset](2)
	return &DatasetCache{chainID: chainID, genesisPowHash: genesisPowHash, cache: c}
}

// Get returns the dataset for epoch, building and caching it on first use.
func (dc *DatasetCache) Get(epoch uint64) *Dataset {
	if ds, ok := dc.cache.Get(epoch); ok {
		return ds
	}
	seed := EpochSeed(dc.chainID, dc.genesisPowHash, epoch)
	ds := BuildDataset(epoch, seed)
	dc.cache.Add(epoch, ds)
	log.Debug("Built PoW epoch dataset", "epoch", epoch, "sizeMB", DatasetMB)
	return ds
}
