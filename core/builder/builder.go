// Package builder assembles block templates for the miner (spec.md §4.6).
// Its environment/generation-tagging shape follows a prepareWork/generateWork
// split: an environment struct (here, BlockTemplate) produced from chain +
// pool state, generalized from gas-pool accounting to a plain tx-count/weight
// budget, and a generation counter the miner polls instead of an atomic
// commitInterrupt signal, since this chain's work units (nonce batches) are
// cheap enough to check a counter between every batch rather than needing a
// timer-driven interrupt.
package builder

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/consensus/difficulty"
	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/core/mempool"
	"github.com/vision-project/vision-node/internal/chaintypes"
)

// BlockTemplate is the draft header and tx list the miner searches nonces
// against. StateRoot and ReceiptsRoot are left zero: spec.md §4.6 assigns
// computing them to the post-mining execution step, since they never enter
// the PoW pre-image.
type BlockTemplate struct {
	Header     *chaintypes.Header
	Txs        []*chaintypes.Transaction
	Generation uint64
}

// Builder produces BlockTemplates from the current chain tip and mempool
// contents, invalidating its cached template whenever the tip moves.
type Builder struct {
	store        *chainstore.Store
	pool         *mempool.Pool
	minerAddress []byte
	maxTxCount   int
	maxWeight    uint64
	now          func() uint64 // overridable for deterministic tests

	mu         sync.RWMutex
	current    *BlockTemplate
	generation uint64
}

// New creates a Builder. minerAddress is the configured node identity's
// address, used verbatim as the header's miner field.
func New(store *chainstore.Store, pool *mempool.Pool, minerAddress []byte, maxTxCount int, maxWeight uint64) *Builder {
	return &Builder{
		store:        store,
		pool:         pool,
		minerAddress: minerAddress,
		maxTxCount:   maxTxCount,
		maxWeight:    maxWeight,
		now:          func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Current returns the most recently built template, or nil if Rebuild has
// never succeeded.
func (b *Builder) Current() *BlockTemplate {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Generation returns the current template generation, which the miner
// compares against the generation it started work with to detect staleness
// cheaply (spec.md §4.8 "On new tip or template change, stop is raised").
func (b *Builder) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// Rebuild assembles a fresh template from the current tip and pool
// contents and installs it as Current, bumping the generation so any miner
// worker still searching the old template notices and restarts. Callers
// invoke this once at startup and again every time the chain store's tip
// changes.
func (b *Builder) Rebuild() (*BlockTemplate, error) {
	tipID, hasTip, err := b.store.ReadTip()
	if err != nil {
		return nil, fmt.Errorf("builder: reading tip: %w", err)
	}
	if !hasTip {
		return nil, fmt.Errorf("builder: no chain tip yet")
	}
	tip, ok, err := b.store.ReadBlock(tipID)
	if err != nil {
		return nil, fmt.Errorf("builder: reading tip block %s: %w", tipID, err)
	}
	if !ok {
		return nil, fmt.Errorf("builder: tip block %s missing from store", tipID)
	}

	timestamps, err := b.collectTimestamps(tip, difficulty.Window+1)
	if err != nil {
		return nil, err
	}
	nextDifficulty := difficulty.Next(timestamps, tip.Header.Difficulty)

	now := b.now()
	timestamp := tip.Header.Timestamp + 1
	if now > timestamp {
		timestamp = now
	}

	txs := b.pool.SelectForBlock(b.maxTxCount, b.maxWeight)

	header := &chaintypes.Header{
		ParentHash:    tip.ID,
		Number:        tip.Header.Number + 1,
		Timestamp:     timestamp,
		Difficulty:    nextDifficulty,
		TxRoot:        chaintypes.TxRoot(txs),
		Miner:         b.minerAddress,
		BaseFeePerGas: tip.Header.BaseFeePerGas,
	}

	b.mu.Lock()
	b.generation++
	tmpl := &BlockTemplate{Header: header, Txs: txs, Generation: b.generation}
	b.current = tmpl
	b.mu.Unlock()

	log.Info("Rebuilt block template", "number", header.Number, "parent", tip.ID, "txs", len(txs), "difficulty", nextDifficulty, "generation", tmpl.Generation)
	return tmpl, nil
}

// collectTimestamps walks parent links from tip backwards, returning up to
// count timestamps oldest-first (including tip's own).
func (b *Builder) collectTimestamps(tip *chaintypes.Block, count int) ([]uint64, error) {
	ts := []uint64{tip.Header.Timestamp}
	cur := tip
	for len(ts) < count {
		if cur.Header.Number == 0 {
			break
		}
		parent, ok, err := b.store.ReadBlock(cur.Header.ParentHash)
		if err != nil {
			return nil, fmt.Errorf("builder: walking back from %s: %w", cur.ID, err)
		}
		if !ok {
			break
		}
		ts = append([]uint64{parent.Header.Timestamp}, ts...)
		cur = parent
	}
	return ts, nil
}
