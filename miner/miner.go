// Package miner runs the worker pool that searches for a valid proof-of-work
// nonce against the current block template (spec.md §4.8). Its
// generation-tagged template handling and interrupt idiom generalizes
// "stop filling the block because a new head arrived" to "stop searching
// nonces because a new tip or template arrived".
package miner

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/core/builder"
	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/internal/metrics"
)

// DefaultBatchSize matches spec.md §4.8's "batch size ~1024 nonces" between
// stop-flag polls.
const DefaultBatchSize = 1024

// powEngine is the subset of consensus/powengine.Engine the miner depends
// on. Accepting the interface lets tests substitute a cheap engine that
// finds a nonce on the first batch, instead of paying for a real
// memory-hard search.
type powEngine interface {
	Mine(header *chaintypes.Header, start, count uint64, stop func() bool) (nonce uint64, digest chaintypes.Hash, ok bool)
}

// blockApplier is the subset of core/validator.Validator the miner needs to
// re-enter the validation path with its own candidate, per spec.md §4.8
// ("the miner must accept its own block via the same path the network
// uses").
type blockApplier interface {
	Validate(block *chaintypes.Block) error
	Effects(block *chaintypes.Block) ([]*chaintypes.Account, []chainstore.AccountDelta, []*chaintypes.Receipt, error)
	ComputeStateRoot(accountsAfter []*chaintypes.Account) (chaintypes.Hash, error)
}

// templateSource is the subset of core/builder.Builder the miner depends
// on.
type templateSource interface {
	Current() *builder.BlockTemplate
	Generation() uint64
	Rebuild() (*builder.BlockTemplate, error)
}

// Miner owns a fixed-size worker pool that searches nonce space against the
// current block template, handing any successful candidate back through the
// normal validation and chain-store apply path.
type Miner struct {
	store     *chainstore.Store
	templates templateSource
	applier   blockApplier
	engine    powEngine

	numWorkers int
	batchSize  uint64

	mu      sync.Mutex
	running bool
	cancel  chan struct{}
	done    chan struct{}

	tipDirty atomic.Bool
}

// New creates a Miner. numWorkers controls the fixed worker pool size; if
// <= 0 it defaults to 1.
func New(store *chainstore.Store, templates templateSource, applier blockApplier, engine powEngine, numWorkers int) *Miner {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Miner{
		store:      store,
		templates:  templates,
		applier:    applier,
		engine:     engine,
		numWorkers: numWorkers,
		batchSize:  DefaultBatchSize,
	}
}

// Start launches the worker pool and the tip-change watcher. It is a no-op
// if the miner is already running.
func (m *Miner) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.cancel = make(chan struct{})
	m.done = make(chan struct{})
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	tipCh := make(chan *chaintypes.Block, 1)
	sub := m.store.SubscribeTipChanged(tipCh)

	go m.watchTip(cancel, tipCh, sub)
	go m.loop(cancel, done)

	log.Info("Miner started", "workers", m.numWorkers, "batch", m.batchSize)
}

// Stop signals the worker pool and tip watcher to halt and blocks until
// they have drained. It is a no-op if the miner is not running.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	close(cancel)
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	log.Info("Miner stopped")
}

func (m *Miner) stopped(cancel chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

// watchTip keeps the block template fresh whenever the chain tip moves,
// whether the new tip came from this miner's own accepted block or from
// sync/gossip applying a peer's block. tipDirty additionally lets an
// in-flight mining round notice a tip change without waiting for its next
// generation check.
func (m *Miner) watchTip(cancel chan struct{}, tipCh <-chan *chaintypes.Block, sub event.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-cancel:
			return
		case <-tipCh:
			m.tipDirty.Store(true)
			if _, err := m.templates.Rebuild(); err != nil {
				log.Warn("Miner failed to rebuild template after tip change", "err", err)
			}
		}
	}
}

func (m *Miner) loop(cancel chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		if m.stopped(cancel) {
			return
		}
		m.tipDirty.Store(false)

		tmpl := m.templates.Current()
		if tmpl == nil {
			var err error
			tmpl, err = m.templates.Rebuild()
			if err != nil {
				log.Warn("Miner has no template yet", "err", err)
				select {
				case <-cancel:
					return
				case <-time.After(time.Second):
				}
				continue
			}
		}

		nonce, digest, ok := m.mineRound(cancel, tmpl)
		if !ok {
			continue
		}

		if err := m.accept(tmpl, nonce, digest); err != nil {
			log.Warn("Miner's own candidate block was rejected", "err", err)
			continue
		}
		metrics.BlocksMined.Inc(1)
		if _, err := m.templates.Rebuild(); err != nil {
			log.Warn("Miner failed to rebuild template after mining a block", "err", err)
		}
	}
}

// mineRound runs the worker pool against tmpl until one worker finds a
// valid nonce, or the round is interrupted (shutdown, tip change, or a
// newer template generation). Each worker owns a disjoint nonce sub-range
// drawn from a shared counter, polling the shared stop condition between
// batches of m.batchSize nonces.
func (m *Miner) mineRound(cancel chan struct{}, tmpl *builder.BlockTemplate) (nonce uint64, digest chaintypes.Hash, ok bool) {
	var (
		nextBatch   uint64
		found       atomic.Bool
		resultNonce uint64
		resultDig   chaintypes.Hash
		resultOnce  sync.Once
		wg          sync.WaitGroup
	)

	stop := func() bool {
		return found.Load() || m.stopped(cancel) || m.tipDirty.Load() || m.templates.Generation() != tmpl.Generation
	}

	start := time.Now()
	var hashesDone atomic.Uint64

	for w := 0; w < m.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop() {
				batchStart := atomic.AddUint64(&nextBatch, m.batchSize) - m.batchSize
				n, d, hit := m.engine.Mine(tmpl.Header, batchStart, m.batchSize, stop)
				hashesDone.Add(m.batchSize)
				if hit && found.CompareAndSwap(false, true) {
					resultOnce.Do(func() { resultNonce, resultDig = n, d })
					return
				}
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed > 0 {
		metrics.MiningHashRate.Update(int64(float64(hashesDone.Load()) / elapsed.Seconds()))
	}

	return resultNonce, resultDig, found.Load()
}

// accept fills in the post-mining fields of tmpl's header with the winning
// nonce, executes the template's transactions to derive state_root and
// receipts_root, and re-enters the validation path exactly as a
// peer-delivered block would. On success it commits the block through the
// chain store.
func (m *Miner) accept(tmpl *builder.BlockTemplate, nonce uint64, digest chaintypes.Hash) error {
	header := *tmpl.Header
	header.Nonce = nonce
	block := &chaintypes.Block{Header: &header, Txs: tmpl.Txs}

	accountsAfter, deltas, receipts, err := m.applier.Effects(block)
	if err != nil {
		return fmt.Errorf("miner: computing effects: %w", err)
	}
	header.ReceiptsRoot = chaintypes.ReceiptsRoot(receipts)
	stateRoot, err := m.applier.ComputeStateRoot(accountsAfter)
	if err != nil {
		return fmt.Errorf("miner: computing state root: %w", err)
	}
	header.StateRoot = stateRoot
	block.ID = digest

	if err := m.applier.Validate(block); err != nil {
		return fmt.Errorf("miner: own block failed validation: %w", err)
	}

	if err := m.store.ApplyBlock(block, accountsAfter, deltas, receipts); err != nil {
		return fmt.Errorf("miner: applying own block: %w", err)
	}

	log.Info("Mined block", "id", block.ID, "number", header.Number, "nonce", nonce, "digest", digest, "txs", len(block.Txs))
	return nil
}
