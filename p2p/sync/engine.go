// Package sync implements headers-first synchronization with pipelined
// body fetch (spec.md §4.12), the reorg trigger handoff into
// core/chainstore's reorg primitive, and an orphan buffer for blocks that
// arrive before their parent. Its thin request/response boundary
// (PeerSource) keeps the actual socket round trip out of this package,
// wired in at the cmd/visiond level instead, the same boundary
// p2p/peermanager draws around RecordConnected/RecordDisconnected.
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/p2p/peermanager"
	"github.com/vision-project/vision-node/p2p/wire"
)

// ErrCheckpointMismatch is returned when a header at an embedded checkpoint
// height carries a different hash than the checkpoint names (spec.md §4.12
// "Checkpoints" — mismatch means disconnect and ban the source).
var ErrCheckpointMismatch = errors.New("sync: header conflicts with an embedded checkpoint")

// defaultHeadersMax is spec.md §4.12 step 1's "Max=2000".
const defaultHeadersMax = 2000

// Checkpoint is one embedded (height, hash) pair the Sync Engine refuses to
// let a peer rewrite (spec.md §4.12).
type Checkpoint struct {
	Height uint64
	Hash   chaintypes.Hash
}

// powEngine is the subset of consensus/powengine.Engine used to pre-filter
// a header before its parent has actually been committed to the chain
// store (see acceptHeaders), mirroring the same-named interface in
// core/validator and miner.
type powEngine interface {
	Verify(header *chaintypes.Header) (digest chaintypes.Hash, ok bool, err error)
}

// blockApplier is the subset of core/validator.Validator the Sync Engine
// needs: full validate-and-apply for a committed body (via
// chainstore.BlockApplier, which chainstore.Reorg also consumes), plus the
// header-only pre-check for a header that directly extends an
// already-committed block.
type blockApplier interface {
	chainstore.BlockApplier
	ValidateHeader(h *chaintypes.Header, wantID chaintypes.Hash) error
}

// peerPenalizer is the subset of p2p/peerstore.Store the Sync Engine needs
// to mildly penalize a peer whose body request timed out (spec.md §4.12
// step 3).
type peerPenalizer interface {
	RecordFailure(nodeID string, ts uint64, reason string) error
}

// PeerSource is the request/response boundary into the live connection a
// peer id names.
type PeerSource interface {
	RequestHeaders(peerID string, req *wire.GetHeaders) (*wire.Headers, error)
	RequestBlocks(peerID string, req *wire.GetBlocks) (*wire.Blocks, error)
}

// Engine drives headers-first sync against one peer at a time, buffering
// bodies in a sliding window and caching out-of-order arrivals as orphans
// until their parent lands.
type Engine struct {
	store    *chainstore.Store
	applier  blockApplier
	pow      powEngine
	peers    *peermanager.Manager
	source   PeerSource
	penalize peerPenalizer

	orphans  *OrphanBuffer
	pipeline *bodyPipeline

	checkpoints []Checkpoint
}

// New creates a Sync Engine. penalize may be nil, in which case timed-out
// body requests are only logged, never scored against the peer.
func New(store *chainstore.Store, applier blockApplier, pow powEngine, peers *peermanager.Manager, source PeerSource, penalize peerPenalizer, checkpoints []Checkpoint) *Engine {
	return &Engine{
		store:       store,
		applier:     applier,
		pow:         pow,
		peers:       peers,
		source:      source,
		penalize:    penalize,
		orphans:     NewOrphanBuffer(DefaultOrphanCapacity),
		pipeline:    newBodyPipeline(DefaultWindowSize, DefaultBodyDeadline),
		checkpoints: checkpoints,
	}
}

// Height returns the local tip's block number, or 0 if the chain holds
// only genesis (or nothing yet).
func (e *Engine) Height() uint64 {
	tip, err := e.localTip()
	if err != nil {
		return 0
	}
	return tip.Header.Number
}

// PickSyncPeer returns the connected, chain-compatible peer furthest ahead
// of localHeight, or "" if none is ahead.
func (e *Engine) PickSyncPeer(localHeight uint64) string {
	best := ""
	var bestHeight uint64
	for _, p := range e.peers.Connected() {
		if !p.Compatible || p.ChainHeight <= localHeight {
			continue
		}
		if best == "" || p.ChainHeight > bestHeight {
			best = p.NodeID
			bestHeight = p.ChainHeight
		}
	}
	return best
}

func (e *Engine) localTip() (*chaintypes.Block, error) {
	id, ok, err := e.store.ReadTip()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sync: no local tip")
	}
	block, ok, err := e.store.ReadBlock(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sync: tip block %s missing from store", id)
	}
	return block, nil
}

// FetchHeaders sends GetHeaders to peerID built from the local tip's
// locator and pre-validates the response (spec.md §4.12 steps 1-2),
// queuing any newly accepted hashes for body fetch.
func (e *Engine) FetchHeaders(peerID string) ([]chaintypes.Header, error) {
	tip, err := e.localTip()
	if err != nil {
		return nil, err
	}
	locator, err := BuildLocator(e.store, tip)
	if err != nil {
		return nil, err
	}
	resp, err := e.source.RequestHeaders(peerID, &wire.GetHeaders{Locator: locator, Max: defaultHeadersMax})
	if err != nil {
		return nil, err
	}
	return e.acceptHeaders(resp.Headers)
}

// acceptHeaders validates a Headers response in order, stopping at the
// first header that doesn't extend something we know. The first header,
// whose parent must already be a stored block, gets the full check (timestamp,
// difficulty retarget, PoW); difficulty retargeting needs to walk committed
// ancestor timestamps, which don't exist yet for headers later in the same
// batch, so those get hash-chain-linkage plus a standalone PoW digest check
// instead — the full difficulty/state check for them runs via Validate once
// their body is actually applied, which is authoritative regardless.
func (e *Engine) acceptHeaders(headers []wire.LiteHeader) ([]chaintypes.Header, error) {
	var accepted []chaintypes.Header
	var newHashes []chaintypes.Hash
	var prevAccepted *wire.LiteHeader

	for i := range headers {
		lh := headers[i]

		if _, ok, err := e.store.ReadBlock(lh.Hash); err != nil {
			return accepted, err
		} else if ok {
			continue
		}
		if err := e.checkCheckpoint(lh.Height, lh.Hash); err != nil {
			return accepted, err
		}

		h := &chaintypes.Header{
			ParentHash: lh.Prev,
			Number:     lh.Height,
			Timestamp:  lh.Time,
			Difficulty: lh.Difficulty,
			Nonce:      lh.Nonce,
			TxRoot:     lh.Merkle,
			Miner:      lh.Miner,
		}

		if prevAccepted != nil {
			if lh.Prev != prevAccepted.Hash {
				log.Debug("Sync Engine dropped header out of sequence", "hash", lh.Hash, "want_prev", prevAccepted.Hash, "have_prev", lh.Prev)
				break
			}
			if lh.Time <= prevAccepted.Time {
				return accepted, fmt.Errorf("sync: header %s timestamp does not exceed predecessor", lh.Hash)
			}
			if digest, ok, err := e.pow.Verify(h); err != nil {
				return accepted, fmt.Errorf("sync: header %s: %w", lh.Hash, err)
			} else if !ok {
				return accepted, fmt.Errorf("sync: header %s fails proof of work", lh.Hash)
			} else if digest != lh.Hash {
				return accepted, fmt.Errorf("sync: header claims id %s but recomputed digest is %s", lh.Hash, digest)
			}
		} else {
			if _, ok, err := e.store.ReadBlock(lh.Prev); err != nil {
				return accepted, err
			} else if !ok {
				log.Debug("Sync Engine dropped header extending unknown parent", "hash", lh.Hash, "prev", lh.Prev)
				break
			}
			if err := e.applier.ValidateHeader(h, lh.Hash); err != nil {
				return accepted, fmt.Errorf("sync: header %s: %w", lh.Hash, err)
			}
		}

		accepted = append(accepted, *h)
		newHashes = append(newHashes, lh.Hash)
		prevAccepted = &headers[i]
	}

	e.pipeline.Enqueue(newHashes)
	return accepted, nil
}

func (e *Engine) checkCheckpoint(height uint64, hash chaintypes.Hash) error {
	for _, c := range e.checkpoints {
		if c.Height == height && c.Hash != hash {
			return ErrCheckpointMismatch
		}
	}
	return nil
}

// RequestNextBodyBatch pulls up to the pipeline's remaining window capacity
// and requests it from peerID (spec.md §4.12 step 3).
func (e *Engine) RequestNextBodyBatch(peerID string, now time.Time) error {
	batch := e.pipeline.NextBatch(peerID, now)
	if len(batch) == 0 {
		return nil
	}
	resp, err := e.source.RequestBlocks(peerID, &wire.GetBlocks{Hashes: batch})
	if err != nil {
		e.pipeline.Release(batch)
		return err
	}
	return e.HandleBlocks(resp)
}

// RunBodyTimeouts re-queues any body request past its deadline and
// penalizes the peer that failed to deliver it (spec.md §4.12 step 3
// "mildly penalize the laggard").
func (e *Engine) RunBodyTimeouts(now time.Time) {
	overdue := e.pipeline.ExpireOverdue(now)
	for hash, peerID := range overdue {
		log.Debug("Sync Engine body request timed out", "hash", hash, "peer", peerID)
		if e.penalize != nil {
			if err := e.penalize.RecordFailure(peerID, uint64(now.Unix()), "body_timeout"); err != nil {
				log.Debug("Sync Engine failed to record body timeout", "peer", peerID, "err", err)
			}
		}
	}
}

// HandleBlocks processes a Blocks response body-by-body (spec.md §4.12
// step 4).
func (e *Engine) HandleBlocks(resp *wire.Blocks) error {
	for _, env := range resp.Blocks {
		block, err := DecodeBlock(env.Raw)
		if err != nil {
			return fmt.Errorf("sync: decode block %s: %w", env.Hash, err)
		}
		if err := e.handleBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// handleBlock buffers block as an orphan if its parent is unknown,
// otherwise applies it and drains any orphans it unblocks in order (spec.md
// §4.12 step 5).
func (e *Engine) handleBlock(block *chaintypes.Block) error {
	if _, ok, err := e.store.ReadBlock(block.Header.ParentHash); err != nil {
		return err
	} else if !ok {
		e.orphans.Add(block)
		return nil
	}

	if err := e.applyOne(block); err != nil {
		return err
	}
	e.pipeline.Fulfilled(block.ID)

	for _, child := range e.orphans.DrainChildrenOf(block.ID) {
		if err := e.handleBlock(child); err != nil {
			log.Warn("Sync Engine failed applying drained orphan", "id", child.ID, "err", err)
		}
	}
	return nil
}

// applyOne persists block's body, then hands candidacy to the Chain
// Store's reorg primitive — which also covers the common case of a block
// that simply extends the current tip, since "ancestor == current tip"
// collapses the reorg to a single-block append (spec.md §4.4, §4.12's
// "Reorg trigger").
func (e *Engine) applyOne(block *chaintypes.Block) error {
	batch := e.store.NewBatch()
	if err := chainstore.WriteBlock(batch, block); err != nil {
		batch.Close()
		return fmt.Errorf("sync: staging block %s: %w", block.ID, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("sync: staging block %s: %w", block.ID, err)
	}

	if err := e.store.Reorg(block.ID, e.applier); err != nil {
		if errors.Is(err, chainstore.ErrNotMoreWork) {
			log.Debug("Sync Engine stored block without extending tip", "id", block.ID, "number", block.Header.Number)
			return nil
		}
		return err
	}
	return nil
}

// HandleAnnounce reacts to a peer's AnnounceBlock (spec.md §4.13): if the
// block is unknown but its parent is in hand, it is fetched directly
// without waiting for the next headers round; if the parent is also
// unknown, the caller should fall back to a full headers sync with that
// peer.
func (e *Engine) HandleAnnounce(peerID string, ann *wire.AnnounceBlock) (needsHeaderSync bool, err error) {
	if _, ok, err := e.store.ReadBlock(ann.Hash); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if _, ok, err := e.store.ReadBlock(ann.Prev); err != nil {
		return false, err
	} else if !ok {
		return true, nil
	}

	resp, err := e.source.RequestBlocks(peerID, &wire.GetBlocks{Hashes: []chaintypes.Hash{ann.Hash}})
	if err != nil {
		return false, err
	}
	return false, e.HandleBlocks(resp)
}

// PendingBodies reports how many body hashes are queued or in flight.
func (e *Engine) PendingBodies() int {
	return e.pipeline.Pending()
}

// OrphanCount reports how many blocks are buffered awaiting their parent.
func (e *Engine) OrphanCount() int {
	return e.orphans.Len()
}

// HandleGetHeaders answers a peer's GetHeaders request: it walks req.Locator
// to find the highest hash we recognize, then returns up to req.Max
// canonical headers after it (spec.md §4.12 step 1, server side of the
// exchange Engine also performs as a client in FetchHeaders).
func (e *Engine) HandleGetHeaders(req *wire.GetHeaders) (*wire.Headers, error) {
	start, err := e.locatorMatch(req.Locator)
	if err != nil {
		return nil, err
	}
	max := req.Max
	if max == 0 || max > defaultHeadersMax {
		max = defaultHeadersMax
	}

	resp := &wire.Headers{}
	for number := start + 1; uint32(len(resp.Headers)) < max; number++ {
		hash, ok, err := e.store.ReadCanonicalHash(number)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		block, ok, err := e.store.ReadBlock(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		resp.Headers = append(resp.Headers, wire.LiteHeaderFromBlock(block))
		if req.Stop != nil && hash == *req.Stop {
			break
		}
	}
	return resp, nil
}

// locatorMatch returns the height of the first locator hash we hold, or 0
// (genesis) if none match.
func (e *Engine) locatorMatch(locator []chaintypes.Hash) (uint64, error) {
	for _, hash := range locator {
		block, ok, err := e.store.ReadBlock(hash)
		if err != nil {
			return 0, err
		}
		if ok {
			return block.Header.Number, nil
		}
	}
	return 0, nil
}

// HandleGetBlocks answers a peer's GetBlocks request with whichever of the
// requested hashes we hold; unknown hashes are silently skipped (spec.md
// §4.12 step 3, server side).
func (e *Engine) HandleGetBlocks(req *wire.GetBlocks) (*wire.Blocks, error) {
	resp := &wire.Blocks{}
	for _, hash := range req.Hashes {
		block, ok, err := e.store.ReadBlock(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raw, err := EncodeBlock(block)
		if err != nil {
			return nil, err
		}
		resp.Blocks = append(resp.Blocks, wire.BlockEnvelope{Hash: hash, Raw: raw})
	}
	return resp, nil
}
