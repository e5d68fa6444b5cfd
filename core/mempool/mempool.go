// Package mempool implements the fee-prioritized unconfirmed-transaction
// pool (spec.md §4.5): admission, deterministic selection for block
// assembly, reorg-driven re-evaluation, and eviction under capacity
// pressure.
package mempool

import (
	"container/heap"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/internal/metrics"
)

// InsertResult is the outcome of Insert, matching the three-way result
// spec.md §4.5 names: Added | Duplicate | Rejected(reason).
type InsertResult int

const (
	Added InsertResult = iota
	Duplicate
	Rejected
)

func (r InsertResult) String() string {
	switch r {
	case Added:
		return "Added"
	case Duplicate:
		return "Duplicate"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Validator supplies the context the pool needs to decide whether a
// transaction is admissible or still valid after a tip change: sender
// balance/nonce as of the current head.
type Validator interface {
	Account(address []byte) (*chaintypes.Account, bool)
}

// Pool is the fee-prioritized mempool: an RWMutex guarding a map plus a
// secondary by-sender index, with event.Feed notifications on admission.
// Its ordering and eviction policy implement spec.md §4.5's fee-per-weight
// priority rather than plain FIFO.
type Pool struct {
	mu sync.RWMutex

	max      int
	byID     map[chaintypes.Hash]*entry
	bySender map[string]map[chaintypes.Hash]struct{}
	pq       priorityQueue

	validator Validator

	insertFeed event.Feed // fired on every successful Insert
	removeFeed event.Feed // fired whenever txs leave the pool (confirmation, eviction, invalidation)
}

// RemovedEvent is sent on removeFeed whenever one or more transactions
// leave the pool.
type RemovedEvent struct {
	IDs    []chaintypes.Hash
	Reason string
}

// New creates an empty pool bounded at max entries.
func New(max int, validator Validator) *Pool {
	return &Pool{
		max:       max,
		byID:      make(map[chaintypes.Hash]*entry),
		bySender:  make(map[string]map[chaintypes.Hash]struct{}),
		validator: validator,
	}
}

// SubscribeInserted notifies ch of every transaction admitted via Insert.
func (p *Pool) SubscribeInserted(ch chan<- *chaintypes.Transaction) event.Subscription {
	return p.insertFeed.Subscribe(ch)
}

// SubscribeRemoved notifies ch whenever transactions leave the pool.
func (p *Pool) SubscribeRemoved(ch chan<- RemovedEvent) event.Subscription {
	return p.removeFeed.Subscribe(ch)
}

func senderKey(addr []byte) string { return hex.EncodeToString(addr) }

func sortEntries(es []*entry) {
	sort.Slice(es, func(i, j int) bool { return less(es[i], es[j]) })
}

// Insert admits tx into the pool, evicting the lowest fee-per-weight entry
// first if the pool is already at capacity and tx outranks it.
func (p *Pool) Insert(tx *chaintypes.Transaction) InsertResult {
	id := tx.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[id]; exists {
		return Duplicate
	}

	if p.validator != nil {
		acct, ok := p.validator.Account(tx.Sender)
		if !ok {
			metrics.MempoolRejected.Inc(1)
			return Rejected
		}
		if acct.Nonce > tx.Nonce {
			metrics.MempoolRejected.Inc(1)
			return Rejected
		}
		if acct.Balance < tx.Fee {
			metrics.MempoolRejected.Inc(1)
			return Rejected
		}
	}

	if len(p.byID) >= p.max {
		if !p.evictWorseThan(tx) {
			metrics.MempoolRejected.Inc(1)
			return Rejected
		}
	}

	e := &entry{tx: tx, id: id}
	p.byID[id] = e
	heap.Push(&p.pq, e)

	sk := senderKey(tx.Sender)
	if p.bySender[sk] == nil {
		p.bySender[sk] = make(map[chaintypes.Hash]struct{})
	}
	p.bySender[sk][id] = struct{}{}

	metrics.MempoolSize.Update(int64(len(p.byID)))
	p.insertFeed.Send(tx)
	log.Trace("Pooled transaction", "id", id, "sender", sk, "fee_per_weight", tx.FeePerWeight())
	return Added
}

// evictWorseThan drops the current lowest-priority entry if candidate
// outranks it, returning whether room was made. Caller holds p.mu.
func (p *Pool) evictWorseThan(candidate *chaintypes.Transaction) bool {
	if len(p.pq) == 0 {
		return false
	}
	worstIdx := 0
	for i := 1; i < len(p.pq); i++ {
		if less(p.pq[worstIdx], p.pq[i]) {
			worstIdx = i
		}
	}
	worst := p.pq[worstIdx]
	cand := &entry{tx: candidate, id: candidate.ID()}
	if !less(cand, worst) {
		return false
	}
	p.removeLocked(worst.id, "evicted: pool at capacity")
	return true
}

// Has reports whether txid is currently pooled.
func (p *Pool) Has(txid chaintypes.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byID[txid]
	return ok
}

// Get returns the pooled transaction for txid, if present.
func (p *Pool) Get(txid chaintypes.Hash) (*chaintypes.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byID[txid]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Len returns the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// RemoveMany removes the given transactions (typically because they were
// just confirmed in an accepted block).
func (p *Pool) RemoveMany(ids []chaintypes.Hash) {
	if len(ids) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.removeLocked(id, "confirmed")
	}
	metrics.MempoolSize.Update(int64(len(p.byID)))
}

func (p *Pool) removeLocked(id chaintypes.Hash, reason string) {
	e, ok := p.byID[id]
	if !ok {
		return
	}
	heap.Remove(&p.pq, e.index)
	delete(p.byID, id)
	sk := senderKey(e.tx.Sender)
	if set, ok := p.bySender[sk]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(p.bySender, sk)
		}
	}
	p.removeFeed.Send(RemovedEvent{IDs: []chaintypes.Hash{id}, Reason: reason})
}

// SelectForBlock returns up to maxCount transactions (bounded additionally
// by cumulative Weight <= maxWeight) in the deterministic priority order
// spec.md §4.5 defines. It does not remove them from the pool: removal only
// happens once the block that includes them is actually accepted.
func (p *Pool) SelectForBlock(maxCount int, maxWeight uint64) []*chaintypes.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := make([]*entry, len(p.pq))
	copy(ordered, p.pq)
	sortEntries(ordered)

	var (
		selected    []*chaintypes.Transaction
		totalWeight uint64
	)
	for _, e := range ordered {
		if len(selected) >= maxCount {
			break
		}
		if totalWeight+e.tx.Weight > maxWeight {
			continue
		}
		selected = append(selected, e.tx)
		totalWeight += e.tx.Weight
	}
	return selected
}

// Reset re-evaluates every pooled transaction against the chain state as of
// the new tip, removing any whose sender nonce is no longer admissible
// (spec.md §4.5 "On tip change ... re-evaluated; ones that can no longer be
// included are removed").
func (p *Pool) Reset(confirmedTxIDs []chaintypes.Hash) {
	p.RemoveMany(confirmedTxIDs)

	if p.validator == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []chaintypes.Hash
	for id, e := range p.byID {
		acct, ok := p.validator.Account(e.tx.Sender)
		if !ok || acct.Nonce > e.tx.Nonce || acct.Balance < e.tx.Fee {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		p.removeLocked(id, "invalidated by new tip")
	}
	metrics.MempoolSize.Update(int64(len(p.byID)))
}
