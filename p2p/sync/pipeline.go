package sync

import (
	"sync"
	"time"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// DefaultWindowSize is spec.md §4.12 step 3's sliding body-fetch window W.
const DefaultWindowSize = 16

// DefaultBodyDeadline is the in-flight deadline before a body request is
// reassigned to a different peer (spec.md §4.12 step 3).
const DefaultBodyDeadline = 30 * time.Second

// inFlightRequest tracks one outstanding GetBlocks request for a single
// body hash.
type inFlightRequest struct {
	peerID   string
	deadline time.Time
}

// bodyPipeline bounds the number of outstanding body requests to
// DefaultWindowSize (or a caller-supplied size) and tracks which peer each
// in-flight hash was requested from, so a timeout can penalize the laggard
// and reassign the hash elsewhere.
type bodyPipeline struct {
	mu       sync.Mutex
	window   int
	deadline time.Duration
	queued   []chaintypes.Hash
	inFlight map[chaintypes.Hash]inFlightRequest
}

func newBodyPipeline(window int, deadline time.Duration) *bodyPipeline {
	if window <= 0 {
		window = DefaultWindowSize
	}
	if deadline <= 0 {
		deadline = DefaultBodyDeadline
	}
	return &bodyPipeline{
		window:   window,
		deadline: deadline,
		inFlight: make(map[chaintypes.Hash]inFlightRequest),
	}
}

// Enqueue appends hashes whose bodies still need fetching, skipping any
// already queued or in flight.
func (p *bodyPipeline) Enqueue(hashes []chaintypes.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		if _, inflight := p.inFlight[h]; inflight {
			continue
		}
		if containsHash(p.queued, h) {
			continue
		}
		p.queued = append(p.queued, h)
	}
}

func containsHash(hashes []chaintypes.Hash, h chaintypes.Hash) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

// NextBatch pops up to the remaining window capacity from the queue,
// marking each as in flight against peerID with a fresh deadline.
func (p *bodyPipeline) NextBatch(peerID string, now time.Time) []chaintypes.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := p.window - len(p.inFlight)
	if capacity <= 0 || len(p.queued) == 0 {
		return nil
	}
	if capacity > len(p.queued) {
		capacity = len(p.queued)
	}
	batch := p.queued[:capacity]
	p.queued = p.queued[capacity:]
	for _, h := range batch {
		p.inFlight[h] = inFlightRequest{peerID: peerID, deadline: now.Add(p.deadline)}
	}
	return batch
}

// Release puts hashes back on the queue without waiting for their deadline,
// for when the request itself failed outright (e.g. the peer disconnected
// before a response arrived).
func (p *bodyPipeline) Release(hashes []chaintypes.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		delete(p.inFlight, h)
		if !containsHash(p.queued, h) {
			p.queued = append(p.queued, h)
		}
	}
}

// Fulfilled removes hash from the in-flight set once its body has arrived
// and passed validation.
func (p *bodyPipeline) Fulfilled(hash chaintypes.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, hash)
}

// ExpireOverdue returns the hashes whose deadline has passed and the peer
// that failed to deliver each, removing them from in-flight tracking and
// re-queuing them for a different peer on the caller's next dispatch.
func (p *bodyPipeline) ExpireOverdue(now time.Time) map[chaintypes.Hash]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	overdue := make(map[chaintypes.Hash]string)
	for h, req := range p.inFlight {
		if now.After(req.deadline) {
			overdue[h] = req.peerID
			delete(p.inFlight, h)
		}
	}
	for h := range overdue {
		if !containsHash(p.queued, h) {
			p.queued = append(p.queued, h)
		}
	}
	return overdue
}

// Pending reports how many hashes are queued or in flight.
func (p *bodyPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued) + len(p.inFlight)
}
