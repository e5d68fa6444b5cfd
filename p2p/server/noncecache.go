// Package server dials and accepts peer connections, runs the handshake
// exchange, and drives each connection's read/write loop, giving p2p/sync's
// PeerSource and p2p/gossip's Broadcaster interfaces a real net.Conn behind
// them. A single in-flight request per connection is enough since the wire
// protocol (p2p/wire) carries no request id of its own.
package server

import (
	"sync"
	"time"
)

// nonceTTL is how long a (node_id, node_nonce) pair is remembered for
// anti-replay purposes (spec.md §4.11, SPEC_FULL.md's pruning-policy
// supplement: "bounded concurrent map, TTL 20 min, opportunistic pruning on
// insert"). It is wider than the 10-minute rejection window spec.md names
// so a retried handshake just inside the window is still caught.
const nonceTTL = 20 * time.Minute

// replayWindow is spec.md §4.11's rejection window: a nonce seen from the
// same node_id within this long is a replay.
const replayWindow = 10 * time.Minute

type nonceEntry struct {
	nonce uint64
	seen  time.Time
}

// nonceCache remembers the most recent handshake nonce per node_id so a
// captured handshake can't be replayed to re-establish a connection.
type nonceCache struct {
	mu      sync.Mutex
	entries map[string]nonceEntry
}

func newNonceCache() *nonceCache {
	return &nonceCache{entries: make(map[string]nonceEntry)}
}

// Check reports whether (nodeID, nonce) is a replay of a handshake seen
// within replayWindow, recording it if not. Every call opportunistically
// prunes entries older than nonceTTL.
func (c *nonceCache) Check(nodeID string, nonce uint64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		if now.Sub(e.seen) > nonceTTL {
			delete(c.entries, id)
		}
	}

	if prev, ok := c.entries[nodeID]; ok {
		if prev.nonce == nonce && now.Sub(prev.seen) <= replayWindow {
			return false
		}
	}
	c.entries[nodeID] = nonceEntry{nonce: nonce, seen: now}
	return true
}
