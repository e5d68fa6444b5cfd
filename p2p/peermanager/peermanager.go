// Package peermanager classifies peers into anchor/candidate buckets,
// maintains the node's outbound connection target, and derives the
// consensus quorum view the Readiness Gate (p2p/readiness) polls before
// unlocking mining (spec.md §4.10). Its lock-guarded tracker shape
// generalizes a validator-set model into a plain anchor/candidate split,
// with an exponential reconnect ladder per peer.
package peermanager

import (
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/p2p/peerstore"
)

// Bucket classifies a connected peer for outbound-slot accounting (spec.md
// §4.10 "Classifies peers into buckets").
type Bucket int

const (
	// BucketAnchor holds seeds and trusted peers: they count toward the
	// outbound target but are dialed first and never IPv4-filtered out.
	BucketAnchor Bucket = iota
	// BucketCandidate holds every other live outbound connection.
	BucketCandidate
)

const (
	// DefaultMinOutbound/DefaultMaxOutbound are spec.md §4.10's defaults.
	DefaultMinOutbound = 8
	DefaultMaxOutbound = 16

	DialTimeout      = 5 * time.Second
	HandshakeTimeout = 5 * time.Second
	IdleTimeout      = 120 * time.Second
)

// BackoffLadder is the exponential per-peer reconnect delay ladder (spec.md
// §4.10).
var BackoffLadder = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	900 * time.Second, // cap: repeated thereafter
}

// BackoffFor returns the delay before the (attempt+1)th redial, attempt
// being the number of consecutive failures already recorded (0 = first
// retry). Attempts beyond the ladder's length repeat the final (capped)
// step.
func BackoffFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(BackoffLadder) {
		attempt = len(BackoffLadder) - 1
	}
	return BackoffLadder[attempt]
}

// IsValidIPv4Endpoint enforces spec.md §4.10's "IPv4-only enforcement":
// reject IPv6, loopback, unspecified, and private ranges unless
// allowPrivate is set (for local/dev networks).
func IsValidIPv4Endpoint(addr *net.TCPAddr, allowPrivate bool) bool {
	if addr == nil {
		return false
	}
	v4 := addr.IP.To4()
	if v4 == nil {
		return false
	}
	if v4.IsUnspecified() || v4.IsLoopback() {
		return false
	}
	if !allowPrivate && (v4.IsPrivate() || v4.IsLinkLocalUnicast()) {
		return false
	}
	return true
}

// ConnectedPeer is the Peer Manager's live view of one outbound or inbound
// connection, refreshed after every handshake.
type ConnectedPeer struct {
	NodeID      string
	Bucket      Bucket
	Compatible  bool
	ChainHeight uint64
	ConnectedAt time.Time
	LastSeen    time.Time
}

// QuorumView is returned by ConsensusQuorum (spec.md §4.10
// "consensus_quorum()").
type QuorumView struct {
	CompatiblePeers    int
	IncompatiblePeers  int
	MinCompatibleHeight uint64
	MaxCompatibleHeight uint64
}

// Manager tracks live connections and their dial backoff state, and
// classifies live peers into anchor/candidate buckets for outbound-slot
// accounting. It does not itself own any sockets: p2p/sync and p2p/gossip
// read its peer list to pick partners, and the node's dial loop (wired at
// the cmd/visiond level) calls RecordConnected/RecordDisconnected as
// connections come and go.
type Manager struct {
	peers *peerstore.Store

	minOutbound int
	maxOutbound int
	allowPrivate bool

	mu        sync.RWMutex
	connected map[string]*ConnectedPeer
	dialing   mapset.Set[string]
	failCount map[string]int
	nextDial  map[string]time.Time
}

// New creates a Manager bound to store. minOutbound/maxOutbound <= 0 fall
// back to the spec.md §4.10 defaults.
func New(store *peerstore.Store, minOutbound, maxOutbound int, allowPrivate bool) *Manager {
	if minOutbound <= 0 {
		minOutbound = DefaultMinOutbound
	}
	if maxOutbound <= 0 {
		maxOutbound = DefaultMaxOutbound
	}
	return &Manager{
		peers:        store,
		minOutbound:  minOutbound,
		maxOutbound:  maxOutbound,
		allowPrivate: allowPrivate,
		connected:    make(map[string]*ConnectedPeer),
		dialing:      mapset.NewSet[string](),
		failCount:    make(map[string]int),
		nextDial:     make(map[string]time.Time),
	}
}

// RecordConnected registers a live connection, classifying it into a bucket
// by the peer's stored role (anchor/seed peers land in BucketAnchor).
func (m *Manager) RecordConnected(nodeID string, compatible bool, chainHeight uint64, now time.Time) {
	bucket := BucketCandidate
	if peer, ok, err := m.peers.Get(nodeID); err == nil && ok {
		if peer.IsSeed || peer.Role == peerstore.RoleAnchor {
			bucket = BucketAnchor
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[nodeID] = &ConnectedPeer{
		NodeID:      nodeID,
		Bucket:      bucket,
		Compatible:  compatible,
		ChainHeight: chainHeight,
		ConnectedAt: now,
		LastSeen:    now,
	}
	m.dialing.Remove(nodeID)
	m.failCount[nodeID] = 0
	delete(m.nextDial, nodeID)
}

// RecordDisconnected removes nodeID from the live set and schedules its
// next backoff-delayed redial.
func (m *Manager) RecordDisconnected(nodeID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connected, nodeID)
	m.dialing.Remove(nodeID)
	attempt := m.failCount[nodeID]
	m.failCount[nodeID] = attempt + 1
	m.nextDial[nodeID] = now.Add(BackoffFor(attempt))
}

// Touch updates a connected peer's LastSeen and ChainHeight, e.g. after an
// AnnounceBlock or a fresh handshake (spec.md §4.11 "Post-handshake: both
// sides adopt each other's chain_height").
func (m *Manager) Touch(nodeID string, chainHeight uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.connected[nodeID]; ok {
		p.LastSeen = now
		p.ChainHeight = chainHeight
	}
}

// ReadyToDial reports whether nodeID may be dialed now: not already
// connected, not mid-dial, and past its backoff deadline.
func (m *Manager) ReadyToDial(nodeID string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.connected[nodeID]; ok {
		return false
	}
	if m.dialing.Contains(nodeID) {
		return false
	}
	if deadline, ok := m.nextDial[nodeID]; ok && now.Before(deadline) {
		return false
	}
	return true
}

// MarkDialing flags nodeID as having an in-flight dial, so a second dial
// attempt isn't started concurrently.
func (m *Manager) MarkDialing(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialing.Add(nodeID)
}

// OutboundCount returns the number of live connections in bucket.
func (m *Manager) OutboundCount(bucket Bucket) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.connected {
		if p.Bucket == bucket {
			n++
		}
	}
	return n
}

// TotalOutbound is the total live connection count across both buckets.
func (m *Manager) TotalOutbound() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connected)
}

// NeedsMoreOutbound reports whether the live connection count is below
// minOutbound and under maxOutbound (spec.md §4.10 "Maintain at least
// min_outbound... up to max_outbound").
func (m *Manager) NeedsMoreOutbound() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connected) < m.minOutbound
}

// HasOutboundCapacity reports whether another connection may be opened at
// all (the max_outbound ceiling).
func (m *Manager) HasOutboundCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connected) < m.maxOutbound
}

// Connected returns a snapshot of all live connections.
func (m *Manager) Connected() []*ConnectedPeer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ConnectedPeer, 0, len(m.connected))
	for _, p := range m.connected {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// ConsensusQuorum derives the quorum view the Readiness Gate polls
// (spec.md §4.10/§4.14), computed from the most recent handshake of each
// live peer.
func (m *Manager) ConsensusQuorum() QuorumView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var v QuorumView
	first := true
	for _, p := range m.connected {
		if !p.Compatible {
			v.IncompatiblePeers++
			continue
		}
		v.CompatiblePeers++
		if first {
			v.MinCompatibleHeight = p.ChainHeight
			v.MaxCompatibleHeight = p.ChainHeight
			first = false
			continue
		}
		if p.ChainHeight < v.MinCompatibleHeight {
			v.MinCompatibleHeight = p.ChainHeight
		}
		if p.ChainHeight > v.MaxCompatibleHeight {
			v.MaxCompatibleHeight = p.ChainHeight
		}
	}
	return v
}

// PruneIdle disconnects (from the live set only — the caller owns the
// actual socket) any peer whose LastSeen exceeds IdleTimeout, returning the
// pruned node ids.
func (m *Manager) PruneIdle(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned []string
	for id, p := range m.connected {
		if now.Sub(p.LastSeen) > IdleTimeout {
			pruned = append(pruned, id)
		}
	}
	for _, id := range pruned {
		delete(m.connected, id)
		attempt := m.failCount[id]
		m.failCount[id] = attempt + 1
		m.nextDial[id] = now.Add(BackoffFor(attempt))
		log.Warn("Peer Manager pruned idle connection", "node_id", id)
	}
	return pruned
}
