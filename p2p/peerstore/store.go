package peerstore

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/gofrs/flock"

	"github.com/ethereum/go-ethereum/log"
)

// Store is the persistent peer book, scoped so peer data never crosses
// networks sharing a machine (spec.md §4.9 "Isolation"). Mutations are
// serialized behind mu — spec.md §5 "Peer Store mutations are serialized
// (single writer at a time); reads are lock-free snapshots" — approximated
// here with a single RWMutex rather than a true lock-free read path, since
// pebble reads are already cheap snapshots and a plain RWMutex is the
// idiomatic Go answer absent a measured need for anything fancier.
type Store struct {
	db    *pebble.DB
	lock  *flock.Flock
	scope string

	mu sync.RWMutex
}

// Open opens (creating if absent) the peer store rooted at dir, under the
// given scope. It takes its own directory lock, the same convention
// core/chainstore.Open uses, since peer data lives in its own pebble
// instance rather than sharing the Chain Store's handle (the Chain Store
// deliberately keeps its db unexported so only it ever writes to its own
// trees; giving the Peer Store a distinct instance enforces the same rule
// symmetrically, per spec.md §5 "Only the Peer Store component writes to
// the peers tree").
func Open(dir, scope string) (*Store, error) {
	lockPath := filepath.Join(dir, "LOCK")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("peerstore: acquiring lock on %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("peerstore: data directory %s is already in use by another process", dir)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("peerstore: opening pebble at %s: %w", dir, err)
	}

	log.Info("Opened peer store", "dir", dir, "scope", scope)
	return &Store{db: db, lock: fl, scope: scope}, nil
}

// Close flushes and closes the underlying database and releases the lock.
func (s *Store) Close() error {
	closeErr := s.db.Close()
	if err := s.lock.Unlock(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

// Put inserts or replaces peer, keyed by node_id within this store's scope.
func (s *Store) Put(peer *Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(peer)
}

func (s *Store) put(peer *Peer) error {
	enc, err := encodePeer(peer)
	if err != nil {
		return fmt.Errorf("peerstore: encoding peer %s: %w", peer.NodeID, err)
	}
	if err := s.db.Set(peerKey(s.scope, peer.NodeID), enc, pebble.Sync); err != nil {
		return fmt.Errorf("peerstore: writing peer %s: %w", peer.NodeID, err)
	}
	return nil
}

// Get returns the peer record for node_id, or (nil, false, nil) if absent.
func (s *Store) Get(nodeID string) (*Peer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(nodeID)
}

func (s *Store) get(nodeID string) (*Peer, bool, error) {
	data, closer, err := s.db.Get(peerKey(s.scope, nodeID))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("peerstore: reading peer %s: %w", nodeID, err)
	}
	peer, decodeErr := decodePeer(data)
	_ = closer.Close()
	if decodeErr != nil {
		return nil, false, fmt.Errorf("peerstore: decoding peer %s: %w", nodeID, decodeErr)
	}
	return peer, true, nil
}

// Delete removes node_id's record entirely. Re-discovery afterward is
// always allowed (spec.md §3 "Peer" lifecycle).
func (s *Store) Delete(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(peerKey(s.scope, nodeID), pebble.Sync); err != nil {
		return fmt.Errorf("peerstore: deleting peer %s: %w", nodeID, err)
	}
	return nil
}

// All returns every peer in this store's scope, ordered by node_id.
func (s *Store) All() ([]*Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.all()
}

func (s *Store) all() ([]*Peer, error) {
	prefix := scopePrefix(s.scope)
	opts := &pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("peerstore: iterating peers: %w", err)
	}
	defer iter.Close()

	var peers []*Peer
	for iter.First(); iter.Valid(); iter.Next() {
		peer, decodeErr := decodePeer(iter.Value())
		if decodeErr != nil {
			return nil, fmt.Errorf("peerstore: decoding peer at %s: %w", iter.Key(), decodeErr)
		}
		peers = append(peers, peer)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("peerstore: peer iteration: %w", err)
	}
	return peers, nil
}

// GetTrusted returns every peer marked Trusted.
func (s *Store) GetTrusted() ([]*Peer, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var out []*Peer
	for _, p := range all {
		if p.Trusted {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetByRole returns every peer with the given role.
func (s *Store) GetByRole(role Role) ([]*Peer, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var out []*Peer
	for _, p := range all {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

// RecordSuccess adjusts node_id's health score upward after a successful
// dial/handshake (spec.md §4.9). A peer not yet known is a no-op: the
// caller is expected to Put a fresh record on first discovery.
func (s *Store) RecordSuccess(nodeID string, ts uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok, err := s.get(nodeID)
	if err != nil || !ok {
		return err
	}
	peer.recordSuccess(ts)
	return s.put(peer)
}

// RecordFailure adjusts node_id's health score downward after a failed
// dial/handshake or request timeout. reason is logged at debug level but
// not stored: the record only tracks the count and timestamp (spec.md §4.9).
func (s *Store) RecordFailure(nodeID string, ts uint64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok, err := s.get(nodeID)
	if err != nil || !ok {
		return err
	}
	peer.recordFailure(ts)
	log.Debug("Peer Store recorded failure", "node_id", nodeID, "reason", reason, "health_score", peer.HealthScore)
	return s.put(peer)
}

// EnforceCapacity deletes non-seed peers with the lowest health score until
// the store holds at most cap entries (spec.md §4.9, invariant "Seeds are
// never evicted regardless of score"). Ties break by node_id so the outcome
// is deterministic.
func (s *Store) EnforceCapacity(cap int) (evicted int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers, err := s.all()
	if err != nil {
		return 0, err
	}
	if len(peers) <= cap {
		return 0, nil
	}

	var seeds, rest []*Peer
	for _, p := range peers {
		if p.IsSeed {
			seeds = append(seeds, p)
		} else {
			rest = append(rest, p)
		}
	}

	sort.Slice(rest, func(i, j int) bool {
		if rest[i].HealthScore != rest[j].HealthScore {
			return rest[i].HealthScore < rest[j].HealthScore
		}
		return rest[i].NodeID < rest[j].NodeID
	})

	keep := cap - len(seeds)
	if keep < 0 {
		keep = 0
	}
	if keep >= len(rest) {
		return 0, nil
	}

	toEvict := rest[:len(rest)-keep]
	for _, p := range toEvict {
		if delErr := s.db.Delete(peerKey(s.scope, p.NodeID), pebble.Sync); delErr != nil {
			return evicted, fmt.Errorf("peerstore: evicting peer %s: %w", p.NodeID, delErr)
		}
		evicted++
	}
	return evicted, nil
}
